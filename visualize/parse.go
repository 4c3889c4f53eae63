// Package visualize reads training logs back into per-source series and
// renders them as charts.
package visualize

import (
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// linePattern matches progress lines written by training.Reporter
var linePattern = regexp.MustCompile(`(?m)^\s*(.*?)\s*\(ep\s+(\d+):\s+(\d+)/\d+\)\s+loss (\S+)\s+acc (\S+)`)

// Point is one parsed progress line
type Point struct {
	Name  string
	Epoch int
	Batch int
	Loss  float64
	Acc   float64
}

// Key selects the value plotted for each point
type Key string

const (
	KeyAcc  Key = "acc"
	KeyLoss Key = "loss"
)

// ParseKey validates a key given on the command line
func ParseKey(s string) (Key, error) {
	switch k := Key(s); k {
	case KeyAcc, KeyLoss:
		return k, nil
	default:
		return "", errors.Errorf("unknown key %q, expected %q or %q", s, KeyAcc, KeyLoss)
	}
}

// Value returns the field of p selected by key
func (p Point) Value(key Key) float64 {
	if key == KeyLoss {
		return p.Loss
	}
	return p.Acc
}

// Parse extracts every progress line from r. Other lines are ignored.
func Parse(r io.Reader) ([]Point, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read log")
	}

	var points []Point
	for _, m := range linePattern.FindAllStringSubmatch(string(buf), -1) {
		p, err := parsePoint(m)
		if err != nil {
			return nil, errors.Wrapf(err, "parse line %q", m[0])
		}
		points = append(points, p)
	}
	return points, nil
}

// ParseFile parses the log file at path
func ParseFile(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open log")
	}
	defer f.Close()
	return Parse(f)
}

func parsePoint(m []string) (Point, error) {
	epoch, err := strconv.Atoi(m[2])
	if err != nil {
		return Point{}, errors.Wrap(err, "epoch")
	}
	batch, err := strconv.Atoi(m[3])
	if err != nil {
		return Point{}, errors.Wrap(err, "batch")
	}
	loss, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Point{}, errors.Wrap(err, "loss")
	}
	acc, err := strconv.ParseFloat(m[5], 64)
	if err != nil {
		return Point{}, errors.Wrap(err, "acc")
	}
	return Point{Name: m[1], Epoch: epoch, Batch: batch, Loss: loss, Acc: acc}, nil
}
