package layers

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	dropoutProb       = 0.5
	batchNormEps      = 1e-5
	batchNormMomentum = 0.1
)

// ParseGeometry parses a space separated list of layer widths such as
// "1024 512 70". At least an input and an output width are required.
func ParseGeometry(geom string) ([]int, error) {
	fields := strings.Fields(geom)
	if len(fields) < 2 {
		return nil, errors.Errorf("geometry %q needs at least two layer widths", geom)
	}
	widths := make([]int, len(fields))
	for i, f := range fields {
		w, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(err, "geometry %q", geom)
		}
		if w <= 0 {
			return nil, errors.Errorf("geometry %q has non-positive width %d", geom, w)
		}
		widths[i] = w
	}
	return widths, nil
}

// BuildMLP creates a Linear layer between consecutive widths. Every hidden
// layer is followed by Dropout, BatchNorm1d and ReLU; the last Linear
// produces raw class scores.
func BuildMLP(widths []int, rng *rand.Rand) (*Sequential, error) {
	if len(widths) < 2 {
		return nil, errors.Errorf("need at least two layer widths, got %d", len(widths))
	}
	var modules []Module
	for i := 0; i < len(widths)-1; i++ {
		linear, err := NewLinear(widths[i], widths[i+1], rng)
		if err != nil {
			return nil, err
		}
		modules = append(modules, linear)
		if i == len(widths)-2 {
			break
		}
		dropout, err := NewDropout(dropoutProb, rng)
		if err != nil {
			return nil, err
		}
		bn, err := NewBatchNorm1d(widths[i+1], batchNormEps, batchNormMomentum)
		if err != nil {
			return nil, err
		}
		modules = append(modules, dropout, bn, NewReLU())
	}
	return NewSequential(modules...), nil
}
