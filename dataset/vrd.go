// Package dataset loads relation-detection samples from JSON-lines files and
// partitions test data into seen and zero-shot relations.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/tsawler/vrd-classifier/training"
)

// Sample is one annotated subject-predicate-object pair. The predicate is the
// class label.
type Sample struct {
	Features  []float64 `json:"features"`
	Subject   int       `json:"subject"`
	Predicate int       `json:"predicate"`
	Object    int       `json:"object"`
}

// Triple identifies a relation independent of the image it occurs in
type Triple struct {
	Subject, Predicate, Object int
}

// Triple returns the relation of the sample
func (s Sample) Triple() Triple {
	return Triple{Subject: s.Subject, Predicate: s.Predicate, Object: s.Object}
}

// VRD is an in-memory split of the relation dataset. It implements
// training.Dataset.
type VRD struct {
	name       string
	samples    []Sample
	featureDim int
	bytes      int64
}

// Path returns the file a split is read from
func Path(root, split string) string {
	return filepath.Join(root, split+".jsonl")
}

// Load reads <root>/<split>.jsonl. Every sample must have the same non-zero
// number of features and a non-negative predicate.
func Load(root, split string) (*VRD, error) {
	path := Path(root, split)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s split", split)
	}
	defer f.Close()

	d, err := Read(split, f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if d.Len() == 0 {
		return nil, errors.Errorf("%s contains no samples", path)
	}
	if info, err := f.Stat(); err == nil {
		d.bytes = info.Size()
	}
	return d, nil
}

// Read decodes consecutive JSON sample objects from r
func Read(name string, r io.Reader) (*VRD, error) {
	dec := json.NewDecoder(r)
	var samples []Sample
	for {
		var s Sample
		err := dec.Decode(&s)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "decode sample %d", len(samples))
		}
		samples = append(samples, s)
	}
	return FromSamples(name, samples)
}

// FromSamples builds a named split from samples, which may be empty
func FromSamples(name string, samples []Sample) (*VRD, error) {
	d := &VRD{name: name, samples: samples}
	for i, s := range samples {
		if len(s.Features) == 0 {
			return nil, errors.Errorf("sample %d has no features", i)
		}
		if i == 0 {
			d.featureDim = len(s.Features)
		} else if len(s.Features) != d.featureDim {
			return nil, errors.Errorf("sample %d has %d features, expected %d", i, len(s.Features), d.featureDim)
		}
		if s.Predicate < 0 {
			return nil, errors.Errorf("sample %d has negative predicate %d", i, s.Predicate)
		}
	}
	return d, nil
}

// Name returns the split name used in progress reports
func (d *VRD) Name() string {
	return d.name
}

// Len returns the number of samples
func (d *VRD) Len() int {
	return len(d.samples)
}

// Get returns the features and predicate label of sample idx
func (d *VRD) Get(idx int) ([]float64, int, error) {
	if idx < 0 || idx >= len(d.samples) {
		return nil, 0, errors.Errorf("index %d out of range [0, %d)", idx, len(d.samples))
	}
	s := d.samples[idx]
	return s.Features, s.Predicate, nil
}

// Sample returns sample idx
func (d *VRD) Sample(idx int) (Sample, error) {
	if idx < 0 || idx >= len(d.samples) {
		return Sample{}, errors.Errorf("index %d out of range [0, %d)", idx, len(d.samples))
	}
	return d.samples[idx], nil
}

// FeatureDim returns the number of features per sample, 0 when empty
func (d *VRD) FeatureDim() int {
	return d.featureDim
}

// NumClasses returns one more than the largest predicate
func (d *VRD) NumClasses() int {
	n := 0
	for _, s := range d.samples {
		if s.Predicate >= n {
			n = s.Predicate + 1
		}
	}
	return n
}

// String describes the split for the startup log
func (d *VRD) String() string {
	desc := fmt.Sprintf("%s: %s samples, %d features", d.name, humanize.Comma(int64(len(d.samples))), d.featureDim)
	if d.bytes > 0 {
		desc += fmt.Sprintf(" (%s)", humanize.Bytes(uint64(d.bytes)))
	}
	return desc
}

var (
	_ training.Dataset = (*VRD)(nil)
	_ training.Named   = (*VRD)(nil)
)
