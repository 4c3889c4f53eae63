package training

import (
	"github.com/pkg/errors"
)

// SubsetDataset exposes only the first samples of an underlying dataset.
type SubsetDataset struct {
	originalDataset Dataset
	limit           int
}

// NewSubsetDataset creates a new SubsetDataset that wraps an existing dataset
// and limits the number of samples it exposes.
func NewSubsetDataset(original Dataset, limit int) (*SubsetDataset, error) {
	if limit < 0 {
		return nil, errors.Errorf("limit cannot be negative, got %d", limit)
	}
	if limit > original.Len() {
		limit = original.Len()
	}
	return &SubsetDataset{
		originalDataset: original,
		limit:           limit,
	}, nil
}

// NewFractionDataset keeps the first fraction of original, rounding down
func NewFractionDataset(original Dataset, fraction float64) (*SubsetDataset, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, errors.Errorf("fraction must be in (0, 1], got %g", fraction)
	}
	return NewSubsetDataset(original, int(float64(original.Len())*fraction))
}

// Len returns the number of samples in the subset
func (sd *SubsetDataset) Len() int {
	return sd.limit
}

// Get returns a sample at the given index from the original dataset.
func (sd *SubsetDataset) Get(idx int) ([]float64, int, error) {
	if idx < 0 || idx >= sd.limit {
		return nil, 0, errors.Errorf("index out of bounds for subset: %d (limit: %d)", idx, sd.limit)
	}
	return sd.originalDataset.Get(idx)
}

// Name returns the name of the underlying dataset
func (sd *SubsetDataset) Name() string {
	if n, ok := sd.originalDataset.(Named); ok {
		return n.Name()
	}
	return ""
}
