package training

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Batch is a set of samples whose feature rows align with Labels
type Batch struct {
	Features *mat.Dense
	Labels   []int
}

// Size returns the number of samples in the batch
func (b *Batch) Size() int {
	return len(b.Labels)
}

// DataSource is a finite, restartable sequence of batches
type DataSource interface {
	Len() int       // batches per pass
	BatchSize() int // samples per full batch
	Reset()         // rewind to the first batch
	Next() (*Batch, error)
}

// Named is implemented by sources that carry a display name
type Named interface {
	Name() string
}

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	Len() int                                               // Total number of samples
	Get(idx int) (features []float64, label int, err error) // Returns a single sample
}

// DataLoader provides batching and shuffling over a Dataset
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
	mutex     sync.Mutex
}

// NewDataLoader creates a new DataLoader. A non-positive batchSize puts the
// whole dataset in one batch. rng is only used when shuffle is set.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, rng *rand.Rand) *DataLoader {
	datasetLen := dataset.Len()
	if batchSize <= 0 {
		batchSize = datasetLen
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if shuffle && rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	indices := make([]int, datasetLen)
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
		indices:   indices,
	}
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (len(dl.indices) + dl.batchSize - 1) / dl.batchSize
}

// BatchSize returns the number of samples in a full batch
func (dl *DataLoader) BatchSize() int {
	return dl.batchSize
}

// Name returns the dataset name, or "" when the dataset is unnamed
func (dl *DataLoader) Name() string {
	if n, ok := dl.dataset.(Named); ok {
		return n.Name()
	}
	return ""
}

// Reset resets the data loader for a new epoch
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0

	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// Next returns the next batch or nil if epoch is complete
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil // End of epoch
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load batch")
	}
	return batch, nil
}

// HasNext returns true if there are more batches in the current epoch
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// loadBatch stacks the samples at indices into one feature matrix
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, errors.New("empty batch indices")
	}

	first, _, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load sample %d", indices[0])
	}
	dim := len(first)
	if dim == 0 {
		return nil, errors.Errorf("sample %d has no features", indices[0])
	}

	features := mat.NewDense(len(indices), dim, nil)
	labels := make([]int, len(indices))
	for i, idx := range indices {
		x, y, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load sample %d", idx)
		}
		if len(x) != dim {
			return nil, errors.Errorf("sample %d has %d features, expected %d", idx, len(x), dim)
		}
		features.SetRow(i, x)
		labels[i] = y
	}

	return &Batch{Features: features, Labels: labels}, nil
}
