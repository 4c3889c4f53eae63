package training

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LossHistory holds one training loss per global iteration
type LossHistory []float64

// IterationRecord is the outcome of one training step
type IterationRecord struct {
	Epoch     int
	Iteration int
	Loss      float64
	Accuracy  float64
}

// MetricTracker owns the pre-sized loss history of a run
type MetricTracker struct {
	history LossHistory
}

// NewMetricTracker allocates a history with one slot per planned iteration
func NewMetricTracker(length int) *MetricTracker {
	return &MetricTracker{history: make(LossHistory, length)}
}

// Record stores loss at iteration and returns the stored value
func (mt *MetricTracker) Record(iteration int, loss float64) (float64, error) {
	if iteration < 0 || iteration >= len(mt.history) {
		return 0, &IndexError{Index: iteration, Length: len(mt.history)}
	}
	mt.history[iteration] = loss
	return mt.history[iteration], nil
}

// History returns the loss history
func (mt *MetricTracker) History() LossHistory {
	return mt.history
}

// Accuracy returns the fraction of rows whose arg-max column equals the label
func (mt *MetricTracker) Accuracy(predictions *mat.Dense, labels []int) (float64, error) {
	return Accuracy(predictions, labels)
}

// Accuracy returns the fraction of rows whose arg-max column equals the label
func Accuracy(predictions *mat.Dense, labels []int) (float64, error) {
	if predictions == nil || len(labels) == 0 {
		return 0, &ConfigurationError{Field: "batch", Reason: "accuracy of an empty batch is undefined"}
	}
	rows, _ := predictions.Dims()
	if rows != len(labels) {
		return 0, &ConfigurationError{
			Field:  "batch",
			Reason: fmt.Sprintf("%d predictions for %d labels", rows, len(labels)),
		}
	}
	correct := 0
	for i, label := range labels {
		if ArgMax(predictions.RawRowView(i)) == label {
			correct++
		}
	}
	return float64(correct) / float64(len(labels)), nil
}

// ArgMax returns the index of the largest value, the first one on ties
func ArgMax(row []float64) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
