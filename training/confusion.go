package training

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// MetricType represents a classification metric derived from a confusion matrix
type MetricType int

const (
	MacroPrecision MetricType = iota
	MacroRecall
	MacroF1
	MicroPrecision
	MicroRecall
	MicroF1
)

func (mt MetricType) String() string {
	switch mt {
	case MacroPrecision:
		return "MacroPrecision"
	case MacroRecall:
		return "MacroRecall"
	case MacroF1:
		return "MacroF1"
	case MicroPrecision:
		return "MicroPrecision"
	case MicroRecall:
		return "MicroRecall"
	case MicroF1:
		return "MicroF1"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// ConfusionMatrix counts predictions per (true class, predicted class)
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int // [true_class][predicted_class]
	TotalSamples int
}

// NewConfusionMatrix creates a new confusion matrix
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}
	return &ConfusionMatrix{
		NumClasses: numClasses,
		Matrix:     matrix,
	}
}

// Reset clears the confusion matrix
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// UpdateFromPredictions adds the arg-max prediction of every row
func (cm *ConfusionMatrix) UpdateFromPredictions(predictions *mat.Dense, labels []int) error {
	rows, cols := predictions.Dims()
	if rows != len(labels) {
		return &ConfigurationError{Field: "batch", Reason: fmt.Sprintf("%d predictions for %d labels", rows, len(labels))}
	}
	if cols != cm.NumClasses {
		return &ConfigurationError{Field: "predictions", Reason: fmt.Sprintf("%d columns for %d classes", cols, cm.NumClasses)}
	}
	for i, label := range labels {
		if label < 0 || label >= cm.NumClasses {
			return &ConfigurationError{Field: "labels", Reason: fmt.Sprintf("label %d out of range [0, %d)", label, cm.NumClasses)}
		}
		cm.Matrix[label][ArgMax(predictions.RawRowView(i))]++
		cm.TotalSamples++
	}
	return nil
}

// GetMetric calculates the requested metric
func (cm *ConfusionMatrix) GetMetric(metric MetricType) float64 {
	switch metric {
	case MacroPrecision:
		return cm.macro(cm.precision)
	case MacroRecall:
		return cm.macro(cm.recall)
	case MacroF1:
		return f1(cm.GetMetric(MacroPrecision), cm.GetMetric(MacroRecall))
	case MicroPrecision, MicroRecall:
		// every misclassification is one false positive and one false negative
		return cm.GetAccuracy()
	case MicroF1:
		return f1(cm.GetMetric(MicroPrecision), cm.GetMetric(MicroRecall))
	default:
		return 0.0
	}
}

// precision returns tp/(tp+fp) for class and whether it is defined
func (cm *ConfusionMatrix) precision(class int) (float64, bool) {
	tp := float64(cm.Matrix[class][class])
	predicted := 0.0
	for trueClass := 0; trueClass < cm.NumClasses; trueClass++ {
		predicted += float64(cm.Matrix[trueClass][class])
	}
	if predicted == 0 {
		return 0, false
	}
	return tp / predicted, true
}

// recall returns tp/(tp+fn) for class and whether it is defined
func (cm *ConfusionMatrix) recall(class int) (float64, bool) {
	tp := float64(cm.Matrix[class][class])
	actual := 0.0
	for _, n := range cm.Matrix[class] {
		actual += float64(n)
	}
	if actual == 0 {
		return 0, false
	}
	return tp / actual, true
}

// macro averages a per-class metric over the classes where it is defined
func (cm *ConfusionMatrix) macro(perClass func(int) (float64, bool)) float64 {
	sum := 0.0
	validClasses := 0
	for class := 0; class < cm.NumClasses; class++ {
		if v, ok := perClass(class); ok {
			sum += v
			validClasses++
		}
	}
	if validClasses == 0 {
		return 0.0
	}
	return sum / float64(validClasses)
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0.0
	}
	return 2 * (precision * recall) / (precision + recall)
}

// GetAccuracy returns overall classification accuracy
func (cm *ConfusionMatrix) GetAccuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0.0
	}
	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

// WriteSummary writes one line of aggregate metrics for a named source
func (cm *ConfusionMatrix) WriteSummary(w io.Writer, name string) {
	fmt.Fprintf(w, "%12s samples %d\tacc %.3f\tmacro P/R/F1 %.3f/%.3f/%.3f\tmicro F1 %.3f\n",
		name, cm.TotalSamples, cm.GetAccuracy(),
		cm.GetMetric(MacroPrecision), cm.GetMetric(MacroRecall), cm.GetMetric(MacroF1),
		cm.GetMetric(MicroF1))
}
