package training

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CrossEntropyLoss implements softmax cross entropy over class scores
type CrossEntropyLoss struct {
	reduction string // "mean" or "sum"
}

// NewCrossEntropyLoss creates a new Cross Entropy loss function
func NewCrossEntropyLoss(reduction string) *CrossEntropyLoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &CrossEntropyLoss{reduction: reduction}
}

// Forward computes the Cross Entropy loss
// predicted: [batch_size, num_classes] logits
// target: [batch_size] class indices
func (ce *CrossEntropyLoss) Forward(predicted *mat.Dense, target []int) (float64, error) {
	if err := checkTargets(predicted, target); err != nil {
		return 0, err
	}

	loss := 0.0
	for i, class := range target {
		row := predicted.RawRowView(i)
		maxVal := rowMax(row)
		sum := 0.0
		for _, v := range row {
			sum += math.Exp(v - maxVal)
		}
		// -log softmax(x)_c = log(sum(exp(x - max))) + max - x_c
		loss += math.Log(sum) + maxVal - row[class]
	}
	if ce.reduction == "mean" {
		loss /= float64(len(target))
	}
	return loss, nil
}

// Backward computes the gradient of the loss with respect to the logits
func (ce *CrossEntropyLoss) Backward(predicted *mat.Dense, target []int) (*mat.Dense, error) {
	grad, err := ce.softmax(predicted, target)
	if err != nil {
		return nil, err
	}
	scale := 1.0
	if ce.reduction == "mean" {
		scale = 1 / float64(len(target))
	}
	for i, class := range target {
		row := grad.RawRowView(i)
		row[class] -= 1
		for j := range row {
			row[j] *= scale
		}
	}
	return grad, nil
}

// checkTargets validates the batch shape and the class indices
func checkTargets(logits *mat.Dense, target []int) error {
	if logits == nil || len(target) == 0 {
		return errors.New("cross entropy of an empty batch")
	}
	batchSize, numClasses := logits.Dims()
	if batchSize != len(target) {
		return errors.Errorf("batch size mismatch: predicted %d, target %d", batchSize, len(target))
	}
	for i, class := range target {
		if class < 0 || class >= numClasses {
			return errors.Errorf("target %d of sample %d out of range [0, %d)", class, i, numClasses)
		}
	}
	return nil
}

// softmax validates shapes and returns row-wise probabilities
func (ce *CrossEntropyLoss) softmax(logits *mat.Dense, target []int) (*mat.Dense, error) {
	if err := checkTargets(logits, target); err != nil {
		return nil, err
	}
	batchSize, numClasses := logits.Dims()
	probs := mat.NewDense(batchSize, numClasses, nil)
	for i := 0; i < batchSize; i++ {
		in := logits.RawRowView(i)
		out := probs.RawRowView(i)
		maxVal := rowMax(in)
		sum := 0.0
		for j, v := range in {
			out[j] = math.Exp(v - maxVal)
			sum += out[j]
		}
		for j := range out {
			out[j] /= sum
		}
	}
	return probs, nil
}

func rowMax(row []float64) float64 {
	m := row[0]
	for _, v := range row[1:] {
		m = math.Max(m, v)
	}
	return m
}

func (ce *CrossEntropyLoss) String() string {
	return fmt.Sprintf("CrossEntropyLoss(reduction=%s)", ce.reduction)
}
