package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/tsawler/vrd-classifier/optimizer"
	"gonum.org/v1/gonum/mat"
)

// Linear is a fully connected layer computing input*W + b
type Linear struct {
	mode
	InFeatures  int
	OutFeatures int

	weight *optimizer.Parameter // InFeatures x OutFeatures
	bias   *optimizer.Parameter // 1 x OutFeatures
	input  *mat.Dense
}

// NewLinear creates a Linear layer with weights drawn from
// U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) (*Linear, error) {
	if inFeatures <= 0 || outFeatures <= 0 {
		return nil, errors.Errorf("linear layer dimensions must be positive, got %dx%d", inFeatures, outFeatures)
	}
	bound := 1 / math.Sqrt(float64(inFeatures))
	uniform := func(n int) []float64 {
		data := make([]float64, n)
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * bound
		}
		return data
	}
	return &Linear{
		mode:        mode{training: true},
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		weight:      optimizer.NewParameter("weight", mat.NewDense(inFeatures, outFeatures, uniform(inFeatures*outFeatures))),
		bias:        optimizer.NewParameter("bias", mat.NewDense(1, outFeatures, uniform(outFeatures))),
	}, nil
}

// Forward computes the affine transform for a batch
func (l *Linear) Forward(input *mat.Dense) (*mat.Dense, error) {
	rows, cols := input.Dims()
	if cols != l.InFeatures {
		return nil, errors.Errorf("linear layer expects %d input features, got %d", l.InFeatures, cols)
	}
	out := mat.NewDense(rows, l.OutFeatures, nil)
	out.Mul(input, l.weight.Value)
	bias := l.bias.Value.RawRowView(0)
	for r := 0; r < rows; r++ {
		row := out.RawRowView(r)
		for c := range row {
			row[c] += bias[c]
		}
	}
	l.input = input
	return out, nil
}

// Backward accumulates dW = X^T g and db = sum(g) and returns g W^T
func (l *Linear) Backward(gradOutput *mat.Dense) (*mat.Dense, error) {
	if l.input == nil {
		return nil, errors.New("linear backward called before forward")
	}
	rows, cols := gradOutput.Dims()
	inRows, _ := l.input.Dims()
	if rows != inRows || cols != l.OutFeatures {
		return nil, errors.Errorf("linear backward expects %dx%d gradient, got %dx%d", inRows, l.OutFeatures, rows, cols)
	}

	var dW mat.Dense
	dW.Mul(l.input.T(), gradOutput)
	if err := l.weight.AccumulateGrad(&dW); err != nil {
		return nil, err
	}

	db := mat.NewDense(1, l.OutFeatures, nil)
	dbRow := db.RawRowView(0)
	for r := 0; r < rows; r++ {
		for c, g := range gradOutput.RawRowView(r) {
			dbRow[c] += g
		}
	}
	if err := l.bias.AccumulateGrad(db); err != nil {
		return nil, err
	}

	gradInput := mat.NewDense(rows, l.InFeatures, nil)
	gradInput.Mul(gradOutput, l.weight.Value.T())
	return gradInput, nil
}

// Parameters returns the weight and bias
func (l *Linear) Parameters() []*optimizer.Parameter {
	return []*optimizer.Parameter{l.weight, l.bias}
}

// State returns the tensors saved in a checkpoint
func (l *Linear) State() []StateTensor {
	return []StateTensor{
		{Name: "weight", Value: l.weight.Value},
		{Name: "bias", Value: l.bias.Value},
	}
}

// Type returns Dense
func (l *Linear) Type() LayerType { return Dense }

func (l *Linear) String() string {
	return fmt.Sprintf("Linear(in_features=%d, out_features=%d, bias=true)", l.InFeatures, l.OutFeatures)
}
