package layers

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/tsawler/vrd-classifier/optimizer"
	"gonum.org/v1/gonum/mat"
)

// ReLUActivation applies max(0, x) element-wise
type ReLUActivation struct {
	mode
	mask *mat.Dense
}

// NewReLU creates a ReLU activation
func NewReLU() *ReLUActivation {
	return &ReLUActivation{mode: mode{training: true}}
}

// Forward zeroes negative inputs
func (r *ReLUActivation) Forward(input *mat.Dense) (*mat.Dense, error) {
	rows, cols := input.Dims()
	out := mat.NewDense(rows, cols, nil)
	mask := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		in := input.RawRowView(i)
		o := out.RawRowView(i)
		m := mask.RawRowView(i)
		for j, v := range in {
			if v > 0 {
				o[j] = v
				m[j] = 1
			}
		}
	}
	r.mask = mask
	return out, nil
}

// Backward passes the gradient through where the input was positive
func (r *ReLUActivation) Backward(gradOutput *mat.Dense) (*mat.Dense, error) {
	if r.mask == nil {
		return nil, errors.New("relu backward called before forward")
	}
	var out mat.Dense
	out.MulElem(gradOutput, r.mask)
	return &out, nil
}

// Parameters returns nil; ReLU has no parameters
func (r *ReLUActivation) Parameters() []*optimizer.Parameter { return nil }

// State returns nil
func (r *ReLUActivation) State() []StateTensor { return nil }

// Type returns ReLU
func (r *ReLUActivation) Type() LayerType { return ReLU }

func (r *ReLUActivation) String() string { return "ReLU()" }

// DropoutLayer zeroes each input with probability P during training and
// scales the survivors by 1/(1-P). It is the identity in eval mode.
type DropoutLayer struct {
	mode
	P float64

	rng  *rand.Rand
	mask *mat.Dense
}

// NewDropout creates a dropout layer with drop probability p
func NewDropout(p float64, rng *rand.Rand) (*DropoutLayer, error) {
	if p < 0 || p >= 1 {
		return nil, errors.Errorf("dropout probability must be in [0, 1), got %g", p)
	}
	return &DropoutLayer{mode: mode{training: true}, P: p, rng: rng}, nil
}

// Forward applies the dropout mask in training mode
func (d *DropoutLayer) Forward(input *mat.Dense) (*mat.Dense, error) {
	if !d.training || d.P == 0 {
		d.mask = nil
		return input, nil
	}
	rows, cols := input.Dims()
	scale := 1 / (1 - d.P)
	mask := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		m := mask.RawRowView(i)
		for j := range m {
			if d.rng.Float64() >= d.P {
				m[j] = scale
			}
		}
	}
	var out mat.Dense
	out.MulElem(input, mask)
	d.mask = mask
	return &out, nil
}

// Backward applies the same mask used in Forward
func (d *DropoutLayer) Backward(gradOutput *mat.Dense) (*mat.Dense, error) {
	if d.mask == nil {
		return gradOutput, nil
	}
	var out mat.Dense
	out.MulElem(gradOutput, d.mask)
	return &out, nil
}

// Parameters returns nil; dropout has no parameters
func (d *DropoutLayer) Parameters() []*optimizer.Parameter { return nil }

// State returns nil
func (d *DropoutLayer) State() []StateTensor { return nil }

// Type returns Dropout
func (d *DropoutLayer) Type() LayerType { return Dropout }

func (d *DropoutLayer) String() string {
	return fmt.Sprintf("Dropout(p=%g)", d.P)
}
