package optimizer

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Optimizer defines the common interface for all optimizers
type Optimizer interface {
	// Step applies one update to every parameter using its accumulated gradient
	Step() error

	// ZeroGrad resets the accumulated gradient of every parameter
	ZeroGrad()

	// GetLR returns the current learning rate
	GetLR() float64

	// SetLR updates the learning rate used by subsequent steps
	SetLR(lr float64)

	// GetStepCount returns the number of completed optimization steps
	GetStepCount() uint64

	// Name returns the optimizer name for logging
	Name() string
}

// Parameter is a trainable matrix together with the gradient accumulated
// for it since the last ZeroGrad.
type Parameter struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParameter wraps value as a trainable parameter with a zero gradient
func NewParameter(name string, value *mat.Dense) *Parameter {
	r, c := value.Dims()
	return &Parameter{
		Name:  name,
		Value: value,
		Grad:  mat.NewDense(r, c, nil),
	}
}

// ZeroGrad clears the accumulated gradient
func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

// AccumulateGrad adds g to the accumulated gradient
func (p *Parameter) AccumulateGrad(g mat.Matrix) error {
	gr, gc := g.Dims()
	pr, pc := p.Grad.Dims()
	if gr != pr || gc != pc {
		return errors.Errorf("gradient shape %dx%d does not match parameter %s shape %dx%d", gr, gc, p.Name, pr, pc)
	}
	p.Grad.Add(p.Grad, g)
	return nil
}

// Size returns the number of scalar values in the parameter
func (p *Parameter) Size() int {
	r, c := p.Value.Dims()
	return r * c
}

func zeroGrad(params []*Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

func zerosLike(params []*Parameter) []*mat.Dense {
	out := make([]*mat.Dense, len(params))
	for i, p := range params {
		r, c := p.Value.Dims()
		out[i] = mat.NewDense(r, c, nil)
	}
	return out
}
