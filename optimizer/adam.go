package optimizer

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// AdamConfig holds configuration for Adam optimizer
type AdamConfig struct {
	LearningRate float64
	Beta1        float64 // Momentum decay (typically 0.9)
	Beta2        float64 // Variance decay (typically 0.999)
	Epsilon      float64
	WeightDecay  float64 // L2 regularization coefficient
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// Adam implements the Adam optimizer with bias-corrected moment estimates
type Adam struct {
	config    AdamConfig
	params    []*Parameter
	momentum  []*mat.Dense // first moment per parameter
	variance  []*mat.Dense // second moment per parameter
	stepCount uint64
}

// NewAdam creates a new Adam optimizer over params
func NewAdam(config AdamConfig, params []*Parameter) (*Adam, error) {
	if config.LearningRate <= 0 {
		return nil, errors.Errorf("learning rate must be positive, got %g", config.LearningRate)
	}
	if config.Beta1 < 0 || config.Beta1 >= 1 {
		return nil, errors.Errorf("beta1 must be in [0, 1), got %g", config.Beta1)
	}
	if config.Beta2 < 0 || config.Beta2 >= 1 {
		return nil, errors.Errorf("beta2 must be in [0, 1), got %g", config.Beta2)
	}
	if config.Epsilon <= 0 {
		return nil, errors.Errorf("epsilon must be positive, got %g", config.Epsilon)
	}
	return &Adam{
		config:   config,
		params:   params,
		momentum: zerosLike(params),
		variance: zerosLike(params),
	}, nil
}

// Step performs a single optimization step
func (a *Adam) Step() error {
	a.stepCount++
	c := a.config

	bias1 := 1.0 - math.Pow(c.Beta1, float64(a.stepCount))
	bias2 := 1.0 - math.Pow(c.Beta2, float64(a.stepCount))
	stepSize := c.LearningRate / bias1

	for i, p := range a.params {
		m := a.momentum[i]
		v := a.variance[i]
		rows, cols := p.Value.Dims()
		for r := 0; r < rows; r++ {
			for col := 0; col < cols; col++ {
				g := p.Grad.At(r, col)
				if c.WeightDecay != 0 {
					g += c.WeightDecay * p.Value.At(r, col)
				}
				mv := c.Beta1*m.At(r, col) + (1-c.Beta1)*g
				vv := c.Beta2*v.At(r, col) + (1-c.Beta2)*g*g
				m.Set(r, col, mv)
				v.Set(r, col, vv)

				denom := math.Sqrt(vv)/math.Sqrt(bias2) + c.Epsilon
				p.Value.Set(r, col, p.Value.At(r, col)-stepSize*mv/denom)
			}
		}
	}
	return nil
}

// ZeroGrad resets all parameter gradients
func (a *Adam) ZeroGrad() {
	zeroGrad(a.params)
}

// GetLR returns the current learning rate
func (a *Adam) GetLR() float64 {
	return a.config.LearningRate
}

// SetLR sets the learning rate
func (a *Adam) SetLR(lr float64) {
	a.config.LearningRate = lr
}

// GetStepCount returns the number of completed steps
func (a *Adam) GetStepCount() uint64 {
	return a.stepCount
}

// Name returns the optimizer name
func (a *Adam) Name() string {
	return "Adam"
}

func (a *Adam) String() string {
	return fmt.Sprintf("Adam(lr=%g, betas=(%g, %g), eps=%g, weight_decay=%g)",
		a.config.LearningRate, a.config.Beta1, a.config.Beta2, a.config.Epsilon, a.config.WeightDecay)
}
