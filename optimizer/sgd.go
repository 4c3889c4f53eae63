package optimizer

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// SGD implements stochastic gradient descent with optional momentum
type SGD struct {
	config     SGDConfig
	params     []*Parameter
	velocities []*mat.Dense
	stepCount  uint64
}

// NewSGD creates a new SGD optimizer over params
func NewSGD(config SGDConfig, params []*Parameter) (*SGD, error) {
	if config.LearningRate <= 0 {
		return nil, errors.Errorf("learning rate must be positive, got %g", config.LearningRate)
	}
	if config.Nesterov && config.Momentum <= 0 {
		return nil, errors.New("nesterov momentum requires a positive momentum")
	}
	return &SGD{
		config:     config,
		params:     params,
		velocities: zerosLike(params),
	}, nil
}

// Step performs a single optimization step
func (s *SGD) Step() error {
	for i, p := range s.params {
		var grad mat.Dense
		grad.CloneFrom(p.Grad)
		if s.config.WeightDecay != 0 {
			grad.Apply(func(r, c int, g float64) float64 {
				return g + s.config.WeightDecay*p.Value.At(r, c)
			}, &grad)
		}

		if s.config.Momentum != 0 {
			v := s.velocities[i]
			v.Scale(s.config.Momentum, v)
			v.Add(v, &grad)
			if s.config.Nesterov {
				var look mat.Dense
				look.Scale(s.config.Momentum, v)
				grad.Add(&grad, &look)
			} else {
				grad.CloneFrom(v)
			}
		}

		grad.Scale(s.config.LearningRate, &grad)
		p.Value.Sub(p.Value, &grad)
	}
	s.stepCount++
	return nil
}

// ZeroGrad resets all parameter gradients
func (s *SGD) ZeroGrad() {
	zeroGrad(s.params)
}

// GetLR returns the current learning rate
func (s *SGD) GetLR() float64 {
	return s.config.LearningRate
}

// SetLR sets the learning rate
func (s *SGD) SetLR(lr float64) {
	s.config.LearningRate = lr
}

// GetStepCount returns the number of completed steps
func (s *SGD) GetStepCount() uint64 {
	return s.stepCount
}

// Name returns the optimizer name
func (s *SGD) Name() string {
	return "SGD"
}

func (s *SGD) String() string {
	return fmt.Sprintf("SGD(lr=%g, momentum=%g, weight_decay=%g, nesterov=%t)",
		s.config.LearningRate, s.config.Momentum, s.config.WeightDecay, s.config.Nesterov)
}
