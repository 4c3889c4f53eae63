package optimizer

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RMSPropConfig holds configuration for RMSProp optimizer
type RMSPropConfig struct {
	LearningRate float64
	Alpha        float64 // Smoothing constant (typically 0.99)
	Epsilon      float64 // Small constant to prevent division by zero (typically 1e-8)
	WeightDecay  float64 // L2 regularization coefficient
	Momentum     float64 // Momentum coefficient (0.0 for no momentum)
	Centered     bool    // Whether to use centered RMSProp (subtract mean of gradients)
}

// DefaultRMSPropConfig returns default RMSProp optimizer configuration
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.01,
		Alpha:        0.99,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
		Momentum:     0.0,
		Centered:     false,
	}
}

// RMSProp scales each update by a running average of squared gradients
type RMSProp struct {
	config      RMSPropConfig
	params      []*Parameter
	squaredAvg  []*mat.Dense
	gradientAvg []*mat.Dense // only used when centered
	momentum    []*mat.Dense
	stepCount   uint64
}

// NewRMSProp creates a new RMSProp optimizer over params
func NewRMSProp(config RMSPropConfig, params []*Parameter) (*RMSProp, error) {
	if config.LearningRate <= 0 {
		return nil, errors.Errorf("learning rate must be positive, got %g", config.LearningRate)
	}
	if config.Alpha < 0 || config.Alpha >= 1 {
		return nil, errors.Errorf("alpha must be in [0, 1), got %g", config.Alpha)
	}
	if config.Epsilon <= 0 {
		return nil, errors.Errorf("epsilon must be positive, got %g", config.Epsilon)
	}
	if config.Momentum < 0 {
		return nil, errors.Errorf("momentum must be non-negative, got %g", config.Momentum)
	}
	return &RMSProp{
		config:      config,
		params:      params,
		squaredAvg:  zerosLike(params),
		gradientAvg: zerosLike(params),
		momentum:    zerosLike(params),
	}, nil
}

// Step performs a single optimization step
func (r *RMSProp) Step() error {
	r.stepCount++
	c := r.config

	for i, p := range r.params {
		sq := r.squaredAvg[i]
		ga := r.gradientAvg[i]
		buf := r.momentum[i]
		rows, cols := p.Value.Dims()
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				g := p.Grad.At(row, col)
				if c.WeightDecay != 0 {
					g += c.WeightDecay * p.Value.At(row, col)
				}

				v := c.Alpha*sq.At(row, col) + (1-c.Alpha)*g*g
				sq.Set(row, col, v)

				if c.Centered {
					m := c.Alpha*ga.At(row, col) + (1-c.Alpha)*g
					ga.Set(row, col, m)
					v -= m * m
				}
				denom := math.Sqrt(math.Max(v, 0)) + c.Epsilon

				update := g / denom
				if c.Momentum > 0 {
					update += c.Momentum * buf.At(row, col)
					buf.Set(row, col, update)
				}
				p.Value.Set(row, col, p.Value.At(row, col)-c.LearningRate*update)
			}
		}
	}
	return nil
}

// ZeroGrad resets all parameter gradients
func (r *RMSProp) ZeroGrad() {
	zeroGrad(r.params)
}

// GetLR returns the current learning rate
func (r *RMSProp) GetLR() float64 {
	return r.config.LearningRate
}

// SetLR sets the learning rate
func (r *RMSProp) SetLR(lr float64) {
	r.config.LearningRate = lr
}

// GetStepCount returns the number of completed steps
func (r *RMSProp) GetStepCount() uint64 {
	return r.stepCount
}

// Name returns the optimizer name
func (r *RMSProp) Name() string {
	return "RMSProp"
}

func (r *RMSProp) String() string {
	return fmt.Sprintf("RMSProp(lr=%g, alpha=%g, eps=%g, weight_decay=%g, momentum=%g, centered=%t)",
		r.config.LearningRate, r.config.Alpha, r.config.Epsilon, r.config.WeightDecay, r.config.Momentum, r.config.Centered)
}
