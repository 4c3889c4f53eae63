package optimizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestParam(values, grads []float64) *Parameter {
	p := NewParameter("w", mat.NewDense(1, len(values), values))
	p.Grad = mat.NewDense(1, len(grads), grads)
	return p
}

func TestDefaultConfigs(t *testing.T) {
	sgd := DefaultSGDConfig()
	assert.Equal(t, 0.01, sgd.LearningRate)
	assert.Zero(t, sgd.Momentum)
	assert.False(t, sgd.Nesterov)

	adam := DefaultAdamConfig()
	assert.Equal(t, 0.001, adam.LearningRate)
	assert.Equal(t, 0.9, adam.Beta1)
	assert.Equal(t, 0.999, adam.Beta2)
	assert.Equal(t, 1e-8, adam.Epsilon)
}

func TestParameterAccumulateGrad(t *testing.T) {
	p := NewParameter("w", mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	require.NoError(t, p.AccumulateGrad(mat.NewDense(2, 2, []float64{1, 1, 1, 1})))
	require.NoError(t, p.AccumulateGrad(mat.NewDense(2, 2, []float64{1, 0, 0, 1})))
	assert.Equal(t, []float64{2, 1, 1, 2}, p.Grad.RawMatrix().Data)
	assert.Equal(t, 4, p.Size())

	err := p.AccumulateGrad(mat.NewDense(1, 2, nil))
	assert.Error(t, err)

	p.ZeroGrad()
	assert.Equal(t, []float64{0, 0, 0, 0}, p.Grad.RawMatrix().Data)
}

func TestSGDStep(t *testing.T) {
	p := newTestParam([]float64{1, 2}, []float64{0.5, -1})
	opt, err := NewSGD(SGDConfig{LearningRate: 0.1}, []*Parameter{p})
	require.NoError(t, err)

	require.NoError(t, opt.Step())
	assert.InDelta(t, 0.95, p.Value.At(0, 0), 1e-12)
	assert.InDelta(t, 2.1, p.Value.At(0, 1), 1e-12)
	assert.Equal(t, uint64(1), opt.GetStepCount())

	opt.ZeroGrad()
	assert.Zero(t, p.Grad.At(0, 0))
}

func TestSGDMomentum(t *testing.T) {
	p := newTestParam([]float64{1}, []float64{1})
	opt, err := NewSGD(SGDConfig{LearningRate: 0.1, Momentum: 0.9}, []*Parameter{p})
	require.NoError(t, err)

	require.NoError(t, opt.Step()) // v = 1
	assert.InDelta(t, 0.9, p.Value.At(0, 0), 1e-12)
	require.NoError(t, opt.Step()) // v = 0.9 + 1
	assert.InDelta(t, 0.71, p.Value.At(0, 0), 1e-12)
}

func TestSGDValidation(t *testing.T) {
	_, err := NewSGD(SGDConfig{LearningRate: 0}, nil)
	assert.Error(t, err)
	_, err = NewSGD(SGDConfig{LearningRate: 0.1, Nesterov: true}, nil)
	assert.Error(t, err)
}

func TestAdamFirstStepMovesByLearningRate(t *testing.T) {
	p := newTestParam([]float64{1, -1, 0.5}, []float64{2, -3, 0.01})
	config := DefaultAdamConfig()
	config.LearningRate = 0.01
	opt, err := NewAdam(config, []*Parameter{p})
	require.NoError(t, err)

	require.NoError(t, opt.Step())
	// After bias correction the first update is lr * sign(grad).
	assert.InDelta(t, 0.99, p.Value.At(0, 0), 1e-6)
	assert.InDelta(t, -0.99, p.Value.At(0, 1), 1e-6)
	assert.InDelta(t, 0.49, p.Value.At(0, 2), 1e-5)
}

func TestAdamSetLR(t *testing.T) {
	opt, err := NewAdam(DefaultAdamConfig(), nil)
	require.NoError(t, err)
	opt.SetLR(0.5)
	assert.Equal(t, 0.5, opt.GetLR())
	assert.Equal(t, "Adam", opt.Name())
	assert.Contains(t, opt.String(), "lr=0.5")
}

func TestAdamConvergesOnQuadratic(t *testing.T) {
	p := newTestParam([]float64{5}, []float64{0})
	config := DefaultAdamConfig()
	config.LearningRate = 0.1
	opt, err := NewAdam(config, []*Parameter{p})
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		opt.ZeroGrad()
		// d/dx (x-2)^2
		require.NoError(t, p.AccumulateGrad(mat.NewDense(1, 1, []float64{2 * (p.Value.At(0, 0) - 2)})))
		require.NoError(t, opt.Step())
	}
	assert.True(t, math.Abs(p.Value.At(0, 0)-2) < 0.1, "got %f", p.Value.At(0, 0))
}

func TestAdamValidation(t *testing.T) {
	bad := []AdamConfig{
		{LearningRate: 0, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8},
		{LearningRate: 0.1, Beta1: 1, Beta2: 0.999, Epsilon: 1e-8},
		{LearningRate: 0.1, Beta1: 0.9, Beta2: 1.5, Epsilon: 1e-8},
		{LearningRate: 0.1, Beta1: 0.9, Beta2: 0.999, Epsilon: 0},
	}
	for _, c := range bad {
		_, err := NewAdam(c, nil)
		assert.Error(t, err, "%+v", c)
	}
}
