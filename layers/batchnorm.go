package layers

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/tsawler/vrd-classifier/optimizer"
	"gonum.org/v1/gonum/mat"
)

// BatchNorm1d normalizes each feature over the batch in training mode and
// over running statistics in eval mode.
type BatchNorm1d struct {
	mode
	NumFeatures int
	Eps         float64
	Momentum    float64

	gamma       *optimizer.Parameter
	beta        *optimizer.Parameter
	runningMean *mat.Dense
	runningVar  *mat.Dense

	// cached for Backward
	normalized *mat.Dense
	invStd     []float64
	batchStats bool
}

// NewBatchNorm1d creates a batch normalization layer with gamma=1, beta=0
func NewBatchNorm1d(numFeatures int, eps, momentum float64) (*BatchNorm1d, error) {
	if numFeatures <= 0 {
		return nil, errors.Errorf("batchnorm feature count must be positive, got %d", numFeatures)
	}
	ones := make([]float64, numFeatures)
	for i := range ones {
		ones[i] = 1
	}
	return &BatchNorm1d{
		mode:        mode{training: true},
		NumFeatures: numFeatures,
		Eps:         eps,
		Momentum:    momentum,
		gamma:       optimizer.NewParameter("weight", mat.NewDense(1, numFeatures, ones)),
		beta:        optimizer.NewParameter("bias", mat.NewDense(1, numFeatures, nil)),
		runningMean: mat.NewDense(1, numFeatures, nil),
		runningVar:  mat.NewDense(1, numFeatures, append([]float64(nil), ones...)),
	}, nil
}

// Forward normalizes the batch
func (bn *BatchNorm1d) Forward(input *mat.Dense) (*mat.Dense, error) {
	rows, cols := input.Dims()
	if cols != bn.NumFeatures {
		return nil, errors.Errorf("batchnorm expects %d features, got %d", bn.NumFeatures, cols)
	}

	mean := make([]float64, cols)
	variance := make([]float64, cols)
	if bn.training {
		if rows < 2 {
			return nil, errors.Errorf("batchnorm expects more than 1 value per channel when training, got input size %dx%d", rows, cols)
		}
		for i := 0; i < rows; i++ {
			for j, v := range input.RawRowView(i) {
				mean[j] += v
			}
		}
		for j := range mean {
			mean[j] /= float64(rows)
		}
		for i := 0; i < rows; i++ {
			for j, v := range input.RawRowView(i) {
				d := v - mean[j]
				variance[j] += d * d
			}
		}
		rm := bn.runningMean.RawRowView(0)
		rv := bn.runningVar.RawRowView(0)
		for j := range variance {
			variance[j] /= float64(rows)
			unbiased := variance[j] * float64(rows) / float64(rows-1)
			rm[j] = (1-bn.Momentum)*rm[j] + bn.Momentum*mean[j]
			rv[j] = (1-bn.Momentum)*rv[j] + bn.Momentum*unbiased
		}
	} else {
		copy(mean, bn.runningMean.RawRowView(0))
		copy(variance, bn.runningVar.RawRowView(0))
	}

	invStd := make([]float64, cols)
	for j := range invStd {
		invStd[j] = 1 / math.Sqrt(variance[j]+bn.Eps)
	}

	gamma := bn.gamma.Value.RawRowView(0)
	beta := bn.beta.Value.RawRowView(0)
	normalized := mat.NewDense(rows, cols, nil)
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		in := input.RawRowView(i)
		n := normalized.RawRowView(i)
		o := out.RawRowView(i)
		for j, v := range in {
			n[j] = (v - mean[j]) * invStd[j]
			o[j] = gamma[j]*n[j] + beta[j]
		}
	}

	bn.normalized = normalized
	bn.invStd = invStd
	bn.batchStats = bn.training
	return out, nil
}

// Backward accumulates gamma/beta gradients and returns the input gradient
func (bn *BatchNorm1d) Backward(gradOutput *mat.Dense) (*mat.Dense, error) {
	if bn.normalized == nil {
		return nil, errors.New("batchnorm backward called before forward")
	}
	rows, cols := gradOutput.Dims()
	nRows, _ := bn.normalized.Dims()
	if rows != nRows || cols != bn.NumFeatures {
		return nil, errors.Errorf("batchnorm backward expects %dx%d gradient, got %dx%d", nRows, bn.NumFeatures, rows, cols)
	}

	gamma := bn.gamma.Value.RawRowView(0)
	dGamma := make([]float64, cols)
	dBeta := make([]float64, cols)
	for i := 0; i < rows; i++ {
		g := gradOutput.RawRowView(i)
		n := bn.normalized.RawRowView(i)
		for j := range g {
			dGamma[j] += g[j] * n[j]
			dBeta[j] += g[j]
		}
	}
	if err := bn.gamma.AccumulateGrad(mat.NewDense(1, cols, dGamma)); err != nil {
		return nil, err
	}
	if err := bn.beta.AccumulateGrad(mat.NewDense(1, cols, dBeta)); err != nil {
		return nil, err
	}

	gradInput := mat.NewDense(rows, cols, nil)
	m := float64(rows)
	for i := 0; i < rows; i++ {
		g := gradOutput.RawRowView(i)
		n := bn.normalized.RawRowView(i)
		out := gradInput.RawRowView(i)
		for j := range g {
			if bn.batchStats {
				// dL/dx = gamma*invstd/m * (m*g - sum(g) - xhat*sum(g*xhat))
				out[j] = gamma[j] * bn.invStd[j] / m * (m*g[j] - dBeta[j] - n[j]*dGamma[j])
			} else {
				out[j] = g[j] * gamma[j] * bn.invStd[j]
			}
		}
	}
	return gradInput, nil
}

// Parameters returns gamma and beta
func (bn *BatchNorm1d) Parameters() []*optimizer.Parameter {
	return []*optimizer.Parameter{bn.gamma, bn.beta}
}

// State returns gamma, beta and the running statistics
func (bn *BatchNorm1d) State() []StateTensor {
	return []StateTensor{
		{Name: "weight", Value: bn.gamma.Value},
		{Name: "bias", Value: bn.beta.Value},
		{Name: "running_mean", Value: bn.runningMean},
		{Name: "running_var", Value: bn.runningVar},
	}
}

// Type returns BatchNorm
func (bn *BatchNorm1d) Type() LayerType { return BatchNorm }

func (bn *BatchNorm1d) String() string {
	return fmt.Sprintf("BatchNorm1d(%d, eps=%g, momentum=%g, affine=true, track_running_stats=true)", bn.NumFeatures, bn.Eps, bn.Momentum)
}
