package layers

import (
	"github.com/tsawler/vrd-classifier/optimizer"
	"gonum.org/v1/gonum/mat"
)

// LayerType represents the type of neural network layer
type LayerType int

const (
	Dense LayerType = iota
	ReLU
	Dropout
	BatchNorm
	Container
)

func (lt LayerType) String() string {
	switch lt {
	case Dense:
		return "Dense"
	case ReLU:
		return "ReLU"
	case Dropout:
		return "Dropout"
	case BatchNorm:
		return "BatchNorm"
	case Container:
		return "Sequential"
	default:
		return "Unknown"
	}
}

// Module is a differentiable layer operating on a batch matrix whose rows
// are samples. Backward must be called after the Forward it differentiates;
// gradients are accumulated into the module's parameters.
type Module interface {
	Forward(input *mat.Dense) (*mat.Dense, error)
	Backward(gradOutput *mat.Dense) (*mat.Dense, error)
	Parameters() []*optimizer.Parameter
	State() []StateTensor
	Train()
	Eval()
	IsTraining() bool
	Type() LayerType
	String() string
}

// StateTensor names a matrix that belongs in a checkpoint: trainable
// parameters plus non-learnable buffers such as BatchNorm running statistics.
type StateTensor struct {
	Name  string
	Value *mat.Dense
}

// mode carries the train/eval flag shared by every module
type mode struct {
	training bool
}

func (m *mode) Train() { m.training = true }

func (m *mode) Eval() { m.training = false }

func (m *mode) IsTraining() bool { return m.training }

// ParameterCount returns the number of trainable scalars in m
func ParameterCount(m Module) int64 {
	var n int64
	for _, p := range m.Parameters() {
		n += int64(p.Size())
	}
	return n
}
