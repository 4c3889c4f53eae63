package training

import (
	"github.com/pkg/errors"
	"github.com/tsawler/vrd-classifier/layers"
	"github.com/tsawler/vrd-classifier/optimizer"
	"gonum.org/v1/gonum/mat"
)

// Objective turns batches into predictions and losses and applies optimizer
// updates. The Solver never looks at model weights directly.
type Objective interface {
	Predict(features *mat.Dense) (*mat.Dense, error)
	Loss(predictions *mat.Dense, labels []int) (float64, error)
	// Step applies one optimizer update from the gradient of the last Loss
	Step() error
	SetTraining(training bool)
}

// DeviceAware objectives receive the device placement hint at run start
type DeviceAware interface {
	UseDevice(cuda bool)
}

// Describer objectives contribute rows to the option table
type Describer interface {
	Describe() []OptionRow
}

// Model is the network trained by a ClassifierObjective
type Model interface {
	Forward(input *mat.Dense) (*mat.Dense, error)
	Backward(gradOutput *mat.Dense) (*mat.Dense, error)
	Train()
	Eval()
	String() string
}

// ClassifierObjective trains a model with cross entropy and an optimizer
type ClassifierObjective struct {
	model     Model
	criterion *CrossEntropyLoss
	optimizer optimizer.Optimizer
	training  bool
	cuda      bool

	// gradient of the last training loss, consumed by Step
	pending *mat.Dense
}

// NewClassifierObjective creates an objective in training mode
func NewClassifierObjective(model Model, criterion *CrossEntropyLoss, opt optimizer.Optimizer) *ClassifierObjective {
	if criterion == nil {
		criterion = NewCrossEntropyLoss("mean")
	}
	model.Train()
	return &ClassifierObjective{
		model:     model,
		criterion: criterion,
		optimizer: opt,
		training:  true,
	}
}

// Predict runs the model forward
func (o *ClassifierObjective) Predict(features *mat.Dense) (*mat.Dense, error) {
	return o.model.Forward(features)
}

// Loss computes the cross entropy of predictions. In training mode it also
// keeps the gradient for the following Step.
func (o *ClassifierObjective) Loss(predictions *mat.Dense, labels []int) (float64, error) {
	loss, err := o.criterion.Forward(predictions, labels)
	if err != nil {
		return 0, err
	}
	if !o.training {
		return loss, nil
	}
	grad, err := o.criterion.Backward(predictions, labels)
	if err != nil {
		return 0, err
	}
	o.pending = grad
	return loss, nil
}

// Step backpropagates the pending gradient and updates the parameters
func (o *ClassifierObjective) Step() error {
	if !o.training {
		return errors.New("step called in evaluation mode")
	}
	if o.pending == nil {
		return errors.New("step called without a training loss")
	}
	grad := o.pending
	o.pending = nil

	o.optimizer.ZeroGrad()
	if _, err := o.model.Backward(grad); err != nil {
		return errors.Wrap(err, "backward")
	}
	return o.optimizer.Step()
}

// SetTraining switches the model between training and evaluation mode
func (o *ClassifierObjective) SetTraining(training bool) {
	o.training = training
	o.pending = nil
	if training {
		o.model.Train()
	} else {
		o.model.Eval()
	}
}

// UseDevice records the device hint. Computation always runs on the CPU.
func (o *ClassifierObjective) UseDevice(cuda bool) {
	o.cuda = cuda
}

// Model returns the trained model
func (o *ClassifierObjective) Model() Model {
	return o.model
}

// Describe returns the optimizer, model and loss rows of the option table
func (o *ClassifierObjective) Describe() []OptionRow {
	return []OptionRow{
		{Name: "optimizer", Value: o.optimizer},
		{Name: "model", Value: o.model},
		{Name: "loss_fn", Value: o.criterion},
		{Name: "dtype", Value: "float64"},
	}
}

var _ Model = (*layers.Sequential)(nil)
