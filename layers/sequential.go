package layers

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/tsawler/vrd-classifier/optimizer"
	"gonum.org/v1/gonum/mat"
)

// Sequential chains modules, feeding each output into the next
type Sequential struct {
	Modules []Module
}

// NewSequential creates a container running modules in order
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{Modules: modules}
}

// Forward runs every module in order
func (s *Sequential) Forward(input *mat.Dense) (*mat.Dense, error) {
	out := input
	for i, m := range s.Modules {
		var err error
		out, err = m.Forward(out)
		if err != nil {
			return nil, errors.Wrapf(err, "forward through module %d (%s)", i, m.Type())
		}
	}
	return out, nil
}

// Backward runs every module in reverse order
func (s *Sequential) Backward(gradOutput *mat.Dense) (*mat.Dense, error) {
	grad := gradOutput
	for i := len(s.Modules) - 1; i >= 0; i-- {
		var err error
		grad, err = s.Modules[i].Backward(grad)
		if err != nil {
			return nil, errors.Wrapf(err, "backward through module %d (%s)", i, s.Modules[i].Type())
		}
	}
	return grad, nil
}

// Parameters returns the parameters of every module
func (s *Sequential) Parameters() []*optimizer.Parameter {
	var params []*optimizer.Parameter
	for _, m := range s.Modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// State returns checkpoint tensors named "<index>.<name>"
func (s *Sequential) State() []StateTensor {
	var state []StateTensor
	for i, m := range s.Modules {
		for _, t := range m.State() {
			state = append(state, StateTensor{Name: fmt.Sprintf("%d.%s", i, t.Name), Value: t.Value})
		}
	}
	return state
}

// LoadState copies tensors into the matching state of the model. Every
// model tensor must be present with the same shape.
func (s *Sequential) LoadState(tensors map[string]*mat.Dense) error {
	state := s.State()
	for _, t := range state {
		src, ok := tensors[t.Name]
		if !ok {
			return errors.Errorf("missing tensor %q", t.Name)
		}
		sr, sc := src.Dims()
		dr, dc := t.Value.Dims()
		if sr != dr || sc != dc {
			return errors.Errorf("tensor %q has shape %dx%d, model expects %dx%d", t.Name, sr, sc, dr, dc)
		}
	}
	if len(tensors) != len(state) {
		return errors.Errorf("checkpoint has %d tensors, model has %d", len(tensors), len(state))
	}
	for _, t := range state {
		t.Value.Copy(tensors[t.Name])
	}
	return nil
}

func (s *Sequential) Train() {
	for _, m := range s.Modules {
		m.Train()
	}
}

func (s *Sequential) Eval() {
	for _, m := range s.Modules {
		m.Eval()
	}
}

// IsTraining reports whether the first module is in training mode
func (s *Sequential) IsTraining() bool {
	if len(s.Modules) == 0 {
		return false
	}
	return s.Modules[0].IsTraining()
}

// Type returns Container
func (s *Sequential) Type() LayerType { return Container }

func (s *Sequential) String() string {
	var b strings.Builder
	b.WriteString("Sequential(\n")
	for i, m := range s.Modules {
		fmt.Fprintf(&b, "  (%d): %s\n", i, m.String())
	}
	b.WriteString(")")
	return b.String()
}
