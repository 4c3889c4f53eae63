package optimizer

import "github.com/pkg/errors"

// New builds the named optimizer ("adam", "sgd" or "rmsprop") with its
// default configuration and learning rate lr.
func New(name string, lr float64, params []*Parameter) (Optimizer, error) {
	switch name {
	case "adam", "":
		config := DefaultAdamConfig()
		config.LearningRate = lr
		return NewAdam(config, params)
	case "sgd":
		config := DefaultSGDConfig()
		config.LearningRate = lr
		return NewSGD(config, params)
	case "rmsprop":
		config := DefaultRMSPropConfig()
		config.LearningRate = lr
		return NewRMSProp(config, params)
	default:
		return nil, errors.Errorf("unknown optimizer %q", name)
	}
}
