package training

import (
	"github.com/pkg/errors"
)

// DefaultSourceName labels evaluation sources that carry no name
const DefaultSourceName = "TEST"

// EvaluationResult is the loss and accuracy reported for one source
type EvaluationResult struct {
	Name     string
	Loss     float64
	Accuracy float64
}

// Evaluator runs inference-only passes of an objective over data sources
type Evaluator struct {
	objective Objective
}

// NewEvaluator creates an evaluator for objective
func NewEvaluator(objective Objective) *Evaluator {
	return &Evaluator{objective: objective}
}

// Evaluate runs one full pass over each source in order and returns the loss
// and accuracy of the last batch of each. Sources that yield no batch produce
// no result. The objective is back in training mode when Evaluate returns,
// whether or not it failed.
func (e *Evaluator) Evaluate(sources ...DataSource) ([]EvaluationResult, error) {
	e.objective.SetTraining(false)
	defer e.objective.SetTraining(true)

	results := make([]EvaluationResult, 0, len(sources))
	for _, src := range sources {
		result, ok, err := e.evaluateSource(src)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, result)
		}
	}
	return results, nil
}

func (e *Evaluator) evaluateSource(src DataSource) (EvaluationResult, bool, error) {
	result := EvaluationResult{Name: SourceName(src)}
	seen := false

	src.Reset()
	for {
		batch, err := src.Next()
		if err != nil {
			return result, false, errors.Wrapf(err, "load %s batch", result.Name)
		}
		if batch == nil {
			break
		}
		if batch.Size() == 0 || batch.Features == nil {
			return result, false, &ConfigurationError{Field: "batch", Reason: "empty evaluation batch from " + result.Name}
		}

		predictions, err := e.objective.Predict(batch.Features)
		if err != nil {
			return result, false, &ObjectiveFailure{Op: "predict", Epoch: -1, Iteration: -1, Err: err}
		}
		acc, err := Accuracy(predictions, batch.Labels)
		if err != nil {
			return result, false, err
		}
		loss, err := e.objective.Loss(predictions, batch.Labels)
		if err != nil {
			return result, false, &ObjectiveFailure{Op: "loss", Epoch: -1, Iteration: -1, Err: err}
		}
		result.Loss = loss
		result.Accuracy = acc
		seen = true
	}
	return result, seen, nil
}

// Confusion runs one inference-only pass over src and counts every prediction
func (e *Evaluator) Confusion(src DataSource, numClasses int) (*ConfusionMatrix, error) {
	e.objective.SetTraining(false)
	defer e.objective.SetTraining(true)

	cm := NewConfusionMatrix(numClasses)
	src.Reset()
	for {
		batch, err := src.Next()
		if err != nil {
			return nil, errors.Wrapf(err, "load %s batch", SourceName(src))
		}
		if batch == nil {
			return cm, nil
		}
		predictions, err := e.objective.Predict(batch.Features)
		if err != nil {
			return nil, &ObjectiveFailure{Op: "predict", Epoch: -1, Iteration: -1, Err: err}
		}
		if err := cm.UpdateFromPredictions(predictions, batch.Labels); err != nil {
			return nil, err
		}
	}
}

// SourceName returns the display name of src, DefaultSourceName when it has none
func SourceName(src DataSource) string {
	if n, ok := src.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return DefaultSourceName
}
