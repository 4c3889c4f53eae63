package training

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// RunResult is what a completed run leaves behind
type RunResult struct {
	History LossHistory
	Records []IterationRecord
	State   ScheduleState
}

// Solver alternates optimization steps over a training source with periodic
// evaluation over held-out sources.
type Solver struct {
	objective Objective
	config    SolverConfig
	scheduler Scheduler
	reporter  *Reporter
	evaluator *Evaluator
}

// SolverOption configures optional Solver collaborators
type SolverOption func(*Solver)

// WithScheduler steps scheduler with the training loss according to the
// configured SchedulerPolicy.
func WithScheduler(scheduler Scheduler) SolverOption {
	return func(s *Solver) { s.scheduler = scheduler }
}

// WithReporter sends progress lines to reporter instead of stdout
func WithReporter(reporter *Reporter) SolverOption {
	return func(s *Solver) { s.reporter = reporter }
}

// NewSolver creates a solver for objective. The configuration is checked by Run.
func NewSolver(objective Objective, config SolverConfig, opts ...SolverOption) *Solver {
	s := &Solver{
		objective: objective,
		config:    config,
		evaluator: NewEvaluator(objective),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = NewReporter(nil)
	}
	return s
}

// Config returns the solver configuration
func (s *Solver) Config() SolverConfig {
	return s.config
}

// Evaluator returns the evaluator bound to the solver's objective
func (s *Solver) Evaluator() *Evaluator {
	return s.evaluator
}

// Run trains for NumEpochs passes over train. When evals are given they are
// evaluated on every TestEvery-th batch of each epoch, starting with batch 0.
func (s *Solver) Run(train DataSource, evals ...DataSource) (*RunResult, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	batchCount := train.Len()
	if batchCount < 1 {
		return nil, &ConfigurationError{Field: "train", Reason: "data source has no batches"}
	}

	if d, ok := s.objective.(DeviceAware); ok {
		d.UseDevice(s.config.Cuda)
	}
	s.objective.SetTraining(true)

	s.reporter.Options(s.options())
	s.reporter.Header(s.config.NumEpochs, batchCount, train.BatchSize())

	start := time.Now()
	state := NewScheduleState(s.config.NumEpochs, batchCount)
	tracker := NewMetricTracker(state.Total)
	records := make([]IterationRecord, 0, state.Total)
	hasEvals := len(evals) > 0

	for epoch := 0; epoch < s.config.NumEpochs; epoch++ {
		if epoch > 0 {
			state = state.NextEpoch()
		}
		train.Reset()
		for {
			batch, err := train.Next()
			if err != nil {
				return nil, errors.Wrapf(err, "load training batch %d of epoch %d", state.BatchIndex, state.Epoch)
			}
			if batch == nil {
				break
			}
			if state.BatchIndex >= batchCount {
				return nil, &ConfigurationError{Field: "train", Reason: fmt.Sprintf("data source yielded more than its %d batches", batchCount)}
			}

			record, err := s.step(state, batch, tracker)
			if err != nil {
				return nil, err
			}
			records = append(records, record)

			if state.ShouldPrint(s.config.PrintEvery) {
				s.reporter.Train(state, record.Loss, record.Accuracy)
			}
			if s.shouldStepScheduler(hasEvals) {
				s.scheduler.Step(record.Loss)
			}
			if hasEvals && state.ShouldTest(s.config.TestEvery) {
				if err := s.evaluate(state, evals); err != nil {
					return nil, err
				}
			}
			state = state.Next()
		}
		if state.BatchIndex != batchCount {
			return nil, &ConfigurationError{
				Field:  "train",
				Reason: fmt.Sprintf("data source yielded %d batches in epoch %d, reported %d", state.BatchIndex, state.Epoch, batchCount),
			}
		}
	}

	if !state.Done() {
		return nil, &ConfigurationError{
			Field:  "train",
			Reason: fmt.Sprintf("run stopped at iteration %d of %d", state.Iteration, state.Total),
		}
	}

	s.reporter.Finished(time.Since(start))
	return &RunResult{History: tracker.History(), Records: records, State: state}, nil
}

// step runs one optimization step on batch and records its loss
func (s *Solver) step(state ScheduleState, batch *Batch, tracker *MetricTracker) (IterationRecord, error) {
	if batch.Size() == 0 || batch.Features == nil {
		return IterationRecord{}, &ConfigurationError{
			Field:  "batch",
			Reason: fmt.Sprintf("empty training batch at epoch %d, batch %d", state.Epoch, state.BatchIndex),
		}
	}
	fail := func(op string, err error) error {
		return &ObjectiveFailure{Op: op, Epoch: state.Epoch, Iteration: state.Iteration, Err: err}
	}

	predictions, err := s.objective.Predict(batch.Features)
	if err != nil {
		return IterationRecord{}, fail("predict", err)
	}
	acc, err := tracker.Accuracy(predictions, batch.Labels)
	if err != nil {
		return IterationRecord{}, err
	}
	loss, err := s.objective.Loss(predictions, batch.Labels)
	if err != nil {
		return IterationRecord{}, fail("loss", err)
	}
	if err := s.objective.Step(); err != nil {
		return IterationRecord{}, fail("step", err)
	}

	loss, err = tracker.Record(state.Iteration, loss)
	if err != nil {
		return IterationRecord{}, err
	}
	return IterationRecord{Epoch: state.Epoch, Iteration: state.Iteration, Loss: loss, Accuracy: acc}, nil
}

func (s *Solver) shouldStepScheduler(hasEvals bool) bool {
	if s.scheduler == nil {
		return false
	}
	if s.config.SchedulerPolicy == SchedulerIndependent {
		return true
	}
	return !hasEvals
}

// evaluate runs the evaluator and reports one line per source
func (s *Solver) evaluate(state ScheduleState, evals []DataSource) error {
	results, err := s.evaluator.Evaluate(evals...)
	if err != nil {
		var failure *ObjectiveFailure
		if errors.As(err, &failure) {
			failure.Epoch = state.Epoch
			failure.Iteration = state.Iteration
		}
		return err
	}
	for _, result := range results {
		s.reporter.Eval(state, result)
	}
	return nil
}

// options returns the option table printed before training
func (s *Solver) options() []OptionRow {
	var rows []OptionRow
	if d, ok := s.objective.(Describer); ok {
		rows = append(rows, d.Describe()...)
	}
	scheduler := interface{}("none")
	if s.scheduler != nil {
		scheduler = s.scheduler
	}
	return append(rows,
		OptionRow{Name: "cuda", Value: s.config.Cuda},
		OptionRow{Name: "supervision", Value: s.config.Supervision},
		OptionRow{Name: "num_epochs", Value: s.config.NumEpochs},
		OptionRow{Name: "print_every", Value: s.config.PrintEvery},
		OptionRow{Name: "test_every", Value: s.config.TestEvery},
		OptionRow{Name: "scheduler", Value: scheduler},
		OptionRow{Name: "scheduler_policy", Value: s.config.SchedulerPolicy},
	)
}
