package training

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Scheduler adjusts the learning rate from a scalar metric. The Solver calls
// Step once per training iteration with that iteration's loss.
type Scheduler interface {
	Step(metric float64)
}

// LRSetter is the part of an optimizer a scheduler drives
type LRSetter interface {
	GetLR() float64
	SetLR(lr float64)
}

// LRScheduler defines the interface for closed-form learning rate schedules
type LRScheduler interface {
	// GetLR returns the learning rate for the current epoch/step
	// This is a pure function - no state modifications
	GetLR(epoch int, step int, baseLR float64) float64

	// GetName returns the scheduler name for logging
	GetName() string
}

// StepLRScheduler reduces learning rate by a factor every stepSize epochs
type StepLRScheduler struct {
	StepSize int     // Epochs between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay
}

// NewStepLRScheduler creates a step learning rate scheduler
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30 // Default: reduce every 30 epochs
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1 // Default: reduce by 10x
	}
	return &StepLRScheduler{
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

func (s *StepLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	times := epoch / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLRScheduler) GetName() string {
	return "StepLR"
}

// ExponentialLRScheduler decays learning rate exponentially
type ExponentialLRScheduler struct {
	Gamma float64 // Multiplicative factor of LR decay per epoch
}

// NewExponentialLRScheduler creates an exponential learning rate scheduler
func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95 // Default: 5% reduction per epoch
	}
	return &ExponentialLRScheduler{
		Gamma: gamma,
	}
}

func (s *ExponentialLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

func (s *ExponentialLRScheduler) GetName() string {
	return "ExponentialLR"
}

// CosineAnnealingLRScheduler implements cosine annealing schedule
type CosineAnnealingLRScheduler struct {
	TMax   int     // Maximum number of epochs
	EtaMin float64 // Minimum learning rate
}

// NewCosineAnnealingLRScheduler creates a cosine annealing scheduler
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100 // Default: 100 epochs
	}
	if etaMin < 0 {
		etaMin = 0 // Default: anneal to 0
	}
	return &CosineAnnealingLRScheduler{
		TMax:   tMax,
		EtaMin: etaMin,
	}
}

func (s *CosineAnnealingLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string {
	return "CosineAnnealingLR"
}

// NoOpScheduler maintains constant learning rate
type NoOpScheduler struct{}

func (s *NoOpScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR
}

func (s *NoOpScheduler) GetName() string {
	return "ConstantLR"
}

// IterationScheduler steps a closed-form schedule once per training
// iteration, converting the iteration count into an epoch.
type IterationScheduler struct {
	schedule      LRScheduler
	optimizer     LRSetter
	baseLR        float64
	stepsPerEpoch int
	steps         int
}

// NewIterationScheduler drives optimizer with schedule, starting from its current learning rate
func NewIterationScheduler(schedule LRScheduler, optimizer LRSetter, stepsPerEpoch int) *IterationScheduler {
	if stepsPerEpoch <= 0 {
		stepsPerEpoch = 1
	}
	return &IterationScheduler{
		schedule:      schedule,
		optimizer:     optimizer,
		baseLR:        optimizer.GetLR(),
		stepsPerEpoch: stepsPerEpoch,
	}
}

// Step ignores the metric and applies the learning rate for the next iteration
func (s *IterationScheduler) Step(metric float64) {
	s.steps++
	s.optimizer.SetLR(s.schedule.GetLR(s.steps/s.stepsPerEpoch, s.steps, s.baseLR))
}

func (s *IterationScheduler) String() string {
	return fmt.Sprintf("%s(steps_per_epoch=%d)", s.schedule.GetName(), s.stepsPerEpoch)
}

// ReduceLROnPlateauScheduler reduces the optimizer learning rate when a
// metric has stopped improving. Improvement is relative: in "min" mode a
// metric improves on best when it is below best*(1-Threshold).
type ReduceLROnPlateauScheduler struct {
	Factor    float64 // Factor by which the learning rate will be reduced
	Patience  int     // Number of steps with no improvement tolerated before a reduction
	Threshold float64 // Relative threshold for measuring the new optimum
	Mode      string  // One of "min" or "max"
	MinLR     float64

	// OnReduce is called after every reduction
	OnReduce func(step int, oldLR, newLR float64)

	optimizer  LRSetter
	bestMetric float64
	badSteps   int
	steps      int
}

// NewReduceLROnPlateauScheduler creates a plateau-based scheduler bound to optimizer
func NewReduceLROnPlateauScheduler(optimizer LRSetter, factor float64, patience int, threshold float64, mode string) *ReduceLROnPlateauScheduler {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience < 0 {
		patience = 10
	}
	if threshold < 0 {
		threshold = 1e-4
	}
	if mode != "min" && mode != "max" {
		mode = "min" // Default: minimize loss
	}

	best := math.Inf(1)
	if mode == "max" {
		best = math.Inf(-1)
	}
	return &ReduceLROnPlateauScheduler{
		Factor:     factor,
		Patience:   patience,
		Threshold:  threshold,
		Mode:       mode,
		optimizer:  optimizer,
		bestMetric: best,
	}
}

// Step records metric and reduces the learning rate once more than Patience
// consecutive steps failed to improve on the best value.
func (s *ReduceLROnPlateauScheduler) Step(metric float64) {
	s.steps++
	if s.improved(metric) {
		s.bestMetric = metric
		s.badSteps = 0
	} else {
		s.badSteps++
	}

	if s.badSteps > s.Patience {
		s.reduce()
		s.badSteps = 0
	}
}

func (s *ReduceLROnPlateauScheduler) improved(metric float64) bool {
	if s.Mode == "min" {
		return metric < s.bestMetric*(1-s.Threshold)
	}
	return metric > s.bestMetric*(1+s.Threshold)
}

func (s *ReduceLROnPlateauScheduler) reduce() {
	oldLR := s.optimizer.GetLR()
	newLR := math.Max(oldLR*s.Factor, s.MinLR)
	if oldLR-newLR <= 1e-8 {
		return
	}
	s.optimizer.SetLR(newLR)
	if s.OnReduce != nil {
		s.OnReduce(s.steps, oldLR, newLR)
	}
}

// BestMetric returns the best metric seen so far
func (s *ReduceLROnPlateauScheduler) BestMetric() float64 {
	return s.bestMetric
}

func (s *ReduceLROnPlateauScheduler) GetName() string {
	return "ReduceLROnPlateau"
}

func (s *ReduceLROnPlateauScheduler) String() string {
	return fmt.Sprintf("ReduceLROnPlateau(mode=%s, factor=%g, patience=%d, threshold=%g)", s.Mode, s.Factor, s.Patience, s.Threshold)
}

// NewScheduler builds a scheduler by name: "plateau", "step", "exponential",
// "cosine" or "constant". Closed-form schedules count epochs of stepsPerEpoch iterations.
func NewScheduler(name string, optimizer LRSetter, patience, stepsPerEpoch, numEpochs int) (Scheduler, error) {
	switch name {
	case "plateau", "":
		return NewReduceLROnPlateauScheduler(optimizer, 0.1, patience, 1e-4, "min"), nil
	case "step":
		return NewIterationScheduler(NewStepLRScheduler(patience, 0.1), optimizer, stepsPerEpoch), nil
	case "exponential":
		return NewIterationScheduler(NewExponentialLRScheduler(0.95), optimizer, stepsPerEpoch), nil
	case "cosine":
		return NewIterationScheduler(NewCosineAnnealingLRScheduler(numEpochs, 0), optimizer, stepsPerEpoch), nil
	case "constant":
		return NewIterationScheduler(&NoOpScheduler{}, optimizer, stepsPerEpoch), nil
	default:
		return nil, errors.Errorf("unknown scheduler type %q", name)
	}
}
