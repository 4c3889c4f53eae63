package training

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SchedulerPolicy decides when the learning-rate scheduler is stepped
type SchedulerPolicy string

const (
	// SchedulerExclusive steps the scheduler on the training loss of every
	// iteration, but only in runs without evaluation sources.
	SchedulerExclusive SchedulerPolicy = "exclusive"
	// SchedulerIndependent steps the scheduler on the training loss of every
	// iteration whether or not evaluation sources were given.
	SchedulerIndependent SchedulerPolicy = "independent"
)

// Supervision names the kind of labels a run was trained on. It is reported
// in the option table and does not change the loop.
type Supervision string

const (
	SupervisionWeak Supervision = "weak"
	SupervisionFull Supervision = "full"
)

// SolverConfig enumerates every option recognized by the Solver
type SolverConfig struct {
	NumEpochs       int             `yaml:"num_epochs"`
	PrintEvery      int             `yaml:"print_every"`
	TestEvery       int             `yaml:"test_every"`
	Cuda            bool            `yaml:"cuda"`
	Supervision     Supervision     `yaml:"supervision"`
	SchedulerPolicy SchedulerPolicy `yaml:"scheduler_policy"`
}

// DefaultSolverConfig returns the default solver configuration
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		NumEpochs:       9,
		PrintEvery:      20,
		TestEvery:       80,
		Cuda:            true,
		Supervision:     SupervisionWeak,
		SchedulerPolicy: SchedulerExclusive,
	}
}

// Validate checks every field and returns the first ConfigurationError found
func (c SolverConfig) Validate() error {
	if c.NumEpochs < 1 {
		return &ConfigurationError{Field: "num_epochs", Reason: fmt.Sprintf("must be at least 1, got %d", c.NumEpochs)}
	}
	if c.PrintEvery < 1 {
		return &ConfigurationError{Field: "print_every", Reason: fmt.Sprintf("must be at least 1, got %d", c.PrintEvery)}
	}
	if c.TestEvery < 1 {
		return &ConfigurationError{Field: "test_every", Reason: fmt.Sprintf("must be at least 1, got %d", c.TestEvery)}
	}
	switch c.Supervision {
	case SupervisionWeak, SupervisionFull:
	default:
		return &ConfigurationError{Field: "supervision", Reason: fmt.Sprintf("unknown supervision %q", c.Supervision)}
	}
	switch c.SchedulerPolicy {
	case SchedulerExclusive, SchedulerIndependent:
	default:
		return &ConfigurationError{Field: "scheduler_policy", Reason: fmt.Sprintf("unknown policy %q", c.SchedulerPolicy)}
	}
	return nil
}

// LoadSolverConfig reads a YAML document over the defaults. Keys that do not
// name a SolverConfig field are rejected. An empty document yields the defaults.
func LoadSolverConfig(r io.Reader) (SolverConfig, error) {
	cfg := DefaultSolverConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return SolverConfig{}, &ConfigurationError{Field: "config", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return SolverConfig{}, err
	}
	return cfg, nil
}

// LoadSolverConfigFile reads a solver configuration from a YAML file
func LoadSolverConfigFile(path string) (SolverConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return SolverConfig{}, errors.Wrapf(err, "open solver config %s", path)
	}
	defer f.Close()
	return LoadSolverConfig(f)
}
