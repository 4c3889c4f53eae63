package training

import "fmt"

// ConfigurationError reports an invalid option, an empty batch or mismatched
// shapes. It is returned before the offending step runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// ObjectiveFailure wraps an error returned by the objective during a training
// step. The wrapped error is available unchanged through Cause and Unwrap.
type ObjectiveFailure struct {
	Op        string // predict, loss or step
	Epoch     int
	Iteration int
	Err       error
}

func (e *ObjectiveFailure) Error() string {
	return fmt.Sprintf("objective %s failed (epoch %d, iteration %d): %v", e.Op, e.Epoch, e.Iteration, e.Err)
}

// Cause returns the objective error for github.com/pkg/errors.Cause
func (e *ObjectiveFailure) Cause() error { return e.Err }

func (e *ObjectiveFailure) Unwrap() error { return e.Err }

// IndexError reports a write outside the loss history. It indicates a broken
// iteration counter, not bad input.
type IndexError struct {
	Index  int
	Length int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("iteration %d out of range [0, %d)", e.Index, e.Length)
}
