package training

import (
	"fmt"
	"io"
	"os"
	"time"
)

// FormatProgress renders one status line. Log parsers match these lines with
// `^\s*(.*?)\s*\(ep\s+(\d+):\s+(\d+)/\d+\)\s+loss (\S+)\s+acc (\S+)`, so the
// layout must not change.
func FormatProgress(name string, epoch, iteration, total int, loss, acc float64) string {
	return fmt.Sprintf("%12s (ep %3d: %5d/%d) loss %e\tacc %.3f", name, epoch, iteration, total, loss, acc)
}

// OptionRow is one entry of the option table printed before training
type OptionRow struct {
	Name  string
	Value interface{}
}

// Reporter writes progress lines and run headers
type Reporter struct {
	w io.Writer
}

// NewReporter creates a reporter writing to w, or to stdout when w is nil
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &Reporter{w: w}
}

// Train writes the training line for the step at state
func (r *Reporter) Train(state ScheduleState, loss, acc float64) {
	fmt.Fprintln(r.w, FormatProgress("TRAIN", state.Epoch, state.Iteration, state.Total, loss, acc))
}

// Eval writes one evaluation line, stamped with the training position
func (r *Reporter) Eval(state ScheduleState, result EvaluationResult) {
	fmt.Fprintln(r.w, FormatProgress(result.Name, state.Epoch, state.Iteration, state.Total, result.Loss, result.Accuracy))
}

// Options writes the option table
func (r *Reporter) Options(rows []OptionRow) {
	for _, row := range rows {
		fmt.Fprintf(r.w, "%20s %v\n", row.Name, row.Value)
	}
}

// Header writes the run dimensions
func (r *Reporter) Header(numEpochs, numBatches, batchSize int) {
	r.Options([]OptionRow{
		{Name: "num_epochs", Value: numEpochs},
		{Name: "num_batches", Value: numBatches},
		{Name: "batch_size", Value: batchSize},
	})
}

// Finished writes the wall-clock duration of a run
func (r *Reporter) Finished(elapsed time.Duration) {
	fmt.Fprintf(r.w, "Training finished in %s\n", formatDuration(elapsed))
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
