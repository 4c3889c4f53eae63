package training

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// fakeSource yields prepared batches
type fakeSource struct {
	name      string
	batches   []*Batch
	batchSize int
	pos       int
	resets    int
	failAt    int // Next fails on this batch index when > 0
}

// newFakeSource creates n batches of rows samples with two features. Every
// label is 0, which fakeObjective always predicts.
func newFakeSource(name string, n, rows int) *fakeSource {
	src := &fakeSource{name: name, batchSize: rows}
	for i := 0; i < n; i++ {
		src.batches = append(src.batches, &Batch{
			Features: mat.NewDense(rows, 2, nil),
			Labels:   make([]int, rows),
		})
	}
	return src
}

func (s *fakeSource) Len() int       { return len(s.batches) }
func (s *fakeSource) BatchSize() int { return s.batchSize }
func (s *fakeSource) Name() string   { return s.name }

func (s *fakeSource) Reset() {
	s.pos = 0
	s.resets++
}

func (s *fakeSource) Next() (*Batch, error) {
	if s.failAt > 0 && s.pos == s.failAt {
		return nil, errors.New("disk read failed")
	}
	if s.pos >= len(s.batches) {
		return nil, nil
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}

// unnamedSource hides the Name method of a fakeSource
type unnamedSource struct {
	src *fakeSource
}

func (u unnamedSource) Len() int              { return u.src.Len() }
func (u unnamedSource) BatchSize() int        { return u.src.BatchSize() }
func (u unnamedSource) Reset()                { u.src.Reset() }
func (u unnamedSource) Next() (*Batch, error) { return u.src.Next() }

// fakeObjective predicts class 0 for every row. Loss returns the number of
// Loss calls so far, which makes every loss value distinct and ordered.
type fakeObjective struct {
	training bool
	modes    []bool

	predictCalls int
	lossCalls    int
	stepCalls    int
	evalPredicts int
	evalSteps    int

	failPredictAt int // Predict call number that fails, 0 for never
	failEval      bool
	err           error

	cuda    bool
	cudaSet bool
}

func newFakeObjective() *fakeObjective {
	return &fakeObjective{training: true, err: errors.New("objective exploded")}
}

func (o *fakeObjective) Predict(features *mat.Dense) (*mat.Dense, error) {
	o.predictCalls++
	if !o.training {
		o.evalPredicts++
		if o.failEval {
			return nil, o.err
		}
	}
	if o.failPredictAt > 0 && o.predictCalls == o.failPredictAt {
		return nil, o.err
	}
	rows, _ := features.Dims()
	out := mat.NewDense(rows, 2, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, 1)
	}
	return out, nil
}

func (o *fakeObjective) Loss(predictions *mat.Dense, labels []int) (float64, error) {
	o.lossCalls++
	return float64(o.lossCalls), nil
}

func (o *fakeObjective) Step() error {
	o.stepCalls++
	if !o.training {
		o.evalSteps++
	}
	return nil
}

func (o *fakeObjective) SetTraining(training bool) {
	o.training = training
	o.modes = append(o.modes, training)
}

func (o *fakeObjective) UseDevice(cuda bool) {
	o.cuda = cuda
	o.cudaSet = true
}

// fakeScheduler records every metric it is stepped with
type fakeScheduler struct {
	metrics []float64
}

func (s *fakeScheduler) Step(metric float64) {
	s.metrics = append(s.metrics, metric)
}

// fakeLR is a bare learning rate holder
type fakeLR struct {
	lr float64
}

func (f *fakeLR) GetLR() float64   { return f.lr }
func (f *fakeLR) SetLR(lr float64) { f.lr = lr }
