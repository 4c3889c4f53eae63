package training

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/vrd-classifier/layers"
	"github.com/tsawler/vrd-classifier/optimizer"
	"gonum.org/v1/gonum/mat"
)

// clusterDataset places class c around the point (4c, -4c)
type clusterDataset struct {
	features [][]float64
	labels   []int
}

func newClusterDataset(n, classes int, rng *rand.Rand) *clusterDataset {
	ds := &clusterDataset{}
	for i := 0; i < n; i++ {
		c := i % classes
		ds.features = append(ds.features, []float64{
			4*float64(c) + rng.NormFloat64()*0.3,
			-4*float64(c) + rng.NormFloat64()*0.3,
		})
		ds.labels = append(ds.labels, c)
	}
	return ds
}

func (d *clusterDataset) Len() int { return len(d.labels) }

func (d *clusterDataset) Get(idx int) ([]float64, int, error) {
	return d.features[idx], d.labels[idx], nil
}

func newTestObjective(t *testing.T, widths []int, lr float64) *ClassifierObjective {
	model, err := layers.BuildMLP(widths, rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	adam, err := optimizer.NewAdam(optimizer.AdamConfig{
		LearningRate: lr,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}, model.Parameters())
	require.NoError(t, err)
	return NewClassifierObjective(model, nil, adam)
}

func TestClassifierObjectiveStepRequiresTrainingLoss(t *testing.T) {
	obj := newTestObjective(t, []int{2, 3}, 0.01)
	assert.Error(t, obj.Step())

	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	pred, err := obj.Predict(x)
	require.NoError(t, err)

	obj.SetTraining(false)
	_, err = obj.Loss(pred, []int{0, 1})
	require.NoError(t, err)
	assert.Error(t, obj.Step())

	obj.SetTraining(true)
	pred, err = obj.Predict(x)
	require.NoError(t, err)
	_, err = obj.Loss(pred, []int{0, 1})
	require.NoError(t, err)
	assert.NoError(t, obj.Step())
	// the gradient is consumed by the step
	assert.Error(t, obj.Step())
}

func TestClassifierObjectiveDescribe(t *testing.T) {
	obj := newTestObjective(t, []int{2, 3}, 0.01)
	obj.UseDevice(false)

	names := []string{}
	for _, row := range obj.Describe() {
		names = append(names, row.Name)
	}
	assert.Equal(t, []string{"optimizer", "model", "loss_fn", "dtype"}, names)
}

func TestSolverTrainsClassifier(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	train := NewDataLoader(newClusterDataset(96, 3, rng), 16, true, rng)
	test := NewDataLoader(newClusterDataset(30, 3, rng), 0, false, nil)

	obj := newTestObjective(t, []int{2, 32, 3}, 0.01)
	cfg := DefaultSolverConfig()
	cfg.NumEpochs = 20
	cfg.PrintEvery = 10
	cfg.TestEvery = 3

	var out bytes.Buffer
	solver := NewSolver(obj, cfg, WithReporter(NewReporter(&out)))
	res, err := solver.Run(train, test)
	require.NoError(t, err)
	require.Len(t, res.History, 20*6)

	first := (res.History[0] + res.History[1] + res.History[2]) / 3
	n := len(res.History)
	last := (res.History[n-1] + res.History[n-2] + res.History[n-3]) / 3
	assert.Less(t, last, first)

	cm, err := solver.Evaluator().Confusion(test, 3)
	require.NoError(t, err)
	assert.Equal(t, 30, cm.TotalSamples)
	assert.Greater(t, cm.GetAccuracy(), 0.9)
	assert.Contains(t, out.String(), "        TEST (ep  19:")
}
