package checkpoints

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/vrd-classifier/layers"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/encoding/protowire"
)

func buildModel(t *testing.T, seed int64) *layers.Sequential {
	t.Helper()
	model, err := layers.BuildMLP([]int{4, 6, 3}, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	model.Eval()
	return model
}

func forward(t *testing.T, model *layers.Sequential) *mat.Dense {
	t.Helper()
	input := mat.NewDense(2, 4, []float64{0.1, -0.2, 0.3, 0.4, 1, 2, -1, 0.5})
	out, err := model.Forward(input)
	require.NoError(t, err)
	return out
}

func testCheckpoint(t *testing.T) *Checkpoint {
	t.Helper()
	c := NewCheckpoint(buildModel(t, 1), "4 6 3", TrainingState{
		Epoch:        3,
		Step:         120,
		TotalSteps:   360,
		LearningRate: 0.001,
		Loss:         0.42,
	})
	c.Metadata.Description = "unit test"
	return c
}

func TestCheckpointFormat(t *testing.T) {
	assert.Equal(t, "JSON", FormatJSON.String())
	assert.Equal(t, "Protobuf", FormatProtobuf.String())
	assert.Equal(t, "Unknown", CheckpointFormat(99).String())

	assert.Equal(t, "json", FormatJSON.Extension())
	assert.Equal(t, "pb", FormatProtobuf.Extension())

	assert.Equal(t, FormatProtobuf, FormatFromPath("model.pb"))
	assert.Equal(t, FormatProtobuf, FormatFromPath("dir/MODEL.PB"))
	assert.Equal(t, FormatJSON, FormatFromPath("model.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("model"))
}

func TestNewCheckpoint(t *testing.T) {
	c := testCheckpoint(t)

	assert.Len(t, c.Metadata.RunID, 36)
	assert.Equal(t, frameworkName, c.Metadata.Framework)
	assert.Equal(t, frameworkVersion, c.Metadata.Version)
	assert.Equal(t, "4 6 3", c.Metadata.Geometry)
	assert.False(t, c.Metadata.CreatedAt.IsZero())

	// 2 linear layers, one batch norm with 4 tensors
	require.Len(t, c.Weights, 8)
	assert.Equal(t, "0.weight", c.Weights[0].Name)
	assert.Equal(t, []int{4, 6}, c.Weights[0].Shape)
	assert.Len(t, c.Weights[0].Data, 24)
}

func TestCheckpointSaveLoad(t *testing.T) {
	for _, format := range []CheckpointFormat{FormatJSON, FormatProtobuf} {
		t.Run(format.String(), func(t *testing.T) {
			original := testCheckpoint(t)
			path := filepath.Join(t.TempDir(), "model."+format.Extension())

			saver := NewCheckpointSaver(format)
			require.NoError(t, saver.SaveCheckpoint(original, path))

			loaded, err := saver.LoadCheckpoint(path)
			require.NoError(t, err)

			assert.Equal(t, original.TrainingState, loaded.TrainingState)
			assert.Equal(t, original.Weights, loaded.Weights)
			assert.Equal(t, original.Metadata.RunID, loaded.Metadata.RunID)
			assert.Equal(t, original.Metadata.Geometry, loaded.Metadata.Geometry)
			assert.Equal(t, original.Metadata.Description, loaded.Metadata.Description)
			assert.True(t, original.Metadata.CreatedAt.Equal(loaded.Metadata.CreatedAt))
		})
	}
}

func TestSaveLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	original := testCheckpoint(t)

	pbPath := filepath.Join(dir, "model.pb")
	require.NoError(t, Save(original, pbPath))

	raw, err := os.ReadFile(pbPath)
	require.NoError(t, err)
	assert.NotEqual(t, byte('{'), raw[0])

	loaded, err := Load(pbPath)
	require.NoError(t, err)
	assert.Equal(t, original.Weights, loaded.Weights)
}

func TestRestoreReproducesModel(t *testing.T) {
	source := buildModel(t, 1)
	target := buildModel(t, 2)
	require.NotEqual(t, forward(t, source).RawMatrix().Data, forward(t, target).RawMatrix().Data)

	c := NewCheckpoint(source, "4 6 3", TrainingState{})
	require.NoError(t, c.Restore(target))

	assert.Equal(t, forward(t, source).RawMatrix().Data, forward(t, target).RawMatrix().Data)
}

func TestRestoreRejectsMismatchedGeometry(t *testing.T) {
	c := testCheckpoint(t)

	other, err := layers.BuildMLP([]int{4, 5, 3}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	err = c.Restore(other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore model state")
}

func TestTensorsValidation(t *testing.T) {
	tests := []struct {
		name    string
		weights []WeightTensor
		wantErr string
	}{
		{"bad shape", []WeightTensor{{Name: "w", Shape: []int{4}, Data: make([]float64, 4)}}, "unsupported shape"},
		{"short data", []WeightTensor{{Name: "w", Shape: []int{2, 2}, Data: make([]float64, 3)}}, "3 values"},
		{"duplicate", []WeightTensor{
			{Name: "w", Shape: []int{1, 1}, Data: []float64{1}},
			{Name: "w", Shape: []int{1, 1}, Data: []float64{2}},
		}, "duplicate weight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Checkpoint{Weights: tt.weights}).Tensors()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTensorsCopiesData(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	c := &Checkpoint{Weights: []WeightTensor{{Name: "w", Shape: []int{2, 2}, Data: data}}}

	tensors, err := c.Tensors()
	require.NoError(t, err)
	tensors["w"].Set(0, 0, 99)
	assert.Equal(t, 1.0, data[0])
	assert.Equal(t, 4.0, tensors["w"].At(1, 1))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewCheckpointSaver(FormatJSON).LoadCheckpoint(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open checkpoint file")

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte("{invalid json"), 0o644))
	_, err = NewCheckpointSaver(FormatJSON).LoadCheckpoint(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode checkpoint")

	truncated := filepath.Join(dir, "truncated.pb")
	require.NoError(t, os.WriteFile(truncated, []byte{0x0a, 0x10, 'a'}, 0o644))
	_, err = NewCheckpointSaver(FormatProtobuf).LoadCheckpoint(truncated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode checkpoint")
}

func TestSaveErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "model.json")

	err := NewCheckpointSaver(FormatJSON).SaveCheckpoint(testCheckpoint(t), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create checkpoint file")

	err = NewCheckpointSaver(CheckpointFormat(7)).SaveCheckpoint(testCheckpoint(t), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported checkpoint format")
}

func TestUnmarshalProtoSkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	b = append(b, MarshalProto(testCheckpoint(t))...)
	b = protowire.AppendTag(b, 100, protowire.BytesType)
	b = protowire.AppendString(b, "ignored")

	c, err := UnmarshalProto(b)
	require.NoError(t, err)
	assert.Equal(t, 3, c.TrainingState.Epoch)
	assert.Len(t, c.Weights, 8)
}

func TestManagerSaveAndPrune(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ckpt")
	config := DefaultManagerConfig(dir)
	config.MaxCheckpoints = 2
	m := NewManager(config, zap.NewNop())

	var paths []string
	for epoch := 0; epoch < 3; epoch++ {
		c := testCheckpoint(t)
		c.TrainingState.Epoch = epoch
		c.TrainingState.Step = epoch * 10
		path, err := m.Save(c)
		require.NoError(t, err)
		paths = append(paths, path)
	}

	assert.Equal(t, filepath.Join(dir, "checkpoint_epoch_0_step_0.json"), paths[0])
	assert.Equal(t, paths[1:], m.Saved())

	_, err := os.Stat(paths[0])
	assert.True(t, os.IsNotExist(err))
	for _, p := range paths[1:] {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestManagerLoad(t *testing.T) {
	config := DefaultManagerConfig(t.TempDir())
	config.Format = FormatProtobuf
	config.FilenamePattern = "final_%d_%d"
	m := NewManager(config, nil)

	source := buildModel(t, 5)
	path, err := m.Save(NewCheckpoint(source, "4 6 3", TrainingState{Epoch: 9, Step: 45}))
	require.NoError(t, err)
	assert.Equal(t, "final_9_45.pb", filepath.Base(path))

	target := buildModel(t, 6)
	c, err := m.Load(path, target)
	require.NoError(t, err)
	assert.Equal(t, 45, c.TrainingState.Step)
	assert.Equal(t, forward(t, source).RawMatrix().Data, forward(t, target).RawMatrix().Data)

	_, err = m.Load(filepath.Join(config.SaveDirectory, "missing.pb"), target)
	assert.Error(t, err)
}
