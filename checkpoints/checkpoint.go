package checkpoints

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tsawler/vrd-classifier/layers"
	"gonum.org/v1/gonum/mat"
)

const (
	frameworkName    = "vrd-classifier"
	frameworkVersion = "1.0.0"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatProtobuf
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProtobuf:
		return "Protobuf"
	default:
		return "Unknown"
	}
}

// Extension returns the file extension used for the format, without a dot
func (cf CheckpointFormat) Extension() string {
	if cf == FormatProtobuf {
		return "pb"
	}
	return "json"
}

// FormatFromPath picks the format from a file extension. Anything other than
// .pb is treated as JSON.
func FormatFromPath(path string) CheckpointFormat {
	if strings.EqualFold(filepath.Ext(path), ".pb") {
		return FormatProtobuf
	}
	return FormatJSON
}

// Checkpoint represents model weights with training metadata
type Checkpoint struct {
	Weights       []WeightTensor     `json:"weights"`
	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a named model tensor with its data in row-major order
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// TrainingState captures the training progress when the checkpoint was taken
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	TotalSteps   int     `json:"total_steps"`
	LearningRate float64 `json:"learning_rate"`
	Loss         float64 `json:"loss"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	RunID       string    `json:"run_id"`
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Geometry    string    `json:"geometry,omitempty"`
	Description string    `json:"description,omitempty"`
}

// StateProvider is a model whose tensors can be checkpointed
type StateProvider interface {
	State() []layers.StateTensor
}

// NewCheckpoint copies the state of model into a new checkpoint
func NewCheckpoint(model StateProvider, geometry string, state TrainingState) *Checkpoint {
	return &Checkpoint{
		Weights:       ExtractWeights(model.State()),
		TrainingState: state,
		Metadata: CheckpointMetadata{
			RunID:     uuid.New().String(),
			Version:   frameworkVersion,
			Framework: frameworkName,
			CreatedAt: time.Now().UTC(),
			Geometry:  geometry,
		},
	}
}

// ExtractWeights copies state tensors into checkpoint weights
func ExtractWeights(state []layers.StateTensor) []WeightTensor {
	weights := make([]WeightTensor, 0, len(state))
	for _, t := range state {
		r, c := t.Value.Dims()
		data := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			data = append(data, t.Value.RawRowView(i)...)
		}
		weights = append(weights, WeightTensor{Name: t.Name, Shape: []int{r, c}, Data: data})
	}
	return weights
}

// Tensors returns the weights as matrices keyed by name
func (c *Checkpoint) Tensors() (map[string]*mat.Dense, error) {
	tensors := make(map[string]*mat.Dense, len(c.Weights))
	for _, w := range c.Weights {
		if len(w.Shape) != 2 || w.Shape[0] <= 0 || w.Shape[1] <= 0 {
			return nil, errors.Errorf("weight %s has unsupported shape %v", w.Name, w.Shape)
		}
		if len(w.Data) != w.Shape[0]*w.Shape[1] {
			return nil, errors.Errorf("weight %s has %d values for shape %v", w.Name, len(w.Data), w.Shape)
		}
		if _, dup := tensors[w.Name]; dup {
			return nil, errors.Errorf("duplicate weight %s", w.Name)
		}
		tensors[w.Name] = mat.NewDense(w.Shape[0], w.Shape[1], append([]float64(nil), w.Data...))
	}
	return tensors, nil
}

// StateLoader is a model that accepts checkpoint tensors
type StateLoader interface {
	LoadState(tensors map[string]*mat.Dense) error
}

// Restore loads the checkpoint weights into model
func (c *Checkpoint) Restore(model StateLoader) error {
	tensors, err := c.Tensors()
	if err != nil {
		return err
	}
	return errors.Wrap(model.LoadState(tensors), "restore model state")
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatProtobuf:
		return cs.saveProto(checkpoint, path)
	default:
		return errors.Errorf("unsupported checkpoint format: %s", cs.format)
	}
}

// LoadCheckpoint loads a model checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	case FormatProtobuf:
		return cs.loadProto(path)
	default:
		return nil, errors.Errorf("unsupported checkpoint format: %s", cs.format)
	}
}

// saveJSON saves checkpoint in JSON format
func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create checkpoint file")
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(checkpoint); err != nil {
		return errors.Wrap(err, "failed to encode checkpoint")
	}
	return nil
}

// loadJSON loads checkpoint from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint file")
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, errors.Wrap(err, "failed to decode checkpoint")
	}
	return &checkpoint, nil
}

// saveProto saves checkpoint in protobuf wire format
func (cs *CheckpointSaver) saveProto(checkpoint *Checkpoint, path string) error {
	if err := os.WriteFile(path, MarshalProto(checkpoint), 0o644); err != nil {
		return errors.Wrap(err, "failed to write checkpoint file")
	}
	return nil
}

// loadProto loads checkpoint from protobuf wire format
func (cs *CheckpointSaver) loadProto(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint file")
	}
	checkpoint, err := UnmarshalProto(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode checkpoint")
	}
	return checkpoint, nil
}

// Save writes checkpoint to path in the format implied by its extension
func Save(checkpoint *Checkpoint, path string) error {
	return NewCheckpointSaver(FormatFromPath(path)).SaveCheckpoint(checkpoint, path)
}

// Load reads a checkpoint in the format implied by the extension of path
func Load(path string) (*Checkpoint, error) {
	return NewCheckpointSaver(FormatFromPath(path)).LoadCheckpoint(path)
}
