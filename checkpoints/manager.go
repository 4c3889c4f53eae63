package checkpoints

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ManagerConfig configures checkpoint saving behavior
type ManagerConfig struct {
	SaveDirectory   string           // Directory to save checkpoints
	MaxCheckpoints  int              // Maximum number of checkpoints to keep (0 = unlimited)
	Format          CheckpointFormat // JSON or Protobuf
	FilenamePattern string           // Pattern for checkpoint filenames, given epoch and step
}

// DefaultManagerConfig returns the configuration used by the train command
func DefaultManagerConfig(dir string) ManagerConfig {
	return ManagerConfig{
		SaveDirectory:   dir,
		MaxCheckpoints:  0,
		Format:          FormatJSON,
		FilenamePattern: "checkpoint_epoch_%d_step_%d",
	}
}

// Manager names, writes and prunes checkpoints in one directory
type Manager struct {
	config     ManagerConfig
	saver      *CheckpointSaver
	logger     *zap.Logger
	savedFiles []string // oldest first
}

// NewManager creates a new checkpoint manager. A nil logger discards warnings.
func NewManager(config ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config: config,
		saver:  NewCheckpointSaver(config.Format),
		logger: logger,
	}
}

// Save writes checkpoint under the save directory and returns its path
func (m *Manager) Save(checkpoint *Checkpoint) (string, error) {
	if err := m.ensureDirectory(); err != nil {
		return "", errors.Wrap(err, "failed to create checkpoint directory")
	}

	path := filepath.Join(m.config.SaveDirectory, m.generateFilename(checkpoint.TrainingState))
	if err := m.saver.SaveCheckpoint(checkpoint, path); err != nil {
		return "", errors.Wrap(err, "failed to save checkpoint")
	}
	m.savedFiles = append(m.savedFiles, path)

	if err := m.cleanupOldCheckpoints(); err != nil {
		m.logger.Warn("failed to clean up old checkpoints", zap.Error(err))
	}
	return path, nil
}

// Load reads the checkpoint at path and restores it into model
func (m *Manager) Load(path string, model StateLoader) (*Checkpoint, error) {
	checkpoint, err := m.saver.LoadCheckpoint(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load checkpoint")
	}
	if err := checkpoint.Restore(model); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// Saved returns the paths written by this manager that have not been pruned
func (m *Manager) Saved() []string {
	return append([]string(nil), m.savedFiles...)
}

func (m *Manager) generateFilename(state TrainingState) string {
	pattern := m.config.FilenamePattern
	if pattern == "" {
		pattern = "checkpoint_epoch_%d_step_%d"
	}
	return fmt.Sprintf("%s.%s", fmt.Sprintf(pattern, state.Epoch, state.Step), m.config.Format.Extension())
}

func (m *Manager) ensureDirectory() error {
	return os.MkdirAll(m.config.SaveDirectory, 0o755)
}

func (m *Manager) cleanupOldCheckpoints() error {
	if m.config.MaxCheckpoints <= 0 || len(m.savedFiles) <= m.config.MaxCheckpoints {
		return nil
	}

	toRemove := len(m.savedFiles) - m.config.MaxCheckpoints
	for i := 0; i < toRemove; i++ {
		if err := os.Remove(m.savedFiles[i]); err != nil && !os.IsNotExist(err) {
			m.savedFiles = m.savedFiles[i:]
			return errors.Wrapf(err, "failed to remove old checkpoint %s", m.savedFiles[0])
		}
	}
	m.savedFiles = m.savedFiles[toRemove:]
	return nil
}
