// Package runlog sets up the per-run log file. Structured entries go through
// zap; progress lines are written verbatim so log parsers can read them back.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects where a run writes its log
type Options struct {
	LogFile  string // explicit log file; overrides the derived location
	OutDir   string // base output directory
	Name     string // run name, see RunName
	NoPrefix bool   // write <OutDir>/<Name>.log instead of <OutDir>/<Name>/out.log

	Stdout io.Writer // defaults to os.Stdout
	Stderr io.Writer // defaults to os.Stderr
}

// RunName names a run after its start time and main hyperparameters
func RunName(start time.Time, trainSize, epochs int, lr float64, geometry string) string {
	return fmt.Sprintf("%s N-%d ep-%d lr-%f geom-%s", start.Format("200601021504"), trainSize, epochs, lr, geometry)
}

// Resolve returns the log file path and the directory for other run outputs
func Resolve(opts Options) (logPath, outDir string) {
	outDir = opts.OutDir
	logName := opts.Name + ".log"
	if !opts.NoPrefix {
		outDir = filepath.Join(opts.OutDir, opts.Name)
		logName = "out.log"
	}
	if opts.LogFile != "" {
		return opts.LogFile, outDir
	}
	return filepath.Join(outDir, logName), outDir
}

// Logger is a zap logger teed to the console and the run's log file
type Logger struct {
	*zap.Logger

	file   *os.File
	writer io.Writer
	path   string
	outDir string
}

// New creates the log file, and any missing parent directories, and returns
// a logger writing to it. Entries below error level are echoed to Stdout,
// the rest to Stderr.
func New(opts Options) (*Logger, error) {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	path, outDir := Resolve(opts)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}

	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel
	})

	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(config)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(stderr), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.AddSync(stdout), isInfoLevel),
		zapcore.NewCore(encoder, zapcore.Lock(file), zapcore.DebugLevel),
	)

	return &Logger{
		Logger: zap.New(core),
		file:   file,
		writer: io.MultiWriter(stdout, file),
		path:   path,
		outDir: outDir,
	}, nil
}

// Writer returns a writer copying raw text to stdout and the log file
func (l *Logger) Writer() io.Writer {
	return l.writer
}

// Path returns the log file path
func (l *Logger) Path() string {
	return l.path
}

// OutDir returns the directory for checkpoints and other run outputs
func (l *Logger) OutDir() string {
	return l.outDir
}

// Close flushes the logger and closes the log file
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	return l.file.Close()
}
