// Package logger builds the zerolog logger shared by the batch driver: an
// info-level console stream on stderr and a debug-level rotating log file in
// the run's output directory.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the two log outputs.
type Config struct {
	// Dir is the directory the log file is written to. Empty disables the
	// file output.
	Dir string
	// Quiet raises the console level from info to warn.
	Quiet bool
	// MaxSizeMB and MaxBackups bound the rotated log file.
	MaxSizeMB  int
	MaxBackups int
}

const logFileName = "crawl.log"

// New builds a logger from cfg. The returned closer flushes and closes the
// file output, if any.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	consoleLevel := zerolog.InfoLevel
	if cfg.Quiet {
		consoleLevel = zerolog.WarnLevel
	}

	console := &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}},
		Level: consoleLevel,
	}

	if cfg.Dir == "" {
		return zerolog.New(console).With().Timestamp().Logger(), nil, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("failed to create log directory %s: %w", cfg.Dir, err)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, logFileName),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	writer := zerolog.MultiLevelWriter(console, file)
	log := zerolog.New(writer).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	return log, file, nil
}
