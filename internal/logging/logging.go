// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger setup.
type Options struct {
	// Level is a logrus level name (debug, info, warn, error)
	Level string

	// JSON switches the formatter to JSON output
	JSON bool

	// File, if set, routes output through a size-rotated log file
	// instead of stderr
	File string

	// MaxSizeMB and MaxBackups configure rotation; zero values use
	// lumberjack defaults
	MaxSizeMB  int
	MaxBackups int
}

// Init configures the standard logrus logger from opts and returns it.
func Init(opts Options) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	output, err := buildOutput(opts)
	if err != nil {
		return nil, err
	}

	logger := logrus.StandardLogger()
	logger.SetLevel(level)
	logger.SetOutput(output)

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger, nil
}

// buildOutput returns the writer for the logger, creating the rotated
// file sink when a path is configured.
func buildOutput(opts Options) (io.Writer, error) {
	if opts.File == "" {
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		LocalTime:  true,
	}, nil
}
