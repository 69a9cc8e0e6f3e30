// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the application logger: human-readable lines on the
// console and timestamped JSON lines appended to a log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string

	// File is the append-only log file. Empty disables file logging.
	File string

	// Console receives human-readable output. Nil disables console logging.
	Console io.Writer

	// ConsoleLevel raises the threshold for the console only. Empty uses Level.
	ConsoleLevel string

	// NoColor disables ANSI colours on the console writer.
	NoColor bool
}

// Logger couples a zerolog.Logger with the file it writes to so the caller
// can release the file at shutdown.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New opens the log file (creating its directory) and returns a logger
// writing to the configured sinks.
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	if cfg.Console != nil {
		var cw io.Writer = zerolog.ConsoleWriter{
			Out:        cfg.Console,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.NoColor,
		}
		if cfg.ConsoleLevel != "" {
			cw = &zerolog.FilteredLevelWriter{
				Writer: zerolog.LevelWriterAdapter{Writer: cw},
				Level:  parseLevel(cfg.ConsoleLevel),
			}
		}
		writers = append(writers, cw)
	}

	var f *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		var err error
		f, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
		}
		writers = append(writers, f)
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: zl, file: f}, nil
}

// Nop returns a logger that discards everything. Tests use it.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Close releases the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
