// Package logging builds the slog logger used by the cafe binaries.
//
// Interactive runs get colorized text on stderr. With a log file, records
// are written as JSON into a size-rotated file, which suits a mount that
// outlives the terminal that started it.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// File, when set, receives JSON records instead of Stderr.
	File string

	// MaxSizeMB and MaxBackups control rotation of File. Zero values use
	// 100 MB and 5 backups.
	MaxSizeMB  int
	MaxBackups int

	// Stderr receives text records when File is empty. Nil uses os.Stderr.
	Stderr io.Writer
}

// New returns a logger and a closer releasing its output. The closer is
// never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	if opts.File == "" {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		handler := tint.NewHandler(stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
		return slog.New(handler), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory for %s: %w", opts.File, err)
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		LocalTime:  true,
	}
	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level})
	return slog.New(handler), rotator, nil
}

// ParseLevel parses a level name. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
