// Package logging builds the command's slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options selects the terminal handler and an optional JSON log file.
type Options struct {
	Level  string // "debug", "info", "warn" or "error"
	Format string // "text" or "json"
	File   string
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging: unknown level %q", name)
}

// New returns a logger writing to w, fanned out to the log file when one is
// configured. The returned closer releases the file and is never nil.
func New(w io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var terminal slog.Handler
	if opts.Format == "json" {
		terminal = slog.NewJSONHandler(w, handlerOpts)
	} else {
		terminal = slog.NewTextHandler(w, handlerOpts)
	}

	if opts.File == "" {
		return slog.New(terminal), nopCloser{}, nil
	}

	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", opts.File, err)
	}

	// The file keeps debug records regardless of the terminal level.
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(slogmulti.Fanout(terminal, file)), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
