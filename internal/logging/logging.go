// Package logging sets up structured JSON logging over a size-rotating
// file sink with an optional stderr mirror.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/baoliay2008/lccn-predictor/internal/config"
)

// Setup builds the process logger from the log config section and returns a
// cleanup function that flushes and closes the file sink. An empty sink path
// logs to stderr only.
func Setup(cfg config.LogConfig) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	if cfg.Sink == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), func() {}, nil
	}

	writer, err := NewRotatingWriter(cfg.Sink, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = io.MultiWriter(writer, os.Stderr)
	logger := slog.New(slog.NewJSONHandler(output, opts))

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return logger, cleanup, nil
}

// parseLevel converts a string level to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
