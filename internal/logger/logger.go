// Package logger owns the process-wide slog configuration.
//
// Components never reach for slog.Default directly; they receive a
// *slog.Logger built by WithComponent so that every line carries the
// subsystem that wrote it.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu      sync.Mutex
	level   = new(slog.LevelVar)
	base    = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logFile *os.File
)

// Init directs log output to the given file. An empty path keeps stderr.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	base = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return nil
}

// SetDebug toggles debug level logging.
func SetDebug(enabled bool) {
	if enabled {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// Get returns the process logger.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base
}

// WithComponent returns a logger tagged with the given component name.
func WithComponent(name string) *slog.Logger {
	return Get().With("component", name)
}

// Close releases the log file opened by Init, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
