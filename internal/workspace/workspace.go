// Package workspace manages the scratch TEXT directory the tools read
// their inputs from.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/mizarwork/mvd/internal/paths"
	"github.com/mizarwork/mvd/internal/unit"
)

const (
	defaultDeleteRetries = 3
	defaultRetryInterval = time.Second

	ephemeralPrefix = "tmp"
)

// LockedFileError reports a file skipped by ClearAll because another
// process holds it.
type LockedFileError struct {
	Path string
	Err  error
}

func (e *LockedFileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file is locked: %s: %v", e.Path, e.Err)
	}
	return "file is locked: " + e.Path
}

func (e *LockedFileError) Unwrap() error { return e.Err }

// DeleteError reports a file that could not be removed after all retries.
type DeleteError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// Options tunes ClearAll.
type Options struct {
	DeleteRetries int
	RetryInterval time.Duration
}

// Manager owns the TEXT directory under a workspace root.
type Manager struct {
	root     string
	retries  int
	interval time.Duration
	logger   *slog.Logger
}

// NewManager returns a manager for the given workspace root. Zero option
// values select the defaults (3 attempts, 1s apart).
func NewManager(root string, opts Options, logger *slog.Logger) *Manager {
	if opts.DeleteRetries <= 0 {
		opts.DeleteRetries = defaultDeleteRetries
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	return &Manager{
		root:     root,
		retries:  opts.DeleteRetries,
		interval: opts.RetryInterval,
		logger:   logger,
	}
}

// Root returns the workspace root.
func (m *Manager) Root() string { return m.root }

// TextDir returns the directory source units are written to.
func (m *Manager) TextDir() string {
	return filepath.Join(m.root, paths.TextSubdir)
}

func (m *Manager) ensureTextDir() error {
	if err := os.MkdirAll(m.TextDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return nil
}

// MaterializeNamed writes the unit to TEXT/<stem>.miz, replacing any
// previous content.
func (m *Manager) MaterializeNamed(u unit.SourceUnit) (string, error) {
	if err := m.ensureTextDir(); err != nil {
		return "", err
	}
	path := filepath.Join(m.TextDir(), u.FileName())
	if err := os.WriteFile(path, []byte(u.Content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", u.FileName(), err)
	}
	m.logger.Debug("materialized named unit", "path", path, "bytes", len(u.Content))
	return path, nil
}

// MaterializeEphemeral writes content to a freshly named file that no
// other request can collide with.
func (m *Manager) MaterializeEphemeral(content string) (string, error) {
	if err := m.ensureTextDir(); err != nil {
		return "", err
	}
	name := ephemeralPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + unit.Ext
	path := filepath.Join(m.TextDir(), name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create ephemeral file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write ephemeral file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write ephemeral file: %w", err)
	}
	m.logger.Debug("materialized ephemeral unit", "path", path, "bytes", len(content))
	return path, nil
}

// ClearAll deletes every regular file in the TEXT directory. Files held by
// another process are skipped and reported; nothing here waits on a lock.
// A missing TEXT directory is an empty result. Cancelling ctx stops
// between files and between retries.
func (m *Manager) ClearAll(ctx context.Context) []error {
	entries, err := os.ReadDir(m.TextDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return []error{fmt.Errorf("failed to list workspace: %w", err)}
	}

	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(m.TextDir(), entry.Name())
		if err := m.clearFile(ctx, path); err != nil {
			m.logger.Warn("could not clear workspace file", "path", path, "error", err)
			errs = append(errs, err)
		}
	}
	m.logger.Info("workspace cleared", "files", len(entries), "failures", len(errs))
	return errs
}

func (m *Manager) clearFile(ctx context.Context, path string) error {
	locked, err := lockHeld(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if locked {
		return &LockedFileError{Path: path, Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= m.retries; attempt++ {
		lastErr = os.Remove(path)
		if lastErr == nil || errors.Is(lastErr, fs.ErrNotExist) {
			return nil
		}
		if attempt == m.retries {
			break
		}
		select {
		case <-ctx.Done():
			return &DeleteError{Path: path, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(m.interval):
		}
	}
	return &DeleteError{Path: path, Attempts: m.retries, Err: lastErr}
}

// lockHeld tries a non-blocking exclusive lock on a read-write handle.
// A file that cannot even be opened counts as locked, except when it no
// longer exists.
func lockHeld(path string) (bool, error) {
	fl := flock.New(path, flock.SetFlag(os.O_RDWR))
	ok, err := fl.TryLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
		return true, err
	}
	if !ok {
		return true, nil
	}
	if err := fl.Unlock(); err != nil {
		return false, fmt.Errorf("failed to release lock: %w", err)
	}
	return false, nil
}
