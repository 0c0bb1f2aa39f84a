package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ServerLock keeps two servers from persisting into the same store file.
type ServerLock struct {
	path string
	file *os.File
}

// LockPath returns the lock file guarding a store file.
func LockPath(storePath string) string {
	return storePath + ".lock"
}

// AcquireLock takes the lock for storePath. A lock left behind by a dead
// process is replaced.
func AcquireLock(storePath string) (*ServerLock, error) {
	fp := LockPath(storePath)

	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(fp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}
		data, readErr := os.ReadFile(fp)
		if readErr != nil {
			return nil, fmt.Errorf("server lock already held at %s", fp)
		}
		pidStr := strings.TrimSpace(string(data))
		if pid, parseErr := strconv.Atoi(pidStr); parseErr == nil && !processAlive(pid) {
			os.Remove(fp)
			return AcquireLock(storePath)
		}
		return nil, fmt.Errorf("server lock already held (PID: %s). Remove %s if the process is not running", pidStr, fp)
	}

	fmt.Fprintf(f, "%d", os.Getpid())
	return &ServerLock{path: fp, file: f}, nil
}

// Release drops the lock.
func (l *ServerLock) Release() error {
	if l.file != nil {
		l.file.Close()
	}
	return os.Remove(l.path)
}
