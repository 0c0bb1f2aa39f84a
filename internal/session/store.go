// Package session remembers, per caller session and workflow, which
// workspace file the next event stream should compile.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const storeVersion = 1

// Job is the file pending for one workflow slot.
type Job struct {
	FilePath  string    `json:"file_path"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record holds every workflow slot of one session.
type Record struct {
	Jobs     map[string]*Job `json:"jobs"`
	LastSeen time.Time       `json:"last_seen"`
}

// Store maps session IDs to pending jobs. It is safe for concurrent use.
// When a file path is set, every Put is persisted.
type Store struct {
	Version  int                `json:"version"`
	Sessions map[string]*Record `json:"sessions"`

	mu       sync.RWMutex
	saveMu   sync.Mutex
	filePath string
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates an empty store. An empty filePath keeps it in memory;
// a non-positive ttl disables pruning.
func NewStore(filePath string, ttl time.Duration) *Store {
	return &Store{
		Version:  storeVersion,
		Sessions: make(map[string]*Record),
		filePath: filePath,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Load reads a persisted store. A missing file yields an empty store.
func Load(filePath string, ttl time.Duration) (*Store, error) {
	s := NewStore(filePath, ttl)
	if filePath == "" {
		return s, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read session store: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse session store: %w", err)
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]*Record)
	}
	for _, rec := range s.Sessions {
		if rec.Jobs == nil {
			rec.Jobs = make(map[string]*Job)
		}
	}
	s.Version = storeVersion
	s.prune()
	return s, nil
}

// Put records path as the pending job for the session's workflow slot,
// replacing any earlier one. The replaced file is left on disk.
func (s *Store) Put(sessionID, workflow, path string) error {
	s.mu.Lock()
	now := s.now()
	rec, ok := s.Sessions[sessionID]
	if !ok {
		rec = &Record{Jobs: make(map[string]*Job)}
		s.Sessions[sessionID] = rec
	}
	rec.Jobs[workflow] = &Job{FilePath: path, UpdatedAt: now}
	rec.LastSeen = now
	s.prune()
	s.mu.Unlock()

	return s.Save()
}

// Take returns the pending job for the slot without clearing it, so a
// reconnecting stream compiles the same file again.
func (s *Store) Take(sessionID, workflow string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.Sessions[sessionID]
	if !ok {
		return "", false
	}
	job, ok := rec.Jobs[workflow]
	if !ok {
		return "", false
	}
	rec.LastSeen = s.now()
	return job.FilePath, true
}

// Len returns the number of known sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Sessions)
}

// Prune drops sessions idle longer than the TTL, persists the result, and
// returns how many were dropped.
func (s *Store) Prune() (int, error) {
	s.mu.Lock()
	n := s.prune()
	s.mu.Unlock()
	if n == 0 {
		return 0, nil
	}
	return n, s.Save()
}

// prune requires s.mu to be held for writing.
func (s *Store) prune() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	n := 0
	for id, rec := range s.Sessions {
		if rec.LastSeen.Before(cutoff) {
			delete(s.Sessions, id)
			n++
		}
	}
	return n
}

// Save persists the store atomically (write temp file, then rename). It
// is a no-op for in-memory stores.
func (s *Store) Save() error {
	if s.filePath == "" {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal session store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create session store directory: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp session store: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename session store: %w", err)
	}
	return nil
}
