// Package storage implements the key→file JSON driver described in spec §4.1.
// Every higher-level store (conversations, indexes, pins, media cache,
// patterns) calls through this layer so concurrent workers cannot tear a file.
//
// Grounded on the teacher's github.com/nextlevelbuilder/goclaw/internal/sessions.Manager.Save
// atomic-rename pattern, generalised to per-path locking and JSON corruption
// recovery matching the original JsonStorageManager.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store is a thin key→file JSON driver with per-path locks.
type Store struct {
	mu    sync.Mutex // guards the locks map itself
	locks map[string]*sync.Mutex
}

// New creates an empty Store. Store is safe for concurrent use.
func New() *Store {
	return &Store{locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// Read decodes the JSON file at path into v. If the file does not exist, v is
// left untouched and (false, nil) is returned. On a decode failure the file
// is renamed aside to "<path>.<epoch>.bak" and (false, nil) is returned so
// normal operation can resume with an empty structure.
func (s *Store) Read(path string, v interface{}) (found bool, err error) {
	l := s.lockFor(path)
	l.Lock()
	defer l.Unlock()

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return false, nil
		}
		slog.Error("storage: read failed", "path", path, "error", readErr)
		return false, nil
	}

	if unmarshalErr := json.Unmarshal(data, v); unmarshalErr != nil {
		slog.Error("storage: corrupt json, backing up", "path", path, "error", unmarshalErr)
		backupPath := fmt.Sprintf("%s.%d.bak", path, time.Now().Unix())
		if renameErr := os.Rename(path, backupPath); renameErr != nil {
			slog.Error("storage: failed to back up corrupt file", "path", path, "error", renameErr)
		} else {
			slog.Info("storage: backed up corrupt file", "backup_path", backupPath)
		}
		return false, nil
	}

	return true, nil
}

// Write atomically persists v as JSON to path: parent directories are
// created, the payload lands in "<path>.tmp", then an atomic rename replaces
// the target so concurrent readers never observe a partial write.
func (s *Store) Write(path string, v interface{}) error {
	l := s.lockFor(path)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("storage: write temp file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage: rename %s -> %s: %w", tmpPath, path, err)
	}

	return nil
}

// Delete removes the file at path, if present. A missing file is not an error.
func (s *Store) Delete(path string) error {
	l := s.lockFor(path)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}
