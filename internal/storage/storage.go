// Package storage persists the small amount of client state that survives a
// restart: the bearer token, the session start timestamp, the user id and the
// standalone-install flag. It plays the role browser local storage plays for a PWA.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Persisted keys. All of them are removed together on logout.
const (
	KeyToken        = "lucky_token"
	KeySessionStart = "lucky_session_start"
	KeyUserID       = "lucky_user_id"
	KeyInstalled    = "pwa_installed"
)

// Filename is the state file written inside the state directory.
const Filename = "state.json"

// Store is a thread-safe string key/value store backed by a JSON file.
// A Store with an empty path keeps everything in memory.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// Open loads the store at path, starting empty if the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	return s, nil
}

// OpenDir opens the state file inside dir, creating dir if needed.
func OpenDir(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return Open(filepath.Join(dir, Filename))
}

// Memory returns a store that is never written to disk.
func Memory() *Store {
	return &Store{values: make(map[string]string)}
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a single key.
func (s *Store) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

// SetMany stores several keys in one write; either all land or none do.
func (s *Store) SetMany(kv map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]string, len(s.values)+len(kv))
	for k, v := range s.values {
		next[k] = v
	}
	for k, v := range kv {
		next[k] = v
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

// Delete removes the given keys.
func (s *Store) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]string, len(s.values))
	for k, v := range s.values {
		next[k] = v
	}
	for _, k := range keys {
		delete(next, k)
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

// Clear removes every key.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	empty := make(map[string]string)
	if err := s.write(empty); err != nil {
		return err
	}
	s.values = empty
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Token returns the stored bearer token, or "".
func (s *Store) Token() string {
	v, _ := s.Get(KeyToken)
	return v
}

// UserID returns the stored numeric user id.
func (s *Store) UserID() (int64, bool) {
	v, ok := s.Get(KeyUserID)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// SessionStart returns the stored session start time.
func (s *Store) SessionStart() (time.Time, bool) {
	v, ok := s.Get(KeySessionStart)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Installed reports whether the client was marked as installed standalone.
func (s *Store) Installed() bool {
	v, _ := s.Get(KeyInstalled)
	return v == "true"
}

// write persists m atomically via a temp file and rename. Caller holds s.mu.
func (s *Store) write(m map[string]string) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	data = append(data, '\n')
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}
