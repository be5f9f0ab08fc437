package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a Store backed by a single JSON file.  The whole file is read
// once when the store is opened and rewritten atomically on every mutation,
// so concurrent processes should not share one path.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens (or creates) the store at path.  The parent directory is
// created if needed.  A missing file yields an empty store.
func NewFileStore(path string) (*FileStore, error) {
	const op = "credstore.NewFileStore"
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty: %w", op, ErrInvalidParameter)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%s: unable to create store directory: %w", op, err)
	}
	s := &FileStore{
		path:   path,
		values: map[string]string{},
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// first run
	case err != nil:
		return nil, fmt.Errorf("%s: unable to read store: %w", op, err)
	default:
		if err := json.Unmarshal(data, &s.values); err != nil {
			return nil, fmt.Errorf("%s: unable to decode store: %w", op, err)
		}
	}
	return s, nil
}

// Get implements Store.Get.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set implements Store.Set.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		return &StoreError{Op: "set", Key: key, Cause: ErrInvalidParameter}
	}
	s.values[key] = value
	if err := s.flush(); err != nil {
		return &StoreError{Op: "set", Key: key, Cause: err}
	}
	return nil
}

// Remove implements Store.Remove.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	if err := s.flush(); err != nil {
		return &StoreError{Op: "remove", Key: key, Cause: err}
	}
	return nil
}

// flush rewrites the backing file.  Callers must hold s.mu.  The write goes
// through a temp file and rename so a crash can never leave a torn file.
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
