package credstore

import "sync"

// MemStore is an in-memory Store.  It is intended for tests and for shells
// that deliberately want a session which does not survive the process.
type MemStore struct {
	mu     sync.Mutex
	values map[string]string
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{values: map[string]string{}}
}

// Get implements Store.Get.
func (s *MemStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set implements Store.Set.
func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		return &StoreError{Op: "set", Key: key, Cause: ErrInvalidParameter}
	}
	s.values[key] = value
	return nil
}

// Remove implements Store.Remove.
func (s *MemStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
