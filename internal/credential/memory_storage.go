package credential

import (
	"maps"
	"sync"
)

// MemoryStorage keeps credentials for the lifetime of the process only.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

// Load returns a copy of the stored values.
func (m *MemoryStorage) Load() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.values), nil
}

// Save replaces the stored values.
func (m *MemoryStorage) Save(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = maps.Clone(values)
	if m.values == nil {
		m.values = map[string]string{}
	}
	return nil
}
