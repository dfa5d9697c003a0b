package credstore

import (
	"context"
	"sync"
)

// MemStore keeps values in process memory. It is the degradation target
// when no durable backend is available: the session works for the lifetime
// of the process but does not survive a restart.
type MemStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// Compile-time check to ensure MemStore implements Store
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		values: make(map[string]string),
	}
}

// Set stores the value in memory.
func (m *MemStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Get returns the stored value. Returns ErrNotFound if the key is absent.
func (m *MemStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Delete removes the key. Deleting an absent key is a no-op.
func (m *MemStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
