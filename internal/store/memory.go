package store

import (
	"context"
	"sync"

	"dolphind/internal/dolphin"
)

// MemoryStore keeps the record in memory. It counts writes so tests can
// observe flush behaviour.
type MemoryStore struct {
	mu     sync.Mutex
	data   dolphin.StoreData
	saved  bool
	writes int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the last saved record or dolphin.ErrNoState.
func (m *MemoryStore) Load(ctx context.Context) (dolphin.StoreData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return dolphin.StoreData{}, dolphin.ErrNoState
	}
	return m.data, nil
}

// Save replaces the record.
func (m *MemoryStore) Save(ctx context.Context, data dolphin.StoreData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.saved = true
	m.writes++
	return nil
}

// Writes returns how many times Save was called.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
