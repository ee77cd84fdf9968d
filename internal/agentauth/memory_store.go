package agentauth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps consumed keys in process memory. Suitable for a single
// instance or tests; keys do not survive a restart.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

// NewMemoryStore creates an empty in-memory replay store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]time.Time)}
}

var (
	_ ReplayStore = (*MemoryStore)(nil)
	_ Purger      = (*MemoryStore)(nil)
)

// Insert records key unless it already exists.
func (m *MemoryStore) Insert(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[key]; ok {
		return ErrDuplicateKey
	}
	m.keys[key] = at
	return nil
}

// PurgeBefore drops keys recorded before cutoff.
func (m *MemoryStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, at := range m.keys {
		if at.Before(cutoff) {
			delete(m.keys, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
