package invoices

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory invoice store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	invoices map[string]*Invoice
}

// NewMemoryStore creates an empty in-memory invoice store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{invoices: make(map[string]*Invoice)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, agentID string, limit int) ([]*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Invoice, 0)
	for _, inv := range m.invoices {
		if agentID != "" && inv.AgentID != agentID {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
