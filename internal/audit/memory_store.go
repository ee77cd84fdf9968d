package audit

import (
	"context"
	"sync"

	"github.com/agentos/agentos/internal/pagination"
)

// MemoryStore keeps audit entries in memory, in append order.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Append(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

// ListByAgent walks entries in reverse append order. A cursor naming an
// unknown entry yields an empty page.
func (m *MemoryStore) ListByAgent(_ context.Context, agentID string, limit int, before *pagination.Cursor) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	started := before == nil
	var out []*Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if !started {
			started = m.events[i].ID == before.ID
			continue
		}
		if m.events[i].AgentID == agentID {
			cp := *m.events[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
