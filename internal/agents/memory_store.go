package agents

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory registry for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	agents  map[string]*Agent
	wallets map[string][]*Wallet // agentID -> wallets
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:  make(map[string]*Agent),
		wallets: make(map[string][]*Wallet),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateAgent(_ context.Context, a *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.agents {
		if strings.EqualFold(existing.OwnerAddress, a.OwnerAddress) {
			return ErrOwnerTaken
		}
	}
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAgent(_ context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) GetAgentByOwner(_ context.Context, owner string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.agents {
		if strings.EqualFold(a.OwnerAddress, owner) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAgentNotFound
}

func (m *MemoryStore) ListAgents(_ context.Context, limit int) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) LinkWallet(_ context.Context, w *Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[w.AgentID]; !ok {
		return ErrAgentNotFound
	}
	for _, existing := range m.wallets[w.AgentID] {
		if strings.EqualFold(existing.WalletAddress, w.WalletAddress) {
			return ErrWalletAlreadyLinked
		}
	}
	cp := *w
	m.wallets[w.AgentID] = append(m.wallets[w.AgentID], &cp)
	return nil
}

func (m *MemoryStore) ListWallets(_ context.Context, agentID string) ([]*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.wallets[agentID]
	out := make([]*Wallet, 0, len(list))
	for _, w := range list {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}
