// Package agents holds agent identities and the governed wallets linked to them.
//
// An agent is found by the address that signs its requests (owner_address).
// Stored addresses are returned exactly as written; lookups compare lowercase.
package agents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentos/agentos/internal/idgen"
	"github.com/agentos/agentos/internal/validation"
)

// Errors
var (
	ErrAgentNotFound       = errors.New("agents: no agent found for this address")
	ErrWalletNotLinked     = errors.New("agents: wallet is not linked to this agent")
	ErrOwnerTaken          = errors.New("agents: owner address already registered")
	ErrWalletAlreadyLinked = errors.New("agents: wallet already linked")
	ErrInvalidAddress      = errors.New("agents: invalid address")
)

// DefaultWalletLabel is used when a wallet is linked without a label.
const DefaultWalletLabel = "Main"

// Agent is a registered automated signer.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OwnerAddress string    `json:"owner_address"`
	CreatedAt    time.Time `json:"created_at"`
}

// Wallet is a governed wallet contract linked to an agent.
type Wallet struct {
	ID            string    `json:"id"`
	AgentID       string    `json:"agent_id"`
	WalletAddress string    `json:"wallet_address"`
	ChainID       int64     `json:"chain_id"`
	Label         string    `json:"label"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists agents and wallet links.
type Store interface {
	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentByOwner(ctx context.Context, owner string) (*Agent, error)
	ListAgents(ctx context.Context, limit int) ([]*Agent, error)
	LinkWallet(ctx context.Context, w *Wallet) error
	ListWallets(ctx context.Context, agentID string) ([]*Wallet, error)
}

// EventRecorder receives registry events for the audit log.
type EventRecorder interface {
	Record(ctx context.Context, agentID, eventType string, payload map[string]interface{}) error
}

// Service resolves the authenticated signer to its agent and wallets.
type Service struct {
	store    Store
	recorder EventRecorder
	now      func() time.Time
}

// NewService creates a registry service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithRecorder sets where registry events are recorded.
func (s *Service) WithRecorder(r EventRecorder) *Service {
	s.recorder = r
	return s
}

// Resolve returns the agent whose owner_address equals addr, ignoring case.
func (s *Service) Resolve(ctx context.Context, addr string) (*Agent, error) {
	addr = strings.TrimSpace(addr)
	if !validation.IsAddress(addr) {
		return nil, ErrAgentNotFound
	}
	return s.store.GetAgentByOwner(ctx, strings.ToLower(addr))
}

// Get returns an agent by ID.
func (s *Service) Get(ctx context.Context, id string) (*Agent, error) {
	if !idgen.IsUUID(id) {
		return nil, ErrAgentNotFound
	}
	return s.store.GetAgent(ctx, id)
}

// List returns the most recently created agents.
func (s *Service) List(ctx context.Context, limit int) ([]*Agent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListAgents(ctx, limit)
}

// Wallets lists the wallets linked to agentID, oldest first.
func (s *Service) Wallets(ctx context.Context, agentID string) ([]*Wallet, error) {
	return s.store.ListWallets(ctx, agentID)
}

// RequireLinkedWallet resolves the agent for signer and checks that wallet
// is one of its linked wallets.
func (s *Service) RequireLinkedWallet(ctx context.Context, signer, wallet string) (*Agent, *Wallet, error) {
	agent, err := s.Resolve(ctx, signer)
	if err != nil {
		return nil, nil, err
	}
	wallets, err := s.store.ListWallets(ctx, agent.ID)
	if err != nil {
		return nil, nil, err
	}
	w := FindWallet(wallets, wallet)
	if w == nil {
		return agent, nil, ErrWalletNotLinked
	}
	return agent, w, nil
}

// FindWallet returns the wallet matching addr, ignoring case.
func FindWallet(wallets []*Wallet, addr string) *Wallet {
	addr = strings.TrimSpace(addr)
	if !validation.IsAddress(addr) {
		return nil
	}
	for _, w := range wallets {
		if strings.EqualFold(w.WalletAddress, addr) {
			return w
		}
	}
	return nil
}

// Create registers a new agent.
func (s *Service) Create(ctx context.Context, name, owner string) (*Agent, error) {
	owner = strings.TrimSpace(owner)
	if !validation.IsAddress(owner) {
		return nil, ErrInvalidAddress
	}
	a := &Agent{
		ID:           idgen.New(),
		Name:         strings.TrimSpace(name),
		OwnerAddress: owner,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		return nil, err
	}
	s.record(ctx, a.ID, "AGENT_CREATED", map[string]interface{}{
		"name":          a.Name,
		"owner_address": a.OwnerAddress,
	})
	return a, nil
}

// LinkWallet links a wallet contract to an agent.
func (s *Service) LinkWallet(ctx context.Context, agentID, wallet string, chainID int64, label string) (*Wallet, error) {
	wallet = strings.TrimSpace(wallet)
	if !validation.IsAddress(wallet) {
		return nil, ErrInvalidAddress
	}
	if _, err := s.Get(ctx, agentID); err != nil {
		return nil, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultWalletLabel
	}
	w := &Wallet{
		ID:            idgen.New(),
		AgentID:       agentID,
		WalletAddress: wallet,
		ChainID:       chainID,
		Label:         label,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.LinkWallet(ctx, w); err != nil {
		return nil, err
	}
	s.record(ctx, agentID, "WALLET_LINKED", map[string]interface{}{
		"wallet_address": w.WalletAddress,
		"chain_id":       w.ChainID,
		"label":          w.Label,
	})
	return w, nil
}

// record is best effort; registry writes never fail on audit errors.
func (s *Service) record(ctx context.Context, agentID, eventType string, payload map[string]interface{}) {
	if s.recorder == nil {
		return
	}
	_ = s.recorder.Record(ctx, agentID, eventType, payload)
}
