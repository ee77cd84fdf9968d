// Package invoices lets agents request payment into one of their linked
// wallets. Invoices are created "issued"; payment and settlement happen
// elsewhere.
package invoices

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/idgen"
)

var (
	ErrNotFound      = errors.New("invoices: invoice not found")
	ErrAgentMismatch = errors.New("invoices: agent_id does not match authenticated agent")
)

// StatusIssued is the only status this service ever writes.
const StatusIssued = "issued"

// Invoice is a payment request addressed to an agent's wallet.
type Invoice struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	ToWalletAddress string    `json:"to_wallet_address"`
	Amount          string    `json:"amount"`
	TokenAddress    *string   `json:"token_address"`
	ChainID         int64     `json:"chain_id"`
	Status          string    `json:"status"`
	Memo            string    `json:"memo,omitempty"`
	TxHash          *string   `json:"tx_hash,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store persists invoices.
type Store interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, agentID string, limit int) ([]*Invoice, error)
}

// CreateRequest is what an agent asks for.
type CreateRequest struct {
	AgentID         string
	ToWalletAddress string
	ChainID         int64
	TokenAddress    string
	Amount          string
	Memo            string
}

// Service issues invoices for authenticated agents.
type Service struct {
	store    Store
	agents   *agents.Service
	recorder agents.EventRecorder
	now      func() time.Time
}

// NewService creates an invoice service.
func NewService(store Store, agentSvc *agents.Service) *Service {
	return &Service{store: store, agents: agentSvc, now: time.Now}
}

// WithRecorder sets where INVOICE_CREATED events are recorded.
func (s *Service) WithRecorder(r agents.EventRecorder) *Service {
	s.recorder = r
	return s
}

// Create issues an invoice on behalf of signer. The destination must be a
// wallet linked to the signer's agent, and a supplied agent_id must be
// that same agent.
func (s *Service) Create(ctx context.Context, signer string, req CreateRequest) (*Invoice, error) {
	agent, err := s.agents.Resolve(ctx, signer)
	if err != nil {
		return nil, err
	}
	if req.AgentID != "" && !strings.EqualFold(req.AgentID, agent.ID) {
		return nil, ErrAgentMismatch
	}
	wallets, err := s.agents.Wallets(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if agents.FindWallet(wallets, req.ToWalletAddress) == nil {
		return nil, agents.ErrWalletNotLinked
	}

	inv := &Invoice{
		ID:              idgen.New(),
		AgentID:         agent.ID,
		ToWalletAddress: strings.TrimSpace(req.ToWalletAddress),
		Amount:          strings.TrimSpace(req.Amount),
		ChainID:         req.ChainID,
		Status:          StatusIssued,
		Memo:            req.Memo,
		CreatedAt:       s.now().UTC(),
	}
	if t := strings.TrimSpace(req.TokenAddress); t != "" {
		inv.TokenAddress = &t
	}
	if err := s.store.Create(ctx, inv); err != nil {
		return nil, err
	}

	if s.recorder != nil {
		_ = s.recorder.Record(ctx, agent.ID, "INVOICE_CREATED", map[string]interface{}{
			"invoice_id":        inv.ID,
			"to_wallet_address": inv.ToWalletAddress,
			"amount":            inv.Amount,
			"token_address":     inv.TokenAddress,
			"chain_id":          inv.ChainID,
		})
	}
	return inv, nil
}

// Get returns an invoice by ID.
func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	if !idgen.IsUUID(id) {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// List returns recent invoices, optionally for one agent.
func (s *Service) List(ctx context.Context, agentID string, limit int) ([]*Invoice, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.store.List(ctx, agentID, limit)
}
