package agents

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// PostgresStore persists agents and wallet links in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed registry
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (p *PostgresStore) CreateAgent(ctx context.Context, a *Agent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, owner_address, created_at)
		VALUES ($1, $2, $3, $4)
	`, a.ID, a.Name, a.OwnerAddress, a.CreatedAt)
	if isUniqueViolation(err) {
		return ErrOwnerTaken
	}
	return err
}

func (p *PostgresStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a := &Agent{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, owner_address, created_at FROM agents WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.OwnerAddress, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (p *PostgresStore) GetAgentByOwner(ctx context.Context, owner string) (*Agent, error) {
	a := &Agent{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, owner_address, created_at FROM agents
		WHERE LOWER(owner_address) = LOWER($1)
		ORDER BY created_at ASC
		LIMIT 1
	`, owner).Scan(&a.ID, &a.Name, &a.OwnerAddress, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (p *PostgresStore) ListAgents(ctx context.Context, limit int) ([]*Agent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, owner_address, created_at FROM agents
		ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Agent
	for rows.Next() {
		a := &Agent{}
		if err := rows.Scan(&a.ID, &a.Name, &a.OwnerAddress, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) LinkWallet(ctx context.Context, w *Wallet) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agent_wallets (id, agent_id, wallet_address, chain_id, label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, w.ID, w.AgentID, w.WalletAddress, w.ChainID, w.Label, w.CreatedAt)
	if isUniqueViolation(err) {
		return ErrWalletAlreadyLinked
	}
	return err
}

func (p *PostgresStore) ListWallets(ctx context.Context, agentID string) ([]*Wallet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, agent_id, wallet_address, chain_id, label, created_at
		FROM agent_wallets WHERE agent_id = $1
		ORDER BY created_at ASC
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Wallet
	for rows.Next() {
		w := &Wallet{}
		if err := rows.Scan(&w.ID, &w.AgentID, &w.WalletAddress, &w.ChainID, &w.Label, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
