package invoices

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore persists invoices in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed invoice store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const invoiceColumns = `id, agent_id, to_wallet_address, amount, token_address, chain_id, status, COALESCE(memo, ''), tx_hash, created_at`

func (p *PostgresStore) Create(ctx context.Context, inv *Invoice) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO invoices (id, agent_id, to_wallet_address, amount, token_address, chain_id, status, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
	`, inv.ID, inv.AgentID, inv.ToWalletAddress, inv.Amount, inv.TokenAddress, inv.ChainID, inv.Status, inv.Memo, inv.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Invoice, error) {
	inv, err := scanInvoice(p.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inv, err
}

func (p *PostgresStore) List(ctx context.Context, agentID string, limit int) ([]*Invoice, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE ($1 = '' OR agent_id::TEXT = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row scanner) (*Invoice, error) {
	inv := &Invoice{}
	var token, txHash sql.NullString
	err := row.Scan(&inv.ID, &inv.AgentID, &inv.ToWalletAddress, &inv.Amount, &token,
		&inv.ChainID, &inv.Status, &inv.Memo, &txHash, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if token.Valid {
		inv.TokenAddress = &token.String
	}
	if txHash.Valid {
		inv.TxHash = &txHash.String
	}
	return inv, nil
}
