package agentauth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists consumed keys in agent_request_nonces. The primary
// key on request_key provides the insert-if-absent guarantee.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed replay store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	_ ReplayStore = (*PostgresStore)(nil)
	_ Purger      = (*PostgresStore)(nil)
)

// Insert records key. A unique violation (23505) maps to ErrDuplicateKey.
func (p *PostgresStore) Insert(ctx context.Context, key string, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agent_request_nonces (request_key, created_at)
		VALUES ($1, $2)
	`, key, at)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

// PurgeBefore deletes keys created before cutoff.
func (p *PostgresStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM agent_request_nonces WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Migrate creates the nonce table if it does not exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS agent_request_nonces (
			request_key TEXT PRIMARY KEY,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_agent_request_nonces_created ON agent_request_nonces(created_at);
	`)
	return err
}
