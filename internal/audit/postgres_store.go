package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agentos/agentos/internal/pagination"
)

// PostgresStore persists audit entries in the audit_logs table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed audit store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (p *PostgresStore) Append(ctx context.Context, e *Event) error {
	var payload []byte
	if e.Payload != nil {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return err
		}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, agent_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4::JSONB, $5)
	`, e.ID, e.AgentID, e.Type, nullableJSON(payload), e.CreatedAt)
	return err
}

func (p *PostgresStore) ListByAgent(ctx context.Context, agentID string, limit int, before *pagination.Cursor) ([]*Event, error) {
	query := `
		SELECT id, agent_id, type, COALESCE(payload::TEXT, 'null'), created_at
		FROM audit_logs
		WHERE agent_id = $1`
	args := []interface{}{agentID, limit}
	if before != nil {
		query += ` AND (created_at, id) < ($3, $4::UUID)`
		args = append(args, before.CreatedAt, before.ID)
	}
	query += `
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		var raw string
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Type, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
