// Package audit keeps the append-only log of agent activity.
//
// Agents write their own entries (conversation decisions, tool calls) through
// the signed API; the server records registry and proposal events itself.
// Entries are never updated or deleted.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentos/agentos/internal/idgen"
	"github.com/agentos/agentos/internal/pagination"
	"github.com/agentos/agentos/internal/realtime"
)

var (
	ErrInvalidEvent  = errors.New("audit: event type is required")
	ErrInvalidCursor = errors.New("audit: invalid cursor")
)

// Event types written by the server itself.
const (
	TypeAgentCreated     = "AGENT_CREATED"
	TypeWalletLinked     = "WALLET_LINKED"
	TypeInvoiceCreated   = "INVOICE_CREATED"
	TypeTransferProposed = "TRANSFER_PROPOSED"
	TypeTransferPrepared = "TRANSFER_PREPARED"
	TypeTransferExecuted = "TRANSFER_EXECUTED"
)

// Event is one audit log entry.
type Event struct {
	ID        string                 `json:"id"`
	AgentID   string                 `json:"agent_id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, e *Event) error
	// ListByAgent returns entries newest first, starting after before when set.
	ListByAgent(ctx context.Context, agentID string, limit int, before *pagination.Cursor) ([]*Event, error)
}

// Page is one page of an agent's log.
type Page struct {
	Events     []*Event `json:"events"`
	NextCursor string   `json:"next_cursor,omitempty"`
	HasMore    bool     `json:"has_more"`
}

// Broadcaster fans entries out to live subscribers.
type Broadcaster interface {
	Broadcast(e *realtime.Event)
}

// Log appends audit entries and streams them to subscribers.
type Log struct {
	store Store
	hub   Broadcaster
	now   func() time.Time
}

// NewLog creates an audit log over store.
func NewLog(store Store) *Log {
	return &Log{store: store, now: time.Now}
}

// WithBroadcaster streams every appended entry to hub.
func (l *Log) WithBroadcaster(hub Broadcaster) *Log {
	l.hub = hub
	return l
}

// Append writes an entry and returns it with its ID.
func (l *Log) Append(ctx context.Context, agentID, eventType string, payload map[string]interface{}) (*Event, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, ErrInvalidEvent
	}
	e := &Event{
		ID:        idgen.New(),
		AgentID:   agentID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.Append(ctx, e); err != nil {
		return nil, err
	}
	eventsTotal.WithLabelValues(metricType(eventType)).Inc()

	if l.hub != nil {
		l.hub.Broadcast(&realtime.Event{
			Type:      realtime.EventAudit,
			AgentID:   agentID,
			Timestamp: e.CreatedAt,
			Data:      e,
		})
	}
	return e, nil
}

// Record implements agents.EventRecorder.
func (l *Log) Record(ctx context.Context, agentID, eventType string, payload map[string]interface{}) error {
	_, err := l.Append(ctx, agentID, eventType, payload)
	return err
}

// List returns an agent's most recent entries, newest first.
func (l *Log) List(ctx context.Context, agentID string, limit int) ([]*Event, error) {
	page, err := l.ListPage(ctx, agentID, "", limit)
	if err != nil {
		return nil, err
	}
	return page.Events, nil
}

// ListPage returns the page of entries following cursor. An empty cursor
// starts from the newest entry.
func (l *Log) ListPage(ctx context.Context, agentID, cursor string, limit int) (*Page, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	before, err := pagination.Decode(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	events, err := l.store.ListByAgent(ctx, agentID, limit+1, before)
	if err != nil {
		return nil, err
	}
	events, next, more := pagination.ComputePage(events, limit, func(e *Event) (time.Time, string) {
		return e.CreatedAt, e.ID
	})
	if events == nil {
		events = []*Event{}
	}
	return &Page{Events: events, NextCursor: next, HasMore: more}, nil
}

// metricType keeps label cardinality bounded; agent-supplied types are free text.
func metricType(t string) string {
	switch t {
	case TypeAgentCreated, TypeWalletLinked, TypeInvoiceCreated, TypeTransferProposed, TypeTransferPrepared, TypeTransferExecuted:
		return t
	}
	return "custom"
}
