package agentauth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrDuplicateKey is returned by a ReplayStore when the key was already consumed.
var ErrDuplicateKey = errors.New("agentauth: replay key already consumed")

// Outcome is the result of consuming a replay key.
type Outcome int

const (
	Fresh       Outcome = iota // first use of the key
	Duplicate                  // key seen before; always rejected
	Unavailable                // store failed for a reason other than a conflict
)

func (o Outcome) String() string {
	switch o {
	case Fresh:
		return "fresh"
	case Duplicate:
		return "duplicate"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ReplayStore persists consumed keys. Insert must be an atomic
// insert-if-absent and return ErrDuplicateKey on conflict. Any other error
// means the store could not answer.
type ReplayStore interface {
	Insert(ctx context.Context, key string, at time.Time) error
}

// Purger is implemented by stores that need explicit cleanup of old keys.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReplayGuard consumes one-time request keys.
type ReplayGuard struct {
	store  ReplayStore
	name   string
	logger *slog.Logger
	now    func() time.Time
}

// NewReplayGuard wraps store. A nil store makes every key Unavailable, which
// strict callers turn into a rejection.
func NewReplayGuard(store ReplayStore, name string, logger *slog.Logger) *ReplayGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayGuard{store: store, name: name, logger: logger, now: time.Now}
}

// Enabled reports whether a backing store is configured.
func (g *ReplayGuard) Enabled() bool {
	return g != nil && g.store != nil
}

// Store returns the backing store, or nil.
func (g *ReplayGuard) Store() ReplayStore {
	if g == nil {
		return nil
	}
	return g.store
}

// TryConsume records key. The store's conflict signal is the only source of
// truth for duplicates; there is no read-before-write.
func (g *ReplayGuard) TryConsume(ctx context.Context, key string) Outcome {
	if !g.Enabled() {
		replayStoreErrors.WithLabelValues("none").Inc()
		return Unavailable
	}
	err := g.store.Insert(ctx, key, g.now())
	switch {
	case err == nil:
		return Fresh
	case errors.Is(err, ErrDuplicateKey):
		return Duplicate
	default:
		replayStoreErrors.WithLabelValues(g.name).Inc()
		g.logger.Warn("replay store insert failed", "store", g.name, "error", err)
		return Unavailable
	}
}
