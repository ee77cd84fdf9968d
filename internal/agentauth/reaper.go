package agentauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Reaper purges replay keys that can no longer be replayed. A key older than
// the timestamp window would fail the window gate before reaching the store,
// so keys are kept for twice the window and then dropped.
type Reaper struct {
	purger    Purger
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
	stop      chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool
}

// NewReaper creates a reaper for purger. window is the auth timestamp tolerance.
func NewReaper(purger Purger, interval, window time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if window <= 0 {
		window = DefaultTolerance
	}
	return &Reaper{
		purger:    purger,
		interval:  interval,
		retention: 2 * window,
		logger:    logger,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

// Running reports whether the reaper loop is actively running.
func (r *Reaper) Running() bool {
	return r.running.Load()
}

// Start begins the purge loop. Call in a goroutine.
func (r *Reaper) Start(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.safeReap(ctx)
		}
	}
}

// Stop ends the loop after any purge in flight. It is safe to call more
// than once, and before or during Start.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Reaper) safeReap(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in replay reaper", "panic", fmt.Sprint(rec))
		}
	}()
	r.Reap(ctx)
}

// Reap runs one purge pass and returns the number of keys removed.
func (r *Reaper) Reap(ctx context.Context) int64 {
	cutoff := r.now().Add(-r.retention)
	n, err := r.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		r.logger.Warn("failed to purge replay keys", "error", err)
		return 0
	}
	if n > 0 {
		replayReaped.Add(float64(n))
		r.logger.Debug("purged replay keys", "count", n, "cutoff", cutoff)
	}
	return n
}
