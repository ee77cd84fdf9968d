package agentauth

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaper_KeepsTwoWindows(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, "expired", fixedNow.Add(-11*time.Minute)))
	require.NoError(t, store.Insert(ctx, "recent", fixedNow.Add(-9*time.Minute)))

	r := NewReaper(store, time.Minute, 5*time.Minute, slog.Default())
	r.now = fixedClock

	assert.Equal(t, int64(1), r.Reap(ctx))
	assert.Equal(t, 1, store.Len())
}

func TestReaper_StartStop(t *testing.T) {
	r := NewReaper(NewMemoryStore(), 10*time.Millisecond, time.Minute, slog.Default())

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, r.Running, time.Second, 5*time.Millisecond)
	r.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
	assert.False(t, r.Running())
}

func TestReaper_StopDuringPurge(t *testing.T) {
	p := &blockingPurger{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewReaper(p, time.Millisecond, time.Minute, slog.Default())

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	select {
	case <-p.entered:
	case <-time.After(time.Second):
		t.Fatal("purge never started")
	}
	r.Stop()
	r.Stop()
	close(p.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop during purge was lost")
	}
}

func TestReaper_StopBeforeStart(t *testing.T) {
	r := NewReaper(NewMemoryStore(), time.Hour, time.Minute, slog.Default())
	r.Stop()

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper ran after Stop")
	}
}

func TestReaper_PurgeErrorIsLogged(t *testing.T) {
	r := NewReaper(errPurger{}, time.Minute, time.Minute, slog.Default())
	assert.Equal(t, int64(0), r.Reap(context.Background()))
}

type errPurger struct{}

func (errPurger) PurgeBefore(context.Context, time.Time) (int64, error) {
	return 0, context.DeadlineExceeded
}

type blockingPurger struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPurger) PurgeBefore(context.Context, time.Time) (int64, error) {
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return 0, nil
}
