package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(threshold, 30*time.Second).WithClock(c.now), c
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)

	assert.True(t, b.Allow("rpc"))
	b.RecordFailure("rpc")
	b.RecordFailure("rpc")
	assert.True(t, b.Allow("rpc"), "below threshold")

	b.RecordFailure("rpc")
	assert.False(t, b.Allow("rpc"))
	assert.Equal(t, StateOpen, b.State("rpc"))
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, c := newTestBreaker(2)
	b.RecordFailure("rpc")
	b.RecordFailure("rpc")

	c.advance(29 * time.Second)
	assert.False(t, b.Allow("rpc"), "still cooling down")

	c.advance(time.Second)
	assert.True(t, b.Allow("rpc"), "one probe")
	assert.Equal(t, StateHalfOpen, b.State("rpc"))
	assert.False(t, b.Allow("rpc"), "only one probe at a time")

	b.RecordSuccess("rpc")
	assert.Equal(t, StateClosed, b.State("rpc"))
	assert.True(t, b.Allow("rpc"))
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, c := newTestBreaker(2)
	b.RecordFailure("rpc")
	b.RecordFailure("rpc")
	c.advance(30 * time.Second)
	require.True(t, b.Allow("rpc"))

	b.RecordFailure("rpc")
	assert.Equal(t, StateOpen, b.State("rpc"))
	assert.False(t, b.Allow("rpc"), "cool-down restarts from the failed probe")
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	b.RecordFailure("rpc")
	b.RecordFailure("rpc")
	b.RecordSuccess("rpc")
	b.RecordFailure("rpc")
	b.RecordFailure("rpc")
	assert.Equal(t, StateClosed, b.State("rpc"))
}

func TestBreaker_IndependentKeys(t *testing.T) {
	b, _ := newTestBreaker(1)
	b.RecordFailure("rpc")
	assert.False(t, b.Allow("rpc"))
	assert.True(t, b.Allow("replay_store"))
	assert.Equal(t, StateClosed, b.State("unknown"))
}

func TestBreaker_Execute(t *testing.T) {
	b, _ := newTestBreaker(2)
	boom := errors.New("boom")

	calls := 0
	fail := func() error { calls++; return boom }

	assert.ErrorIs(t, b.Execute("rpc", fail), boom)
	assert.ErrorIs(t, b.Execute("rpc", fail), boom)
	assert.ErrorIs(t, b.Execute("rpc", fail), ErrOpen)
	assert.Equal(t, 2, calls, "open circuit skips the call")

	assert.NoError(t, New(1, time.Second).Execute("rpc", func() error { return nil }))
}

func TestBreaker_DoIgnoresCallerCancellation(t *testing.T) {
	b, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, "rpc", func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State("rpc"))

	err = b.Do(context.Background(), "rpc", func(context.Context) error { return context.DeadlineExceeded })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, b.State("rpc"), "upstream timeout under a live context counts")
}

func TestBreaker_CancelledProbeIsReleased(t *testing.T) {
	b, c := newTestBreaker(1)
	b.RecordFailure("rpc")
	c.advance(30 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = b.Do(ctx, "rpc", func(ctx context.Context) error { return ctx.Err() })

	assert.Equal(t, StateOpen, b.State("rpc"))
	assert.True(t, b.Allow("rpc"), "next caller may probe without another cooldown")
}

func TestBreaker_TransitionsObserved(t *testing.T) {
	b, c := newTestBreaker(1)
	var seen []string
	b.OnTransition(func(key string, from, to State) {
		seen = append(seen, key+":"+from.String()+"->"+to.String())
	})

	b.RecordFailure("metrics_test")
	c.advance(time.Minute)
	b.Allow("metrics_test")
	b.RecordSuccess("metrics_test")

	assert.Equal(t, []string{
		"metrics_test:closed->open",
		"metrics_test:open->half_open",
		"metrics_test:half_open->closed",
	}, seen)

	m := &dto.Metric{}
	require.NoError(t, transitionsTotal.WithLabelValues("metrics_test", "closed", "open").Write(m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())
	require.NoError(t, openGauge.WithLabelValues("metrics_test").Write(m))
	assert.Equal(t, float64(0), m.GetGauge().GetValue())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
