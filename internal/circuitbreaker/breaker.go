// Package circuitbreaker stops calling an upstream (RPC node, replay store)
// after repeated failures and probes it again once a cool-down has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrOpen is returned while the circuit is open.
var ErrOpen = errors.New("circuitbreaker: circuit open")

// State of one upstream's circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half_open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentos",
		Subsystem: "circuitbreaker",
		Name:      "state_transitions_total",
		Help:      "Circuit state changes per upstream.",
	}, []string{"upstream", "from_state", "to_state"})

	openGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agentos",
		Subsystem: "circuitbreaker",
		Name:      "open",
		Help:      "1 while the circuit to an upstream is not closed.",
	}, []string{"upstream"})
)

func init() {
	prometheus.MustRegister(transitionsTotal, openGauge)
}

type circuit struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker keeps one circuit per upstream key. A circuit opens after
// threshold consecutive failures and admits a single probe once cooldown
// has elapsed since the last failure.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
	observer func(key string, from, to State)
}

// New returns a Breaker. Non-positive arguments fall back to 5 failures
// and a 30s cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		circuits:  make(map[string]*circuit),
	}
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// OnTransition registers fn to run on every state change while the
// breaker's lock is held. fn must not call back into the breaker.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) *Breaker {
	b.mu.Lock()
	b.observer = fn
	b.mu.Unlock()
	return b
}

// Execute runs fn unless the circuit for key is open.
func (b *Breaker) Execute(key string, fn func() error) error {
	return b.Do(context.Background(), key, func(context.Context) error { return fn() })
}

// Do is Execute with a context. A failure caused by ctx itself being
// cancelled or timing out says nothing about the upstream and is not
// counted.
func (b *Breaker) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if !b.Allow(key) {
		return ErrOpen
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess(key)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		b.release(key)
	default:
		b.RecordFailure(key)
	}
	return err
}

// Allow reports whether a call may go out. An open circuit past its
// cooldown becomes half-open and lets exactly one caller through.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		return true
	}
	switch c.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(c.openedAt) < b.cooldown {
			return false
		}
		b.setState(key, c, StateHalfOpen)
		return true
	}
	return false
}

// RecordSuccess closes the circuit and clears its failure count.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c := b.circuits[key]; c != nil {
		c.failures = 0
		b.setState(key, c, StateClosed)
	}
}

// RecordFailure counts a failure. A failed probe reopens immediately and
// restarts the cooldown.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		c = &circuit{}
		b.circuits[key] = c
	}
	c.failures++
	if c.state == StateHalfOpen || c.failures >= b.threshold {
		c.openedAt = b.now()
		b.setState(key, c, StateOpen)
	}
}

// release hands back a half-open probe whose outcome was inconclusive, so
// the next caller may probe without waiting out another cooldown.
func (b *Breaker) release(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c := b.circuits[key]; c != nil && c.state == StateHalfOpen {
		b.setState(key, c, StateOpen)
		c.openedAt = b.now().Add(-b.cooldown)
	}
}

// State returns key's current state. Unknown keys are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c := b.circuits[key]; c != nil {
		return c.state
	}
	return StateClosed
}

// setState requires b.mu.
func (b *Breaker) setState(key string, c *circuit, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to

	transitionsTotal.WithLabelValues(key, from.String(), to.String()).Inc()
	open := 1.0
	if to == StateClosed {
		open = 0
	}
	openGauge.WithLabelValues(key).Set(open)

	if b.observer != nil {
		b.observer(key, from, to)
	}
}
