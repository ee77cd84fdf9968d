package policy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentos/agentos/internal/circuitbreaker"
	"github.com/agentos/agentos/internal/retry"
	"github.com/agentos/agentos/internal/traces"
)

// DefaultCacheTTL is how long a wallet policy is cached before re-reading the chain.
const DefaultCacheTTL = 15 * time.Second

// breakerKey groups every policy read under one upstream.
const breakerKey = "policy_source"

var (
	// ErrSourceUnavailable is returned while the circuit to the source is open.
	ErrSourceUnavailable = errors.New("policy: source unavailable")
	// ErrRead wraps a read that failed after retries.
	ErrRead = errors.New("policy: read failed")
)

type cacheEntry struct {
	policy    *Policy
	fetchedAt time.Time
}

// Result carries a passing decision with the inputs it was made from.
type Result struct {
	Decision
	Policy     *Policy  `json:"policy"`
	Day        uint64   `json:"day"`
	SpentToday *big.Int `json:"-"`
}

// Reader reads and caches wallet policies and runs pre-flight checks.
// Daily spend is never cached.
type Reader struct {
	source   Source
	cacheTTL time.Duration
	breaker  *circuitbreaker.Breaker
	attempts int
	backoff  time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	cache map[common.Address]*cacheEntry
}

// NewReader creates a Reader with the default cache TTL.
func NewReader(source Source) *Reader {
	return &Reader{
		source:   source,
		cacheTTL: DefaultCacheTTL,
		breaker:  circuitbreaker.New(5, 30*time.Second),
		attempts: 3,
		backoff:  100 * time.Millisecond,
		now:      time.Now,
		cache:    make(map[common.Address]*cacheEntry),
	}
}

// WithCacheTTL overrides the default policy cache TTL.
func (r *Reader) WithCacheTTL(ttl time.Duration) *Reader {
	r.cacheTTL = ttl
	return r
}

// WithClock overrides the time source used for day buckets and the cache.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// WithRetry overrides how many times a failed read is attempted.
func (r *Reader) WithRetry(attempts int, backoff time.Duration) *Reader {
	r.attempts = attempts
	r.backoff = backoff
	return r
}

// Invalidate drops the cached policy for wallet.
func (r *Reader) Invalidate(wallet common.Address) {
	r.mu.Lock()
	delete(r.cache, wallet)
	r.mu.Unlock()
}

// SweepCache removes expired entries. Returns the number removed.
func (r *Reader) SweepCache() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for k, entry := range r.cache {
		if now.Sub(entry.fetchedAt) > r.cacheTTL {
			delete(r.cache, k)
			removed++
		}
	}
	return removed
}

// Policy returns the wallet policy from cache if fresh, otherwise from the source.
func (r *Reader) Policy(ctx context.Context, wallet common.Address) (*Policy, error) {
	now := r.now()

	r.mu.RLock()
	entry, ok := r.cache[wallet]
	if ok && now.Sub(entry.fetchedAt) < r.cacheTTL {
		r.mu.RUnlock()
		return entry.policy, nil
	}
	r.mu.RUnlock()

	var p *Policy
	err := r.read(ctx, func() error {
		var err error
		p, err = r.source.ReadPolicy(ctx, wallet)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[wallet] = &cacheEntry{policy: p, fetchedAt: now}
	r.mu.Unlock()

	return p, nil
}

// DailySpent returns the amount spent by wallet in the current day bucket.
func (r *Reader) DailySpent(ctx context.Context, wallet common.Address) (uint64, *big.Int, error) {
	day := DayBucket(r.now())
	var spent *big.Int
	err := r.read(ctx, func() error {
		var err error
		spent, err = r.source.DailySpent(ctx, wallet, day)
		return err
	})
	if err != nil {
		return day, nil, err
	}
	return day, spent, nil
}

// Check evaluates a transfer from wallet. A *Violation is returned when the
// policy rejects it; any other error means the policy could not be read and
// the caller should fail closed.
func (r *Reader) Check(ctx context.Context, wallet, to common.Address, amount *big.Int, token common.Address) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "policy.Check",
		traces.WalletAddr(wallet.Hex()), traces.Amount(orZero(amount).String()))
	defer span.End()

	p, err := r.Policy(ctx, wallet)
	if err != nil {
		evaluations.WithLabelValues("error").Inc()
		return nil, err
	}

	res := &Result{Policy: p, Day: DayBucket(r.now()), SpentToday: new(big.Int)}
	if p.UsesDailyCap() {
		res.Day, res.SpentToday, err = r.DailySpent(ctx, wallet)
		if err != nil {
			evaluations.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	decision, err := Evaluate(p, res.SpentToday, to, amount, token)
	if err != nil {
		evaluations.WithLabelValues("violation").Inc()
		return nil, err
	}
	res.Decision = decision
	if decision.NeedsApproval {
		evaluations.WithLabelValues("needs_approval").Inc()
	} else {
		evaluations.WithLabelValues("allowed").Inc()
	}
	return res, nil
}

// read runs fn behind the circuit breaker with retries.
func (r *Reader) read(ctx context.Context, fn func() error) error {
	err := r.breaker.Do(ctx, breakerKey, func(ctx context.Context) error {
		return retry.Do(ctx, r.attempts, r.backoff, fn)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ErrSourceUnavailable
	default:
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
}
