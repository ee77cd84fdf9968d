package agentauth

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agentos/agentos/internal/traces"
)

// DefaultTolerance is how far x-agent-timestamp may drift from server time.
const DefaultTolerance = 300 * time.Second

// Reason is a stable, machine-readable authentication failure code.
type Reason string

const (
	ReasonMissingCredentials     Reason = "missing_credentials"
	ReasonInvalidAddress         Reason = "invalid_address"
	ReasonTimestampOutOfWindow   Reason = "timestamp_out_of_window"
	ReasonSignatureInvalid       Reason = "signature_invalid"
	ReasonReplay                 Reason = "replay"
	ReasonReplayCheckUnavailable Reason = "replay_check_unavailable"
)

// AuthError rejects a request. Every reason maps to an unauthorized response.
type AuthError struct {
	Reason Reason
}

func (e *AuthError) Error() string {
	return "agentauth: " + string(e.Reason)
}

func reject(r Reason) error {
	return &AuthError{Reason: r}
}

var addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Request is the transient view of one signed call.
type Request struct {
	Address   string
	Signature string
	Timestamp string // milliseconds since epoch, decimal
	Method    string
	Path      string
	Body      []byte
}

// Authenticator admits or rejects signed requests. It proves which address
// signed, not what that address may do.
type Authenticator struct {
	verifier  Verifier
	guard     *ReplayGuard
	strict    bool
	tolerance time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithVerifier replaces the EIP-191 verifier.
func WithVerifier(v Verifier) Option {
	return func(a *Authenticator) { a.verifier = v }
}

// WithClock sets the time source used for the timestamp window.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithTolerance sets the accepted clock skew.
func WithTolerance(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.tolerance = d
		}
	}
}

// WithStrictReplay controls what happens when the replay store cannot
// answer. Strict rejects with replay_check_unavailable. Lenient lets the
// request through, which leaves replays undetected for as long as the store
// is down.
func WithStrictReplay(strict bool) Option {
	return func(a *Authenticator) { a.strict = strict }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = l }
}

// New creates an Authenticator. It is strict unless configured otherwise.
func New(guard *ReplayGuard, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  EIP191Verifier{},
		guard:     guard,
		strict:    true,
		tolerance: DefaultTolerance,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Strict reports whether replay store failures reject requests.
func (a *Authenticator) Strict() bool { return a.strict }

// Tolerance returns the accepted timestamp skew.
func (a *Authenticator) Tolerance() time.Duration { return a.tolerance }

// ReplayEnabled reports whether a replay store is configured.
func (a *Authenticator) ReplayEnabled() bool { return a.guard.Enabled() }

// Authenticate runs the gates in order and returns the lowercased signer
// address. The first failing gate decides the reason.
func (a *Authenticator) Authenticate(ctx context.Context, req Request) (string, error) {
	ctx, span := traces.StartSpan(ctx, "agentauth.Authenticate")
	defer span.End()

	addr, err := a.authenticate(ctx, req)
	if err != nil {
		reason := string(err.(*AuthError).Reason)
		span.SetAttributes(traces.AuthReason(reason))
		authTotal.WithLabelValues("rejected", reason).Inc()
		return "", err
	}
	span.SetAttributes(traces.AgentAddr(addr))
	authTotal.WithLabelValues("accepted", "").Inc()
	return addr, nil
}

func (a *Authenticator) authenticate(ctx context.Context, req Request) (string, error) {
	address := strings.TrimSpace(req.Address)
	signature := strings.TrimSpace(req.Signature)
	timestamp := strings.TrimSpace(req.Timestamp)

	if address == "" || signature == "" || timestamp == "" {
		return "", reject(ReasonMissingCredentials)
	}

	if !addressRegex.MatchString(address) {
		return "", reject(ReasonInvalidAddress)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", reject(ReasonTimestampOutOfWindow)
	}
	// Compare against the window bounds; ts-now can overflow int64.
	now, tol := a.now().UnixMilli(), a.tolerance.Milliseconds()
	if ts < now-tol || ts > now+tol {
		return "", reject(ReasonTimestampOutOfWindow)
	}

	bodyHash := BodyHash(req.Body)
	message := BuildMessage(address, timestamp, req.Path, bodyHash)
	if !a.verifier.Verify(address, message, signature) {
		return "", reject(ReasonSignatureInvalid)
	}

	key := ReplayKey(address, timestamp, req.Method, req.Path, bodyHash)
	switch a.guard.TryConsume(ctx, key) {
	case Duplicate:
		return "", reject(ReasonReplay)
	case Unavailable:
		if a.strict {
			return "", reject(ReasonReplayCheckUnavailable)
		}
		a.logger.Warn("replay check unavailable, admitting request", "agent", strings.ToLower(address))
	}

	return strings.ToLower(address), nil
}
