// Package policy evaluates transfer proposals against a wallet's on-chain
// spending policy.
//
// The contract is the final arbiter. Evaluation here is a pre-flight check
// that fails fast before a transaction is built; it is not a security
// boundary, and the contract may still reject a transfer that passed.
package policy

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Reason explains a policy rejection.
type Reason string

const (
	ReasonExceedsMaxAmount    Reason = "exceeds max amount"
	ReasonRecipientNotAllowed Reason = "recipient not allowed"
	ReasonTokenNotAllowed     Reason = "token not allowed"
	ReasonExceedsDailyCap     Reason = "exceeds daily cap"
)

// Violation is returned when a transfer breaks the policy. Amounts are never
// clamped to fit.
type Violation struct {
	Reason Reason
}

func (v *Violation) Error() string {
	return "policy: " + string(v.Reason)
}

// Policy mirrors the wallet contract's getPolicy, getAllowedTargets and
// getAllowedTokens views.
type Policy struct {
	MaxAmount         *big.Int
	DailyCap          *big.Int // zero disables the daily limit
	RequiresApproval  bool
	ApprovalThreshold *big.Int
	AllowedTargets    []common.Address // empty means any recipient
	AllowedTokens     []common.Address // mandatory; empty rejects every token
}

// Decision is the outcome of a passing evaluation.
type Decision struct {
	NeedsApproval bool `json:"needsApproval"`
}

// millisPerDay sizes the contract's daily spend buckets.
const millisPerDay = 86_400_000

// DayBucket returns the epoch-day index used to key daily spend.
func DayBucket(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms / millisPerDay)
}

// UsesDailyCap reports whether the daily limit is enforced.
func (p *Policy) UsesDailyCap() bool {
	return p.DailyCap != nil && p.DailyCap.Sign() > 0
}

// Evaluate checks a transfer in a fixed order and returns the first
// violation. spentToday is the amount already spent in the current day bucket.
func Evaluate(p *Policy, spentToday *big.Int, to common.Address, amount *big.Int, token common.Address) (Decision, error) {
	amt := orZero(amount)

	if amt.Cmp(orZero(p.MaxAmount)) > 0 {
		return Decision{}, &Violation{Reason: ReasonExceedsMaxAmount}
	}

	if len(p.AllowedTargets) > 0 && !contains(p.AllowedTargets, to) {
		return Decision{}, &Violation{Reason: ReasonRecipientNotAllowed}
	}

	if !contains(p.AllowedTokens, token) {
		return Decision{}, &Violation{Reason: ReasonTokenNotAllowed}
	}

	if p.UsesDailyCap() {
		total := new(big.Int).Add(orZero(spentToday), amt)
		if total.Cmp(p.DailyCap) > 0 {
			return Decision{}, &Violation{Reason: ReasonExceedsDailyCap}
		}
	}

	needsApproval := p.RequiresApproval || amt.Cmp(orZero(p.ApprovalThreshold)) > 0
	return Decision{NeedsApproval: needsApproval}, nil
}

func contains(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

var zero = new(big.Int)

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return zero
	}
	return v
}

type policyJSON struct {
	MaxAmount         string           `json:"maxAmount"`
	DailyCap          string           `json:"dailyCap"`
	RequiresApproval  bool             `json:"requiresApproval"`
	ApprovalThreshold string           `json:"approvalThreshold"`
	AllowedTargets    []common.Address `json:"allowedTargets"`
	AllowedTokens     []common.Address `json:"allowedTokens"`
}

// MarshalJSON renders amounts as decimal strings.
func (p *Policy) MarshalJSON() ([]byte, error) {
	targets := p.AllowedTargets
	if targets == nil {
		targets = []common.Address{}
	}
	tokens := p.AllowedTokens
	if tokens == nil {
		tokens = []common.Address{}
	}
	return json.Marshal(policyJSON{
		MaxAmount:         orZero(p.MaxAmount).String(),
		DailyCap:          orZero(p.DailyCap).String(),
		RequiresApproval:  p.RequiresApproval,
		ApprovalThreshold: orZero(p.ApprovalThreshold).String(),
		AllowedTargets:    targets,
		AllowedTokens:     tokens,
	})
}
