package proposal

import (
	"encoding/json"
	"fmt"
)

// Status mirrors the wallet contract's proposal status enum.
type Status uint8

const (
	StatusPending  Status = 0
	StatusApproved Status = 1
	StatusRejected Status = 2
	StatusExecuted Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusExecuted:
		return "executed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalJSON renders the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s <= StatusExecuted
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusExecuted
}

// CanTransition reports whether a proposal in from may move to to.
// Pending moves to Approved or Rejected, Approved to Executed or Rejected.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusExecuted || to == StatusRejected
	default:
		return false
	}
}

// TransitionError is returned when an action is not allowed from the
// proposal's current status.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("proposal: cannot move from %s to %s", e.From, e.To)
}

// Transition validates from -> to.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
