// Package proposal drives governed-wallet transfer proposals: building and
// submitting proposeTransfer, and preparing the human and agent follow-up
// calls.
//
// Proposals live on-chain. A proposal starts Pending; the human approves or
// rejects it, and the agent executes an approved one. Transfers inside the
// wallet's auto-approval bounds are approved by the contract in the same
// transaction that creates them.
package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrNotFound     = errors.New("proposal: not found")
	ErrNoProposalID = errors.New("proposal: could not determine proposal id")
)

// Mode is how a proposal reached the chain.
type Mode string

const (
	ModeSubmitted Mode = "submitted"
	ModePrepared  Mode = "prepared"
)

// Transfer is a proposal as read from the wallet contract.
type Transfer struct {
	ID          *big.Int
	To          common.Address
	Amount      *big.Int
	Token       common.Address
	ContextHash common.Hash
	ProposedAt  *big.Int
	Status      Status
}

// MarshalJSON renders integers as decimal strings.
func (t *Transfer) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"id":          bigString(t.ID),
		"to":          t.To,
		"amount":      bigString(t.Amount),
		"token":       t.Token,
		"contextHash": t.ContextHash,
		"proposedAt":  bigString(t.ProposedAt),
		"status":      t.Status,
	})
}

// Contract reads proposal state from a wallet.
type Contract interface {
	ProposalCounter(ctx context.Context, wallet common.Address) (*big.Int, error)
	Proposal(ctx context.Context, wallet common.Address, id *big.Int) (*Transfer, error)
}

// Signer submits transactions with a server-held key.
type Signer interface {
	Address() common.Address
	Transact(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error)
	WaitMined(ctx context.Context, tx common.Hash) (*types.Receipt, error)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
