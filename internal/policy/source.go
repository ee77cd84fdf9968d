package policy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Source reads policy state from the wallet contract.
type Source interface {
	ReadPolicy(ctx context.Context, wallet common.Address) (*Policy, error)
	DailySpent(ctx context.Context, wallet common.Address, day uint64) (*big.Int, error)
}
