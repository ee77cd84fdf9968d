//go:build integration

package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentos/agentos/internal/testutil"
)

func TestPostgresStore_Registry(t *testing.T) {
	db := testutil.PGTest(t)
	svc := NewService(NewPostgresStore(db))
	ctx := context.Background()

	agent, err := svc.Create(ctx, "Lexa", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "Dup", "0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	assert.ErrorIs(t, err, ErrOwnerTaken, "owner uniqueness ignores case")

	got, err := svc.Resolve(ctx, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.ID)

	_, err = svc.LinkWallet(ctx, agent.ID, "0x5FC8d32690cc91D4c39d9d3abcBD16989F875707", 31337, "")
	require.NoError(t, err)
	_, err = svc.LinkWallet(ctx, agent.ID, "0x5fc8d32690cc91d4c39d9d3abcbd16989f875707", 31337, "")
	assert.ErrorIs(t, err, ErrWalletAlreadyLinked)

	wallets, err := svc.Wallets(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, "Main", wallets[0].Label)

	_, err = svc.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
