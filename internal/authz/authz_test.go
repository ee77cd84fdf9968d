package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wallet = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	agent  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	human  = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	other  = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

type fakeRoles struct {
	agent, human common.Address
	err          error
}

func (f *fakeRoles) Roles(context.Context, common.Address) (common.Address, common.Address, error) {
	return f.agent, f.human, f.err
}

func TestRequireRole(t *testing.T) {
	a := New(&fakeRoles{agent: agent, human: human})
	ctx := context.Background()

	tests := []struct {
		name    string
		signer  common.Address
		role    Role
		wantErr error
	}{
		{"human approves", human, RoleHuman, nil},
		{"agent executes", agent, RoleAgent, nil},
		{"agent cannot act as human", agent, RoleHuman, ErrForbidden},
		{"human cannot act as agent", human, RoleAgent, ErrForbidden},
		{"stranger", other, RoleHuman, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.RequireRole(ctx, tt.signer, wallet, tt.role)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRequireRole_UnsetHolderNeverMatches(t *testing.T) {
	a := New(&fakeRoles{agent: agent})
	err := a.RequireRole(context.Background(), common.Address{}, wallet, RoleHuman)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRequireRole_ReadError(t *testing.T) {
	boom := errors.New("rpc down")
	a := New(&fakeRoles{err: boom})
	err := a.RequireRole(context.Background(), human, wallet, RoleHuman)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestRequireRole_UnknownRole(t *testing.T) {
	a := New(&fakeRoles{agent: agent, human: human})
	err := a.RequireRole(context.Background(), human, wallet, Role("owner"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestRoleOf(t *testing.T) {
	a := New(&fakeRoles{agent: agent, human: human})
	ctx := context.Background()

	r, err := a.RoleOf(ctx, human, wallet)
	require.NoError(t, err)
	assert.Equal(t, RoleHuman, r)

	r, err = a.RoleOf(ctx, agent, wallet)
	require.NoError(t, err)
	assert.Equal(t, RoleAgent, r)

	r, err = a.RoleOf(ctx, other, wallet)
	require.NoError(t, err)
	assert.Equal(t, Role(""), r)
}
