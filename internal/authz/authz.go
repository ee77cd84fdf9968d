// Package authz decides what an authenticated signer may do with a wallet.
//
// Authentication only proves which address signed a request. The wallet
// contract names two roles, agent and human; this package checks the signer
// against them before the API prepares a role-restricted call.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrForbidden is returned when the signer does not hold the required role.
var ErrForbidden = errors.New("authz: signer does not hold the required role")

// Role is a party named by a governed wallet.
type Role string

const (
	RoleAgent Role = "agent"
	RoleHuman Role = "human"
)

// RoleReader reads a wallet's role holders.
type RoleReader interface {
	Roles(ctx context.Context, wallet common.Address) (agent, human common.Address, err error)
}

// Authorizer checks signers against on-chain roles.
type Authorizer struct {
	roles RoleReader
}

// New creates an Authorizer.
func New(roles RoleReader) *Authorizer {
	return &Authorizer{roles: roles}
}

// RoleOf returns the role signer holds for wallet, or "" if none.
func (a *Authorizer) RoleOf(ctx context.Context, signer, wallet common.Address) (Role, error) {
	agent, human, err := a.roles.Roles(ctx, wallet)
	if err != nil {
		return "", fmt.Errorf("read wallet roles: %w", err)
	}
	if signer == (common.Address{}) {
		return "", nil
	}
	switch signer {
	case human:
		return RoleHuman, nil
	case agent:
		return RoleAgent, nil
	}
	return "", nil
}

// RequireRole returns ErrForbidden unless signer holds role for wallet.
func (a *Authorizer) RequireRole(ctx context.Context, signer, wallet common.Address, role Role) error {
	agent, human, err := a.roles.Roles(ctx, wallet)
	if err != nil {
		return fmt.Errorf("read wallet roles: %w", err)
	}
	var holder common.Address
	switch role {
	case RoleAgent:
		holder = agent
	case RoleHuman:
		holder = human
	default:
		return fmt.Errorf("authz: unknown role %q", role)
	}
	if holder == (common.Address{}) || signer != holder {
		return ErrForbidden
	}
	return nil
}
