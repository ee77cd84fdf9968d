// Package chain talks to governed AgentWallet contracts: policy and proposal
// reads, role lookups and server-signed transactions.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/agentos/agentos/internal/authz"
	"github.com/agentos/agentos/internal/policy"
	"github.com/agentos/agentos/internal/proposal"
	"github.com/agentos/agentos/internal/traces"
	"github.com/agentos/agentos/internal/walletabi"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrInvalidPrivateKey = errors.New("chain: invalid private key")
	ErrRPCConnection     = errors.New("chain: RPC connection failed")
	ErrNoSigner          = errors.New("chain: no server signer configured")
	ErrTimeout           = errors.New("chain: operation timed out")
	ErrUnexpectedResult  = errors.New("chain: unexpected call result")
)

// TxError wraps transaction failures with the step that failed.
type TxError struct {
	Op     string // nonce, gas_price, sign, send, confirm
	TxHash string
	Err    error
}

func (e *TxError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chain: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chain: %s failed: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	Close()
}

// Backend is everything the API needs from the chain.
type Backend interface {
	policy.Source
	proposal.Contract
	authz.RoleReader
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time interface checks
var (
	_ Backend         = (*Client)(nil)
	_ proposal.Signer = (*Client)(nil)
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	// DefaultGasLimit is used when estimation fails.
	DefaultGasLimit = uint64(300000)

	// PollInterval between receipt checks.
	PollInterval = 2 * time.Second
)

// Config for connecting to a chain.
type Config struct {
	RPCURL     string
	PrivateKey string // optional 0x-prefixed hex; enables Transact
	ChainID    int64
}

// Option configures the client.
type Option func(*Client)

// WithClient sets a custom Ethereum client (useful for testing)
func WithClient(client EthClient) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithPollInterval overrides how often receipts are polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// Client reads wallet contracts over JSON-RPC and, when a key is configured,
// submits transactions signed by the server.
type Client struct {
	client       EthClient
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	chainID      *big.Int
	pollInterval time.Duration
}

// New creates a Client. The RPC connection is dialed unless WithClient is given.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("chain ID required")
	}
	c := &Client{
		chainID:      big.NewInt(cfg.ChainID),
		pollInterval: PollInterval,
	}
	if cfg.PrivateKey != "" {
		key, err := ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.privateKey = key
		c.address = crypto.PubkeyToAddress(key.PublicKey)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		if cfg.RPCURL == "" {
			return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
		}
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		c.client = client
	}
	return c, nil
}

// ParsePrivateKey parses a 0x-prefixed 32-byte hex key.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if len(key) != 64 {
		return nil, fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	pk, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return pk, nil
}

// HasSigner reports whether Transact can sign.
func (c *Client) HasSigner() bool {
	return c.privateKey != nil
}

// Address returns the server signer's address, or the zero address.
func (c *Client) Address() common.Address {
	return c.address
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (c *Client) call(ctx context.Context, wallet common.Address, fn string, args ...interface{}) ([]interface{}, error) {
	data, err := walletabi.ABI.Pack(fn, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", fn, err)
	}
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", fn, err)
	}
	values, err := walletabi.ABI.Unpack(fn, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", fn, err)
	}
	return values, nil
}

// ReadPolicy reads getPolicy, getAllowedTargets and getAllowedTokens.
func (c *Client) ReadPolicy(ctx context.Context, wallet common.Address) (*policy.Policy, error) {
	ctx, span := traces.StartSpan(ctx, "chain.ReadPolicy", traces.WalletAddr(wallet.Hex()))
	defer span.End()

	out, err := c.call(ctx, wallet, walletabi.FnGetPolicy)
	if err != nil {
		return nil, err
	}
	if len(out) < 4 {
		return nil, fmt.Errorf("%w: getPolicy returned %d values", ErrUnexpectedResult, len(out))
	}
	maxAmount, ok1 := out[0].(*big.Int)
	dailyCap, ok2 := out[1].(*big.Int)
	requiresApproval, ok3 := out[2].(bool)
	threshold, ok4 := out[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("%w: getPolicy", ErrUnexpectedResult)
	}

	targets, err := c.addressList(ctx, wallet, walletabi.FnGetAllowedTargets)
	if err != nil {
		return nil, err
	}
	tokens, err := c.addressList(ctx, wallet, walletabi.FnGetAllowedTokens)
	if err != nil {
		return nil, err
	}

	return &policy.Policy{
		MaxAmount:         maxAmount,
		DailyCap:          dailyCap,
		RequiresApproval:  requiresApproval,
		ApprovalThreshold: threshold,
		AllowedTargets:    targets,
		AllowedTokens:     tokens,
	}, nil
}

func (c *Client) addressList(ctx context.Context, wallet common.Address, fn string) ([]common.Address, error) {
	out, err := c.call(ctx, wallet, fn)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResult, fn)
	}
	list, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResult, fn)
	}
	return list, nil
}

func (c *Client) uint256(ctx context.Context, wallet common.Address, fn string, args ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, wallet, fn, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResult, fn)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResult, fn)
	}
	return v, nil
}

func (c *Client) address1(ctx context.Context, wallet common.Address, fn string) (common.Address, error) {
	out, err := c.call(ctx, wallet, fn)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnexpectedResult, fn)
	}
	a, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnexpectedResult, fn)
	}
	return a, nil
}

// DailySpent reads getDailySpent(day).
func (c *Client) DailySpent(ctx context.Context, wallet common.Address, day uint64) (*big.Int, error) {
	return c.uint256(ctx, wallet, walletabi.FnGetDailySpent, new(big.Int).SetUint64(day))
}

// ProposalCounter reads the ID of the most recent proposal.
func (c *Client) ProposalCounter(ctx context.Context, wallet common.Address) (*big.Int, error) {
	return c.uint256(ctx, wallet, walletabi.FnProposalCounter)
}

// Proposal reads getProposal(id).
func (c *Client) Proposal(ctx context.Context, wallet common.Address, id *big.Int) (*proposal.Transfer, error) {
	out, err := c.call(ctx, wallet, walletabi.FnGetProposal, id)
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, fmt.Errorf("%w: getProposal returned %d values", ErrUnexpectedResult, len(out))
	}
	to, ok1 := out[0].(common.Address)
	amount, ok2 := out[1].(*big.Int)
	token, ok3 := out[2].(common.Address)
	ctxHash, ok4 := out[3].([32]byte)
	proposedAt, ok5 := out[4].(*big.Int)
	status, ok6 := out[5].(uint8)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return nil, fmt.Errorf("%w: getProposal", ErrUnexpectedResult)
	}
	return &proposal.Transfer{
		ID:          new(big.Int).Set(id),
		To:          to,
		Amount:      amount,
		Token:       token,
		ContextHash: common.Hash(ctxHash),
		ProposedAt:  proposedAt,
		Status:      proposal.Status(status),
	}, nil
}

// Roles reads the wallet's agent and human.
func (c *Client) Roles(ctx context.Context, wallet common.Address) (common.Address, common.Address, error) {
	agent, err := c.address1(ctx, wallet, walletabi.FnAgent)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	human, err := c.address1(ctx, wallet, walletabi.FnHuman)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return agent, human, nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// Transact signs calldata to the wallet with the server key and sends it.
func (c *Client) Transact(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error) {
	if c.privateKey == nil {
		return common.Hash{}, ErrNoSigner
	}
	ctx, span := traces.StartSpan(ctx, "chain.Transact", traces.WalletAddr(to.Hex()))
	defer span.End()

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, &TxError{Op: "nonce", Err: err}
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, &TxError{Op: "gas_price", Err: err}
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.address,
		To:    &to,
		Value: big.NewInt(0),
		Data:  calldata,
	})
	if err != nil {
		// Estimation reverts when the contract would reject; let the chain say so.
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, calldata)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return common.Hash{}, &TxError{Op: "sign", Err: err}
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, &TxError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
	}
	return signedTx.Hash(), nil
}

// WaitMined polls for the receipt until ctx is done. Reverted receipts are
// returned as-is; the caller decides what a revert means.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &TxError{Op: "confirm", TxHash: txHash.Hex(), Err: ErrTimeout}
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Ping checks the RPC endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.NetworkID(ctx)
	return err
}

// Close closes the client connection
func (c *Client) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
