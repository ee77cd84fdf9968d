package proposal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/audit"
	"github.com/agentos/agentos/internal/authz"
	"github.com/agentos/agentos/internal/logging"
	"github.com/agentos/agentos/internal/policy"
	"github.com/agentos/agentos/internal/realtime"
	"github.com/agentos/agentos/internal/syncutil"
	"github.com/agentos/agentos/internal/traces"
	"github.com/agentos/agentos/internal/walletabi"
)

// DefaultConfirmTimeout bounds how long a submitted transaction is awaited.
const DefaultConfirmTimeout = 60 * time.Second

var (
	// ErrChain wraps every failed contract read or transaction.
	ErrChain = errors.New("proposal: chain call failed")
	// ErrReverted means the wallet contract rejected a mined transaction.
	ErrReverted = errors.New("proposal: transaction reverted")
)

// RevertError carries the hash of a reverted transaction.
type RevertError struct {
	TxHash common.Hash
}

func (e *RevertError) Error() string {
	return "proposal: transaction " + e.TxHash.Hex() + " reverted"
}

func (e *RevertError) Is(target error) bool { return target == ErrReverted }

// Action is a follow-up call on an existing proposal.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionExecute Action = "execute"
)

var actions = map[Action]struct {
	fn     string
	target Status
	role   authz.Role
}{
	ActionApprove: {walletabi.FnApproveTransfer, StatusApproved, authz.RoleHuman},
	ActionReject:  {walletabi.FnRejectTransfer, StatusRejected, authz.RoleHuman},
	ActionExecute: {walletabi.FnExecuteTransfer, StatusExecuted, authz.RoleAgent},
}

// Broadcaster fans proposal events out to live subscribers.
type Broadcaster interface {
	Broadcast(e *realtime.Event)
}

// ProposeRequest is a validated transfer proposal.
type ProposeRequest struct {
	WalletAddress string
	To            common.Address
	Token         common.Address
	Amount        *big.Int
	Context       map[string]interface{}
}

// ProposeResult is either a submitted transaction or a prepared call.
type ProposeResult struct {
	Mode            Mode              `json:"mode"`
	ProposalID      string            `json:"proposalId,omitempty"`
	TxHash          string            `json:"txHash,omitempty"`
	ContractAddress string            `json:"contractAddress,omitempty"`
	Calldata        string            `json:"calldata,omitempty"`
	FunctionName    string            `json:"functionName,omitempty"`
	Args            map[string]string `json:"args,omitempty"`
	ContextHash     string            `json:"contextHash"`
	NeedsApproval   bool              `json:"needsApproval"`
}

// ActionResult describes an approve, reject or execute call.
type ActionResult struct {
	Mode            Mode              `json:"mode"`
	ProposalID      string            `json:"proposalId"`
	CurrentStatus   Status            `json:"currentStatus"`
	TxHash          string            `json:"txHash,omitempty"`
	ContractAddress string            `json:"contractAddress,omitempty"`
	Calldata        string            `json:"calldata,omitempty"`
	FunctionName    string            `json:"functionName,omitempty"`
	Args            map[string]string `json:"args,omitempty"`
}

// Service builds, submits and prepares wallet proposal calls.
type Service struct {
	agents         *agents.Service
	policy         *policy.Reader
	contract       Contract
	authz          *authz.Authorizer
	signer         Signer
	recorder       agents.EventRecorder
	hub            Broadcaster
	confirmTimeout time.Duration
	// walletLocks serializes server-signed transactions per wallet so a
	// policy check and its submission see the same daily spend.
	walletLocks *syncutil.KeyLock
}

// NewService creates a proposal service in prepared mode.
func NewService(agentSvc *agents.Service, reader *policy.Reader, contract Contract, authorizer *authz.Authorizer) *Service {
	return &Service{
		agents:         agentSvc,
		policy:         reader,
		contract:       contract,
		authz:          authorizer,
		confirmTimeout: DefaultConfirmTimeout,
		walletLocks:    syncutil.NewKeyLock(),
	}
}

// WithSigner switches proposals and executions to submitted mode.
func (s *Service) WithSigner(signer Signer) *Service {
	s.signer = signer
	return s
}

// WithRecorder sets where proposal events are recorded.
func (s *Service) WithRecorder(r agents.EventRecorder) *Service {
	s.recorder = r
	return s
}

// WithBroadcaster streams proposal events to hub.
func (s *Service) WithBroadcaster(hub Broadcaster) *Service {
	s.hub = hub
	return s
}

// WithConfirmTimeout overrides how long a submitted transaction is awaited.
func (s *Service) WithConfirmTimeout(d time.Duration) *Service {
	if d > 0 {
		s.confirmTimeout = d
	}
	return s
}

// Mode reports how new proposals reach the chain.
func (s *Service) Mode() Mode {
	if s.signer != nil {
		return ModeSubmitted
	}
	return ModePrepared
}

// Propose checks a transfer against the wallet policy and either submits
// proposeTransfer with the server key or returns the call for the agent to sign.
func (s *Service) Propose(ctx context.Context, signer string, req ProposeRequest) (*ProposeResult, error) {
	agent, w, err := s.agents.RequireLinkedWallet(ctx, signer, req.WalletAddress)
	if err != nil {
		return nil, err
	}
	wallet := common.HexToAddress(w.WalletAddress)

	ctx, span := traces.StartSpan(ctx, "proposal.Propose",
		traces.WalletAddr(wallet.Hex()), traces.Amount(req.Amount.String()), traces.Mode(string(s.Mode())))
	defer span.End()

	hash, err := ContextHash(req.Context)
	if err != nil {
		return nil, fmt.Errorf("hash context: %w", err)
	}

	if s.signer != nil {
		unlock, err := s.walletLocks.Lock(ctx, wallet.Hex())
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	check, err := s.policy.Check(ctx, wallet, req.To, req.Amount, req.Token)
	if err != nil {
		return nil, err
	}

	calldata, err := walletabi.PackPropose(req.To, req.Amount, req.Token, hash)
	if err != nil {
		return nil, fmt.Errorf("pack proposeTransfer: %w", err)
	}

	res := &ProposeResult{
		Mode:          s.Mode(),
		ContextHash:   hash.Hex(),
		NeedsApproval: check.NeedsApproval,
	}
	if s.signer == nil {
		res.ContractAddress = wallet.Hex()
		res.Calldata = hexutil.Encode(calldata)
		res.FunctionName = walletabi.FnProposeTransfer
		res.Args = map[string]string{
			"to":          req.To.Hex(),
			"amount":      req.Amount.String(),
			"token":       req.Token.Hex(),
			"contextHash": hash.Hex(),
		}
	} else {
		txHash, receipt, err := s.submit(ctx, wallet, calldata)
		if err != nil {
			return nil, err
		}
		id, err := s.proposalIDFromReceipt(ctx, wallet, receipt)
		if err != nil {
			return nil, err
		}
		res.ProposalID = id.String()
		res.TxHash = txHash.Hex()
		span.SetAttributes(traces.ProposalID(res.ProposalID))
	}
	proposalsTotal.WithLabelValues(string(res.Mode)).Inc()

	eventType := audit.TypeTransferPrepared
	if res.Mode == ModeSubmitted {
		eventType = audit.TypeTransferProposed
	}
	s.publish(ctx, agent.ID, eventType, map[string]interface{}{
		"wallet_address": wallet.Hex(),
		"to":             req.To.Hex(),
		"token":          req.Token.Hex(),
		"amount":         req.Amount.String(),
		"context_hash":   res.ContextHash,
		"needs_approval": res.NeedsApproval,
		"proposal_id":    res.ProposalID,
		"tx_hash":        res.TxHash,
	}, res)

	return res, nil
}

// Get reads a proposal. The signer must either own an agent linked to the
// wallet or hold one of the wallet's roles.
func (s *Service) Get(ctx context.Context, signer, walletAddr string, id *big.Int) (*Transfer, error) {
	wallet, err := s.authorizeRead(ctx, signer, walletAddr)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, wallet, id)
}

// Act prepares or submits approve, reject or execute for proposal id.
// Approve and reject are always prepared for the wallet's human to sign;
// the server never signs for the human. Execute is submitted when a server
// key is configured.
func (s *Service) Act(ctx context.Context, signer, walletAddr string, id *big.Int, action Action) (*ActionResult, error) {
	def, ok := actions[action]
	if !ok {
		return nil, fmt.Errorf("proposal: unknown action %q", action)
	}
	if !common.IsHexAddress(walletAddr) || !common.IsHexAddress(signer) {
		return nil, agents.ErrInvalidAddress
	}
	wallet := common.HexToAddress(walletAddr)
	signerAddr := common.HexToAddress(signer)

	ctx, span := traces.StartSpan(ctx, "proposal.Act",
		traces.WalletAddr(wallet.Hex()), traces.ProposalID(id.String()))
	defer span.End()

	submit := action == ActionExecute && s.signer != nil
	var agentID string
	if action == ActionExecute {
		agent, _, err := s.agents.RequireLinkedWallet(ctx, signer, walletAddr)
		if err != nil {
			return nil, err
		}
		agentID = agent.ID
		// The server key holds the agent role in submitted mode.
		if !submit {
			if err := s.requireRole(ctx, signerAddr, wallet, def.role); err != nil {
				return nil, err
			}
		}
	} else if err := s.requireRole(ctx, signerAddr, wallet, def.role); err != nil {
		return nil, err
	}

	if submit {
		unlock, err := s.walletLocks.Lock(ctx, wallet.Hex())
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	p, err := s.load(ctx, wallet, id)
	if err != nil {
		return nil, err
	}
	if err := Transition(p.Status, def.target); err != nil {
		return nil, err
	}

	calldata, err := walletabi.PackProposalCall(def.fn, id)
	if err != nil {
		return nil, err
	}
	res := &ActionResult{
		Mode:          ModePrepared,
		ProposalID:    id.String(),
		CurrentStatus: p.Status,
	}
	if submit {
		txHash, _, err := s.submit(ctx, wallet, calldata)
		if err != nil {
			return nil, err
		}
		res.Mode = ModeSubmitted
		res.TxHash = txHash.Hex()
	} else {
		res.ContractAddress = wallet.Hex()
		res.Calldata = hexutil.Encode(calldata)
		res.FunctionName = def.fn
		res.Args = map[string]string{"proposalId": id.String()}
	}
	actionsTotal.WithLabelValues(string(action), string(res.Mode)).Inc()

	if agentID != "" {
		eventType := audit.TypeTransferPrepared
		if submit {
			eventType = audit.TypeTransferExecuted
		}
		s.publish(ctx, agentID, eventType, map[string]interface{}{
			"wallet_address": wallet.Hex(),
			"proposal_id":    res.ProposalID,
			"function":       def.fn,
			"tx_hash":        res.TxHash,
		}, res)
	}
	return res, nil
}

func (s *Service) authorizeRead(ctx context.Context, signer, walletAddr string) (common.Address, error) {
	_, w, err := s.agents.RequireLinkedWallet(ctx, signer, walletAddr)
	if err == nil {
		return common.HexToAddress(w.WalletAddress), nil
	}
	if !errors.Is(err, agents.ErrAgentNotFound) && !errors.Is(err, agents.ErrWalletNotLinked) {
		return common.Address{}, err
	}
	if !common.IsHexAddress(walletAddr) || !common.IsHexAddress(signer) {
		return common.Address{}, err
	}
	wallet := common.HexToAddress(walletAddr)
	role, roleErr := s.authz.RoleOf(ctx, common.HexToAddress(signer), wallet)
	if roleErr != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrChain, roleErr)
	}
	if role == "" {
		return common.Address{}, err
	}
	return wallet, nil
}

func (s *Service) requireRole(ctx context.Context, signer, wallet common.Address, role authz.Role) error {
	err := s.authz.RequireRole(ctx, signer, wallet, role)
	if err != nil && !errors.Is(err, authz.ErrForbidden) {
		return fmt.Errorf("%w: %w", ErrChain, err)
	}
	return err
}

// load reads proposal id. IDs start at 1; anything above the counter does
// not exist yet.
func (s *Service) load(ctx context.Context, wallet common.Address, id *big.Int) (*Transfer, error) {
	if id == nil || id.Sign() <= 0 {
		return nil, ErrNotFound
	}
	counter, err := s.contract.ProposalCounter(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChain, err)
	}
	if id.Cmp(counter) > 0 {
		return nil, ErrNotFound
	}
	p, err := s.contract.Proposal(ctx, wallet, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChain, err)
	}
	return p, nil
}

// submit sends calldata to wallet with the server key and waits for it to be
// mined. A reverted receipt is returned as *RevertError.
func (s *Service) submit(ctx context.Context, wallet common.Address, calldata []byte) (common.Hash, *types.Receipt, error) {
	txHash, err := s.signer.Transact(ctx, wallet, calldata)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("%w: %w", ErrChain, err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	receipt, err := s.signer.WaitMined(waitCtx, txHash)
	if err != nil {
		return txHash, nil, fmt.Errorf("%w: %w", ErrChain, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, receipt, &RevertError{TxHash: txHash}
	}
	// Spend may have moved; the next check must not reuse a stale policy.
	s.policy.Invalidate(wallet)
	return txHash, receipt, nil
}

// proposalIDFromReceipt takes the ID from the TransferProposed log and falls
// back to the wallet's counter.
func (s *Service) proposalIDFromReceipt(ctx context.Context, wallet common.Address, receipt *types.Receipt) (*big.Int, error) {
	for _, l := range receipt.Logs {
		if l.Address != wallet {
			continue
		}
		if id, ok := walletabi.ProposalIDFromLogTopics(l.Topics); ok {
			return id, nil
		}
	}
	counter, err := s.contract.ProposalCounter(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChain, err)
	}
	if counter.Sign() == 0 {
		return nil, ErrNoProposalID
	}
	return counter, nil
}

// publish records an audit entry and streams a proposal event. Both are best
// effort; the chain already holds the outcome.
func (s *Service) publish(ctx context.Context, agentID, eventType string, payload map[string]interface{}, data interface{}) {
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, agentID, eventType, compact(payload)); err != nil {
			logging.L(ctx).Warn("failed to record proposal event", "type", eventType, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(&realtime.Event{
			Type:      realtime.EventProposal,
			AgentID:   agentID,
			Timestamp: time.Now().UTC(),
			Data:      data,
		})
	}
}

// compact drops empty string values.
func compact(m map[string]interface{}) map[string]interface{} {
	for k, v := range m {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			delete(m, k)
		}
	}
	return m
}
