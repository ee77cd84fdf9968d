package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agentos/agentos/internal/policy"
	"github.com/agentos/agentos/internal/proposal"
	"github.com/agentos/agentos/internal/walletabi"
)

// ErrUnknownTx is returned by WaitMined for a hash the simulator never saw.
var ErrUnknownTx = errors.New("chain: unknown transaction")

var (
	_ Backend         = (*Simulator)(nil)
	_ proposal.Signer = (*Simulator)(nil)
)

// SimWallet is one simulated wallet contract.
type SimWallet struct {
	Agent     common.Address
	Human     common.Address
	Policy    policy.Policy
	proposals []*proposal.Transfer
	spent     map[uint64]*big.Int
}

// Simulator is an in-memory stand-in for the wallet contract, used when no
// RPC endpoint is available. It applies the same rules the contract does:
// policy checks on propose, role checks on every call, and the proposal
// lifecycle. Unknown wallets are provisioned from the template on first use.
type Simulator struct {
	mu       sync.Mutex
	wallets  map[common.Address]*SimWallet
	receipts map[common.Hash]*types.Receipt
	template SimWallet
	signer   common.Address
	nonce    uint64
	block    uint64
	now      func() time.Time
}

// NewSimulator creates a simulator that signs as signer. template seeds
// wallets the simulator has not seen before.
func NewSimulator(signer common.Address, template SimWallet) *Simulator {
	return &Simulator{
		wallets:  make(map[common.Address]*SimWallet),
		receipts: make(map[common.Hash]*types.Receipt),
		template: template,
		signer:   signer,
		now:      time.Now,
	}
}

// WithClock overrides the time source for day buckets and proposedAt.
func (s *Simulator) WithClock(now func() time.Time) *Simulator {
	s.now = now
	return s
}

// Deploy installs a wallet, replacing any existing one.
func (s *Simulator) Deploy(addr common.Address, w SimWallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.proposals = nil
	w.spent = make(map[uint64]*big.Int)
	s.wallets[addr] = &w
}

// wallet returns addr's state, provisioning it from the template. Caller holds mu.
func (s *Simulator) wallet(addr common.Address) *SimWallet {
	w, ok := s.wallets[addr]
	if !ok {
		copied := s.template
		copied.Policy.AllowedTargets = append([]common.Address(nil), s.template.Policy.AllowedTargets...)
		copied.Policy.AllowedTokens = append([]common.Address(nil), s.template.Policy.AllowedTokens...)
		copied.proposals = nil
		copied.spent = make(map[uint64]*big.Int)
		w = &copied
		s.wallets[addr] = w
	}
	return w
}

// ReadPolicy implements policy.Source.
func (s *Simulator) ReadPolicy(_ context.Context, addr common.Address) (*policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.wallet(addr).Policy
	p.AllowedTargets = append([]common.Address(nil), p.AllowedTargets...)
	p.AllowedTokens = append([]common.Address(nil), p.AllowedTokens...)
	return &p, nil
}

// DailySpent implements policy.Source.
func (s *Simulator) DailySpent(_ context.Context, addr common.Address, day uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.wallet(addr).spent[day]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// ProposalCounter implements proposal.Contract.
func (s *Simulator) ProposalCounter(_ context.Context, addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return big.NewInt(int64(len(s.wallet(addr).proposals))), nil
}

// Proposal implements proposal.Contract.
func (s *Simulator) Proposal(_ context.Context, addr common.Address, id *big.Int) (*proposal.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.wallet(addr).proposal(id)
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

// Roles implements authz.RoleReader.
func (s *Simulator) Roles(_ context.Context, addr common.Address) (common.Address, common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.wallet(addr)
	return w.Agent, w.Human, nil
}

// Address returns the address the simulator signs as.
func (s *Simulator) Address() common.Address {
	return s.signer
}

// Transact implements proposal.Signer, sending as the simulator's signer.
func (s *Simulator) Transact(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error) {
	return s.TransactAs(ctx, s.signer, to, calldata)
}

// TransactAs applies calldata to wallet to as if from had sent it. A call the
// contract would reject is mined with a failed receipt.
func (s *Simulator) TransactAs(_ context.Context, from, to common.Address, calldata []byte) (common.Hash, error) {
	method, args, err := walletabi.Decode(calldata)
	if err != nil {
		return common.Hash{}, &TxError{Op: "send", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonce++
	s.block++
	hash := crypto.Keccak256Hash(from.Bytes(), new(big.Int).SetUint64(s.nonce).Bytes(), calldata)
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(s.block),
	}

	logs, err := s.apply(from, to, method.Name, args)
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		for _, l := range logs {
			l.TxHash = hash
			l.BlockNumber = s.block
		}
		receipt.Logs = logs
	}
	s.receipts[hash] = receipt
	return hash, nil
}

// WaitMined returns the receipt immediately; simulated transactions mine
// as they are sent.
func (s *Simulator) WaitMined(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[hash]
	if !ok {
		return nil, &TxError{Op: "confirm", TxHash: hash.Hex(), Err: ErrUnknownTx}
	}
	return r, nil
}

// Ping always succeeds.
func (s *Simulator) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Simulator) Close() error { return nil }

// apply runs one contract call. Caller holds mu.
func (s *Simulator) apply(from, addr common.Address, fn string, args []interface{}) ([]*types.Log, error) {
	w := s.wallet(addr)
	switch fn {
	case walletabi.FnProposeTransfer:
		if from != w.Agent {
			return nil, errors.New("only agent")
		}
		to := args[0].(common.Address)
		amount := args[1].(*big.Int)
		token := args[2].(common.Address)
		ctxHash := common.Hash(args[3].([32]byte))

		day := policy.DayBucket(s.now())
		decision, err := policy.Evaluate(&w.Policy, w.spentOn(day), to, amount, token)
		if err != nil {
			return nil, err
		}
		id := big.NewInt(int64(len(w.proposals) + 1))
		p := &proposal.Transfer{
			ID:          id,
			To:          to,
			Amount:      new(big.Int).Set(amount),
			Token:       token,
			ContextHash: ctxHash,
			ProposedAt:  big.NewInt(s.now().Unix()),
			Status:      proposal.StatusPending,
		}
		// Inside the auto-approval bounds the contract approves on creation.
		if !decision.NeedsApproval {
			p.Status = proposal.StatusApproved
		}
		w.proposals = append(w.proposals, p)

		data, err := walletabi.ABI.Events[walletabi.EvTransferProposed].Inputs.NonIndexed().Pack(amount, token, [32]byte(ctxHash))
		if err != nil {
			return nil, err
		}
		return []*types.Log{{
			Address: addr,
			Topics: []common.Hash{
				walletabi.TransferProposedTopic,
				common.BigToHash(id),
				common.BytesToHash(to.Bytes()),
			},
			Data: data,
		}}, nil

	case walletabi.FnApproveTransfer, walletabi.FnRejectTransfer:
		if from != w.Human {
			return nil, errors.New("only human")
		}
		p, err := w.proposal(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		target := proposal.StatusApproved
		if fn == walletabi.FnRejectTransfer {
			target = proposal.StatusRejected
		}
		if err := proposal.Transition(p.Status, target); err != nil {
			return nil, err
		}
		p.Status = target
		return nil, nil

	case walletabi.FnExecuteTransfer:
		if from != w.Agent {
			return nil, errors.New("only agent")
		}
		p, err := w.proposal(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if err := proposal.Transition(p.Status, proposal.StatusExecuted); err != nil {
			return nil, err
		}
		day := policy.DayBucket(s.now())
		if w.Policy.UsesDailyCap() {
			total := new(big.Int).Add(w.spentOn(day), p.Amount)
			if total.Cmp(w.Policy.DailyCap) > 0 {
				return nil, &policy.Violation{Reason: policy.ReasonExceedsDailyCap}
			}
		}
		w.spent[day] = new(big.Int).Add(w.spentOn(day), p.Amount)
		p.Status = proposal.StatusExecuted
		return nil, nil
	}
	return nil, fmt.Errorf("simulator: %s is not a transaction", fn)
}

func (w *SimWallet) spentOn(day uint64) *big.Int {
	if v, ok := w.spent[day]; ok {
		return v
	}
	return new(big.Int)
}

func (w *SimWallet) proposal(id *big.Int) (*proposal.Transfer, error) {
	if id == nil || id.Sign() <= 0 || id.Cmp(big.NewInt(int64(len(w.proposals)))) > 0 {
		return nil, proposal.ErrNotFound
	}
	return w.proposals[id.Int64()-1], nil
}
