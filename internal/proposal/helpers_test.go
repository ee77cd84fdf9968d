package proposal

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/authz"
	"github.com/agentos/agentos/internal/policy"
	"github.com/agentos/agentos/internal/realtime"
	"github.com/agentos/agentos/internal/walletabi"
)

const (
	signer    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	humanAddr = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	stranger  = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
)

var (
	wallet    = common.HexToAddress("0x5FC8d32690cc91D4c39d9d3abcBD16989F875707")
	token     = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	recipient = common.HexToAddress("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65")
	serverKey = common.HexToAddress("0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc")
)

// fakeWallet plays the wallet contract for every interface the service uses.
type fakeWallet struct {
	mu        sync.Mutex
	policy    *policy.Policy
	proposals []*Transfer
	agent     common.Address
	human     common.Address
	receipts  map[common.Hash]*types.Receipt
	revert    bool
	noLogs    bool
	readErr   error
	sent      [][]byte
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		policy: &policy.Policy{
			MaxAmount:         big.NewInt(1000),
			DailyCap:          big.NewInt(0),
			ApprovalThreshold: big.NewInt(500),
			AllowedTokens:     []common.Address{token},
		},
		agent:    common.HexToAddress(signer),
		human:    common.HexToAddress(humanAddr),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeWallet) ReadPolicy(context.Context, common.Address) (*policy.Policy, error) {
	return f.policy, f.readErr
}

func (f *fakeWallet) DailySpent(context.Context, common.Address, uint64) (*big.Int, error) {
	return big.NewInt(0), f.readErr
}

func (f *fakeWallet) Roles(context.Context, common.Address) (common.Address, common.Address, error) {
	return f.agent, f.human, f.readErr
}

func (f *fakeWallet) ProposalCounter(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return big.NewInt(int64(len(f.proposals))), nil
}

func (f *fakeWallet) Proposal(_ context.Context, _ common.Address, id *big.Int) (*Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := *f.proposals[id.Int64()-1]
	return &p, nil
}

// add stores a proposal directly and returns its ID.
func (f *fakeWallet) add(status Status) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := big.NewInt(int64(len(f.proposals) + 1))
	f.proposals = append(f.proposals, &Transfer{
		ID: id, To: recipient, Amount: big.NewInt(100), Token: token,
		ProposedAt: big.NewInt(time.Now().Unix()), Status: status,
	})
	return id
}

func (f *fakeWallet) Address() common.Address { return serverKey }

func (f *fakeWallet) Transact(_ context.Context, to common.Address, calldata []byte) (common.Hash, error) {
	method, args, err := walletabi.Decode(calldata)
	if err != nil {
		return common.Hash{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, calldata)
	hash := crypto.Keccak256Hash(calldata, big.NewInt(int64(len(f.sent))).Bytes())
	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}
	if f.revert {
		receipt.Status = types.ReceiptStatusFailed
		f.receipts[hash] = receipt
		return hash, nil
	}

	switch method.Name {
	case walletabi.FnProposeTransfer:
		id := big.NewInt(int64(len(f.proposals) + 1))
		f.proposals = append(f.proposals, &Transfer{
			ID: id, To: args[0].(common.Address), Amount: args[1].(*big.Int),
			Token: args[2].(common.Address), ContextHash: common.Hash(args[3].([32]byte)),
			Status: StatusPending,
		})
		if !f.noLogs {
			receipt.Logs = []*types.Log{{
				Address: to,
				Topics:  []common.Hash{walletabi.TransferProposedTopic, common.BigToHash(id)},
			}}
		}
	case walletabi.FnExecuteTransfer:
		f.proposals[args[0].(*big.Int).Int64()-1].Status = StatusExecuted
	}
	f.receipts[hash] = receipt
	return hash, nil
}

func (f *fakeWallet) WaitMined(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, errors.New("unknown tx")
	}
	return r, nil
}

type recorder struct {
	mu       sync.Mutex
	types    []string
	payloads []map[string]interface{}
}

func (r *recorder) Record(_ context.Context, _, eventType string, payload map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	r.payloads = append(r.payloads, payload)
	return nil
}

type hub struct {
	mu     sync.Mutex
	events []*realtime.Event
}

func (h *hub) Broadcast(e *realtime.Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

type fixture struct {
	svc    *Service
	chain  *fakeWallet
	rec    *recorder
	hub    *hub
	agent  *agents.Agent
	agents *agents.Service
}

func newFixture(t *testing.T, submitted bool) *fixture {
	t.Helper()
	ctx := context.Background()
	agentSvc := agents.NewService(agents.NewMemoryStore())
	agent, err := agentSvc.Create(ctx, "Lexa", signer)
	require.NoError(t, err)
	_, err = agentSvc.LinkWallet(ctx, agent.ID, wallet.Hex(), 31337, "")
	require.NoError(t, err)

	chain := newFakeWallet()
	reader := policy.NewReader(chain).WithRetry(1, time.Millisecond)
	rec := &recorder{}
	h := &hub{}
	svc := NewService(agentSvc, reader, chain, authz.New(chain)).
		WithRecorder(rec).
		WithBroadcaster(h).
		WithConfirmTimeout(time.Second)
	if submitted {
		svc.WithSigner(chain)
	}
	return &fixture{svc: svc, chain: chain, rec: rec, hub: h, agent: agent, agents: agentSvc}
}
