// Package walletabi holds the AgentWallet contract ABI and the calldata
// encoders for the calls this service prepares or submits.
package walletabi

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract function names.
const (
	FnGetPolicy         = "getPolicy"
	FnGetAllowedTargets = "getAllowedTargets"
	FnGetAllowedTokens  = "getAllowedTokens"
	FnGetDailySpent     = "getDailySpent"
	FnProposalCounter   = "proposalCounter"
	FnGetProposal       = "getProposal"
	FnProposeTransfer   = "proposeTransfer"
	FnApproveTransfer   = "approveTransfer"
	FnRejectTransfer    = "rejectTransfer"
	FnExecuteTransfer   = "executeTransfer"
	FnAgent             = "agent"
	FnHuman             = "human"

	EvTransferProposed = "TransferProposed"
)

const agentWalletJSON = `[
	{"type":"function","name":"getPolicy","stateMutability":"view","inputs":[],"outputs":[
		{"name":"maxAmount","type":"uint256"},
		{"name":"dailyCap","type":"uint256"},
		{"name":"requiresApproval","type":"bool"},
		{"name":"approvalThreshold","type":"uint256"},
		{"name":"cooldownSeconds","type":"uint32"},
		{"name":"version","type":"uint32"}]},
	{"type":"function","name":"getAllowedTargets","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getAllowedTokens","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getDailySpent","stateMutability":"view","inputs":[{"name":"day","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"proposalCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getProposal","stateMutability":"view","inputs":[{"name":"proposalId","type":"uint256"}],"outputs":[
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"token","type":"address"},
		{"name":"contextHash","type":"bytes32"},
		{"name":"proposedAt","type":"uint256"},
		{"name":"status","type":"uint8"}]},
	{"type":"function","name":"proposeTransfer","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"token","type":"address"},
		{"name":"contextHash","type":"bytes32"}],"outputs":[{"name":"proposalId","type":"uint256"}]},
	{"type":"function","name":"approveTransfer","stateMutability":"nonpayable","inputs":[{"name":"proposalId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"rejectTransfer","stateMutability":"nonpayable","inputs":[{"name":"proposalId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"executeTransfer","stateMutability":"nonpayable","inputs":[{"name":"proposalId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"agent","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"human","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"TransferProposed","anonymous":false,"inputs":[
		{"name":"proposalId","type":"uint256","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"token","type":"address","indexed":false},
		{"name":"contextHash","type":"bytes32","indexed":false}]}
]`

// ABI is the parsed AgentWallet ABI.
var ABI = mustParse(agentWalletJSON)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("walletabi: parse: %v", err))
	}
	return parsed
}

// TransferProposedTopic is topic[0] of TransferProposed logs.
var TransferProposedTopic = ABI.Events[EvTransferProposed].ID

// PackPropose encodes proposeTransfer(to, amount, token, contextHash).
func PackPropose(to common.Address, amount *big.Int, token common.Address, contextHash common.Hash) ([]byte, error) {
	return ABI.Pack(FnProposeTransfer, to, amount, token, [32]byte(contextHash))
}

// PackProposalCall encodes one of the proposalId-only calls: approveTransfer,
// rejectTransfer or executeTransfer.
func PackProposalCall(fn string, proposalID *big.Int) ([]byte, error) {
	switch fn {
	case FnApproveTransfer, FnRejectTransfer, FnExecuteTransfer:
		return ABI.Pack(fn, proposalID)
	}
	return nil, fmt.Errorf("walletabi: %s is not a proposal call", fn)
}

// ProposalIDFromLogTopics extracts the proposal ID from a TransferProposed
// log's topics. ok is false for any other log.
func ProposalIDFromLogTopics(topics []common.Hash) (*big.Int, bool) {
	if len(topics) < 2 || topics[0] != TransferProposedTopic {
		return nil, false
	}
	return new(big.Int).SetBytes(topics[1].Bytes()), true
}

// Decode splits calldata into its method and arguments.
func Decode(calldata []byte) (*abi.Method, []interface{}, error) {
	if len(calldata) < 4 {
		return nil, nil, fmt.Errorf("walletabi: calldata too short")
	}
	method, err := ABI.MethodById(calldata[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("walletabi: unpack %s: %w", method.Name, err)
	}
	return method, args, nil
}
