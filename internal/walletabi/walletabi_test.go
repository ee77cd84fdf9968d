package walletabi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackPropose_Selector(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	ctxHash := crypto.Keccak256Hash([]byte("{}"))

	data, err := PackPropose(to, big.NewInt(42), token, ctxHash)
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("proposeTransfer(address,uint256,address,bytes32)"))[:4]
	assert.Equal(t, selector, data[:4])
	assert.Len(t, data, 4+4*32)
}

func TestDecode_RoundTrip(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	ctxHash := common.HexToHash("0xabc")

	data, err := PackPropose(to, big.NewInt(7), token, ctxHash)
	require.NoError(t, err)

	method, args, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, FnProposeTransfer, method.Name)
	assert.Equal(t, to, args[0].(common.Address))
	assert.Equal(t, int64(7), args[1].(*big.Int).Int64())
	assert.Equal(t, token, args[2].(common.Address))
	assert.Equal(t, [32]byte(ctxHash), args[3].([32]byte))
}

func TestPackProposalCall(t *testing.T) {
	for _, fn := range []string{FnApproveTransfer, FnRejectTransfer, FnExecuteTransfer} {
		data, err := PackProposalCall(fn, big.NewInt(3))
		require.NoError(t, err, fn)
		selector := crypto.Keccak256([]byte(fn + "(uint256)"))[:4]
		assert.Equal(t, selector, data[:4], fn)
	}

	_, err := PackProposalCall(FnProposeTransfer, big.NewInt(1))
	assert.Error(t, err)
}

func TestProposalIDFromLogTopics(t *testing.T) {
	id, ok := ProposalIDFromLogTopics([]common.Hash{TransferProposedTopic, common.BigToHash(big.NewInt(9))})
	require.True(t, ok)
	assert.Equal(t, int64(9), id.Int64())

	_, ok = ProposalIDFromLogTopics([]common.Hash{common.HexToHash("0x01"), common.BigToHash(big.NewInt(9))})
	assert.False(t, ok)
	_, ok = ProposalIDFromLogTopics(nil)
	assert.False(t, ok)
}

func TestTransferProposedTopic(t *testing.T) {
	want := crypto.Keccak256Hash([]byte("TransferProposed(uint256,address,uint256,address,bytes32)"))
	assert.Equal(t, want, TransferProposedTopic)
}

func TestDecode_Short(t *testing.T) {
	_, _, err := Decode([]byte{1, 2})
	assert.Error(t, err)
}
