package proposal

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusApproved, StatusRejected, StatusExecuted}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusApproved}:  true,
		{StatusPending, StatusRejected}:  true,
		{StatusApproved, StatusExecuted}: true,
		{StatusApproved, StatusRejected}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestPendingCannotSkipApproval(t *testing.T) {
	assert.False(t, CanTransition(StatusPending, StatusExecuted))
}

func TestTerminalStates(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusExecuted.IsTerminal())
}

func TestTransition_Error(t *testing.T) {
	require.NoError(t, Transition(StatusPending, StatusApproved))

	err := Transition(StatusExecuted, StatusRejected)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusExecuted, te.From)
	assert.Equal(t, StatusRejected, te.To)
	assert.Equal(t, "proposal: cannot move from executed to rejected", err.Error())
}

func TestStatus_StringAndJSON(t *testing.T) {
	assert.Equal(t, "approved", StatusApproved.String())
	assert.Equal(t, "unknown(9)", Status(9).String())
	assert.False(t, Status(9).Valid())

	raw, err := json.Marshal(StatusPending)
	require.NoError(t, err)
	assert.Equal(t, `"pending"`, string(raw))
}
