//go:build integration

package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/testutil"
)

func TestPostgresStore_AppendAndList(t *testing.T) {
	db := testutil.PGTest(t)
	ctx := context.Background()

	agent, err := agents.NewService(agents.NewPostgresStore(db)).
		Create(ctx, "Lexa", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	require.NoError(t, err)

	l := NewLog(NewPostgresStore(db))
	_, err = l.Append(ctx, agent.ID, "TOOL_CALL", map[string]interface{}{"message": "a", "n": 1.5})
	require.NoError(t, err)
	_, err = l.Append(ctx, agent.ID, "DECISION", nil)
	require.NoError(t, err)

	events, err := l.List(ctx, agent.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "DECISION", events[0].Type, "newest first")
	assert.Nil(t, events[0].Payload)
	assert.Equal(t, "a", events[1].Payload["message"])
	assert.Equal(t, 1.5, events[1].Payload["n"])
}
