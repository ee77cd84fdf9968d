package agentclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentos/agentos/internal/agentauth"
	env "github.com/agentos/agentos/internal/envelope"
	"github.com/agentos/agentos/internal/policy"
)

const (
	wallet = "0x1111111111111111111111111111111111111111"
	token  = "0x2222222222222222222222222222222222222222"
	payee  = "0x3333333333333333333333333333333333333333"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeServer verifies signatures exactly as the real server does and serves
// canned envelopes.
func fakeServer(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	seen := &recorder{}

	r := gin.New()
	api := r.Group(BasePath)
	api.GET("/health", func(c *gin.Context) {
		env.OK(c, gin.H{"name": "agentos", "version": "test", "serverSignerEnabled": true})
	})

	auth := agentauth.New(agentauth.NewReplayGuard(agentauth.NewMemoryStore(), "memory", nil))
	signed := api.Group("", agentauth.Middleware(auth), func(c *gin.Context) {
		seen.add(c.Request.Method + " " + c.Request.URL.Path)
		c.Next()
	})
	signed.GET("/me", func(c *gin.Context) {
		env.OK(c, gin.H{
			"agent":   gin.H{"id": "agent-1", "name": "bot", "owner_address": c.GetString(agentauth.ContextKeyAddress)},
			"wallets": []gin.H{{"id": "w1", "wallet_address": wallet, "chain_id": 31337, "label": "main"}},
		})
	})
	signed.POST("/audit", func(c *gin.Context) {
		env.Created(c, gin.H{"id": "evt-1"})
	})
	signed.POST("/transfers/propose", func(c *gin.Context) {
		env.OK(c, gin.H{"mode": "submitted", "proposalId": "7", "txHash": "0xabc", "contextHash": "0xdef", "needsApproval": true})
	})
	signed.GET("/transfers/:id", func(c *gin.Context) {
		if c.Query("wallet_address") != wallet {
			env.Fail(c, http.StatusBadRequest, env.CodeValidation, "wallet_address required")
			return
		}
		env.OK(c, gin.H{"id": c.Param("id"), "to": payee, "amount": "5", "token": token, "status": "pending"})
	})
	signed.POST("/transfers/:id/approve", func(c *gin.Context) {
		env.OK(c, gin.H{"mode": "prepared", "proposalId": c.Param("id"), "currentStatus": "pending", "functionName": "approveTransfer"})
	})
	signed.POST("/transfers/:id/execute", func(c *gin.Context) {
		env.Fail(c, http.StatusConflict, env.CodeConflict, "proposal is not approved")
	})
	signed.GET("/policy", func(c *gin.Context) {
		env.OK(c, gin.H{
			"walletAddress": c.Query("wallet_address"),
			"policy": gin.H{
				"maxAmount": "100", "dailyCap": "150", "requiresApproval": false, "approvalThreshold": "50",
				"allowedTargets": []string{}, "allowedTokens": []string{token},
			},
			"day":        19000,
			"spentToday": "60",
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, seen
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	key, err := ParseKey(testKeyHex)
	require.NoError(t, err)
	return New(baseURL+"/", key)
}

func TestAPIPath(t *testing.T) {
	assert.Equal(t, "/api/agent/me", APIPath("me"))
	assert.Equal(t, "/api/agent/me", APIPath("/me"))
	assert.Equal(t, "/api/agent/me", APIPath("/api/agent/me"))
	assert.Equal(t, "/api/agent", APIPath("/api/agent"))
	assert.Equal(t, "/api/agent/api/agentx", APIPath("/api/agentx"))
}

func TestHealthIsUnsigned(t *testing.T) {
	srv, seen := fakeServer(t)
	c := newClient(t, srv.URL)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "agentos", h.Name)
	assert.True(t, h.ServerSignerEnabled)
	assert.Empty(t, seen.all())
}

func TestSignedCalls(t *testing.T) {
	srv, seen := fakeServer(t)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	me, err := c.GetMe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", me.Agent.ID)
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", me.Agent.OwnerAddress)
	require.Len(t, me.Wallets, 1)
	assert.Equal(t, int64(31337), me.Wallets[0].ChainID)

	id, err := c.PostAudit(ctx, AuditEvent{EventType: "ping", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)

	res, err := c.ProposeTransfer(ctx, TransferRequest{WalletAddress: wallet, To: payee, Token: token, Amount: "5"})
	require.NoError(t, err)
	assert.Equal(t, ModeSubmitted, res.Mode)
	assert.Equal(t, "7", res.ProposalID)
	assert.True(t, res.NeedsApproval)

	tr, err := c.GetTransfer(ctx, wallet, "7")
	require.NoError(t, err)
	assert.Equal(t, "pending", tr.Status)

	act, err := c.ApproveTransfer(ctx, wallet, "7")
	require.NoError(t, err)
	assert.Equal(t, ModePrepared, act.Mode)
	assert.Equal(t, "approveTransfer", act.FunctionName)

	assert.Equal(t, []string{
		"GET /api/agent/me",
		"POST /api/agent/audit",
		"POST /api/agent/transfers/propose",
		"GET /api/agent/transfers/7",
		"POST /api/agent/transfers/7/approve",
	}, seen.all())
}

func TestErrorEnvelope(t *testing.T) {
	srv, _ := fakeServer(t)
	c := newClient(t, srv.URL)

	_, err := c.ExecuteTransfer(context.Background(), wallet, "7")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, env.CodeConflict, apiErr.Code)
	assert.Equal(t, "proposal is not approved", apiErr.Message)
}

func TestStaleClockRejected(t *testing.T) {
	srv, _ := fakeServer(t)
	key, err := ParseKey(testKeyHex)
	require.NoError(t, err)
	c := New(srv.URL, key, WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))

	_, err = c.GetMe(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "timestamp_out_of_window", apiErr.Message)
}

func TestNonEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).GetMe(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "HTTP_ERROR", apiErr.Code)
}

func TestPrecheck(t *testing.T) {
	srv, _ := fakeServer(t)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	d, err := c.Precheck(ctx, TransferRequest{WalletAddress: wallet, To: payee, Token: token, Amount: "60"})
	require.NoError(t, err)
	assert.True(t, d.NeedsApproval)

	d, err = c.Precheck(ctx, TransferRequest{WalletAddress: wallet, To: payee, Token: token, Amount: "10"})
	require.NoError(t, err)
	assert.False(t, d.NeedsApproval)

	_, err = c.Precheck(ctx, TransferRequest{WalletAddress: wallet, To: payee, Token: token, Amount: "95"})
	var v *policy.Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, policy.ReasonExceedsDailyCap, v.Reason)

	_, err = c.Precheck(ctx, TransferRequest{WalletAddress: wallet, To: payee, Token: payee, Amount: "1"})
	require.True(t, errors.As(err, &v))
	assert.Equal(t, policy.ReasonTokenNotAllowed, v.Reason)

	_, err = c.Precheck(ctx, TransferRequest{WalletAddress: wallet, To: payee, Token: token, Amount: "abc"})
	assert.Error(t, err)
}
