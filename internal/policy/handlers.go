package policy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/agentauth"
	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/amount"
	"github.com/agentos/agentos/internal/envelope"
	"github.com/agentos/agentos/internal/logging"
	"github.com/agentos/agentos/internal/validation"
)

// Handler exposes the advisory policy view to agents.
type Handler struct {
	reader *Reader
	agents *agents.Service
}

// NewHandler creates a policy handler.
func NewHandler(reader *Reader, agentSvc *agents.Service) *Handler {
	return &Handler{reader: reader, agents: agentSvc}
}

// RegisterRoutes sets up policy routes under the signed /api/agent group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/policy", h.GetPolicy)
	r.POST("/policy/simulate", h.Simulate)
}

// GetPolicy handles GET /api/agent/policy?wallet_address=
func (h *Handler) GetPolicy(c *gin.Context) {
	walletAddr := strings.TrimSpace(c.Query("wallet_address"))
	if !validation.IsAddress(walletAddr) {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "wallet_address (0x...) required")
		return
	}
	ctx := c.Request.Context()
	if _, _, err := h.agents.RequireLinkedWallet(ctx, agentauth.AddressFrom(c), walletAddr); err != nil {
		agents.WriteError(c, err)
		return
	}

	wallet := common.HexToAddress(walletAddr)
	p, err := h.reader.Policy(ctx, wallet)
	if err != nil {
		writeReadError(c, err)
		return
	}
	day := DayBucket(h.reader.now())
	spent := "0"
	if p.UsesDailyCap() {
		d, s, err := h.reader.DailySpent(ctx, wallet)
		if err != nil {
			writeReadError(c, err)
			return
		}
		day, spent = d, s.String()
	}

	envelope.OK(c, gin.H{
		"walletAddress": wallet.Hex(),
		"policy":        p,
		"day":           day,
		"spentToday":    spent,
	})
}

type simulateRequest struct {
	WalletAddress string `json:"wallet_address"`
	To            string `json:"to"`
	Amount        string `json:"amount"`
	Token         string `json:"token"`
}

// Simulate handles POST /api/agent/policy/simulate. Violations are part of
// the answer, not an error.
func (h *Handler) Simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid JSON body")
		return
	}
	if errs := validation.Check(
		validation.Required("wallet_address", req.WalletAddress),
		validation.Required("to", req.To),
		validation.Required("token", req.Token),
		validation.Required("amount", req.Amount),
		validation.Address("wallet_address", req.WalletAddress),
		validation.Address("to", req.To),
		validation.Address("token", req.Token),
		validation.Uint256("amount", req.Amount),
	); len(errs) > 0 {
		envelope.FailDetails(c, http.StatusBadRequest, envelope.CodeValidation, "wallet_address, to, token (0x...) and amount (uint256 string) required", errs)
		return
	}

	ctx := c.Request.Context()
	if _, _, err := h.agents.RequireLinkedWallet(ctx, agentauth.AddressFrom(c), req.WalletAddress); err != nil {
		agents.WriteError(c, err)
		return
	}

	amt, _ := amount.ParseUint256(req.Amount)
	res, err := h.reader.Check(ctx, common.HexToAddress(req.WalletAddress), common.HexToAddress(req.To), amt, common.HexToAddress(req.Token))
	var v *Violation
	switch {
	case errors.As(err, &v):
		envelope.OK(c, gin.H{"allowed": false, "needsApproval": false, "reason": string(v.Reason)})
	case err != nil:
		writeReadError(c, err)
	default:
		envelope.OK(c, gin.H{"allowed": true, "needsApproval": res.NeedsApproval, "day": res.Day, "spentToday": res.SpentToday.String()})
	}
}

// WriteViolation renders a policy rejection as POLICY_VIOLATION.
func WriteViolation(c *gin.Context, v *Violation) {
	envelope.FailDetails(c, http.StatusBadRequest, envelope.CodePolicyViolation, string(v.Reason),
		gin.H{"reason": string(v.Reason)})
}

func writeReadError(c *gin.Context, err error) {
	logging.L(c.Request.Context()).Error("policy read failed", "error", err)
	if errors.Is(err, ErrSourceUnavailable) {
		envelope.Fail(c, http.StatusServiceUnavailable, envelope.CodeChain, "chain temporarily unavailable")
		return
	}
	envelope.Internal(c, envelope.CodeChain)
}
