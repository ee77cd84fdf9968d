package invoices

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/agentauth"
	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/envelope"
	"github.com/agentos/agentos/internal/idgen"
	"github.com/agentos/agentos/internal/validation"
)

// Handler provides HTTP endpoints for invoices.
type Handler struct {
	svc          *Service
	publicOrigin string
}

// NewHandler creates an invoice handler. publicOrigin, when set, overrides
// origin detection for pay URLs.
func NewHandler(svc *Service, publicOrigin string) *Handler {
	return &Handler{svc: svc, publicOrigin: publicOrigin}
}

// RegisterAgentRoutes sets up signed-request routes under /api/agent.
func (h *Handler) RegisterAgentRoutes(r *gin.RouterGroup) {
	r.POST("/invoices", h.Create)
}

// RegisterAdminRoutes sets up operator routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/invoices", h.List)
	r.GET("/invoices/:id", h.Get)
}

type createRequest struct {
	AgentID         string  `json:"agent_id"`
	ToWalletAddress string  `json:"to_wallet_address"`
	ChainID         *int64  `json:"chain_id"`
	TokenAddress    *string `json:"token_address"`
	Amount          string  `json:"amount"`
	Memo            string  `json:"memo"`
}

// Create handles POST /api/agent/invoices
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid JSON body")
		return
	}
	token := ""
	if req.TokenAddress != nil {
		token = *req.TokenAddress
	}
	errs := validation.Check(
		validation.UUID("agent_id", req.AgentID),
		validation.Required("to_wallet_address", req.ToWalletAddress),
		validation.Address("to_wallet_address", req.ToWalletAddress),
		validation.Address("token_address", token),
		validation.Required("amount", req.Amount),
		validation.Uint256("amount", req.Amount),
		validation.MaxLen("memo", req.Memo, validation.MaxTextLength),
		validation.Present("chain_id", req.ChainID != nil),
	)
	if len(errs) > 0 {
		envelope.FailDetails(c, http.StatusBadRequest, envelope.CodeValidation, "invalid body", errs)
		return
	}

	inv, err := h.svc.Create(c.Request.Context(), agentauth.AddressFrom(c), CreateRequest{
		AgentID:         req.AgentID,
		ToWalletAddress: req.ToWalletAddress,
		ChainID:         *req.ChainID,
		TokenAddress:    token,
		Amount:          req.Amount,
		Memo:            validation.Sanitize(req.Memo, validation.MaxTextLength),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	envelope.OK(c, gin.H{
		"invoice": inv,
		"pay_url": PayURL(PublicOrigin(c.Request, h.publicOrigin), inv.ID),
	})
}

// List handles GET /api/invoices?agent_id=
func (h *Handler) List(c *gin.Context) {
	agentID := c.Query("agent_id")
	if agentID != "" && !idgen.IsUUID(agentID) {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "agent_id must be a UUID")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	list, err := h.svc.List(c.Request.Context(), agentID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []*Invoice{}
	}
	envelope.OK(c, list)
}

// Get handles GET /api/invoices/:id
func (h *Handler) Get(c *gin.Context) {
	inv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	envelope.OK(c, inv)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAgentMismatch):
		envelope.Fail(c, http.StatusForbidden, envelope.CodeForbidden, "agent_id does not match authenticated agent")
	case errors.Is(err, ErrNotFound):
		envelope.Fail(c, http.StatusNotFound, envelope.CodeNotFound, "invoice not found")
	default:
		agents.WriteError(c, err)
	}
}
