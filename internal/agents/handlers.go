package agents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/agentauth"
	"github.com/agentos/agentos/internal/envelope"
	"github.com/agentos/agentos/internal/logging"
	"github.com/agentos/agentos/internal/validation"
)

// Handler provides HTTP endpoints for the agent registry.
type Handler struct {
	svc *Service
}

// NewHandler creates a new registry handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterAgentRoutes sets up signed-request routes under /api/agent.
func (h *Handler) RegisterAgentRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.Me)
}

// RegisterAdminRoutes sets up operator routes for managing agents.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/agents", h.CreateAgent)
	r.GET("/agents", h.ListAgents)
	r.GET("/agents/:id", h.GetAgent)
	r.GET("/agents/:id/wallets", h.ListWallets)
	r.POST("/agents/:id/wallets", h.LinkWallet)
}

// walletView is the wallet shape returned to agents.
type walletView struct {
	ID            string `json:"id"`
	WalletAddress string `json:"wallet_address"`
	ChainID       int64  `json:"chain_id"`
	Label         string `json:"label"`
}

// Me handles GET /api/agent/me
func (h *Handler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	agent, err := h.svc.Resolve(ctx, agentauth.AddressFrom(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	wallets, err := h.svc.Wallets(ctx, agent.ID)
	if err != nil {
		WriteError(c, err)
		return
	}

	views := make([]walletView, 0, len(wallets))
	for _, w := range wallets {
		views = append(views, walletView{ID: w.ID, WalletAddress: w.WalletAddress, ChainID: w.ChainID, Label: w.Label})
	}
	envelope.OK(c, gin.H{"agent": agent, "wallets": views})
}

// CreateAgent handles POST /api/agents
func (h *Handler) CreateAgent(c *gin.Context) {
	var req struct {
		Name         string `json:"name"`
		OwnerAddress string `json:"owner_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid JSON body")
		return
	}
	if errs := validation.Check(
		validation.Required("name", req.Name),
		validation.MaxLen("name", req.Name, 200),
		validation.Required("owner_address", req.OwnerAddress),
		validation.Address("owner_address", req.OwnerAddress),
	); len(errs) > 0 {
		envelope.FailDetails(c, http.StatusBadRequest, envelope.CodeValidation, "name and valid owner_address required", errs)
		return
	}

	agent, err := h.svc.Create(c.Request.Context(), req.Name, req.OwnerAddress)
	if err != nil {
		WriteError(c, err)
		return
	}
	envelope.Created(c, agent)
}

// ListAgents handles GET /api/agents
func (h *Handler) ListAgents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	list, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		WriteError(c, err)
		return
	}
	if list == nil {
		list = []*Agent{}
	}
	envelope.OK(c, list)
}

// GetAgent handles GET /api/agents/:id
func (h *Handler) GetAgent(c *gin.Context) {
	agent, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	envelope.OK(c, agent)
}

// ListWallets handles GET /api/agents/:id/wallets
func (h *Handler) ListWallets(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.svc.Get(ctx, c.Param("id")); err != nil {
		WriteError(c, err)
		return
	}
	wallets, err := h.svc.Wallets(ctx, c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	if wallets == nil {
		wallets = []*Wallet{}
	}
	envelope.OK(c, wallets)
}

// LinkWallet handles POST /api/agents/:id/wallets
func (h *Handler) LinkWallet(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address"`
		ChainID       *int64 `json:"chain_id"`
		Label         string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid JSON body")
		return
	}
	if errs := validation.Check(
		validation.Required("wallet_address", req.WalletAddress),
		validation.Address("wallet_address", req.WalletAddress),
		validation.MaxLen("label", req.Label, 100),
	); len(errs) > 0 || req.ChainID == nil {
		envelope.FailDetails(c, http.StatusBadRequest, envelope.CodeValidation,
			"wallet_address (0x...) and chain_id (integer) required", errs)
		return
	}

	w, err := h.svc.LinkWallet(c.Request.Context(), c.Param("id"), req.WalletAddress, *req.ChainID, req.Label)
	if err != nil {
		WriteError(c, err)
		return
	}
	envelope.Created(c, w)
}

// WriteError renders registry errors with their stable codes. Unknown errors
// are logged and reported as DB_ERROR without detail.
func WriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAgentNotFound):
		envelope.Fail(c, http.StatusNotFound, envelope.CodeAgentNotFound, "no agent found for this address")
	case errors.Is(err, ErrWalletNotLinked):
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeWalletNotLinked, "wallet_address must be a linked wallet for this agent")
	case errors.Is(err, ErrOwnerTaken):
		envelope.Fail(c, http.StatusConflict, envelope.CodeConflict, "owner_address already registered")
	case errors.Is(err, ErrWalletAlreadyLinked):
		envelope.Fail(c, http.StatusConflict, envelope.CodeConflict, "wallet already linked to this agent")
	case errors.Is(err, ErrInvalidAddress):
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid address")
	default:
		logging.L(c.Request.Context()).Error("registry operation failed", "error", err)
		envelope.Internal(c, envelope.CodeDB)
	}
}
