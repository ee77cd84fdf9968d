package audit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/agentauth"
	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/envelope"
	"github.com/agentos/agentos/internal/logging"
	"github.com/agentos/agentos/internal/validation"
)

// Handler provides HTTP endpoints for the audit log.
type Handler struct {
	log    *Log
	agents *agents.Service
}

// NewHandler creates a new audit handler.
func NewHandler(log *Log, agentSvc *agents.Service) *Handler {
	return &Handler{log: log, agents: agentSvc}
}

// RegisterAgentRoutes sets up signed-request routes under /api/agent.
func (h *Handler) RegisterAgentRoutes(r *gin.RouterGroup) {
	r.POST("/audit", h.AgentAppend)
	r.GET("/audit", h.AgentList)
}

// RegisterAdminRoutes sets up operator routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/audit", h.AdminAppend)
	r.GET("/agents/:id/audit", h.AdminList)
}

type agentAppendRequest struct {
	EventType string                 `json:"event_type"`
	Message   *string                `json:"message"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// AgentAppend handles POST /api/agent/audit
func (h *Handler) AgentAppend(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid JSON body")
		return
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid JSON body")
		return
	}

	var req agentAppendRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid body")
		return
	}
	errs := validation.Check(
		validation.Required("event_type", req.EventType),
		validation.MaxLen("event_type", req.EventType, 100),
		validation.Present("message", req.Message != nil),
	)
	if len(errs) > 0 {
		envelope.FailDetails(c, http.StatusBadRequest, envelope.CodeValidation, "invalid body", errs)
		return
	}

	ctx := c.Request.Context()
	agent, err := h.agents.Resolve(ctx, agentauth.AddressFrom(c))
	if err != nil {
		agents.WriteError(c, err)
		return
	}

	payload := map[string]interface{}{"message": *req.Message}
	if req.Metadata != nil {
		payload["metadata"] = req.Metadata
	}
	e, err := h.log.Append(ctx, agent.ID, req.EventType, payload)
	if err != nil {
		logging.L(ctx).Error("audit append failed", "error", err)
		envelope.Internal(c, envelope.CodeDB)
		return
	}
	envelope.OK(c, gin.H{"id": e.ID})
}

// AgentList handles GET /api/agent/audit
func (h *Handler) AgentList(c *gin.Context) {
	ctx := c.Request.Context()
	agent, err := h.agents.Resolve(ctx, agentauth.AddressFrom(c))
	if err != nil {
		agents.WriteError(c, err)
		return
	}
	h.writeList(c, agent.ID)
}

// AdminAppend handles POST /api/audit, used by operators to record
// out-of-band events such as WALLET_DEPLOYED.
func (h *Handler) AdminAppend(c *gin.Context) {
	var req struct {
		AgentID string                 `json:"agent_id"`
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid JSON body")
		return
	}
	if errs := validation.Check(
		validation.Required("agent_id", req.AgentID),
		validation.UUID("agent_id", req.AgentID),
		validation.Required("type", req.Type),
	); len(errs) > 0 {
		envelope.FailDetails(c, http.StatusBadRequest, envelope.CodeValidation, "agent_id and type required", errs)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.agents.Get(ctx, req.AgentID); err != nil {
		agents.WriteError(c, err)
		return
	}
	e, err := h.log.Append(ctx, req.AgentID, req.Type, req.Payload)
	if err != nil {
		logging.L(ctx).Error("audit append failed", "error", err)
		envelope.Internal(c, envelope.CodeDB)
		return
	}
	envelope.Created(c, gin.H{"id": e.ID, "created_at": e.CreatedAt})
}

// AdminList handles GET /api/agents/:id/audit
func (h *Handler) AdminList(c *gin.Context) {
	if _, err := h.agents.Get(c.Request.Context(), c.Param("id")); err != nil {
		agents.WriteError(c, err)
		return
	}
	h.writeList(c, c.Param("id"))
}

func (h *Handler) writeList(c *gin.Context, agentID string) {
	ctx := c.Request.Context()
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	page, err := h.log.ListPage(ctx, agentID, c.Query("cursor"), limit)
	if errors.Is(err, ErrInvalidCursor) {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid cursor")
		return
	}
	if err != nil {
		logging.L(ctx).Error("audit list failed", "error", err)
		envelope.Internal(c, envelope.CodeDB)
		return
	}
	envelope.OK(c, page)
}
