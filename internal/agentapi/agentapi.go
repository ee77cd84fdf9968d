// Package agentapi serves the discovery side of the Agent API: health,
// handshake, the OpenAPI document and the live event stream.
package agentapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/agentauth"
	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/envelope"
)

// Name is reported by the health endpoint and the OpenAPI document.
const Name = "AgentOS Agent API"

// BasePath is where the Agent API is mounted.
const BasePath = "/api/agent"

// Streamer upgrades a request into an agent-scoped event stream.
type Streamer interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, agentID string)
}

// Handler serves the Agent API discovery endpoints.
type Handler struct {
	auth         *agentauth.Authenticator
	agents       *agents.Service
	stream       Streamer
	version      string
	serverSigner bool
	now          func() time.Time
}

// NewHandler creates a discovery handler. serverSigner reports whether
// proposals are submitted by the server.
func NewHandler(auth *agentauth.Authenticator, agentSvc *agents.Service, version string, serverSigner bool) *Handler {
	return &Handler{
		auth:         auth,
		agents:       agentSvc,
		version:      version,
		serverSigner: serverSigner,
		now:          time.Now,
	}
}

// WithStreamer enables GET /stream.
func (h *Handler) WithStreamer(s Streamer) *Handler {
	h.stream = s
	return h
}

// RegisterPublicRoutes sets up routes that need no signature.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.Health)
	r.GET("/openapi", h.OpenAPI)
}

// RegisterRoutes sets up signed routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/handshake", h.Handshake)
	if h.stream != nil {
		r.GET("/stream", h.Stream)
	}
}

// Health handles GET /api/agent/health
func (h *Handler) Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	envelope.OK(c, gin.H{
		"name":                Name,
		"version":             h.version,
		"now":                 h.now().UTC().Format(time.RFC3339Nano),
		"serverSignerEnabled": h.serverSigner,
		"replayStrict":        h.auth.Strict(),
	})
}

// Handshake handles GET /api/agent/handshake. It echoes the address as
// sent and describes how requests must be signed.
func (h *Handler) Handshake(c *gin.Context) {
	addr := c.GetHeader(agentauth.HeaderAddress)
	if addr == "" {
		addr = agentauth.AddressFrom(c)
	}
	envelope.OK(c, gin.H{
		"agentAddress": addr,
		"auth": gin.H{
			"basePath":                 BasePath,
			"headers":                  []string{agentauth.HeaderAddress, agentauth.HeaderSignature, agentauth.HeaderTimestamp},
			"canonicalMessageTemplate": agentauth.MessageTemplate,
			"timestampSkewSeconds":     int(h.auth.Tolerance() / time.Second),
			"replayProtection": gin.H{
				"enabled":   h.auth.ReplayEnabled(),
				"strict":    h.auth.Strict(),
				"keyFormat": agentauth.KeyFormat,
			},
		},
	})
}

// Stream handles GET /api/agent/stream. The connection only ever receives
// the authenticated agent's events.
func (h *Handler) Stream(c *gin.Context) {
	agent, err := h.agents.Resolve(c.Request.Context(), agentauth.AddressFrom(c))
	if err != nil {
		agents.WriteError(c, err)
		return
	}
	h.stream.HandleWebSocket(c.Writer, c.Request, agent.ID)
}

// OpenAPI handles GET /api/agent/openapi
func (h *Handler) OpenAPI(c *gin.Context) {
	c.JSON(http.StatusOK, Document(h.version))
}
