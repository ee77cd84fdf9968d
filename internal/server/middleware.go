package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/envelope"
	"github.com/agentos/agentos/internal/idgen"
	"github.com/agentos/agentos/internal/logging"
	"github.com/agentos/agentos/internal/metrics"
	"github.com/agentos/agentos/internal/security"
	"github.com/agentos/agentos/internal/traces"
	"github.com/agentos/agentos/internal/validation"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxRequestIDBytes = 64
)

// middleware is the global chain, outermost first. Recovery wraps
// everything so a panicking handler still answers with an envelope.
func (s *Server) middleware() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		gin.CustomRecovery(s.onPanic),
		security.HeadersMiddleware(),
		security.CORSMiddleware(s.cfg.CORSOrigins),
		validation.BodyLimit(validation.MaxBodyBytes),
		traces.Middleware(),
		metrics.Middleware(),
		s.withRequestID,
		s.accessLog,
	}
}

func (s *Server) onPanic(c *gin.Context, recovered any) {
	logging.L(c.Request.Context()).Error("handler panic",
		"panic", recovered,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	)
	envelope.Internal(c, envelope.CodeInternal)
}

// withRequestID honours an upstream X-Request-ID of sane length and mints
// one otherwise. The id and the base logger ride on the request context.
func (s *Server) withRequestID(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" || len(id) > maxRequestIDBytes {
		id = idgen.Hex(16)
	}
	c.Header(requestIDHeader, id)

	ctx := logging.WithLogger(logging.WithRequestID(c.Request.Context(), id), s.logger)
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// accessLog logs after the handler so the agent address set by signature
// auth is on the context.
func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()

	status := c.Writer.Status()
	attrs := []any{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"route", c.FullPath(),
		"status", status,
		"bytes", c.Writer.Size(),
		"latency_ms", time.Since(start).Milliseconds(),
	}
	log := logging.L(c.Request.Context())
	switch {
	case status >= 500:
		log.Error("request", append(attrs, "client_ip", c.ClientIP())...)
	case status >= 400:
		log.Warn("request", attrs...)
	default:
		log.Info("request", attrs...)
	}
}
