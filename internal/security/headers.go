// Package security holds the response-hardening, CORS and admin-secret
// middleware mounted in front of the Agent API.
package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/envelope"
)

// AdminHeader carries the registry admin secret.
const AdminHeader = "X-Admin-Secret"

// The API only ever returns JSON, so nothing may be framed, sniffed or
// rendered as a document.
var responseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
	{"Cross-Origin-Resource-Policy", "same-site"},
}

// Request headers a browser-hosted agent must be allowed to send.
var corsRequestHeaders = strings.Join([]string{
	"Content-Type",
	"X-Request-ID",
	"x-agent-address",
	"x-agent-signature",
	"x-agent-timestamp",
	AdminHeader,
}, ", ")

// HeadersMiddleware sets the hardening headers on every response.
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range responseHeaders {
			h.Set(kv[0], kv[1])
		}
		c.Next()
	}
}

// CORSMiddleware reflects allowed origins. An empty list or "*" allows any
// origin. Preflight requests are answered here and never reach a handler.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, ok := allowed[origin]
		if allowAll || ok {
			h := c.Writer.Header()
			if origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", corsRequestHeaders)
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")
			h.Set("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AdminMiddleware guards operator routes with a shared secret. When no
// secret is configured the routes are open only if allowOpen is set, which
// the server does outside production.
func AdminMiddleware(secret string, allowOpen bool) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		switch {
		case secret == "" && allowOpen:
			c.Next()
		case secret == "":
			envelope.Fail(c, http.StatusForbidden, envelope.CodeForbidden, "admin routes disabled")
		case subtle.ConstantTimeCompare([]byte(c.GetHeader(AdminHeader)), want) != 1:
			envelope.Fail(c, http.StatusUnauthorized, envelope.CodeUnauthorized, "invalid admin secret")
		default:
			c.Next()
		}
	}
}
