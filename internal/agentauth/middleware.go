package agentauth

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/envelope"
	"github.com/agentos/agentos/internal/logging"
)

// ContextKeyAddress holds the authenticated, lowercased agent address.
const ContextKeyAddress = "agentAddress"

// Middleware authenticates every request in the group. The body is read in
// full for hashing and restored so handlers can bind it again.
func Middleware(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					envelope.Fail(c, http.StatusRequestEntityTooLarge, envelope.CodeValidation, "request body too large")
					return
				}
				envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "unreadable request body")
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		addr, err := a.Authenticate(c.Request.Context(), Request{
			Address:   c.GetHeader(HeaderAddress),
			Signature: c.GetHeader(HeaderSignature),
			Timestamp: c.GetHeader(HeaderTimestamp),
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Body:      body,
		})
		if err != nil {
			var authErr *AuthError
			reason := "unauthorized"
			if errors.As(err, &authErr) {
				reason = string(authErr.Reason)
			}
			envelope.Fail(c, http.StatusUnauthorized, envelope.CodeUnauthorized, reason)
			return
		}

		c.Set(ContextKeyAddress, addr)
		c.Request = c.Request.WithContext(logging.WithAgent(c.Request.Context(), addr))
		c.Next()
	}
}

// AddressFrom returns the authenticated address set by Middleware.
func AddressFrom(c *gin.Context) string {
	return c.GetString(ContextKeyAddress)
}
