// Package validation holds request-body checks shared by the Agent API
// handlers. Rules are collected with Check so a handler can report every
// bad field in one VALIDATION_ERROR envelope.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/amount"
	"github.com/agentos/agentos/internal/idgen"
)

const (
	// MaxBodyBytes caps every request body.
	MaxBodyBytes = 1 << 20

	// MaxTextLength caps free-text fields such as invoice memos.
	MaxTextLength = 10000
)

var (
	addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	decimalRe = regexp.MustCompile(`^[0-9]+$`)
)

// BodyLimit wraps the request body in http.MaxBytesReader.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex string.
// Checksum casing is not enforced.
func IsAddress(s string) bool {
	return addressRe.MatchString(s)
}

// IsDecimal reports whether s is a plain base-10 uint256.
func IsDecimal(s string) bool {
	if !decimalRe.MatchString(s) {
		return false
	}
	_, err := amount.ParseUint256(s)
	return err == nil
}

// Sanitize trims s, drops NUL bytes and truncates to max bytes.
func Sanitize(s string, max int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\x00", "")
	if len(s) > max {
		return s[:max]
	}
	return s
}

// FieldError is one entry of the details array in a VALIDATION_ERROR.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects field failures in the order they were found.
type Errors []FieldError

func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Field + ": " + e[0].Message
	}
	return e[0].Field + ": " + e[0].Message + " (and more)"
}

// Add appends a failure for field.
func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Has reports whether field already failed.
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Rule inspects one field and returns nil when it passes.
type Rule func() *FieldError

// Check runs rules and keeps the first failure per field, so a missing
// value is not also reported as malformed.
func Check(rules ...Rule) Errors {
	var errs Errors
	for _, rule := range rules {
		fe := rule()
		if fe == nil || errs.Has(fe.Field) {
			continue
		}
		errs = append(errs, *fe)
	}
	return errs
}

func fail(field, message string) *FieldError {
	return &FieldError{Field: field, Message: message}
}

// The rules below, apart from Required and Present, accept an empty value.

func Required(field, value string) Rule {
	return func() *FieldError {
		if strings.TrimSpace(value) == "" {
			return fail(field, "is required")
		}
		return nil
	}
}

// Present fails when ok is false. Used for non-string fields such as
// pointers decoded from JSON.
func Present(field string, ok bool) Rule {
	return func() *FieldError {
		if !ok {
			return fail(field, "is required")
		}
		return nil
	}
}

func Address(field, value string) Rule {
	return func() *FieldError {
		if value != "" && !IsAddress(value) {
			return fail(field, "must be a 0x-prefixed 20-byte hex address")
		}
		return nil
	}
}

func MaxLen(field, value string, max int) Rule {
	return func() *FieldError {
		if len(value) > max {
			return fail(field, "exceeds maximum length")
		}
		return nil
	}
}

// Uint256 accepts decimal or 0x-hex base-unit amounts.
func Uint256(field, value string) Rule {
	return func() *FieldError {
		if value == "" {
			return nil
		}
		if _, err := amount.ParseUint256(value); err != nil {
			return fail(field, "must be an unsigned integer amount in base units")
		}
		return nil
	}
}

// Decimal accepts only base-10 uint256 strings.
func Decimal(field, value string) Rule {
	return func() *FieldError {
		if value != "" && !IsDecimal(value) {
			return fail(field, "must be a decimal uint256 string")
		}
		return nil
	}
}

func UUID(field, value string) Rule {
	return func() *FieldError {
		if value != "" && !idgen.IsUUID(value) {
			return fail(field, "must be a UUID")
		}
		return nil
	}
}
