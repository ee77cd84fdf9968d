// Package envelope writes the uniform Agent API response shape:
// {ok:true,data} on success and {ok:false,error:{code,message,details?}} on failure.
package envelope

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stable error codes.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeValidation      = "VALIDATION_ERROR"
	CodePolicyViolation = "POLICY_VIOLATION"
	CodeAgentNotFound   = "AGENT_NOT_FOUND"
	CodeWalletNotLinked = "WALLET_NOT_LINKED"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeConfig          = "CONFIG_ERROR"
	CodeDB              = "DB_ERROR"
	CodeChain           = "CHAIN_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
	CodeRateLimited     = "RATE_LIMITED"
)

// Error is the failure body.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Response is the full envelope. Used by clients to decode replies.
type Response[T any] struct {
	OK    bool   `json:"ok"`
	Data  T      `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

// Created writes a 201 success envelope.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"ok": true, "data": data})
}

// Fail aborts with a failure envelope.
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": Error{Code: code, Message: message}})
}

// FailDetails aborts with a failure envelope carrying details.
func FailDetails(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": Error{Code: code, Message: message, Details: details}})
}

// Internal aborts with a generic 500 under code. The cause is never echoed.
func Internal(c *gin.Context, code string) {
	Fail(c, http.StatusInternalServerError, code, "internal error")
}
