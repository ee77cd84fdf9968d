package validation

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxUint256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"))
	assert.True(t, IsAddress("0x0000000000000000000000000000000000000000"))

	for _, bad := range []string{
		"",
		"0x",
		"70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8aa",
		"0xZZ997970C51812dc3A010C7d01b50e0d17dc79C8",
	} {
		assert.False(t, IsAddress(bad), bad)
	}
}

func TestIsDecimal(t *testing.T) {
	assert.True(t, IsDecimal("0"))
	assert.True(t, IsDecimal("1000000"))
	assert.True(t, IsDecimal(maxUint256))

	assert.False(t, IsDecimal(""))
	assert.False(t, IsDecimal("0x10"))
	assert.False(t, IsDecimal("-1"))
	assert.False(t, IsDecimal("1.5"))
	assert.False(t, IsDecimal(maxUint256[:len(maxUint256)-1]+"6"), "2^256 overflows")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "rent", Sanitize("  rent \n", 10))
	assert.Equal(t, "rentdue", Sanitize("rent\x00due", 10))
	assert.Equal(t, "inv", Sanitize("invoice", 3))
}

func TestCheck_FirstFailurePerField(t *testing.T) {
	errs := Check(
		Required("to", ""),
		Address("to", "nope"),
		Required("token", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Address("token", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Decimal("amount", "0x10"),
	)

	require.Len(t, errs, 2)
	assert.Equal(t, FieldError{Field: "to", Message: "is required"}, errs[0])
	assert.Equal(t, "amount", errs[1].Field)
	assert.Equal(t, "to: is required (and more)", errs.Error())
}

func TestCheck_OptionalRulesSkipEmpty(t *testing.T) {
	errs := Check(
		Address("token_address", ""),
		Uint256("amount", ""),
		Decimal("amount", ""),
		UUID("agent_id", ""),
	)
	assert.Empty(t, errs)
}

func TestRules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		ok   bool
	}{
		{"uint256 decimal", Uint256("amount", "100"), true},
		{"uint256 hex", Uint256("amount", "0x64"), true},
		{"uint256 negative", Uint256("amount", "-5"), false},
		{"uint256 garbage", Uint256("amount", "ten"), false},
		{"uuid", UUID("agent_id", "6f1c2a8e-3b4d-4f5a-9c7e-1a2b3c4d5e6f"), true},
		{"uuid bad", UUID("agent_id", "agent-1"), false},
		{"maxlen at limit", MaxLen("memo", "abc", 3), true},
		{"maxlen over", MaxLen("memo", "abcd", 3), false},
		{"present", Present("chain_id", true), true},
		{"absent", Present("chain_id", false), false},
		{"required whitespace", Required("event_type", "   "), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.rule() == nil)
		})
	}
}

func TestErrorsAdd(t *testing.T) {
	var errs Errors
	assert.Equal(t, "validation failed", errs.Error())

	errs.Add("context", "must be a JSON object")
	assert.True(t, errs.Has("context"))
	assert.False(t, errs.Has("amount"))
	assert.Equal(t, "context: must be a JSON object", errs.Error())
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BodyLimit(8))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("short")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("much too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
