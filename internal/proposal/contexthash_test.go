package proposal

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&m))
	return m
}

func TestContextHash_EmptyAndNilMatch(t *testing.T) {
	empty, err := ContextHash(map[string]interface{}{})
	require.NoError(t, err)
	none, err := ContextHash(nil)
	require.NoError(t, err)

	assert.Equal(t, empty, none)
	assert.Equal(t, crypto.Keccak256Hash([]byte("{}")), none)
}

func TestContextHash_KeyOrderIndependent(t *testing.T) {
	a, err := ContextHash(decode(t, `{"invoice":"inv_1","reason":"api credits","nested":{"z":1,"a":2}}`))
	require.NoError(t, err)
	b, err := ContextHash(decode(t, `{"nested":{"a":2,"z":1},"reason":"api credits","invoice":"inv_1"}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestContextHash_DifferentContextDiffers(t *testing.T) {
	a, err := ContextHash(decode(t, `{"reason":"a"}`))
	require.NoError(t, err)
	b, err := ContextHash(decode(t, `{"reason":"b"}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCanonicalContext(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"sorted keys", `{"b":1,"a":2}`, `{"a":2,"b":1}`},
		{"html left alone", `{"q":"<a&b>"}`, `{"q":"<a&b>"}`},
		{"number spelling kept", `{"n":1.50,"big":123456789012345678901234567890}`, `{"big":123456789012345678901234567890,"n":1.50}`},
		{"no whitespace", `{ "a" : [ 1, 2 ] }`, `{"a":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalContext(decode(t, tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
