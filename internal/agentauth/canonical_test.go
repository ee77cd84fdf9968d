package agentauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage("0xAbC0000000000000000000000000000000000001", "1700000000000", "/api/agent/me", EmptyBodyHash)
	want := "AgentOS Agent API\n" +
		"address=0xAbC0000000000000000000000000000000000001\n" +
		"timestamp=1700000000000\n" +
		"path=/api/agent/me\n" +
		"bodySha256=e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	assert.Equal(t, want, msg)
}

func TestBuildMessage_AddsLeadingSlash(t *testing.T) {
	assert.Equal(t,
		BuildMessage("0x1", "1", "/api/agent/me", EmptyBodyHash),
		BuildMessage("0x1", "1", "api/agent/me", EmptyBodyHash))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/", NormalizePath(""))
	assert.Equal(t, "/a", NormalizePath("a"))
	assert.Equal(t, "/a/", NormalizePath("/a/"))
}

func TestBodyHash_EmptyBody(t *testing.T) {
	assert.Equal(t, EmptyBodyHash, BodyHash(nil))
	assert.Equal(t, EmptyBodyHash, BodyHash([]byte{}))
}

func TestBodyHash_SingleByteChange(t *testing.T) {
	a := BodyHash([]byte(`{"amount":"100"}`))
	b := BodyHash([]byte(`{"amount":"101"}`))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t,
		BuildMessage("0x1", "1", "/p", a),
		BuildMessage("0x1", "1", "/p", b))
}

func TestReplayKey(t *testing.T) {
	key := ReplayKey("0xABCdef0000000000000000000000000000000000", "1700000000000", "post", "/api/agent/audit", "ABCDEF")
	assert.Equal(t, "0xabcdef0000000000000000000000000000000000:1700000000000:POST:/api/agent/audit:abcdef", key)

	assert.NotEqual(t,
		ReplayKey("0x1", "1", "GET", "/p", EmptyBodyHash),
		ReplayKey("0x1", "1", "POST", "/p", EmptyBodyHash))
}
