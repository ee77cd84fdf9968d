// Package agentauth authenticates Agent API requests signed with an
// EIP-191 personal message over a canonical request description.
package agentauth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Request headers carrying the signed credentials.
const (
	HeaderAddress   = "x-agent-address"
	HeaderSignature = "x-agent-signature"
	HeaderTimestamp = "x-agent-timestamp"
)

const (
	// MessagePrefix is the first line of every canonical message.
	MessagePrefix = "AgentOS Agent API"

	// MessageTemplate documents the canonical message for clients.
	MessageTemplate = MessagePrefix + "\naddress=<address>\ntimestamp=<timestamp>\npath=<pathname>\nbodySha256=<sha256>"

	// KeyFormat documents how replay keys are composed.
	KeyFormat = "address:timestamp:method:path:bodySha256"

	// EmptyBodyHash is sha256 of zero bytes. Requests without a body sign this value.
	EmptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// BodyHash returns the lowercase hex SHA-256 of the exact body bytes.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// NormalizePath guarantees a leading slash. Trailing slashes are left as the
// router delivered them.
func NormalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

// BuildMessage produces the string an agent signs. The address and timestamp
// are used exactly as sent so client and server agree byte-for-byte.
func BuildMessage(address, timestamp, path, bodyHash string) string {
	var b strings.Builder
	b.Grow(len(MessagePrefix) + len(address) + len(timestamp) + len(path) + len(bodyHash) + 48)
	b.WriteString(MessagePrefix)
	b.WriteString("\naddress=")
	b.WriteString(address)
	b.WriteString("\ntimestamp=")
	b.WriteString(timestamp)
	b.WriteString("\npath=")
	b.WriteString(NormalizePath(path))
	b.WriteString("\nbodySha256=")
	b.WriteString(bodyHash)
	return b.String()
}

// ReplayKey identifies one signed request. The method is part of the key so a
// GET and a POST with otherwise identical inputs never collide.
func ReplayKey(address, timestamp, method, path, bodyHash string) string {
	return strings.ToLower(address) + ":" +
		timestamp + ":" +
		strings.ToUpper(method) + ":" +
		NormalizePath(path) + ":" +
		strings.ToLower(bodyHash)
}
