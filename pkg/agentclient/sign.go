// Package agentclient is the Go client for the AgentOS Agent API.
//
// Every request under /api/agent is signed with the agent's key: the client
// builds the canonical message, signs it as an Ethereum personal message and
// sends the result in the x-agent-* headers.
package agentclient

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// MessagePrefix is the first line of every canonical message.
const MessagePrefix = "AgentOS Agent API"

// Request header names.
const (
	HeaderAddress   = "x-agent-address"
	HeaderSignature = "x-agent-signature"
	HeaderTimestamp = "x-agent-timestamp"
)

// ErrInvalidKey is returned for a private key that cannot be parsed.
var ErrInvalidKey = errors.New("agentclient: invalid private key")

// Headers are the authentication headers for one request.
type Headers struct {
	Address   string
	Signature string
	Timestamp string
}

// Set writes h onto an outgoing header map.
func (h Headers) Set(set func(key, value string)) {
	set(HeaderAddress, h.Address)
	set(HeaderSignature, h.Signature)
	set(HeaderTimestamp, h.Timestamp)
}

// BodySHA256 returns the lowercase hex SHA-256 of body. An absent body
// hashes as the empty string.
func BodySHA256(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalMessage builds the string the agent signs.
func CanonicalMessage(address, timestamp, path, bodySHA256 string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return MessagePrefix +
		"\naddress=" + address +
		"\ntimestamp=" + timestamp +
		"\npath=" + path +
		"\nbodySha256=" + bodySHA256
}

// ParseKey parses a hex private key with or without the 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// SignRequest signs a request for path with body at now. The address is sent
// checksummed and the timestamp in Unix milliseconds.
func SignRequest(key *ecdsa.PrivateKey, path string, body []byte, now time.Time) (Headers, error) {
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	msg := CanonicalMessage(address, timestamp, path, BodySHA256(body))

	sig, err := crypto.Sign(personalHash(msg), key)
	if err != nil {
		return Headers{}, fmt.Errorf("agentclient: sign: %w", err)
	}
	sig[64] += 27

	return Headers{
		Address:   address,
		Signature: "0x" + hex.EncodeToString(sig),
		Timestamp: timestamp,
	}, nil
}

// personalHash applies the Ethereum signed-message prefix.
func personalHash(msg string) []byte {
	return crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)))
}
