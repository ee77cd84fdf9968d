package proposal

import (
	"bytes"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CanonicalContext serializes a proposal context for hashing. Object keys are
// sorted, HTML characters are not escaped, and numbers decoded as
// json.Number keep their original spelling. A nil context serializes as {}.
func CanonicalContext(ctx map[string]interface{}) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ctx); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ContextHash is keccak256 of the canonical context.
func ContextHash(ctx map[string]interface{}) (common.Hash, error) {
	raw, err := CanonicalContext(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(raw), nil
}
