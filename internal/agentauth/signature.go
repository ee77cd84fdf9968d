package agentauth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verifier checks that message was signed by claimedAddress.
type Verifier interface {
	Verify(claimedAddress, message, signature string) bool
}

// EIP191Verifier verifies personal_sign signatures.
type EIP191Verifier struct{}

var _ Verifier = EIP191Verifier{}

// Verify never panics or errors; malformed input is simply not a match.
func (EIP191Verifier) Verify(claimedAddress, message, signature string) bool {
	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered, claimedAddress)
}

var errRecoveryID = errors.New("signature recovery id must be 0, 1, 27 or 28")

// HashMessage is the EIP-191 personal_sign digest of message.
func HashMessage(message string) []byte {
	return accounts.TextHash([]byte(message))
}

// RecoverAddress returns the lowercase address that produced a 65-byte
// r||s||v signature over message. Both v conventions are accepted.
func RecoverAddress(message, signature string) (string, error) {
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode("0x" + signature[2:])
	if err != nil {
		return "", fmt.Errorf("signature hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature is %d bytes, want %d", len(sig), crypto.SignatureLength)
	}

	switch v := sig[crypto.RecoveryIDOffset]; v {
	case 0, 1:
	case 27, 28:
		sig[crypto.RecoveryIDOffset] = v - 27
	default:
		return "", errRecoveryID
	}

	pub, err := crypto.SigToPub(HashMessage(message), sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}
