package agentauth

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestRecoverAddress(t *testing.T) {
	s := newSigner(t)
	msg := BuildMessage(s.addr, "1", "/x", EmptyBodyHash)

	got, err := RecoverAddress(msg, s.sign(t, msg))
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if got != strings.ToLower(s.addr) {
		t.Errorf("expected %s, got %s", strings.ToLower(s.addr), got)
	}
}

func TestRecoverAddress_RawRecoveryID(t *testing.T) {
	s := newSigner(t)
	msg := "hello"
	sig, err := crypto.Sign(HashMessage(msg), s.key)
	if err != nil {
		t.Fatal(err)
	}
	// v left as 0/1, without the 0x prefix
	got, err := RecoverAddress(msg, hex.EncodeToString(sig))
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if got != strings.ToLower(s.addr) {
		t.Errorf("expected %s, got %s", strings.ToLower(s.addr), got)
	}
}

func TestRecoverAddress_Malformed(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"not hex", "0xzz"},
		{"too short", "0x" + strings.Repeat("ab", 64)},
		{"too long", "0x" + strings.Repeat("ab", 66)},
		{"bad recovery id", "0x" + strings.Repeat("ab", 64) + "05"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RecoverAddress("m", tt.sig); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEIP191Verifier(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)
	msg := "AgentOS Agent API"
	sig := s.sign(t, msg)

	v := EIP191Verifier{}
	if !v.Verify(s.addr, msg, sig) {
		t.Error("expected valid signature")
	}
	if !v.Verify(strings.ToLower(s.addr), msg, sig) {
		t.Error("address comparison must be case-insensitive")
	}
	if v.Verify(other.addr, msg, sig) {
		t.Error("expected mismatch for a different address")
	}
	if v.Verify(s.addr, msg+"!", sig) {
		t.Error("expected mismatch for a different message")
	}
	if v.Verify(s.addr, msg, "garbage") {
		t.Error("malformed signature must not verify")
	}
}

func TestHashMessage_RawHashDiffers(t *testing.T) {
	msg := "AgentOS Agent API"
	if string(HashMessage(msg)) == string(crypto.Keccak256([]byte(msg))) {
		t.Error("personal message hash must include the EIP-191 prefix")
	}
}
