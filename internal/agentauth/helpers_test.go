package agentauth

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testSigner struct {
	key  *ecdsa.PrivateKey
	addr string
}

func newSigner(t *testing.T) *testSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &testSigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (s *testSigner) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(HashMessage(message), s.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

// request builds a correctly signed Request at ts.
func (s *testSigner) request(t *testing.T, method, path string, body []byte, ts time.Time) Request {
	t.Helper()
	return s.requestMillis(t, method, path, body, ts.UnixMilli())
}

// requestMillis signs with a raw millisecond stamp, which need not be a
// representable time.Time.
func (s *testSigner) requestMillis(t *testing.T, method, path string, body []byte, millis int64) Request {
	t.Helper()
	stamp := strconv.FormatInt(millis, 10)
	msg := BuildMessage(s.addr, stamp, path, BodyHash(body))
	return Request{
		Address:   s.addr,
		Signature: s.sign(t, msg),
		Timestamp: stamp,
		Method:    method,
		Path:      path,
		Body:      body,
	}
}

type failingStore struct{}

func (failingStore) Insert(context.Context, string, time.Time) error {
	return errors.New("connection refused")
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	return authErr.Reason
}

func lower(s string) string { return strings.ToLower(s) }
