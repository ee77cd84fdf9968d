package agentclient

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agentos/agentos/internal/policy"
)

// BasePath prefixes every Agent API route.
const BasePath = "/api/agent"

// ErrMalformedPolicy is returned by Precheck when the server's policy view
// cannot be read back into numbers.
var ErrMalformedPolicy = errors.New("agentclient: malformed policy")

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int             `json:"-"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agentos: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Client calls the Agent API as one agent.
type Client struct {
	baseURL    string
	key        *ecdsa.PrivateKey
	address    common.Address
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the time source used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for the server at baseURL, signing with key.
func New(baseURL string, key *ecdsa.PrivateKey, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		httpClient: &http.Client{Timeout: 90 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the agent address requests are signed as.
func (c *Client) Address() common.Address {
	return c.address
}

// APIPath normalizes path to an absolute route under BasePath.
func APIPath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == BasePath || strings.HasPrefix(path, BasePath+"/") {
		return path
	}
	return BasePath + path
}

// Do sends a signed request to any Agent API route and decodes the data
// field of the envelope into out. A nil in sends no body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	return c.do(ctx, method, path, query, in, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}, signed bool) error {
	apiPath := APIPath(path)

	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("agentclient: marshal request: %w", err)
		}
	}

	u := c.baseURL + apiPath
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agentclient: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		// The server signs over the path only; query strings are not covered.
		h, err := SignRequest(c.key, apiPath, body, c.now())
		if err != nil {
			return err
		}
		h.Set(req.Header.Set)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agentclient: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("agentclient: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("agentclient: decode response: %w", err)
	}
	if resp.StatusCode >= 400 || !env.OK {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "HTTP_ERROR", Message: http.StatusText(resp.StatusCode)}
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("agentclient: decode data: %w", err)
	}
	return nil
}

// Health calls GET /health, which needs no signature.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Handshake calls GET /handshake to confirm the signature is accepted.
func (c *Client) Handshake(ctx context.Context) (*Handshake, error) {
	var out Handshake
	if err := c.Do(ctx, http.MethodGet, "/handshake", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMe returns the agent and its linked wallets.
func (c *Client) GetMe(ctx context.Context) (*Me, error) {
	var out Me
	if err := c.Do(ctx, http.MethodGet, "/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostAudit appends an audit event and returns its ID.
func (c *Client) PostAudit(ctx context.Context, e AuditEvent) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.Do(ctx, http.MethodPost, "/audit", nil, e, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// PostInvoices issues an invoice.
func (c *Client) PostInvoices(ctx context.Context, req InvoiceRequest) (*InvoiceResult, error) {
	var out InvoiceResult
	if err := c.Do(ctx, http.MethodPost, "/invoices", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProposeTransfer proposes a transfer from a linked wallet.
func (c *Client) ProposeTransfer(ctx context.Context, req TransferRequest) (*ProposeResult, error) {
	var out ProposeResult
	if err := c.Do(ctx, http.MethodPost, "/transfers/propose", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransfer reads proposal id from wallet.
func (c *Client) GetTransfer(ctx context.Context, wallet, id string) (*Transfer, error) {
	var out Transfer
	q := url.Values{"wallet_address": {wallet}}
	if err := c.Do(ctx, http.MethodGet, "/transfers/"+url.PathEscape(id), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApproveTransfer prepares the human's approval of proposal id.
func (c *Client) ApproveTransfer(ctx context.Context, wallet, id string) (*ActionResult, error) {
	return c.act(ctx, wallet, id, "approve")
}

// RejectTransfer prepares the human's rejection of proposal id.
func (c *Client) RejectTransfer(ctx context.Context, wallet, id string) (*ActionResult, error) {
	return c.act(ctx, wallet, id, "reject")
}

// ExecuteTransfer executes an approved proposal, or prepares the call when
// the server holds no signing key.
func (c *Client) ExecuteTransfer(ctx context.Context, wallet, id string) (*ActionResult, error) {
	return c.act(ctx, wallet, id, "execute")
}

func (c *Client) act(ctx context.Context, wallet, id, action string) (*ActionResult, error) {
	var out ActionResult
	body := map[string]string{"wallet_address": wallet}
	if err := c.Do(ctx, http.MethodPost, "/transfers/"+url.PathEscape(id)+"/"+action, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPolicy returns wallet's policy and today's spend.
func (c *Client) GetPolicy(ctx context.Context, wallet string) (*PolicyView, error) {
	var out PolicyView
	if err := c.Do(ctx, http.MethodGet, "/policy", url.Values{"wallet_address": {wallet}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SimulateTransfer asks the server to evaluate a transfer without proposing it.
func (c *Client) SimulateTransfer(ctx context.Context, req TransferRequest) (*Simulation, error) {
	var out Simulation
	body := map[string]string{
		"wallet_address": req.WalletAddress,
		"to":             req.To,
		"token":          req.Token,
		"amount":         req.Amount,
	}
	if err := c.Do(ctx, http.MethodPost, "/policy/simulate", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Precheck evaluates req locally against the wallet's current policy. It is
// advisory: the contract decides. A rejection is returned as *policy.Violation.
func (c *Client) Precheck(ctx context.Context, req TransferRequest) (policy.Decision, error) {
	view, err := c.GetPolicy(ctx, req.WalletAddress)
	if err != nil {
		return policy.Decision{}, err
	}
	p, err := view.Policy.parse()
	if err != nil {
		return policy.Decision{}, err
	}
	spent, ok := new(big.Int).SetString(view.SpentToday, 10)
	if !ok {
		return policy.Decision{}, fmt.Errorf("%w: spentToday %q", ErrMalformedPolicy, view.SpentToday)
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return policy.Decision{}, fmt.Errorf("agentclient: amount must be a decimal integer: %q", req.Amount)
	}
	return policy.Evaluate(p, spent, common.HexToAddress(req.To), amount, common.HexToAddress(req.Token))
}

func (p Policy) parse() (*policy.Policy, error) {
	out := &policy.Policy{RequiresApproval: p.RequiresApproval}
	for _, f := range []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"maxAmount", p.MaxAmount, &out.MaxAmount},
		{"dailyCap", p.DailyCap, &out.DailyCap},
		{"approvalThreshold", p.ApprovalThreshold, &out.ApprovalThreshold},
	} {
		v, ok := new(big.Int).SetString(f.raw, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %s %q", ErrMalformedPolicy, f.name, f.raw)
		}
		*f.dst = v
	}
	for _, a := range p.AllowedTargets {
		out.AllowedTargets = append(out.AllowedTargets, common.HexToAddress(a))
	}
	for _, a := range p.AllowedTokens {
		out.AllowedTokens = append(out.AllowedTokens, common.HexToAddress(a))
	}
	return out, nil
}
