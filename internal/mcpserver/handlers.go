package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentos/agentos/pkg/agentclient"
)

// API is the subset of the Agent API the tools call.
type API interface {
	GetMe(ctx context.Context) (*agentclient.Me, error)
	PostAudit(ctx context.Context, e agentclient.AuditEvent) (string, error)
	PostInvoices(ctx context.Context, req agentclient.InvoiceRequest) (*agentclient.InvoiceResult, error)
	ProposeTransfer(ctx context.Context, req agentclient.TransferRequest) (*agentclient.ProposeResult, error)
	GetTransfer(ctx context.Context, wallet, id string) (*agentclient.Transfer, error)
	GetPolicy(ctx context.Context, wallet string) (*agentclient.PolicyView, error)
}

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	api API
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(api API) *Handlers {
	return &Handlers{api: api}
}

// HandleWhoAmI returns the agent and its wallets.
func (h *Handlers) HandleWhoAmI(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	me, err := h.api.GetMe(ctx)
	if err != nil {
		return toolError("Failed to load agent", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Agent: %s (%s)\n", me.Agent.Name, me.Agent.ID)
	fmt.Fprintf(&sb, "Signing address: %s\n", me.Agent.OwnerAddress)
	if len(me.Wallets) == 0 {
		sb.WriteString("\nNo wallets linked. Ask the operator to link a governed wallet.")
		return mcp.NewToolResultText(sb.String()), nil
	}
	fmt.Fprintf(&sb, "\nWallets (%d):\n", len(me.Wallets))
	for _, w := range me.Wallets {
		fmt.Fprintf(&sb, "- %s on chain %d", w.WalletAddress, w.ChainID)
		if w.Label != "" {
			fmt.Fprintf(&sb, " [%s]", w.Label)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleLogAuditEvent appends to the agent's audit log.
func (h *Handlers) HandleLogAuditEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eventType := req.GetString("event_type", "")
	message := req.GetString("message", "")
	if eventType == "" || message == "" {
		return mcp.NewToolResultError("event_type and message are required"), nil
	}

	id, err := h.api.PostAudit(ctx, agentclient.AuditEvent{
		EventType: eventType,
		Message:   message,
		Metadata:  objectArg(req, "metadata"),
	})
	if err != nil {
		return toolError("Failed to log event", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Logged %s (id %s)", eventType, id)), nil
}

// HandleCreateInvoice issues an invoice. A missing chain_id is filled from
// the matching linked wallet.
func (h *Handlers) HandleCreateInvoice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	to := req.GetString("to_wallet_address", "")
	amount := req.GetString("amount", "")
	if to == "" || amount == "" {
		return mcp.NewToolResultError("to_wallet_address and amount are required"), nil
	}

	chainID, ok := intArg(req, "chain_id")
	if !ok {
		me, err := h.api.GetMe(ctx)
		if err != nil {
			return toolError("Failed to resolve wallet chain", err), nil
		}
		for _, w := range me.Wallets {
			if strings.EqualFold(w.WalletAddress, to) {
				chainID, ok = w.ChainID, true
				break
			}
		}
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("%s is not one of your linked wallets; pass chain_id explicitly", to)), nil
		}
	}

	in := agentclient.InvoiceRequest{
		ToWalletAddress: to,
		ChainID:         chainID,
		Amount:          amount,
		Memo:            req.GetString("memo", ""),
	}
	if token := req.GetString("token_address", ""); token != "" {
		in.TokenAddress = &token
	}

	res, err := h.api.PostInvoices(ctx, in)
	if err != nil {
		return toolError("Failed to create invoice", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Invoice %s issued\n", res.Invoice.ID)
	fmt.Fprintf(&sb, "Amount: %s", res.Invoice.Amount)
	if res.Invoice.TokenAddress != nil {
		fmt.Fprintf(&sb, " of %s", *res.Invoice.TokenAddress)
	}
	fmt.Fprintf(&sb, "\nPay to: %s (chain %d)\n", res.Invoice.ToWalletAddress, res.Invoice.ChainID)
	fmt.Fprintf(&sb, "Pay URL: %s", res.PayURL)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleProposeTransfer proposes a transfer and reports the next step.
func (h *Handlers) HandleProposeTransfer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := agentclient.TransferRequest{
		WalletAddress: req.GetString("wallet_address", ""),
		To:            req.GetString("to", ""),
		Token:         req.GetString("token", ""),
		Amount:        req.GetString("amount", ""),
		Context:       objectArg(req, "context"),
	}
	if in.WalletAddress == "" || in.To == "" || in.Token == "" || in.Amount == "" {
		return mcp.NewToolResultError("wallet_address, to, token and amount are required"), nil
	}

	res, err := h.api.ProposeTransfer(ctx, in)
	if err != nil {
		var apiErr *agentclient.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "POLICY_VIOLATION" {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Transfer rejected by wallet policy: %s. Use get_policy to see the limits.", apiErr.Message)), nil
		}
		return toolError("Failed to propose transfer", err), nil
	}

	var sb strings.Builder
	switch res.Mode {
	case agentclient.ModeSubmitted:
		fmt.Fprintf(&sb, "Proposal %s submitted (tx %s)\n", res.ProposalID, res.TxHash)
		if res.NeedsApproval {
			sb.WriteString("Status: waiting for the human owner to approve.\n")
		} else {
			sb.WriteString("Status: approved automatically. It can be executed now.\n")
		}
	default:
		sb.WriteString("Proposal prepared but not sent: the server holds no signing key.\n")
		fmt.Fprintf(&sb, "Send %s to %s with calldata:\n%s\n", res.FunctionName, res.ContractAddress, res.Calldata)
	}
	fmt.Fprintf(&sb, "Context hash: %s", res.ContextHash)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetTransfer reports a proposal's status.
func (h *Handlers) HandleGetTransfer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wallet := req.GetString("wallet_address", "")
	id := req.GetString("proposal_id", "")
	if wallet == "" || id == "" {
		return mcp.NewToolResultError("wallet_address and proposal_id are required"), nil
	}

	tr, err := h.api.GetTransfer(ctx, wallet, id)
	if err != nil {
		return toolError("Failed to get transfer", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Proposal %s: %s\nAmount: %s of %s\nTo: %s\nContext hash: %s",
		tr.ID, tr.Status, tr.Amount, tr.Token, tr.To, tr.ContextHash)), nil
}

// HandleGetPolicy shows the wallet's limits and today's spend.
func (h *Handlers) HandleGetPolicy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wallet := req.GetString("wallet_address", "")
	if wallet == "" {
		return mcp.NewToolResultError("wallet_address is required"), nil
	}

	v, err := h.api.GetPolicy(ctx, wallet)
	if err != nil {
		return toolError("Failed to get policy", err), nil
	}

	p := v.Policy
	var sb strings.Builder
	fmt.Fprintf(&sb, "Policy for %s\n", v.WalletAddress)
	fmt.Fprintf(&sb, "Max per transfer: %s\n", p.MaxAmount)
	if p.DailyCap == "" || p.DailyCap == "0" {
		sb.WriteString("Daily cap: none\n")
	} else {
		fmt.Fprintf(&sb, "Daily cap: %s (spent today: %s)\n", p.DailyCap, v.SpentToday)
	}
	if p.RequiresApproval {
		sb.WriteString("Approval: always required\n")
	} else {
		fmt.Fprintf(&sb, "Approval: required above %s\n", p.ApprovalThreshold)
	}
	if len(p.AllowedTargets) == 0 {
		sb.WriteString("Recipients: any\n")
	} else {
		fmt.Fprintf(&sb, "Recipients: %s\n", strings.Join(p.AllowedTargets, ", "))
	}
	if len(p.AllowedTokens) == 0 {
		sb.WriteString("Tokens: none allowed")
	} else {
		fmt.Fprintf(&sb, "Tokens: %s", strings.Join(p.AllowedTokens, ", "))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	var apiErr *agentclient.APIError
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("%s: %s (%s)", prefix, apiErr.Message, apiErr.Code)
		if len(apiErr.Details) > 0 {
			msg += "\nDetails: " + formatJSON(apiErr.Details)
		}
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func objectArg(req mcp.CallToolRequest, key string) map[string]interface{} {
	if m, ok := req.GetArguments()[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}

// intArg reads a JSON number argument. MCP clients send numbers as float64.
func intArg(req mcp.CallToolRequest, key string) (int64, bool) {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int64(v), v > 0
	case int:
		return int64(v), v > 0
	case int64:
		return v, v > 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n > 0
	}
	return 0, false
}

func formatJSON(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
