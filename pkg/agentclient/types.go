package agentclient

import (
	"encoding/json"
	"time"
)

// Health is the unauthenticated readiness report.
type Health struct {
	Name                string `json:"name"`
	Version             string `json:"version"`
	Now                 string `json:"now"`
	ServerSignerEnabled bool   `json:"serverSignerEnabled"`
	ReplayStrict        bool   `json:"replayStrict"`
}

// Handshake describes how the server expects requests to be signed.
type Handshake struct {
	AgentAddress string `json:"agentAddress"`
	Auth         struct {
		BasePath                 string   `json:"basePath"`
		Headers                  []string `json:"headers"`
		CanonicalMessageTemplate string   `json:"canonicalMessageTemplate"`
		TimestampSkewSeconds     int      `json:"timestampSkewSeconds"`
		ReplayProtection         struct {
			Enabled   bool   `json:"enabled"`
			Strict    bool   `json:"strict"`
			KeyFormat string `json:"keyFormat"`
		} `json:"replayProtection"`
	} `json:"auth"`
}

// Agent is the registered identity behind a signing key.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OwnerAddress string    `json:"owner_address"`
	CreatedAt    time.Time `json:"created_at"`
}

// Wallet is a governed wallet linked to the agent.
type Wallet struct {
	ID            string `json:"id"`
	WalletAddress string `json:"wallet_address"`
	ChainID       int64  `json:"chain_id"`
	Label         string `json:"label"`
}

// Me is the response of GET /me.
type Me struct {
	Agent   Agent    `json:"agent"`
	Wallets []Wallet `json:"wallets"`
}

// AuditEvent is an entry for the agent's audit log.
type AuditEvent struct {
	EventType string                 `json:"event_type"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// InvoiceRequest asks for an invoice against a linked wallet.
type InvoiceRequest struct {
	AgentID         string  `json:"agent_id,omitempty"`
	ToWalletAddress string  `json:"to_wallet_address"`
	ChainID         int64   `json:"chain_id"`
	TokenAddress    *string `json:"token_address,omitempty"`
	Amount          string  `json:"amount"`
	Memo            string  `json:"memo,omitempty"`
}

// Invoice is an issued invoice.
type Invoice struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	ToWalletAddress string    `json:"to_wallet_address"`
	Amount          string    `json:"amount"`
	TokenAddress    *string   `json:"token_address"`
	ChainID         int64     `json:"chain_id"`
	Status          string    `json:"status"`
	Memo            string    `json:"memo,omitempty"`
	TxHash          *string   `json:"tx_hash,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// InvoiceResult carries the invoice and the link a payer opens.
type InvoiceResult struct {
	Invoice Invoice `json:"invoice"`
	PayURL  string  `json:"pay_url"`
}

// TransferRequest proposes a transfer from a governed wallet.
type TransferRequest struct {
	WalletAddress string                 `json:"wallet_address"`
	To            string                 `json:"to"`
	Token         string                 `json:"token"`
	Amount        string                 `json:"amount"`
	Context       map[string]interface{} `json:"context,omitempty"`
}

// Mode says who sends the wallet transaction.
type Mode string

const (
	// ModeSubmitted means the server signed and sent the transaction.
	ModeSubmitted Mode = "submitted"
	// ModePrepared means the caller must sign and send Calldata to ContractAddress.
	ModePrepared Mode = "prepared"
)

// ProposeResult is the response of POST /transfers/propose.
type ProposeResult struct {
	Mode            Mode              `json:"mode"`
	ProposalID      string            `json:"proposalId,omitempty"`
	TxHash          string            `json:"txHash,omitempty"`
	ContractAddress string            `json:"contractAddress,omitempty"`
	Calldata        string            `json:"calldata,omitempty"`
	FunctionName    string            `json:"functionName,omitempty"`
	Args            map[string]string `json:"args,omitempty"`
	ContextHash     string            `json:"contextHash"`
	NeedsApproval   bool              `json:"needsApproval"`
}

// ActionResult is the response of approve, reject and execute.
type ActionResult struct {
	Mode            Mode              `json:"mode"`
	ProposalID      string            `json:"proposalId"`
	CurrentStatus   string            `json:"currentStatus"`
	TxHash          string            `json:"txHash,omitempty"`
	ContractAddress string            `json:"contractAddress,omitempty"`
	Calldata        string            `json:"calldata,omitempty"`
	FunctionName    string            `json:"functionName,omitempty"`
	Args            map[string]string `json:"args,omitempty"`
}

// Transfer is a proposal as stored by the wallet contract.
type Transfer struct {
	ID          string `json:"id"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	Token       string `json:"token"`
	ContextHash string `json:"contextHash"`
	ProposedAt  string `json:"proposedAt"`
	Status      string `json:"status"`
}

// Policy is a wallet's spending policy. Amounts are decimal strings.
type Policy struct {
	MaxAmount         string   `json:"maxAmount"`
	DailyCap          string   `json:"dailyCap"`
	RequiresApproval  bool     `json:"requiresApproval"`
	ApprovalThreshold string   `json:"approvalThreshold"`
	AllowedTargets    []string `json:"allowedTargets"`
	AllowedTokens     []string `json:"allowedTokens"`
}

// PolicyView is the response of GET /policy.
type PolicyView struct {
	WalletAddress string `json:"walletAddress"`
	Policy        Policy `json:"policy"`
	Day           uint64 `json:"day"`
	SpentToday    string `json:"spentToday"`
}

// Simulation is the server's verdict on a hypothetical transfer.
type Simulation struct {
	Allowed       bool   `json:"allowed"`
	NeedsApproval bool   `json:"needsApproval"`
	Reason        string `json:"reason,omitempty"`
	Day           uint64 `json:"day,omitempty"`
	SpentToday    string `json:"spentToday,omitempty"`
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}
