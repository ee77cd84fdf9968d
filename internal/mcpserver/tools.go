package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Descriptions are what the LLM reads to decide which tool to use.

var ToolWhoAmI = mcp.NewTool("whoami",
	mcp.WithDescription(
		"Show which AgentOS agent you are signed in as and the governed wallets linked to you. "+
			"Call this first to learn the wallet_address the other tools need."),
)

var ToolLogAuditEvent = mcp.NewTool("log_audit_event",
	mcp.WithDescription(
		"Append an entry to your audit log. Use it to record decisions and actions "+
			"so the human owner can review what you did and why."),
	mcp.WithString("event_type",
		mcp.Required(),
		mcp.Description("Short machine-readable event name (e.g. 'task.started', 'quote.accepted')")),
	mcp.WithString("message",
		mcp.Required(),
		mcp.Description("Human-readable description of the event")),
	mcp.WithObject("metadata",
		mcp.Description("Optional structured details to store with the event")),
)

var ToolCreateInvoice = mcp.NewTool("create_invoice",
	mcp.WithDescription(
		"Issue an invoice payable to one of your linked wallets. Returns the invoice and a pay URL to share with the payer."),
	mcp.WithString("to_wallet_address",
		mcp.Required(),
		mcp.Description("Your linked wallet that receives the payment (0x...)")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount in the token's base units as a decimal integer string (e.g. '2500000' for 2.5 USDC)")),
	mcp.WithNumber("chain_id",
		mcp.Description("Chain ID of the wallet. Defaults to the wallet's linked chain.")),
	mcp.WithString("token_address",
		mcp.Description("ERC-20 token address. Omit for the native asset.")),
	mcp.WithString("memo",
		mcp.Description("Optional note shown to the payer")),
)

var ToolProposeTransfer = mcp.NewTool("propose_transfer",
	mcp.WithDescription(
		"Propose a token transfer from a governed wallet. The wallet's on-chain policy is checked first; "+
			"transfers above the approval threshold wait for the human owner to approve. "+
			"The context you pass is hashed and recorded on-chain with the proposal."),
	mcp.WithString("wallet_address",
		mcp.Required(),
		mcp.Description("Governed wallet to send from (0x...)")),
	mcp.WithString("to",
		mcp.Required(),
		mcp.Description("Recipient address (0x...)")),
	mcp.WithString("token",
		mcp.Required(),
		mcp.Description("ERC-20 token address (0x...)")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount in base units as a decimal integer string")),
	mcp.WithObject("context",
		mcp.Description("Why you are making this transfer. Stored off-chain, hashed on-chain.")),
)

var ToolGetTransfer = mcp.NewTool("get_transfer",
	mcp.WithDescription(
		"Look up a proposed transfer and its current status (pending, approved, rejected or executed)."),
	mcp.WithString("wallet_address",
		mcp.Required(),
		mcp.Description("Governed wallet the proposal belongs to (0x...)")),
	mcp.WithString("proposal_id",
		mcp.Required(),
		mcp.Description("Proposal ID returned by propose_transfer")),
)

var ToolGetPolicy = mcp.NewTool("get_policy",
	mcp.WithDescription(
		"Read a governed wallet's spending policy and how much has been spent today. "+
			"Use it before proposing to avoid transfers that will be rejected."),
	mcp.WithString("wallet_address",
		mcp.Required(),
		mcp.Description("Governed wallet address (0x...)")),
)
