package agentapi

import "github.com/agentos/agentos/internal/agentauth"

type doc = map[string]interface{}

var envelopeSchema = doc{
	"oneOf": []doc{
		{
			"type":       "object",
			"properties": doc{"ok": doc{"enum": []bool{true}}, "data": doc{}},
			"required":   []string{"ok", "data"},
		},
		{
			"type": "object",
			"properties": doc{
				"ok": doc{"enum": []bool{false}},
				"error": doc{
					"type": "object",
					"properties": doc{
						"code":    doc{"type": "string"},
						"message": doc{"type": "string"},
						"details": doc{},
					},
					"required": []string{"code", "message"},
				},
			},
			"required": []string{"ok", "error"},
		},
	},
}

func jsonBody(required []string, props doc) doc {
	return doc{
		"required": true,
		"content": doc{
			"application/json": doc{
				"schema": doc{"type": "object", "required": required, "properties": props},
			},
		},
	}
}

func responses(extra ...string) doc {
	r := doc{
		"200": doc{"description": "Success", "content": doc{"application/json": doc{"schema": doc{"$ref": "#/components/schemas/AgentApiEnvelope"}}}},
		"401": doc{"description": "Auth error (UNAUTHORIZED)"},
	}
	for i := 0; i+1 < len(extra); i += 2 {
		r[extra[i]] = doc{"description": extra[i+1]}
	}
	return r
}

func op(id, summary, description string, signed bool) doc {
	o := doc{"operationId": id, "summary": summary, "description": description}
	if signed {
		o["security"] = []doc{{"agentSigned": []string{}}}
	} else {
		o["security"] = []doc{}
	}
	return o
}

func with(o doc, kv ...interface{}) doc {
	for i := 0; i+1 < len(kv); i += 2 {
		o[kv[i].(string)] = kv[i+1]
	}
	return o
}

var (
	str     = doc{"type": "string"}
	address = doc{"type": "string", "pattern": "^0x[a-fA-F0-9]{40}$"}
	uint256 = doc{"type": "string", "pattern": "^[0-9]+$"}
	walletQ = []doc{{"name": "wallet_address", "in": "query", "required": true, "schema": address}}
	idPath  = doc{"name": "id", "in": "path", "required": true, "schema": uint256}
)

func proposalAction(id, fn, who string) doc {
	return doc{"post": with(op(id, fn, "Prepares "+fn+"(uint256) after checking the proposal status and that the signer is the wallet's "+who+".", true),
		"parameters", []doc{idPath},
		"requestBody", jsonBody([]string{"wallet_address"}, doc{"wallet_address": address}),
		"responses", responses("403", "Signer lacks the role (FORBIDDEN)", "404", "Proposal not found", "409", "Not allowed from the current status (CONFLICT)"),
	)}
}

// Document returns the OpenAPI 3.0 description of the Agent API.
func Document(version string) doc {
	paths := doc{
		"/health": doc{"get": with(op("getHealth", "Health", "Readiness and configuration flags. No auth.", false),
			"responses", doc{"200": doc{"description": "Success"}})},
		"/openapi": doc{"get": with(op("getOpenAPI", "OpenAPI document", "This document. No auth.", false),
			"responses", doc{"200": doc{"description": "OpenAPI 3.0 JSON"}})},
		"/handshake": doc{"get": with(op("getHandshake", "Auth handshake", "Echoes the agent address and describes request signing.", true),
			"responses", responses())},
		"/me": doc{"get": with(op("getMe", "Who am I", "Agent identity and linked wallets.", true),
			"responses", responses("404", "No agent for this address (AGENT_NOT_FOUND)"))},
		"/audit": doc{
			"post": with(op("postAudit", "Log audit event", "Appends an entry to the agent's audit log.", true),
				"requestBody", jsonBody([]string{"event_type", "message"}, doc{
					"event_type": str, "message": str, "metadata": doc{"type": "object"},
				}),
				"responses", responses("400", "Validation error")),
			"get": with(op("getAudit", "Read audit log", "The agent's most recent entries, newest first.", true),
				"responses", responses()),
		},
		"/invoices": doc{"post": with(op("postInvoices", "Create invoice", "Creates an issued invoice for a linked wallet. Returns invoice and pay_url.", true),
			"requestBody", jsonBody([]string{"to_wallet_address", "chain_id", "amount"}, doc{
				"agent_id":          doc{"type": "string", "format": "uuid"},
				"to_wallet_address": address,
				"chain_id":          doc{"type": "integer"},
				"token_address":     doc{"type": "string", "nullable": true},
				"amount":            uint256,
				"memo":              str,
			}),
			"responses", responses("400", "Validation error or WALLET_NOT_LINKED", "403", "agent_id mismatch (FORBIDDEN)"))},
		"/policy": doc{"get": with(op("getPolicy", "Wallet policy", "Advisory view of the wallet policy and today's spend.", true),
			"parameters", walletQ,
			"responses", responses("400", "Validation error or WALLET_NOT_LINKED"))},
		"/policy/simulate": doc{"post": with(op("simulateTransfer", "Simulate transfer", "Runs the policy pre-check without proposing.", true),
			"requestBody", jsonBody([]string{"wallet_address", "to", "token", "amount"}, doc{
				"wallet_address": address, "to": address, "token": address, "amount": uint256,
			}),
			"responses", responses("400", "Validation error"))},
		"/transfers/propose": doc{"post": with(op("postTransfersPropose", "Propose transfer",
			"Creates a governed-wallet proposal. With a server signer: mode=submitted. Otherwise: mode=prepared with calldata for the client.", true),
			"requestBody", jsonBody([]string{"wallet_address", "to", "token", "amount"}, doc{
				"wallet_address": address, "to": address, "token": address, "amount": uint256,
				"context": doc{"type": "object"},
			}),
			"responses", responses("400", "Validation error or POLICY_VIOLATION", "409", "Transaction reverted (CONFLICT)"))},
		"/transfers/{id}": doc{"get": with(op("getTransfer", "Read proposal", "Reads a proposal from the wallet contract.", true),
			"parameters", append([]doc{idPath}, walletQ...),
			"responses", responses("404", "Proposal not found"))},
		"/transfers/{id}/approve": proposalAction("approveTransfer", "approveTransfer", "human"),
		"/transfers/{id}/reject":  proposalAction("rejectTransfer", "rejectTransfer", "human"),
		"/transfers/{id}/execute": proposalAction("executeTransfer", "executeTransfer", "agent"),
		"/stream": doc{"get": with(op("getStream", "Event stream", "WebSocket stream of the agent's audit and proposal events.", true),
			"responses", doc{"101": doc{"description": "Switching protocols"}, "401": doc{"description": "Auth error"}})},
	}

	return doc{
		"openapi": "3.0.0",
		"info": doc{
			"title":       Name,
			"version":     version,
			"description": "Agent-facing API. Requests are authenticated with signed message headers.",
		},
		"servers":  []doc{{"url": BasePath, "description": "Agent API base"}},
		"security": []doc{{"agentSigned": []string{}}},
		"components": doc{
			"securitySchemes": doc{
				"agentSigned": doc{
					"type": "apiKey",
					"in":   "header",
					"name": agentauth.HeaderAddress,
					"description": "Signed message auth: " + agentauth.HeaderAddress + ", " + agentauth.HeaderSignature + ", " +
						agentauth.HeaderTimestamp + ". Canonical message: " + agentauth.MessageTemplate,
				},
			},
			"schemas": doc{"AgentApiEnvelope": envelopeSchema},
		},
		"paths": paths,
	}
}
