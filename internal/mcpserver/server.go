// Package mcpserver exposes the Agent API to LLM agents as MCP tools. Every
// tool call is a signed request made with the agent's own key.
package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/agentos/agentos/pkg/agentclient"
)

// Config configures the MCP server.
type Config struct {
	APIURL     string
	PrivateKey string
	Version    string
}

// NewMCPServer creates a configured MCP server with all AgentOS tools registered.
func NewMCPServer(cfg Config) (*server.MCPServer, error) {
	key, err := agentclient.ParseKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("agent private key: %w", err)
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := server.NewMCPServer("agentos", version)
	Register(s, NewHandlers(agentclient.New(cfg.APIURL, key)))
	return s, nil
}

// Register adds every tool to s.
func Register(s *server.MCPServer, h *Handlers) {
	s.AddTool(ToolWhoAmI, h.HandleWhoAmI)
	s.AddTool(ToolLogAuditEvent, h.HandleLogAuditEvent)
	s.AddTool(ToolCreateInvoice, h.HandleCreateInvoice)
	s.AddTool(ToolProposeTransfer, h.HandleProposeTransfer)
	s.AddTool(ToolGetTransfer, h.HandleGetTransfer)
	s.AddTool(ToolGetPolicy, h.HandleGetPolicy)
}
