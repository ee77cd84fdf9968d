// AgentOS MCP server: exposes the signed Agent API as MCP tools over stdio.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentos/agentos/internal/logging"
	"github.com/agentos/agentos/internal/mcpserver"
)

// Version is set at build time.
var Version = "dev"

func main() {
	_ = godotenv.Load()

	// stdout carries the MCP protocol; logs go to stderr.
	logger := logging.NewWriter(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg := mcpserver.Config{
		APIURL:     envOrDefault("AGENTOS_API_URL", "http://localhost:8080"),
		PrivateKey: os.Getenv("AGENTOS_AGENT_PRIVATE_KEY"),
		Version:    Version,
	}
	if cfg.PrivateKey == "" {
		logger.Error("AGENTOS_AGENT_PRIVATE_KEY is required")
		os.Exit(1)
	}

	s, err := mcpserver.NewMCPServer(cfg)
	if err != nil {
		logger.Error("failed to create MCP server", "error", err)
		os.Exit(1)
	}
	logger.Info("serving MCP over stdio", "api_url", cfg.APIURL, "version", Version)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("MCP server stopped", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
