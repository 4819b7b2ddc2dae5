// Spendgate MCP Server - exposes the policy gate as MCP tools for LLM agents
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/spendgate/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:        envOrDefault("SPENDGATE_API_URL", "http://localhost:8080"),
		AgentIdentity: os.Getenv("SPENDGATE_AGENT_IDENTITY"),
	}

	if cfg.AgentIdentity == "" {
		fmt.Fprintln(os.Stderr, "SPENDGATE_AGENT_IDENTITY is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
