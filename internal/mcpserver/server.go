package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Spendgate tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("spendgate", "1.0.0")
	client := NewSpendgateClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolSubmitOrder, h.HandleSubmitOrder)
	s.AddTool(ToolCheckBudget, h.HandleCheckBudget)
	s.AddTool(ToolListDecisions, h.HandleListDecisions)

	return s
}
