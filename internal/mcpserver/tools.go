package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Spendgate MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolSubmitOrder = mcp.NewTool("submit_order",
	mcp.WithDescription(
		"Submit a purchase order through the policy gate. "+
			"The order is evaluated against spending limits, balance, and order frequency; "+
			"approved orders settle immediately and return a settlement reference. "+
			"Rejected orders return the reasoning and suggestions for getting an approvable order."),
	mcp.WithString("item",
		mcp.Required(),
		mcp.Description("What is being purchased (e.g. 'api-credits')")),
	mcp.WithString("price",
		mcp.Required(),
		mcp.Description("Unit price in USDC as a decimal string (e.g. '0.50')")),
	mcp.WithString("merchant",
		mcp.Required(),
		mcp.Description("Merchant identity receiving payment (e.g. '0x1234...')")),
	mcp.WithNumber("quantity",
		mcp.Description("Number of units (default 1)")),
)

var ToolCheckBudget = mcp.NewTool("check_budget",
	mcp.WithDescription(
		"Check your remaining spending budget. "+
			"Shows committed spend, in-flight reservations, the rolling-window ceiling, "+
			"and how many orders you have placed in the current frequency window. "+
			"Use this before submitting orders to avoid rejections."),
)

var ToolListDecisions = mcp.NewTool("list_decisions",
	mcp.WithDescription(
		"List recent policy decisions for your identity. "+
			"Each entry shows the verdict, confidence, risk tier, and the per-check reasoning "+
			"that produced it. Useful for understanding why orders were rejected."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of decisions to return (default 10)")),
)
