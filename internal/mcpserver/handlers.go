package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *SpendgateClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *SpendgateClient) *Handlers {
	return &Handlers{client: client}
}

// HandleSubmitOrder submits an order and reports the outcome.
func (h *Handlers) HandleSubmitOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	item := req.GetString("item", "")
	if item == "" {
		return mcp.NewToolResultError("item is required"), nil
	}
	price := req.GetString("price", "")
	if price == "" {
		return mcp.NewToolResultError("price is required"), nil
	}
	merchant := req.GetString("merchant", "")
	if merchant == "" {
		return mcp.NewToolResultError("merchant is required"), nil
	}
	quantity := req.GetInt("quantity", 1)

	raw, err := h.client.SubmitOrder(ctx, item, price, merchant, quantity)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Order submission failed: %v", err)), nil
	}

	text, err := formatSubmission(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse submission result: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCheckBudget returns the agent's budget state.
func (h *Handlers) HandleCheckBudget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetBudget(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check budget: %v", err)), nil
	}

	text, err := formatBudget(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse budget: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListDecisions lists recent policy decisions.
func (h *Handlers) HandleListDecisions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)

	raw, err := h.client.ListDecisions(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list decisions: %v", err)), nil
	}

	text, err := formatDecisionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decisions: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// ---------------------------------------------------------------------------
// response formatting
// ---------------------------------------------------------------------------

type decisionView struct {
	Verdict     string  `json:"decision"`
	Confidence  float64 `json:"confidence"`
	RiskTier    string  `json:"riskTier"`
	Summary     string  `json:"summary"`
	Suggestions []string `json:"suggestions"`
	Reasoning   []struct {
		Check   string `json:"check"`
		Outcome string `json:"outcome"`
		Detail  string `json:"detail"`
	} `json:"reasoning"`
}

type submissionView struct {
	Decision decisionView `json:"decision"`
	Run      *struct {
		ID     string `json:"runId"`
		Status string `json:"status"`
	} `json:"pipelineRun"`
	SettlementRef string `json:"settlementRef"`
	ErrorMessage  string `json:"errorMessage"`
}

func formatSubmission(raw json.RawMessage) (string, error) {
	var sub submissionView
	if err := json.Unmarshal(raw, &sub); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Verdict: %s (confidence %.2f, risk %s)\n",
		sub.Decision.Verdict, sub.Decision.Confidence, sub.Decision.RiskTier)
	fmt.Fprintf(&sb, "Summary: %s\n", sub.Decision.Summary)

	if sub.Run != nil {
		fmt.Fprintf(&sb, "\nPipeline run %s finished with status %s\n", sub.Run.ID, sub.Run.Status)
		if sub.SettlementRef != "" {
			fmt.Fprintf(&sb, "Settlement reference: %s\n", sub.SettlementRef)
		}
	}
	if sub.ErrorMessage != "" && (sub.Run == nil || sub.Run.Status != "COMPLETED") {
		fmt.Fprintf(&sb, "\nError: %s\n", sub.ErrorMessage)
	}

	if len(sub.Decision.Reasoning) > 0 {
		sb.WriteString("\nReasoning:\n")
		for _, step := range sub.Decision.Reasoning {
			fmt.Fprintf(&sb, "  [%s] %s: %s\n", step.Outcome, step.Check, step.Detail)
		}
	}
	if len(sub.Decision.Suggestions) > 0 {
		sb.WriteString("\nSuggestions:\n")
		for _, s := range sub.Decision.Suggestions {
			fmt.Fprintf(&sb, "  - %s\n", s)
		}
	}

	return sb.String(), nil
}

func formatBudget(raw json.RawMessage) (string, error) {
	var b struct {
		Identity     string `json:"identity"`
		Committed    string `json:"committed"`
		Reserved     string `json:"reserved"`
		Ceiling      string `json:"ceiling"`
		RecentOrders int    `json:"recentOrders"`
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Budget for %s:\n", b.Identity)
	fmt.Fprintf(&sb, "  Committed spend: %s USDC\n", b.Committed)
	fmt.Fprintf(&sb, "  Reserved (in-flight): %s USDC\n", b.Reserved)
	fmt.Fprintf(&sb, "  Rolling-window ceiling: %s USDC\n", b.Ceiling)
	fmt.Fprintf(&sb, "  Orders in current window: %d\n", b.RecentOrders)
	return sb.String(), nil
}

func formatDecisionList(raw json.RawMessage) (string, error) {
	var resp struct {
		Identity  string         `json:"identity"`
		Decisions []decisionView `json:"decisions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Decisions) == 0 {
		return "No decisions recorded for " + resp.Identity, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recent decisions for %s:\n\n", resp.Identity)
	for i, d := range resp.Decisions {
		fmt.Fprintf(&sb, "%d. %s (confidence %.2f, risk %s)\n", i+1, d.Verdict, d.Confidence, d.RiskTier)
		fmt.Fprintf(&sb, "   %s\n", d.Summary)
	}
	return sb.String(), nil
}
