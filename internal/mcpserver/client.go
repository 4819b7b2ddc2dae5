package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the connection settings for the Spendgate intake API.
type Config struct {
	APIURL        string // Base URL, e.g. "http://localhost:8080"
	AgentIdentity string // The agent's own identity, e.g. "0x..."
}

// SpendgateClient is a pure HTTP client for the Spendgate API.
type SpendgateClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewSpendgateClient creates a new client for the Spendgate API.
func NewSpendgateClient(cfg Config) *SpendgateClient {
	return &SpendgateClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *SpendgateClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// SubmitOrder submits an order for evaluation and, when approved, settlement.
func (c *SpendgateClient) SubmitOrder(ctx context.Context, item, price, merchant string, quantity int) (json.RawMessage, error) {
	body := map[string]any{
		"intent":           "purchase",
		"item":             item,
		"price":            price,
		"quantity":         quantity,
		"userIdentity":     c.cfg.AgentIdentity,
		"merchantIdentity": merchant,
	}
	return c.doRequest(ctx, http.MethodPost, "/api/v1/orders", nil, body)
}

// GetBudget returns the agent's rolling spend window and order frequency.
func (c *SpendgateClient) GetBudget(ctx context.Context) (json.RawMessage, error) {
	path := "/api/v1/budget/" + c.cfg.AgentIdentity
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// ListDecisions returns the agent's recent decision log entries.
func (c *SpendgateClient) ListDecisions(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/decisions/" + c.cfg.AgentIdentity
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}
