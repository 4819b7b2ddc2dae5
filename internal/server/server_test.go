package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/spendgate/internal/config"
)

const (
	testUser        = "0x1111111111111111111111111111111111111111"
	testMerchant    = "0x4444444444444444444444444444444444444444"
	testMerchantBad = "0x44444444444444444444444444444444444444ff"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "development",
		LogLevel:             "error",
		MaxOrderAmount:       "1.00",
		DailySpendLimit:      "10.00",
		SpendWindow:          24 * time.Hour,
		BalanceBuffer:        "0.10",
		MaxOrdersPerHour:     10,
		OrderWindow:          time.Hour,
		BulkQuantity:         10,
		AllowedStartHour:     0,
		AllowedEndHour:       24,
		AutoApproveThreshold: 0.80,
		AutoRejectThreshold:  0.30,
		SignerSecret:         "test-secret",
		RateLimitRPS:         1000,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv, err := New(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { srv.limiter.Stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func fund(t *testing.T, srv *Server, identity, amount string) {
	t.Helper()
	w, _ := doJSON(t, srv, "POST", "/api/v1/simulator/fund", map[string]string{
		"identity": identity,
		"amount":   amount,
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func orderBody(price, merchant string) map[string]any {
	return map[string]any{
		"intent":           "purchase",
		"item":             "api-credits",
		"price":            price,
		"quantity":         1,
		"userIdentity":     testUser,
		"merchantIdentity": merchant,
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	w, body := doJSON(t, srv, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, _ = doJSON(t, srv, "GET", "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Run has not been called, so the server is not ready.
	w, _ = doJSON(t, srv, "GET", "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubmitOrder_ApprovedAndSettled(t *testing.T) {
	srv := newTestServer(t)
	fund(t, srv, testUser, "5.000000")

	w, body := doJSON(t, srv, "POST", "/api/v1/orders", orderBody("0.50", testMerchant))
	require.Equal(t, http.StatusOK, w.Code)

	decision := body["decision"].(map[string]any)
	assert.Equal(t, "approve", decision["decision"])

	run := body["pipelineRun"].(map[string]any)
	assert.Equal(t, "COMPLETED", run["status"])
	assert.NotEmpty(t, body["settlementRef"])
}

func TestSubmitOrder_RejectedOverCeiling(t *testing.T) {
	srv := newTestServer(t)
	fund(t, srv, testUser, "5.000000")

	w, body := doJSON(t, srv, "POST", "/api/v1/orders", orderBody("1.50", testMerchant))
	require.Equal(t, http.StatusOK, w.Code)

	decision := body["decision"].(map[string]any)
	assert.Equal(t, "reject", decision["decision"])
	assert.NotEmpty(t, body["errorMessage"])
	assert.Nil(t, body["pipelineRun"], "rejected orders must not reach the pipeline")
}

func TestSubmitOrder_UnfundedIdentityRejected(t *testing.T) {
	srv := newTestServer(t)

	w, body := doJSON(t, srv, "POST", "/api/v1/orders", orderBody("0.50", testMerchant))
	require.Equal(t, http.StatusOK, w.Code)

	decision := body["decision"].(map[string]any)
	assert.Equal(t, "reject", decision["decision"])
}

func TestSubmitOrder_SettlementFailureReported(t *testing.T) {
	srv := newTestServer(t)
	fund(t, srv, testUser, "5.000000")

	w, body := doJSON(t, srv, "POST", "/api/v1/orders", orderBody("0.50", testMerchantBad))
	require.Equal(t, http.StatusOK, w.Code)

	decision := body["decision"].(map[string]any)
	assert.Equal(t, "approve", decision["decision"])

	run := body["pipelineRun"].(map[string]any)
	assert.Equal(t, "FAILED", run["status"])
	assert.Contains(t, body["errorMessage"], "destination rejected")
}

func TestSubmitOrder_ValidationFailure(t *testing.T) {
	srv := newTestServer(t)

	w, body := doJSON(t, srv, "POST", "/api/v1/orders", map[string]any{
		"price":            "0.50",
		"userIdentity":     "not-an-identity",
		"merchantIdentity": testMerchant,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", body["error"])

	fields := body["fields"].([]any)
	assert.GreaterOrEqual(t, len(fields), 2) // missing item, bad identity
}

func TestSubmitOrder_MalformedJSON(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/orders", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBudgetEndpoint_ReflectsCommittedSpend(t *testing.T) {
	srv := newTestServer(t)
	fund(t, srv, testUser, "5.000000")

	w, _ := doJSON(t, srv, "POST", "/api/v1/orders", orderBody("0.50", testMerchant))
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, srv, "GET", "/api/v1/budget/"+testUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0.500000", body["committed"])
	assert.Equal(t, "0.000000", body["reserved"])
	assert.Equal(t, "10.000000", body["ceiling"])
	assert.Equal(t, float64(1), body["recentOrders"])
}

func TestBudgetEndpoint_InvalidIdentity(t *testing.T) {
	srv := newTestServer(t)

	w, body := doJSON(t, srv, "GET", "/api/v1/budget/not-an-identity", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_identity", body["error"])
}

func TestDecisionsEndpoint_ListsEvaluations(t *testing.T) {
	srv := newTestServer(t)
	fund(t, srv, testUser, "5.000000")

	w, _ := doJSON(t, srv, "POST", "/api/v1/orders", orderBody("0.50", testMerchant))
	require.Equal(t, http.StatusOK, w.Code)

	// Decision persistence is asynchronous; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		w, body := doJSON(t, srv, "GET", fmt.Sprintf("/api/v1/decisions/%s?limit=5", testUser), nil)
		require.Equal(t, http.StatusOK, w.Code)
		if list, ok := body["decisions"].([]any); ok && len(list) > 0 {
			entry := list[0].(map[string]any)
			assert.Equal(t, "approve", entry["decision"])
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("decision was never persisted")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSimulatorFund_Validation(t *testing.T) {
	srv := newTestServer(t)

	w, body := doJSON(t, srv, "POST", "/api/v1/simulator/fund", map[string]string{
		"identity": testUser,
		"amount":   "-1.00",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", body["error"])
}

func TestSecurityHeadersPresent(t *testing.T) {
	srv := newTestServer(t)

	w, _ := doJSON(t, srv, "GET", "/health", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
