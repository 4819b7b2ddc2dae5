// Package metrics provides Prometheus instrumentation for Spendgate.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spendgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts decision engine verdicts.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "decisions_total",
			Help:      "Total decision engine evaluations by verdict and risk tier.",
		},
		[]string{"decision", "risk_tier"},
	)

	// DecisionConfidence observes the confidence distribution of evaluations.
	DecisionConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "spendgate",
			Name:      "decision_confidence",
			Help:      "Confidence score distribution of decision engine evaluations.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// PipelineRunsTotal counts pipeline runs by terminal status.
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline runs by terminal status.",
		},
		[]string{"status"},
	)

	// StageDuration observes per-stage execution time.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spendgate",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage execution time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"stage"},
	)

	// BudgetCommitsTotal counts rolling-window ledger commits.
	BudgetCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "budget_commits_total",
			Help:      "Total spend commits applied to rolling-window ledgers.",
		},
	)

	// ActiveWebSocketClients tracks connected event stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spendgate",
			Name:      "active_websocket_clients",
			Help:      "Number of connected WebSocket event stream clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		DecisionConfidence,
		PipelineRunsTotal,
		StageDuration,
		BudgetCommitsTotal,
		ActiveWebSocketClients,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware records request counts and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		HTTPRequestsTotal.WithLabelValues(method, path, statusBucket(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// statusBucket collapses status codes into classes to bound cardinality.
func statusBucket(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
