package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/spendgate/internal/decision"
	"github.com/mbd888/spendgate/internal/money"
	"github.com/mbd888/spendgate/internal/pipeline"
	"github.com/mbd888/spendgate/internal/validation"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)
	s.healthy.Store(healthy)

	code := http.StatusOK
	status := "healthy"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "unhealthy"
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": statuses,
	})
}

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) handleReady(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleSubmitOrder is the intake contract: evaluate the order, and when the
// verdict approves, drive it through the pipeline in the same request.
func (s *Server) handleSubmitOrder(c *gin.Context) {
	var in pipeline.Intake
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be valid JSON",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("item", in.Item),
		validation.MaxLength("item", in.Item, validation.MaxItemLength),
		validation.Required("price", in.Price),
		validation.PositiveAmount("price", in.Price),
		validation.AcceptedCurrency("currency", in.Currency),
		validation.Required("userIdentity", in.UserIdentity),
		validation.ValidIdentity("userIdentity", in.UserIdentity),
		validation.Required("merchantIdentity", in.MerchantIdentity),
		validation.ValidIdentity("merchantIdentity", in.MerchantIdentity),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": errs,
		})
		return
	}
	in.Item = validation.SanitizeString(in.Item, validation.MaxItemLength)

	sub, err := s.service.Submit(c.Request.Context(), &in)
	if err != nil {
		s.renderSubmitError(c, err)
		return
	}

	s.hub.BroadcastDecision(sub.Decision.Identity, string(sub.Decision.Verdict),
		string(sub.Decision.RiskTier), sub.Decision.Confidence)
	if sub.Run != nil {
		s.hub.BroadcastRun(sub.Run.Order.UserIdentity, sub.Run.ID, sub.Run.OrderID,
			string(sub.Run.Status), sub.Run.SettlementRef)
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) renderSubmitError(c *gin.Context, err error) {
	var sysErr *pipeline.SystemError
	switch {
	case errors.Is(err, decision.ErrInvalidContext):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_order",
			"message": err.Error(),
		})
	case errors.As(err, &sysErr):
		s.logger.Error("order submission failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "subsystem_unavailable",
			"message": "a required subsystem is unavailable, retry later",
		})
	default:
		s.logger.Error("order submission failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// handleBudget reports the identity's rolling spend window and order frequency.
func (s *Server) handleBudget(c *gin.Context) {
	identity := c.Param("identity")

	snap, err := s.book.Snapshot(c.Request.Context(), identity)
	if err != nil {
		s.logger.Error("budget snapshot failed", "identity", identity, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	attempts, err := s.book.AttemptCount(c.Request.Context(), identity)
	if err != nil {
		s.logger.Error("attempt count failed", "identity", identity, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity":        snap.Identity,
		"windowStartedAt": snap.WindowStartedAt,
		"committed":       snap.Committed,
		"reserved":        snap.Reserved,
		"ceiling":         money.Format(s.book.Ceiling()),
		"recentOrders":    attempts,
	})
}

// handleDecisions lists the identity's recent decision log entries.
func (s *Server) handleDecisions(c *gin.Context) {
	identity := c.Param("identity")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	results, err := s.decisions.ListByIdentity(c.Request.Context(), identity, limit)
	if err != nil {
		s.logger.Error("decision list failed", "identity", identity, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity":  identity,
		"decisions": results,
	})
}

// handleSimulatorFund sets a simulated balance. Registered only in simulator
// mode outside production.
func (s *Server) handleSimulatorFund(c *gin.Context) {
	var req struct {
		Identity string `json:"identity"`
		Amount   string `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if errs := validation.Validate(
		validation.Required("identity", req.Identity),
		validation.ValidIdentity("identity", req.Identity),
		validation.Required("amount", req.Amount),
		validation.PositiveAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": errs,
		})
		return
	}

	s.sim.Fund(req.Identity, req.Amount)
	c.JSON(http.StatusOK, gin.H{
		"identity": req.Identity,
		"balance":  req.Amount,
	})
}
