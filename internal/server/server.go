// Package server wires the policy-gated payment pipeline into an HTTP API.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/mbd888/spendgate/internal/attest"
	"github.com/mbd888/spendgate/internal/budget"
	"github.com/mbd888/spendgate/internal/config"
	"github.com/mbd888/spendgate/internal/decision"
	"github.com/mbd888/spendgate/internal/health"
	"github.com/mbd888/spendgate/internal/logging"
	"github.com/mbd888/spendgate/internal/metrics"
	"github.com/mbd888/spendgate/internal/pipeline"
	"github.com/mbd888/spendgate/internal/ratelimit"
	"github.com/mbd888/spendgate/internal/realtime"
	"github.com/mbd888/spendgate/internal/retry"
	"github.com/mbd888/spendgate/internal/security"
	"github.com/mbd888/spendgate/internal/settlement"
	"github.com/mbd888/spendgate/internal/validation"
)

// maxRequestBody bounds intake payload size.
const maxRequestBody = 64 * 1024

// Server is the HTTP front end: decision engine, budget book, and pipeline
// behind a gin router.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db        *sql.DB // nil when running on in-memory stores
	book      *budget.Book
	decisions decision.Store
	service   *pipeline.Service
	executor  settlement.Executor
	balances  settlement.BalanceProvider
	sim       *settlement.Simulator // non-nil in simulator mode

	hub     *realtime.Hub
	hubStop context.CancelFunc
	limiter *ratelimit.Limiter
	checks  *health.Registry

	router  *gin.Engine
	httpSrv *http.Server

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithExecutor injects a settlement executor and balance provider, bypassing
// the config-driven selection. Used by tests.
func WithExecutor(executor settlement.Executor, balances settlement.BalanceProvider) Option {
	return func(s *Server) {
		s.executor = executor
		s.balances = balances
	}
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		format := "text"
		if cfg.IsProduction() {
			format = "json"
		}
		s.logger = logging.New(cfg.LogLevel, format)
	}

	if err := s.setupStores(); err != nil {
		return nil, err
	}
	if err := s.setupSettlement(); err != nil {
		return nil, err
	}
	if err := s.setupPipeline(); err != nil {
		return nil, err
	}

	s.hub = realtime.NewHub(s.logger)
	s.limiter = ratelimit.New(ratelimit.Config{
		RequestsPerSecond: float64(cfg.RateLimitRPS),
		BurstSize:         cfg.RateLimitRPS * 2,
		CleanupInterval:   time.Minute,
	})
	s.setupHealthChecks()
	s.setupRouter()

	s.healthy.Store(true)
	return s, nil
}

// setupStores selects Postgres when DATABASE_URL is configured, otherwise
// in-memory stores suitable for development and tests.
func (s *Server) setupStores() error {
	limits := budget.Limits{
		SpendCeiling: s.cfg.DailySpendLimit,
		SpendWindow:  s.cfg.SpendWindow,
		OrderWindow:  s.cfg.OrderWindow,
	}

	var store budget.Store
	if s.cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", s.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		// The database may still be coming up alongside us.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := retry.Do(ctx, 5, time.Second, func() error {
			return db.PingContext(ctx)
		}); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}

		pgBudget := budget.NewPostgresStore(db, s.cfg.SpendWindow, s.cfg.OrderWindow)
		if err := pgBudget.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate budget store: %w", err)
		}
		pgDecisions := decision.NewPostgresStore(db)
		if err := pgDecisions.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate decision store: %w", err)
		}

		s.db = db
		store = pgBudget
		s.decisions = pgDecisions
		s.logger.Info("using postgres stores")
	} else {
		store = budget.NewMemoryStore(s.cfg.SpendWindow, s.cfg.OrderWindow)
		s.decisions = decision.NewMemoryStore()
		s.logger.Info("using in-memory stores (set DATABASE_URL for persistence)")
	}

	book, err := budget.New(store, limits)
	if err != nil {
		return err
	}
	s.book = book
	return nil
}

// setupSettlement picks the on-chain executor when RPC settlement is
// configured, the simulator otherwise.
func (s *Server) setupSettlement() error {
	if s.executor != nil {
		return nil // injected
	}

	if s.cfg.OnchainSettlement() {
		onchain, err := settlement.NewOnchain(settlement.OnchainConfig{
			RPCURL:       s.cfg.RPCURL,
			PrivateKey:   s.cfg.PrivateKey,
			ChainID:      s.cfg.ChainID,
			TokenAddress: s.cfg.USDCContract,
		})
		if err != nil {
			return fmt.Errorf("onchain settlement: %w", err)
		}
		// Guard the RPC path: repeated transport failures to a destination
		// open its circuit instead of hammering the node.
		s.executor = settlement.NewGuarded(onchain, 5, 30*time.Second)
		s.balances = onchain
		s.logger.Info("using on-chain settlement", "chainId", s.cfg.ChainID, "address", onchain.Address())
		return nil
	}

	sim := settlement.NewSimulator()
	s.sim = sim
	s.executor = sim
	s.balances = sim
	s.logger.Info("using settlement simulator (set RPC_URL for on-chain settlement)")
	return nil
}

func (s *Server) setupPipeline() error {
	engine, err := decision.NewEngine(decision.Limits{
		MaxOrderAmount:   s.cfg.MaxOrderAmount,
		DailySpendLimit:  s.cfg.DailySpendLimit,
		BalanceBuffer:    s.cfg.BalanceBuffer,
		MaxOrdersPerHour: s.cfg.MaxOrdersPerHour,
		BulkQuantity:     s.cfg.BulkQuantity,
		AllowedStartHour: s.cfg.AllowedStartHour,
		AllowedEndHour:   s.cfg.AllowedEndHour,
	}, s.decisions)
	if err != nil {
		return err
	}
	engine = engine.
		WithThresholds(s.cfg.AutoApproveThreshold, s.cfg.AutoRejectThreshold).
		WithRecorder(s.book).
		WithLogger(s.logger)

	secret := s.cfg.SignerSecret
	if secret == "" {
		if s.cfg.IsProduction() {
			return errors.New("SIGNER_SECRET is required in production")
		}
		secret = randomHex(32)
		s.logger.Warn("SIGNER_SECRET not set, using an ephemeral secret; attestations will not survive restarts")
	}
	signer, err := attest.NewHMACSigner(secret)
	if err != nil {
		return err
	}

	reception := pipeline.NewReception(s.logger)
	approval, err := pipeline.NewApproval(s.book, signer, s.cfg.MaxOrderAmount, s.logger)
	if err != nil {
		return err
	}
	payment := pipeline.NewPayment(s.executor, signer, s.cfg.USDCContract, s.logger)

	orch, err := pipeline.NewOrchestrator(reception, approval, payment, s.book, s.logger)
	if err != nil {
		return err
	}

	service, err := pipeline.NewService(engine, orch, s.book, s.balances, s.logger)
	if err != nil {
		return err
	}
	s.service = service
	return nil
}

func (s *Server) setupHealthChecks() {
	s.checks = health.NewRegistry()

	s.checks.Register("store", func(ctx context.Context) (string, error) {
		if s.db == nil {
			return "in-memory", nil
		}
		if err := s.db.PingContext(ctx); err != nil {
			return "", err
		}
		return "postgres", nil
	})

	s.checks.Register("settlement", func(ctx context.Context) (string, error) {
		if s.cfg.OnchainSettlement() {
			return "onchain", nil
		}
		return "simulator", nil
	})
}

func (s *Server) setupRouter() {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}))
	router.Use(security.HeadersMiddleware())
	router.Use(security.CORSMiddleware(nil))
	router.Use(validation.RequestSizeMiddleware(maxRequestBody))
	router.Use(s.limiter.Middleware())
	router.Use(metrics.Middleware())
	router.Use(s.requestIDMiddleware())
	router.Use(s.loggingMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/health/live", s.handleLive)
	router.GET("/health/ready", s.handleReady)
	router.GET("/metrics", metrics.Handler())
	router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", s.handleSubmitOrder)
		v1.GET("/budget/:identity", validation.IdentityParamMiddleware(), s.handleBudget)
		v1.GET("/decisions/:identity", validation.IdentityParamMiddleware(), s.handleDecisions)

		if s.sim != nil && !s.cfg.IsProduction() {
			v1.POST("/simulator/fund", s.handleSimulatorFund)
		}
	}

	s.router = router
}

// Router exposes the gin engine for handler tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = randomHex(8)
		}
		c.Header("X-Request-ID", requestID)
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"request_id", c.Writer.Header().Get("X-Request-ID"),
		}
		switch {
		case c.Writer.Status() >= 500:
			s.logger.Error("request", attrs...)
		case c.Writer.Status() >= 400:
			s.logger.Warn("request", attrs...)
		default:
			s.logger.Info("request", attrs...)
		}
	}
}

// Run starts the HTTP server and the realtime hub, then blocks until the
// process receives SIGINT/SIGTERM or the listener fails.
func (s *Server) Run() error {
	hubCtx, cancel := context.WithCancel(context.Background())
	s.hubStop = cancel
	go s.hub.Run(hubCtx)

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.ready.Store(true)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		s.ready.Store(false)
		s.cleanup()
		return err
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests and releases resources.
func (s *Server) Shutdown() error {
	s.ready.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.cleanup()
	s.logger.Info("server stopped")
	return err
}

func (s *Server) cleanup() {
	if s.hubStop != nil {
		s.hubStop()
	}
	s.limiter.Stop()
	if closer, ok := s.executor.(io.Closer); ok {
		_ = closer.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
