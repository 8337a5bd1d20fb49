package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-gate-api/internal/config"
	"wallet-gate-api/internal/handlers"
	"wallet-gate-api/internal/middleware"
	"wallet-gate-api/internal/services"
	"wallet-gate-api/pkg/logger"
	"wallet-gate-api/pkg/metrics"
	"wallet-gate-api/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server represents the main application server
type Server struct {
	httpServer     *http.Server
	config         *config.Config
	oracle         *services.TokenOracle
	balanceService *services.BalanceService
	ledgerStore    services.LedgerStore
	ledger         *services.UsageLedger
	window         *services.AccessWindow
	registry       *ratelimiter.Registry
	metrics        *metrics.MetricsCollector
	router         *handlers.Router
	sweepStopCh    chan struct{}
}

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logging
	loggerConfig := &logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.Logging.Environment,
		OutputPaths: cfg.Logging.OutputPaths,
	}

	if err := logger.Initialize(loggerConfig); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.GetLogger()

	log.Info("Starting wallet gate API server",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("token_mint", cfg.Token.Mint),
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.String("log_level", cfg.Logging.Level),
		zap.String("environment", cfg.Logging.Environment),
	)

	// Initialize and start server
	server, err := NewServer(cfg)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	// Start server with graceful shutdown
	if err := server.Start(); err != nil {
		log.Fatal("Server failed to start", zap.Error(err))
	}
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	log := logger.GetLogger()

	log.Info("Initializing server components")

	collector := metrics.NewMetricsCollector()

	// Initialize token balance oracle
	log.Debug("Initializing token balance oracle")
	oracle, err := services.NewTokenOracle(&cfg.RPC, &cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token oracle: %w", err)
	}

	if oracle.MockMode() {
		log.Warn("No token mint configured, oracle running in mock mode")
	} else if err := oracle.IsHealthy(); err != nil {
		log.Warn("Solana RPC health check failed", zap.Error(err))
	} else {
		log.Info("Solana RPC connection healthy")
	}

	// Initialize balance service with TTL cache
	log.Debug("Initializing balance service")
	balanceService := services.NewBalanceService(oracle, cfg.Cache.TTL, collector)

	// Initialize usage ledger store
	log.Debug("Initializing usage ledger store", zap.String("backend", cfg.Ledger.Backend))
	var store services.LedgerStore
	switch cfg.Ledger.Backend {
	case "mongo":
		store, err = services.NewMongoLedgerStore(&cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mongo ledger store: %w", err)
		}
	case "memory":
		store = services.NewMemoryLedgerStore(cfg.Ledger.MaxRecords)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	ledger := services.NewUsageLedger(store, collector)

	// Initialize free-access window
	log.Debug("Initializing free-access window")
	window := services.NewAccessWindow(&cfg.AccessWindow)

	// Initialize tier table and entitlement service
	tiers := services.NewTierTable(cfg.Tier.WhaleUnlimited)
	entitlements := services.NewEntitlementService(balanceService, tiers, ledger, window, collector)

	// Initialize per-action rate limiters
	log.Debug("Initializing rate limiters", zap.Int("actions", len(cfg.RateLimit.Actions)))
	registry := ratelimiter.NewRegistry()
	for action, limit := range cfg.RateLimit.Actions {
		registry.Register(action, limit.MaxRequests, limit.Window)
	}

	// Initialize health checker and router
	log.Debug("Initializing router")
	health := services.NewHealthChecker(store, oracle)
	router := handlers.NewRouter(handlers.RouterDeps{
		Balances:     balanceService,
		Tiers:        tiers,
		Entitlements: entitlements,
		Window:       window,
		Registry:     registry,
		Actions:      cfg.RateLimit.Actions,
		Metrics:      collector,
		Health:       health,
	})

	log.Info("Server components initialized successfully")

	return &Server{
		config:         cfg,
		oracle:         oracle,
		balanceService: balanceService,
		ledgerStore:    store,
		ledger:         ledger,
		window:         window,
		registry:       registry,
		metrics:        collector,
		router:         router,
		sweepStopCh:    make(chan struct{}),
	}, nil
}

// Start starts the HTTP server with graceful shutdown handling
func (s *Server) Start() error {
	log := logger.GetLogger()

	// Set Gin mode based on environment
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Debug("Creating Gin engine")

	engine := gin.New()

	s.setupMiddleware(engine)
	s.setupRoutes(engine)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:           engine,
		ReadTimeout:       s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
		IdleTimeout:       s.config.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
		TLSNextProto:      make(map[string]func(*http.Server, *tls.Conn, http.Handler)),
	}

	log.Info("HTTP server configured",
		zap.String("address", s.httpServer.Addr),
		zap.Duration("read_timeout", s.config.Server.ReadTimeout),
		zap.Duration("write_timeout", s.config.Server.WriteTimeout),
		zap.Duration("idle_timeout", s.config.Server.IdleTimeout),
	)

	// Start cleanup routines
	s.startCleanupRoutines()

	// Start server in a goroutine
	go func() {
		log.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	return s.waitForShutdown()
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware(engine *gin.Engine) {
	log := logger.GetLogger()

	log.Debug("Setting up middleware stack")

	// Recovery middleware with structured logging (should be first)
	engine.Use(logger.RecoveryMiddleware())

	// Structured logging middleware with correlation IDs
	engine.Use(logger.LoggingMiddleware())

	// Performance monitoring middleware
	engine.Use(middleware.PerformanceMiddleware(s.metrics))
	engine.Use(middleware.ConcurrencyMiddleware(s.metrics))

	// CORS middleware
	engine.Use(s.corsMiddleware())

	log.Debug("Middleware stack configured")
}

// setupRoutes configures all application routes
func (s *Server) setupRoutes(engine *gin.Engine) {
	// Health check routes (not rate limited)
	s.router.SetupHealthRoutes(engine)

	// API routes behind the metadata limiter, keyed by client IP at the
	// transport layer; wallet-keyed limits are enforced per action via
	// POST /api/rate-limit.
	var apiMiddleware []gin.HandlerFunc
	if metadata, ok := s.registry.Get("metadata"); ok {
		apiMiddleware = append(apiMiddleware, metadata.Middleware(ratelimiter.ByClientIP))
	}
	s.router.SetupRoutes(engine, apiMiddleware...)

	// Additional monitoring endpoints
	engine.GET("/metrics", s.metricsHandler)
	engine.GET("/status", s.statusHandler)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// metricsHandler provides comprehensive metrics endpoint
func (s *Server) metricsHandler(c *gin.Context) {
	snapshot := s.metrics.GetMetrics()
	c.JSON(http.StatusOK, gin.H{
		"service":         "wallet-gate-api",
		"version":         "1.0.0",
		"uptime":          s.metrics.GetUptime().String(),
		"success_rate":    s.metrics.GetSuccessRate(),
		"cache_hit_ratio": s.metrics.GetCacheHitRatio(),
		"metrics":         snapshot,
	})
}

// statusHandler provides detailed status information
func (s *Server) statusHandler(c *gin.Context) {
	rpcHealthy := true
	if err := s.oracle.IsHealthy(); err != nil {
		rpcHealthy = false
	}

	c.JSON(http.StatusOK, gin.H{
		"service":            "wallet-gate-api",
		"status":             "running",
		"rpc_healthy":        rpcHealthy,
		"oracle_mock":        s.oracle.MockMode(),
		"access_window_open": s.window.IsOpen(),
		"uptime":             time.Since(startTime).String(),
		"version":            "1.0.0",
	})
}

// startCleanupRoutines starts background cleanup tasks
func (s *Server) startCleanupRoutines() {
	log := logger.GetLogger()

	// Rate limiter window sweep
	go func() {
		ticker := time.NewTicker(s.config.RateLimit.CleanupInterval)
		defer ticker.Stop()

		log.Debug("Starting rate limiter sweep routine",
			zap.Duration("interval", s.config.RateLimit.CleanupInterval),
		)

		for {
			select {
			case <-ticker.C:
				s.registry.SweepAll()
			case <-s.sweepStopCh:
				return
			}
		}
	}()

	log.Info("Background cleanup routines started")
}

// waitForShutdown waits for interrupt signal and performs graceful shutdown
func (s *Server) waitForShutdown() error {
	log := logger.GetLogger()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info("Shutting down HTTP server", zap.Duration("timeout", 30*time.Second))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.cleanup()

	log.Info("Server gracefully stopped")
	return nil
}

// cleanup performs cleanup of all services
func (s *Server) cleanup() {
	log := logger.GetLogger()

	log.Info("Cleaning up services...")

	if s.sweepStopCh != nil {
		log.Debug("Stopping rate limiter sweep routine")
		close(s.sweepStopCh)
	}

	if s.balanceService != nil {
		log.Debug("Stopping balance service")
		s.balanceService.Stop()
	}

	if s.window != nil {
		log.Debug("Stopping access window ticker")
		s.window.Stop()
	}

	if s.ledger != nil {
		log.Debug("Stopping usage ledger")
		s.ledger.Stop()
	}

	if s.ledgerStore != nil {
		log.Debug("Closing ledger store")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.ledgerStore.Close(ctx); err != nil {
			log.Error("Error closing ledger store", zap.Error(err))
		}
	}

	if err := logger.GetLogger().Sync(); err != nil {
		fmt.Printf("Error syncing logger: %v\n", err)
	}

	log.Info("Cleanup completed")
}

// Global variable to track server start time for uptime calculation
var startTime = time.Now()
