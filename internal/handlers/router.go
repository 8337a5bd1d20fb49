package handlers

import (
	"wallet-gate-api/internal/config"
	"wallet-gate-api/internal/services"
	"wallet-gate-api/pkg/metrics"
	"wallet-gate-api/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// Router handles HTTP routing setup
type Router struct {
	verifyHandler      *VerifyHandler
	rateLimitHandler   *RateLimitHandler
	entitlementHandler *EntitlementHandler
	windowHandler      *AccessWindowHandler
	healthHandler      *HealthHandler
}

// RouterDeps collects the services the router's handlers depend on
type RouterDeps struct {
	Balances     services.BalanceProvider
	Tiers        *services.TierTable
	Entitlements *services.EntitlementService
	Window       *services.AccessWindow
	Registry     *ratelimiter.Registry
	Actions      map[string]config.ActionLimit
	Metrics      *metrics.MetricsCollector
	Health       *services.HealthChecker
}

// NewRouter creates a new Router instance with all handlers
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		verifyHandler:      NewVerifyHandler(deps.Balances, deps.Tiers),
		rateLimitHandler:   NewRateLimitHandler(deps.Registry, deps.Actions, deps.Metrics),
		entitlementHandler: NewEntitlementHandler(deps.Entitlements),
		windowHandler:      NewAccessWindowHandler(deps.Window),
		healthHandler:      NewHealthHandler(deps.Health),
	}
}

// SetupRoutes configures all API routes. Any middleware given is applied
// to the /api group only, leaving health and monitoring routes unguarded.
func (r *Router) SetupRoutes(engine *gin.Engine, mw ...gin.HandlerFunc) {
	api := engine.Group("/api")
	api.Use(mw...)
	{
		// Wallet verification and tier lookup
		api.POST("/verify-token", r.verifyHandler.VerifyToken)

		// Per-action rate limiting
		api.POST("/rate-limit", r.rateLimitHandler.CheckRateLimit)

		// Entitlement evaluation and usage recording
		api.POST("/entitlement", r.entitlementHandler.Evaluate)
		api.POST("/usage", r.entitlementHandler.RecordUsage)

		// Free-access window state
		api.GET("/access-window", r.windowHandler.GetState)
		api.POST("/access-window/start", r.windowHandler.Start)
	}
}

// SetupHealthRoutes configures health check routes
func (r *Router) SetupHealthRoutes(engine *gin.Engine) {
	health := engine.Group("/health")
	{
		health.GET("", r.healthHandler.GetHealth)          // Overall health
		health.GET("/live", r.healthHandler.GetLiveness)   // Liveness probe
		health.GET("/ready", r.healthHandler.GetReadiness) // Readiness probe
		health.GET("/db", r.healthHandler.GetLedgerHealth) // Ledger store health
	}
}
