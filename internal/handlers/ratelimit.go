package handlers

import (
	"net/http"
	"time"

	"wallet-gate-api/internal/config"
	"wallet-gate-api/internal/models"
	"wallet-gate-api/internal/services"
	"wallet-gate-api/pkg/logger"
	"wallet-gate-api/pkg/metrics"
	"wallet-gate-api/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimitHandler exposes per-action fixed-window checks
type RateLimitHandler struct {
	registry *ratelimiter.Registry
	actions  map[string]config.ActionLimit
	metrics  *metrics.MetricsCollector
}

// NewRateLimitHandler creates a new RateLimitHandler instance
func NewRateLimitHandler(registry *ratelimiter.Registry, actions map[string]config.ActionLimit, collector *metrics.MetricsCollector) *RateLimitHandler {
	return &RateLimitHandler{
		registry: registry,
		actions:  actions,
		metrics:  collector,
	}
}

// CheckRateLimit handles POST /api/rate-limit requests. The identifier is
// the wallet address or the caller IP depending on the action's key policy.
func (h *RateLimitHandler) CheckRateLimit(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	var req models.RateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.HandleError(c, models.NewAppErrorWithDetails(
			models.ErrorCodeMalformedJSON,
			"Invalid JSON format",
			err.Error(),
		))
		return
	}

	limit, known := h.actions[req.Action]
	if !known {
		models.HandleError(c, models.NewUnknownActionError(req.Action))
		return
	}

	if !services.ValidWalletAddress(req.WalletAddress) {
		models.HandleError(c, models.NewInvalidWalletError(req.WalletAddress))
		return
	}

	identifier := req.WalletAddress
	if limit.KeyBy == "ip" {
		identifier = c.ClientIP()
	}

	decision, err := h.registry.Allow(req.Action, identifier)
	if err != nil {
		models.HandleError(c, models.NewAppErrorWithCause(
			models.ErrorCodeInternalError,
			"Rate limit check failed",
			err,
		))
		return
	}

	if !decision.Allowed {
		h.metrics.RecordRateLimitDenial()
		log.Warn("Rate limit exceeded",
			zap.String("action", req.Action),
			zap.String("wallet_address", req.WalletAddress),
			zap.Time("reset_at", decision.ResetAt),
		)

		c.Header("Retry-After", time.Until(decision.ResetAt).Truncate(time.Second).String())
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"code":    models.ErrorCodeRateLimitExceeded,
				"message": "Too many requests. Rate limit exceeded.",
			},
			"remaining": 0,
			"resetAt":   decision.ResetAt.UTC(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, models.RateLimitResponse{
		Success:   true,
		Remaining: decision.Remaining,
		ResetAt:   decision.ResetAt.UTC(),
	})
}
