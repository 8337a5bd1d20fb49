package handlers

import (
	"net/http"

	"wallet-gate-api/internal/models"
	"wallet-gate-api/internal/services"
	"wallet-gate-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EntitlementHandler exposes evaluate and record-usage operations
type EntitlementHandler struct {
	entitlements *services.EntitlementService
}

// NewEntitlementHandler creates a new EntitlementHandler instance
func NewEntitlementHandler(entitlements *services.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{
		entitlements: entitlements,
	}
}

// Evaluate handles POST /api/entitlement requests. It never charges the
// quota; clients call RecordUsage once the gated action actually succeeds.
func (h *EntitlementHandler) Evaluate(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	var req models.EntitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.HandleError(c, models.NewAppErrorWithDetails(
			models.ErrorCodeMalformedJSON,
			"Invalid JSON format",
			err.Error(),
		))
		return
	}

	result, err := h.entitlements.Evaluate(c.Request.Context(), req.WalletAddress)
	if err != nil {
		models.HandleError(c, err)
		return
	}

	log.Info("Entitlement evaluated",
		zap.String("wallet_address", req.WalletAddress),
		zap.String("action", req.Action),
		zap.Bool("allowed", result.Allowed),
		zap.String("tier", result.Tier.String()),
	)

	c.JSON(http.StatusOK, models.EntitlementResponse{
		Success:    true,
		Allowed:    result.Allowed,
		Reason:     string(result.Reason),
		Tier:       result.Tier.String(),
		Balance:    result.Balance,
		DailyLimit: result.DailyLimit,
		Unlimited:  result.Unlimited,
		Used:       result.Used,
		Remaining:  result.Remaining,
		FreeAccess: result.FreeAccess,
		Cached:     result.Cached,
		Mock:       result.Mock,
	})
}

// RecordUsage handles POST /api/usage requests
func (h *EntitlementHandler) RecordUsage(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	var req models.UsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.HandleError(c, models.NewAppErrorWithDetails(
			models.ErrorCodeMalformedJSON,
			"Invalid JSON format",
			err.Error(),
		))
		return
	}

	count, err := h.entitlements.RecordUsage(c.Request.Context(), req.WalletAddress)
	if err != nil {
		models.HandleError(c, err)
		return
	}

	log.Info("Usage recorded",
		zap.String("wallet_address", req.WalletAddress),
		zap.Int("used", count),
	)

	c.JSON(http.StatusOK, models.UsageResponse{
		Success: true,
		Used:    count,
	})
}
