package handlers

import (
	"net/http"

	"wallet-gate-api/internal/models"
	"wallet-gate-api/internal/services"
	"wallet-gate-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VerifyHandler answers balance/tier lookups for a wallet
type VerifyHandler struct {
	balances services.BalanceProvider
	tiers    *services.TierTable
}

// NewVerifyHandler creates a new VerifyHandler instance
func NewVerifyHandler(balances services.BalanceProvider, tiers *services.TierTable) *VerifyHandler {
	return &VerifyHandler{
		balances: balances,
		tiers:    tiers,
	}
}

// VerifyToken handles POST /api/verify-token requests
func (h *VerifyHandler) VerifyToken(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	var req models.VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid JSON in request",
			zap.Error(err),
			zap.String("content_type", c.GetHeader("Content-Type")),
		)
		models.HandleError(c, models.NewAppErrorWithDetails(
			models.ErrorCodeMalformedJSON,
			"Invalid JSON format",
			err.Error(),
		))
		return
	}

	if !services.ValidWalletAddress(req.WalletAddress) {
		log.Warn("Invalid wallet address format",
			zap.String("wallet_address", req.WalletAddress),
		)
		models.HandleError(c, models.NewInvalidWalletError(req.WalletAddress))
		return
	}

	result := h.balances.GetBalance(c.Request.Context(), req.WalletAddress)
	tier := h.tiers.TierFor(result.Balance)
	limit, unlimited := h.tiers.QuotaFor(tier)

	log.Info("Token balance verified",
		zap.String("wallet_address", req.WalletAddress),
		zap.Float64("balance", result.Balance),
		zap.String("tier", tier.String()),
		zap.Bool("cached", result.Cached),
		zap.Bool("mock", result.Mock),
	)

	c.JSON(http.StatusOK, models.VerifyTokenResponse{
		Success:    true,
		Balance:    result.Balance,
		Tier:       tier.String(),
		DailyLimit: limit,
		Unlimited:  unlimited,
		Cached:     result.Cached,
		Mock:       result.Mock,
	})
}
