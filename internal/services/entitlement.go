package services

import (
	"context"

	"wallet-gate-api/internal/models"
	"wallet-gate-api/pkg/logger"
	"wallet-gate-api/pkg/metrics"

	"go.uber.org/zap"
)

// EntitlementResult answers "may wallet W perform a gated action right now,
// and how many remain". Tier fields are populated even under free access so
// callers can display them.
type EntitlementResult struct {
	Allowed    bool
	Reason     models.ErrorCode // empty when allowed
	Tier       Tier
	Balance    float64
	Mock       bool
	Cached     bool
	DailyLimit int
	Unlimited  bool
	Used       int
	Remaining  int
	FreeAccess bool
}

// EntitlementService composes the tier table, balance cache, usage ledger
// and access window into allow/deny decisions.
type EntitlementService struct {
	balances BalanceProvider
	tiers    *TierTable
	ledger   *UsageLedger
	window   *AccessWindow
	metrics  *metrics.MetricsCollector
}

// NewEntitlementService creates a new EntitlementService instance
func NewEntitlementService(
	balances BalanceProvider,
	tiers *TierTable,
	ledger *UsageLedger,
	window *AccessWindow,
	collector *metrics.MetricsCollector,
) *EntitlementService {
	return &EntitlementService{
		balances: balances,
		tiers:    tiers,
		ledger:   ledger,
		window:   window,
		metrics:  collector,
	}
}

// Evaluate decides whether the wallet may perform a gated action now.
// It never charges usage; call RecordUsage after the action succeeds so a
// downstream failure cannot burn quota.
func (es *EntitlementService) Evaluate(ctx context.Context, wallet string) (*EntitlementResult, error) {
	if !ValidWalletAddress(wallet) {
		return nil, models.NewInvalidWalletError(wallet)
	}

	log := logger.GetLogger().WithFields(map[string]interface{}{
		"wallet_address": wallet,
		"component":      "entitlement_service",
	})

	balance := es.balances.GetBalance(ctx, wallet)
	tier := es.tiers.TierFor(balance.Balance)
	limit, unlimited := es.tiers.QuotaFor(tier)

	used, err := es.ledger.GetTodayCount(ctx, wallet)
	if err != nil {
		return nil, models.NewLedgerError("failed to read usage count", err)
	}

	result := &EntitlementResult{
		Tier:       tier,
		Balance:    balance.Balance,
		Mock:       balance.Mock,
		Cached:     balance.Cached,
		DailyLimit: limit,
		Unlimited:  unlimited,
		Used:       used,
	}

	if unlimited {
		result.Remaining = 0
	} else {
		result.Remaining = limit - used
		if result.Remaining < 0 {
			result.Remaining = 0
		}
	}

	if es.window.IsOpen() {
		// Free access bypasses enforcement entirely
		result.Allowed = true
		result.FreeAccess = true
	} else {
		result.Allowed = unlimited || used < limit
		if !result.Allowed {
			result.Reason = models.ErrorCodeQuotaExceeded
		}
	}

	es.metrics.RecordEntitlement(result.Allowed)

	log.Debug("Entitlement evaluated",
		zap.Bool("allowed", result.Allowed),
		zap.String("tier", tier.String()),
		zap.Int("used", used),
		zap.Int("remaining", result.Remaining),
		zap.Bool("free_access", result.FreeAccess),
	)

	return result, nil
}

// RecordUsage charges one gated action against the wallet's daily quota and
// returns the new count for today.
func (es *EntitlementService) RecordUsage(ctx context.Context, wallet string) (int, error) {
	if !ValidWalletAddress(wallet) {
		return 0, models.NewInvalidWalletError(wallet)
	}

	count, err := es.ledger.Increment(ctx, wallet)
	if err != nil {
		return 0, models.NewLedgerError("failed to increment usage count", err)
	}
	return count, nil
}
