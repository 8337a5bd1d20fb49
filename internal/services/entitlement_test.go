package services

import (
	"context"
	"testing"
	"time"

	"wallet-gate-api/internal/config"
	"wallet-gate-api/internal/models"
	"wallet-gate-api/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	goldWallet  = "So11111111111111111111111111111111111111112"
	emptyWallet = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

type entitlementFixture struct {
	service *EntitlementService
	ledger  *UsageLedger
	window  *AccessWindow
	oracle  *stubOracle
	balance *BalanceService
}

func newEntitlementFixture(t *testing.T, balances map[string]float64, windowCfg *config.AccessWindowConfig) *entitlementFixture {
	t.Helper()

	collector := metrics.NewMetricsCollector()
	oracle := &stubOracle{balances: balances}
	balanceService := NewBalanceService(oracle, time.Minute, collector)
	ledger := NewUsageLedger(NewMemoryLedgerStore(0), collector)
	window := NewAccessWindow(windowCfg)

	t.Cleanup(func() {
		balanceService.Stop()
		ledger.Stop()
		window.Stop()
	})

	return &entitlementFixture{
		service: NewEntitlementService(balanceService, NewTierTable(false), ledger, window, collector),
		ledger:  ledger,
		window:  window,
		oracle:  oracle,
		balance: balanceService,
	}
}

// closedWindowConfig yields a window whose free-access period has elapsed
func closedWindowConfig(t *testing.T) *config.AccessWindowConfig {
	cfg := windowConfig(t)
	cfg.LaunchTime = time.Now().Add(-100 * time.Hour).UTC().Format(time.RFC3339)
	return cfg
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidWalletRejectedBeforeBalanceLookup", func(t *testing.T) {
		f := newEntitlementFixture(t, nil, closedWindowConfig(t))

		_, err := f.service.Evaluate(ctx, "not-a-wallet")
		require.Error(t, err)

		appErr, ok := err.(*models.AppError)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeInvalidWallet, appErr.Code)
		assert.Equal(t, int64(0), f.oracle.calls())
	})

	t.Run("TierAndLimitDerivedFromBalance", func(t *testing.T) {
		f := newEntitlementFixture(t, map[string]float64{goldWallet: 700_000}, closedWindowConfig(t))

		result, err := f.service.Evaluate(ctx, goldWallet)
		require.NoError(t, err)

		assert.True(t, result.Allowed)
		assert.Equal(t, TierGold, result.Tier)
		assert.Equal(t, 20, result.DailyLimit)
		assert.Equal(t, 0, result.Used)
		assert.Equal(t, 20, result.Remaining)
		assert.False(t, result.FreeAccess)
	})

	t.Run("ZeroBalanceDenied", func(t *testing.T) {
		f := newEntitlementFixture(t, map[string]float64{emptyWallet: 0}, closedWindowConfig(t))

		result, err := f.service.Evaluate(ctx, emptyWallet)
		require.NoError(t, err)

		assert.False(t, result.Allowed)
		assert.Equal(t, models.ErrorCodeQuotaExceeded, result.Reason)
		assert.Equal(t, TierNone, result.Tier)
		assert.Equal(t, 0, result.Remaining)
	})

	t.Run("FreeAccessOverridesQuota", func(t *testing.T) {
		cfg := windowConfig(t)
		cfg.Open = true
		f := newEntitlementFixture(t, map[string]float64{emptyWallet: 0}, cfg)

		// Exhausted quota and zero balance, yet allowed while the window is open
		for i := 0; i < 25; i++ {
			_, err := f.service.RecordUsage(ctx, emptyWallet)
			require.NoError(t, err)
		}

		result, err := f.service.Evaluate(ctx, emptyWallet)
		require.NoError(t, err)

		assert.True(t, result.Allowed)
		assert.True(t, result.FreeAccess)
		assert.Empty(t, result.Reason)
		// Tier fields are still computed for display
		assert.Equal(t, TierNone, result.Tier)
		assert.Equal(t, 25, result.Used)
	})

	t.Run("EvaluateNeverIncrementsUsage", func(t *testing.T) {
		f := newEntitlementFixture(t, map[string]float64{goldWallet: 700_000}, closedWindowConfig(t))

		for i := 0; i < 5; i++ {
			_, err := f.service.Evaluate(ctx, goldWallet)
			require.NoError(t, err)
		}

		count, err := f.ledger.GetTodayCount(ctx, goldWallet)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("UnlimitedWhalePolicy", func(t *testing.T) {
		collector := metrics.NewMetricsCollector()
		oracle := &stubOracle{balances: map[string]float64{goldWallet: 5_000_000}}
		balanceService := NewBalanceService(oracle, time.Minute, collector)
		ledger := NewUsageLedger(NewMemoryLedgerStore(0), collector)
		window := NewAccessWindow(closedWindowConfig(t))
		t.Cleanup(func() {
			balanceService.Stop()
			ledger.Stop()
			window.Stop()
		})

		service := NewEntitlementService(balanceService, NewTierTable(true), ledger, window, collector)

		for i := 0; i < 60; i++ {
			_, err := service.RecordUsage(ctx, goldWallet)
			require.NoError(t, err)
		}

		result, err := service.Evaluate(ctx, goldWallet)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.True(t, result.Unlimited)
		assert.Equal(t, TierWhale, result.Tier)
	})
}

func TestGoldTierDailyCycle(t *testing.T) {
	ctx := context.Background()
	f := newEntitlementFixture(t, map[string]float64{goldWallet: 700_000}, closedWindowConfig(t))

	day := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f.ledger.nowFn = func() time.Time { return day }

	// 20 evaluate+record cycles succeed with strictly decreasing remaining
	for i := 0; i < 20; i++ {
		result, err := f.service.Evaluate(ctx, goldWallet)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "cycle %d should be allowed", i+1)
		assert.Equal(t, i, result.Used)
		assert.Equal(t, 20-i, result.Remaining)

		count, err := f.service.RecordUsage(ctx, goldWallet)
		require.NoError(t, err)
		assert.Equal(t, i+1, count)
	}

	// The 21st evaluation is denied with nothing remaining
	result, err := f.service.Evaluate(ctx, goldWallet)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, models.ErrorCodeQuotaExceeded, result.Reason)

	// Date rollover restores the full quota
	day = day.Add(24 * time.Hour)

	result, err = f.service.Evaluate(ctx, goldWallet)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.Used)
	assert.Equal(t, 20, result.Remaining)

	count, err := f.service.RecordUsage(ctx, goldWallet)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err = f.service.Evaluate(ctx, goldWallet)
	require.NoError(t, err)
	assert.Equal(t, 19, result.Remaining)
}
