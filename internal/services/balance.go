package services

import (
	"context"
	"time"

	"wallet-gate-api/pkg/cache"
	"wallet-gate-api/pkg/logger"
	"wallet-gate-api/pkg/metrics"

	"go.uber.org/zap"
)

// BalanceResult is the outcome of a cached balance lookup. On oracle
// failure Balance is 0 and the caller proceeds with the most restrictive
// tier instead of aborting (fail-open-to-zero).
type BalanceResult struct {
	Balance float64
	Mock    bool
	Cached  bool
}

// BalanceService puts a freshness-TTL cache in front of the balance oracle
type BalanceService struct {
	oracle  Oracle
	cache   *cache.Cache
	metrics *metrics.MetricsCollector
}

// NewBalanceService creates a new BalanceService instance
func NewBalanceService(oracle Oracle, ttl time.Duration, collector *metrics.MetricsCollector) *BalanceService {
	return &BalanceService{
		oracle:  oracle,
		cache:   cache.New(ttl),
		metrics: collector,
	}
}

// GetBalance returns the wallet's gating-token balance, serving from cache
// while the entry is fresh. Concurrent misses for the same wallet may each
// trigger a fetch; that redundancy is wasted work, not a correctness issue,
// and is deliberately not coalesced.
func (bs *BalanceService) GetBalance(ctx context.Context, address string) BalanceResult {
	log := logger.GetLogger().WithFields(map[string]interface{}{
		"wallet_address": address,
		"component":      "balance_service",
	})

	if entry, found := bs.cache.Get(address); found {
		log.Debug("Cache hit for wallet balance")
		bs.metrics.RecordCacheHit()
		return BalanceResult{Balance: entry.Balance, Mock: entry.Mock, Cached: true}
	}

	log.Debug("Cache miss, fetching balance from oracle")
	bs.metrics.RecordCacheMiss()

	fetchStart := time.Now()
	balance, mock, err := bs.oracle.FetchBalance(ctx, address)
	fetchDuration := time.Since(fetchStart)

	bs.metrics.RecordRPCCall(fetchDuration, err == nil)

	if err != nil {
		// Fail open toward denial: balance 0 maps to the lowest tier.
		// Failures are not cached so the next request retries.
		log.Error("Failed to fetch balance from oracle",
			zap.Error(err),
			zap.Duration("rpc_duration", fetchDuration),
		)
		return BalanceResult{Balance: 0}
	}

	log.Debug("Fetched balance from oracle, caching result",
		zap.Float64("balance", balance),
		zap.Bool("mock", mock),
		zap.Duration("rpc_duration", fetchDuration),
	)

	bs.cache.Set(address, balance, mock)

	return BalanceResult{Balance: balance, Mock: mock}
}

// CacheSize returns the number of cached balances for monitoring
func (bs *BalanceService) CacheSize() int {
	return bs.cache.Size()
}

// ClearCache clears all cached balances
func (bs *BalanceService) ClearCache() {
	bs.cache.Clear()
}

// Stop gracefully shuts down the service
func (bs *BalanceService) Stop() {
	bs.cache.Stop()
}
