package services

import (
	"context"

	"wallet-gate-api/internal/models"
)

// Oracle defines the interface for fetching gating-token balances
type Oracle interface {
	FetchBalance(ctx context.Context, address string) (balance float64, mock bool, err error)
	IsHealthy() error
}

// BalanceProvider defines the cached balance lookup used by the
// entitlement service and handlers
type BalanceProvider interface {
	GetBalance(ctx context.Context, address string) BalanceResult
}

// LedgerStore defines the persistence port for per-wallet usage records.
// Get returns (nil, nil) when no record exists for the wallet.
type LedgerStore interface {
	Get(ctx context.Context, wallet string) (*models.UsageRecord, error)
	Put(ctx context.Context, wallet string, record *models.UsageRecord) error
	Prune(ctx context.Context, n int) (int, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
