package services

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus represents the health status of a dependency
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check result
type HealthCheck struct {
	Service      string        `json:"service"`
	Status       HealthStatus  `json:"status"`
	Message      string        `json:"message,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	Timestamp    time.Time     `json:"timestamp"`
}

// HealthChecker probes the service's two upstream dependencies: the usage
// ledger store and the balance oracle's RPC endpoint.
type HealthChecker struct {
	store  LedgerStore
	oracle Oracle
}

// NewHealthChecker creates a health checker over the given dependencies
func NewHealthChecker(store LedgerStore, oracle Oracle) *HealthChecker {
	return &HealthChecker{
		store:  store,
		oracle: oracle,
	}
}

// CheckLedger verifies the ledger store connection
func (hc *HealthChecker) CheckLedger() *HealthCheck {
	start := time.Now()
	check := &HealthCheck{
		Service:   "ledger_store",
		Timestamp: start,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := hc.store.Ping(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("ping failed: %v", err)
	} else {
		check.Status = HealthStatusHealthy
	}

	check.ResponseTime = time.Since(start)
	return check
}

// CheckOracle verifies the balance oracle's RPC endpoint
func (hc *HealthChecker) CheckOracle() *HealthCheck {
	start := time.Now()
	check := &HealthCheck{
		Service:   "balance_oracle",
		Timestamp: start,
	}

	if err := hc.oracle.IsHealthy(); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	} else {
		check.Status = HealthStatusHealthy
	}

	check.ResponseTime = time.Since(start)
	return check
}

// GetDetailedHealth returns health checks for every dependency
func (hc *HealthChecker) GetDetailedHealth() map[string]*HealthCheck {
	return map[string]*HealthCheck{
		"ledger_store":   hc.CheckLedger(),
		"balance_oracle": hc.CheckOracle(),
	}
}
