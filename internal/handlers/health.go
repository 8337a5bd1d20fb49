package handlers

import (
	"net/http"
	"time"

	"wallet-gate-api/internal/services"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checker *services.HealthChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker *services.HealthChecker) *HealthHandler {
	return &HealthHandler{
		checker: checker,
	}
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    services.HealthStatus            `json:"status"`
	Timestamp time.Time                        `json:"timestamp"`
	Services  map[string]*services.HealthCheck `json:"services"`
	Version   string                           `json:"version,omitempty"`
}

// GetHealth returns the overall health status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	serviceChecks := h.checker.GetDetailedHealth()

	overallStatus := services.HealthStatusHealthy
	for _, check := range serviceChecks {
		if check.Status == services.HealthStatusUnhealthy {
			overallStatus = services.HealthStatusUnhealthy
			break
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  serviceChecks,
		Version:   "1.0.0",
	}

	statusCode := http.StatusOK
	if overallStatus == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// GetLiveness returns a simple liveness check
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// GetReadiness returns readiness status (checks if all dependencies are available)
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	ledgerHealth := h.checker.CheckLedger()

	if ledgerHealth.Status == services.HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"message":   "ledger store not available",
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// GetLedgerHealth returns detailed ledger store health information
func (h *HealthHandler) GetLedgerHealth(c *gin.Context) {
	healthCheck := h.checker.CheckLedger()

	statusCode := http.StatusOK
	if healthCheck.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, healthCheck)
}
