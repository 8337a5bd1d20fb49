package handlers

import (
	"net/http"
	"time"

	"wallet-gate-api/internal/models"
	"wallet-gate-api/internal/services"
	"wallet-gate-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessWindowHandler exposes the global free-access window state
type AccessWindowHandler struct {
	window *services.AccessWindow
}

// NewAccessWindowHandler creates a new AccessWindowHandler instance
func NewAccessWindowHandler(window *services.AccessWindow) *AccessWindowHandler {
	return &AccessWindowHandler{
		window: window,
	}
}

// GetState handles GET /api/access-window requests
func (h *AccessWindowHandler) GetState(c *gin.Context) {
	response := models.AccessWindowResponse{
		Open:             h.window.IsOpen(),
		Permanent:        h.window.Permanent(),
		RemainingSeconds: int64(h.window.Remaining() / time.Second),
	}

	if launch := h.window.LaunchTime(); !launch.IsZero() {
		utc := launch.UTC()
		response.LaunchTime = &utc
	}

	c.JSON(http.StatusOK, response)
}

// Start handles POST /api/access-window/start requests, beginning a new
// free-access window immediately
func (h *AccessWindowHandler) Start(c *gin.Context) {
	h.window.Start()

	logger.GetLogger().WithContext(c.Request.Context()).Info("Free-access window started",
		zap.Time("launch_time", h.window.LaunchTime()),
	)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"launch_time": h.window.LaunchTime().UTC(),
	})
}
