package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/parlsync/internal/service"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	monitor *service.MonitorService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(monitor *service.MonitorService) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// Health is a liveness probe; it does not touch the database.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Check handles GET /api/v1/health. Unhealthy answers 503; warnings still
// answer 200 with the issues listed.
func (h *HealthHandler) Check(c *gin.Context) {
	result := h.monitor.Health(c.Request.Context())
	status := http.StatusOK
	if result.Status == service.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}
