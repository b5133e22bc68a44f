package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/parlsync/internal/service"
	"gorm.io/gorm"
)

const maxRunsLimit = 100

// MonitorHandler serves ledger history and data statistics.
type MonitorHandler struct {
	monitor *service.MonitorService
	sync    *service.SyncService
}

// NewMonitorHandler creates a new monitor handler.
// Parameters:
//   - monitor: monitor service instance.
//   - sync: sync service, used for vote statistics.
//
// Returns:
//   - *MonitorHandler: initialized handler.
func NewMonitorHandler(monitor *service.MonitorService, sync *service.SyncService) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, sync: sync}
}

// ListRuns handles GET /api/v1/sync-runs?kind=&limit=.
func (h *MonitorHandler) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be between 1 and " + strconv.Itoa(maxRunsLimit),
			})
			return
		}
		limit = n
	}

	runs, err := h.monitor.Recent(c.Request.Context(), c.Query("kind"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list sync runs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /api/v1/sync-runs/:id.
func (h *MonitorHandler) GetRun(c *gin.Context) {
	run, err := h.monitor.Run(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sync run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// Freshness handles GET /api/v1/freshness.
func (h *MonitorHandler) Freshness(c *gin.Context) {
	fresh, err := h.monitor.Freshness(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fresh)
}

// Schemas handles GET /api/v1/schemas.
func (h *MonitorHandler) Schemas(c *gin.Context) {
	schemas := service.Schemas()
	c.JSON(http.StatusOK, gin.H{
		"schemas": schemas,
		"count":   len(schemas),
	})
}

// MPStats handles GET /api/v1/mp-stats.
func (h *MonitorHandler) MPStats(c *gin.Context) {
	stats, err := h.sync.MPStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to compute MP statistics: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mp_stats": stats,
		"count":    len(stats),
	})
}
