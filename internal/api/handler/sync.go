package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/parlsync/internal/api/middleware"
	"github.com/timmy/parlsync/internal/service"
)

// SyncHandler triggers manual syncs.
type SyncHandler struct {
	sync *service.SyncService
	// base outlives the request so a started sync is not cut short when the
	// response is written; cancelling it stops background syncs on shutdown.
	base context.Context
}

// NewSyncHandler creates a new sync handler.
// Parameters:
//   - sync: sync service instance.
//   - base: lifetime context for background syncs; nil uses context.Background.
//
// Returns:
//   - *SyncHandler: initialized handler.
func NewSyncHandler(sync *service.SyncService, base context.Context) *SyncHandler {
	if base == nil {
		base = context.Background()
	}
	return &SyncHandler{sync: sync, base: base}
}

// Trigger handles POST /api/v1/sync/:source?tables=osoby,poslanec.
// The sync runs in the background; the response only confirms it started.
func (h *SyncHandler) Trigger(c *gin.Context) {
	src := c.Param("source")
	var tables []string
	if raw := c.Query("tables"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tables = append(tables, t)
			}
		}
	}

	log := middleware.GetLogger(c)
	ctx := log.WithContext(h.base)
	_, err := h.sync.Start(ctx, src, tables)

	var busy *service.BusyError
	switch {
	case errors.Is(err, service.ErrUnknownSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source: " + src})
		return
	case errors.As(err, &busy):
		c.JSON(http.StatusConflict, gin.H{
			"error":       "Sync is already running",
			"busy_tables": busy.Tables,
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.WithField("source", src).Info("Manual sync started")
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Sync started",
		"source":  src,
		"tables":  tables,
	})
}

// Locks handles GET /api/v1/sync/locks.
func (h *SyncHandler) Locks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"busy_tables": h.sync.Locks().Held()})
}
