package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/timmy/parlsync/internal/api/handler"
	"github.com/timmy/parlsync/internal/api/middleware"
	"github.com/timmy/parlsync/internal/config"
	"github.com/timmy/parlsync/internal/logger"
	"github.com/timmy/parlsync/internal/service"
)

// Services are the backends the router exposes.
type Services struct {
	Sync    *service.SyncService
	Monitor *service.MonitorService
	// Base is the lifetime context handed to manually triggered syncs.
	Base context.Context
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc Services, cfg *config.ServerConfig, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(svc.Monitor)
	monitorHandler := handler.NewMonitorHandler(svc.Monitor, svc.Sync)
	syncHandler := handler.NewSyncHandler(svc.Sync, svc.Base)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Check)
		v1.GET("/freshness", monitorHandler.Freshness)

		// Ledger
		v1.GET("/sync-runs", monitorHandler.ListRuns)
		v1.GET("/sync-runs/:id", monitorHandler.GetRun)

		// Data
		v1.GET("/schemas", monitorHandler.Schemas)
		v1.GET("/mp-stats", monitorHandler.MPStats)

		// Manual sync
		v1.POST("/sync/:source", syncHandler.Trigger)
		v1.GET("/sync/locks", syncHandler.Locks)
	}

	return r
}
