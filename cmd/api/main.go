package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/timmy/parlsync/internal/api"
	"github.com/timmy/parlsync/internal/app"
	"github.com/timmy/parlsync/internal/config"
	"github.com/timmy/parlsync/internal/logger"
)

func main() {
	appLogger := logger.New(nil)
	logger.SetDefaultLogger(appLogger)
	defer func() { _ = logger.Sync() }()

	// CONFIG_PATH is honoured for container deployments
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	withScheduler := flag.Bool("scheduler", false, "Run the periodic sync scheduler in-process")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	router := api.SetupRouter(api.Services{Sync: a.Sync, Monitor: a.Monitor, Base: ctx}, &cfg.Server, appLogger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	var wg sync.WaitGroup
	if *withScheduler {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Scheduler.Run(ctx)
		}()
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":      cfg.Server.Port,
			"mode":      cfg.Server.Mode,
			"scheduler": *withScheduler,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// stops the scheduler and any manually triggered sync; both must finish
	// their ledger runs before the deferred Close releases the database
	cancel()
	wg.Wait()
	a.Sync.Wait()

	appLogger.Info("Server exited")
}
