// Package app wires configuration into the running sync pipeline.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/parlsync/internal/cache"
	"github.com/timmy/parlsync/internal/config"
	"github.com/timmy/parlsync/internal/ledger"
	"github.com/timmy/parlsync/internal/logger"
	"github.com/timmy/parlsync/internal/policy"
	"github.com/timmy/parlsync/internal/reconcile"
	"github.com/timmy/parlsync/internal/repository"
	"github.com/timmy/parlsync/internal/service"
	"github.com/timmy/parlsync/internal/source"
	"github.com/timmy/parlsync/internal/source/local"
	"github.com/timmy/parlsync/internal/source/psp"
	"github.com/timmy/parlsync/internal/storage"
	"gorm.io/gorm"
)

// App holds the services built from one configuration.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Fetcher   source.Fetcher
	Sync      *service.SyncService
	Monitor   *service.MonitorService
	Scheduler *service.Scheduler
}

// bucketEnsurer is implemented by storages that can create their bucket.
type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// New opens the database and builds every service.
// Parameters:
//   - ctx: context for startup calls such as bucket creation.
//   - cfg: loaded configuration.
//   - log: application logger, also installed as the default.
//
// Returns:
//   - *App: ready services; call Close when done.
//   - error: non-nil if the database, fetcher or cache cannot be set up.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	fetcher, err := NewFetcher(&cfg.Source)
	if err != nil {
		return nil, err
	}

	var payloads *cache.PayloadCache
	if cfg.Cache.Enabled {
		store, err := storage.NewStorage(&cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache storage: %w", err)
		}
		if b, ok := store.(bucketEnsurer); ok {
			if err := b.EnsureBucket(ctx); err != nil {
				return nil, fmt.Errorf("failed to ensure cache bucket: %w", err)
			}
		}
		payloads = cache.New(store, cfg.Cache.Prefix)
	}

	runs := ledger.New(repository.NewSyncRunRepository(db), nil)
	stats := repository.NewStatsRepository(db)

	syncSvc := service.NewSyncService(service.SyncDeps{
		Fetcher: fetcher,
		Engine:  reconcile.NewEngine(repository.NewEntityStore(db, cfg.Database.StatementTimeout)),
		Ledger:  runs,
		Policies: policy.New(policy.Options{
			ElectoralPeriod:    cfg.Sync.ElectoralPeriod,
			DefaultCommitteeID: cfg.Sync.DefaultCommitteeID,
		}),
		Stats:  stats,
		Cache:  payloads,
		Logger: log.WithField(logger.FieldComponent, "sync"),
	}, &service.SyncConfig{
		MPArchive:        cfg.Source.MPArchive,
		VotingPeriod:     cfg.Source.VotingPeriod,
		BillsArchive:     cfg.Source.BillsArchive,
		StrictProjection: cfg.Sync.StrictProjection,
	})

	monitor := service.NewMonitorService(runs, stats, &service.MonitorConfig{
		FreshnessWindow: cfg.Monitor.FreshnessWindow,
		ReportWindow:    cfg.Monitor.ReportWindow,
		MinActiveMPs:    cfg.Monitor.MinActiveMPs,
		MaxVoteAge:      cfg.Monitor.MaxVoteAge,
	}, nil)

	scheduler := service.NewScheduler(syncSvc, service.SchedulerConfig{
		DailyHour:  cfg.Scheduler.DailyHour,
		WeeklyDay:  time.Weekday(cfg.Scheduler.WeeklyDay),
		WeeklyHour: cfg.Scheduler.WeeklyHour,
	}, nil, log)

	log.WithFields(logger.Fields{
		"source": fetcher.GetSourceID(),
		"cache":  cfg.Cache.Enabled,
	}).Info("Sync pipeline initialized")

	return &App{
		Config:    cfg,
		DB:        db,
		Fetcher:   fetcher,
		Sync:      syncSvc,
		Monitor:   monitor,
		Scheduler: scheduler,
	}, nil
}

// NewFetcher picks the archive fetcher for the configured source type.
func NewFetcher(cfg *config.SourceConfig) (source.Fetcher, error) {
	switch cfg.Type {
	case "http", "":
		return psp.NewFetcher(psp.Config{
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			RetryCount: cfg.RetryCount,
		}), nil
	case "local":
		return local.NewFetcher(cfg.LocalDir), nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.Type)
	}
}

// ArchiveFor resolves a source alias (mp, voting, bills) to its archive
// name; anything else is taken as an archive name.
func (a *App) ArchiveFor(name string) string {
	switch name {
	case service.SourceMP:
		return a.Config.Source.MPArchive
	case service.SourceVoting:
		return a.Config.Source.VotingArchive("")
	case service.SourceBills:
		return a.Config.Source.BillsArchive
	}
	return name
}

// Close releases the database connection.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
