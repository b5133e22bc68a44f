package service

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/parlsync/internal/logger"
)

// SyncRunner is the part of SyncService the scheduler drives.
type SyncRunner interface {
	RunFull(ctx context.Context) (*SyncReport, error)
	RunIncremental(ctx context.Context) (*SyncReport, error)
}

// SchedulerConfig sets when periodic syncs fire, in local time.
type SchedulerConfig struct {
	DailyHour  int
	WeeklyDay  time.Weekday
	WeeklyHour int
	// Tick and RetryDelay default to one and five minutes.
	Tick       time.Duration
	RetryDelay time.Duration
}

// Scheduler fires an incremental sync daily and a full sync weekly.
type Scheduler struct {
	runner SyncRunner
	cfg    SchedulerConfig
	now    func() time.Time
	logger *logger.Logger
	// last minute a sync was fired, so one minute never fires twice
	lastFired time.Time
}

// NewScheduler creates a Scheduler; a nil clock uses time.Now.
func NewScheduler(runner SyncRunner, cfg SchedulerConfig, now func() time.Time, log *logger.Logger) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Scheduler{runner: runner, cfg: cfg, now: now, logger: log.WithField(logger.FieldComponent, "scheduler")}
}

// Due returns the sync type to start at t, if any. The daily sync wins when
// both fall in the same minute.
func (s *Scheduler) Due(t time.Time) (string, bool) {
	if t.Minute() != 0 {
		return "", false
	}
	switch {
	case t.Hour() == s.cfg.DailyHour:
		return SyncTypeIncremental, true
	case t.Weekday() == s.cfg.WeeklyDay && t.Hour() == s.cfg.WeeklyHour:
		return SyncTypeFull, true
	}
	return "", false
}

// Run checks the clock every tick until ctx is cancelled. After a failed
// sync it waits RetryDelay before checking again.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithFields(logger.Fields{
		"daily_hour":  s.cfg.DailyHour,
		"weekly_day":  s.cfg.WeeklyDay.String(),
		"weekly_hour": s.cfg.WeeklyHour,
	}).Info("Scheduler started")

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			select {
			case <-ctx.Done():
				s.logger.Info("Scheduler stopped")
				return nil
			case <-time.After(s.cfg.RetryDelay):
			}
		}
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick fires the sync due now, if any. A sync skipped because its tables are
// busy is not an error.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()
	kind, ok := s.Due(now)
	minute := now.Truncate(time.Minute)
	if !ok || minute.Equal(s.lastFired) {
		return nil
	}
	s.lastFired = minute

	ctx = s.logger.WithField(logger.FieldSyncType, kind).WithContext(ctx)
	var (
		report *SyncReport
		err    error
	)
	if kind == SyncTypeFull {
		report, err = s.runner.RunFull(ctx)
	} else {
		report, err = s.runner.RunIncremental(ctx)
	}

	var busy *BusyError
	switch {
	case errors.As(err, &busy):
		logger.FromContext(ctx).WithField("busy_tables", busy.Tables).Warn("Scheduled sync skipped, tables busy")
		return nil
	case err != nil:
		logger.FromContext(ctx).WithError(err).Error("Scheduled sync failed")
		return err
	case report.Failed():
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldFailed: report.Totals.Failed,
			"errors":           report.Errors,
		}).Warn("Scheduled sync completed with failures")
	default:
		logger.FromContext(ctx).WithField(logger.FieldCount, report.Totals.Processed).Info("Scheduled sync completed")
	}
	return nil
}
