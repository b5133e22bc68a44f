// Package ledger records the lifecycle of every sync run.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/parlsync/internal/domain"
	"github.com/timmy/parlsync/internal/logger"
	"github.com/timmy/parlsync/internal/repository"
)

// ErrRunFinalized is returned by Finish for a run that is not running.
var ErrRunFinalized = errors.New("sync run already finalized")

// finishTimeout bounds the final ledger write, which runs even after the
// caller's context is cancelled.
const finishTimeout = 10 * time.Second

// Ledger wraps SyncRunRepository with run lifecycle rules.
type Ledger struct {
	runs *repository.SyncRunRepository
	now  func() time.Time
}

// New creates a Ledger. A nil clock uses time.Now.
func New(runs *repository.SyncRunRepository, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{runs: runs, now: now}
}

// Begin inserts a running run and returns its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: sync type tag, e.g. "persons".
//   - label: source label, usually the archive name.
//
// Returns:
//   - string: the new run ID.
//   - error: non-nil if the row could not be written.
func (l *Ledger) Begin(ctx context.Context, kind, label string) (string, error) {
	run := &domain.SyncRun{
		ID:        uuid.NewString(),
		SyncType:  kind,
		FileName:  label,
		Status:    domain.SyncStatusRunning,
		StartedAt: l.now(),
	}
	if err := l.runs.Create(ctx, run); err != nil {
		return "", fmt.Errorf("begin %s run: %w", kind, err)
	}
	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldRunID:    run.ID,
		logger.FieldSyncType: kind,
		logger.FieldArchive:  label,
	}).Info("Sync run started")
	return run.ID, nil
}

// Finish finalizes a run. It fails with ErrRunFinalized if the run was
// already finished, leaving the stored row untouched.
func (l *Ledger) Finish(ctx context.Context, runID string, status domain.SyncStatus, counters domain.Counters, runErr error) error {
	if status == domain.SyncStatusRunning {
		return fmt.Errorf("finish run %s: status must be terminal", runID)
	}
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}
	err := l.runs.Finish(ctx, runID, status, counters, msg, l.now())
	if errors.Is(err, repository.ErrRunNotRunning) {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunFinalized)
	}
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}

	logger.With(logger.Fields{
		logger.FieldRunID:    runID,
		logger.FieldStatus:   string(status),
		logger.FieldCount:    counters.Processed,
		logger.FieldInserted: counters.Inserted,
		logger.FieldUpdated:  counters.Updated,
		logger.FieldFailed:   counters.Failed,
	}).Info(ctx, "Sync run finished")
	return nil
}

// Track runs fn inside one ledger run. The run is finished exactly once:
// Completed when fn returns nil, Failed with fn's error otherwise. A panic in
// fn finishes the run as Failed and is then re-raised.
func (l *Ledger) Track(ctx context.Context, kind, label string, fn func(ctx context.Context) (domain.Counters, error)) (res domain.RunResult, err error) {
	res = domain.RunResult{SyncType: kind, FileName: label, StartedAt: l.now()}

	runID, err := l.Begin(ctx, kind, label)
	if err != nil {
		res.Status = domain.SyncStatusFailed
		res.Error = err.Error()
		return res, err
	}
	res.RunID = runID
	runCtx := logger.SetRunID(ctx, runID)

	finish := func(status domain.SyncStatus, runErr error) error {
		res.Status = status
		res.CompletedAt = l.now()
		if runErr != nil {
			res.Error = runErr.Error()
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), finishTimeout)
		defer cancel()
		return l.Finish(fctx, runID, status, res.Counters, runErr)
	}

	defer func() {
		if r := recover(); r != nil {
			if ferr := finish(domain.SyncStatusFailed, fmt.Errorf("panic: %v", r)); ferr != nil {
				logger.FromContext(runCtx).WithError(ferr).Error("Failed to finalize run after panic")
			}
			panic(r)
		}
	}()

	counters, runErr := fn(runCtx)
	res.Counters = counters

	status := domain.SyncStatusCompleted
	if runErr != nil {
		status = domain.SyncStatusFailed
	}
	if ferr := finish(status, runErr); ferr != nil {
		return res, ferr
	}
	return res, runErr
}

// Recent returns recent runs, newest first. A zero limit picks 10 for a
// single kind and 20 across all kinds.
func (l *Ledger) Recent(ctx context.Context, kind string, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
		if kind != "" {
			limit = 10
		}
	}
	return l.runs.ListRecent(ctx, kind, limit)
}

// Stale lists kinds whose data is older than window: kinds without a
// completed run inside the window, and kinds with a run stuck running since
// before it. Kinds are taken from the ledger itself plus any given.
func (l *Ledger) Stale(ctx context.Context, kinds []string, window time.Duration) ([]string, error) {
	known, err := l.runs.KnownKinds(ctx)
	if err != nil {
		return nil, err
	}
	all := mergeKinds(known, kinds)

	cutoff := l.now().Add(-window)
	last, err := l.runs.LastCompleted(ctx, all)
	if err != nil {
		return nil, err
	}
	stuck, err := l.runs.StuckRunning(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	stale := make(map[string]bool)
	for _, kind := range all {
		if t, ok := last[kind]; !ok || t.Before(cutoff) {
			stale[kind] = true
		}
	}
	for _, kind := range stuck {
		stale[kind] = true
	}

	out := make([]string, 0, len(stale))
	for _, kind := range all {
		if stale[kind] {
			out = append(out, kind)
		}
	}
	return out, nil
}

// Activity summarizes each kind's runs finished within window.
func (l *Ledger) Activity(ctx context.Context, window time.Duration) ([]repository.KindActivity, error) {
	return l.runs.ActivitySince(ctx, l.now().Add(-window))
}

// Get returns a single run.
func (l *Ledger) Get(ctx context.Context, runID string) (*domain.SyncRun, error) {
	return l.runs.GetByID(ctx, runID)
}

func mergeKinds(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
