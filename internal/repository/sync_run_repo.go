package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/parlsync/internal/domain"
	"gorm.io/gorm"
)

// ErrRunNotRunning is returned when finishing a run that is missing or already final.
var ErrRunNotRunning = errors.New("sync run not found or already finished")

// SyncRunRepository persists the data_sync_log ledger.
type SyncRunRepository struct {
	db *gorm.DB
}

// NewSyncRunRepository creates a new SyncRunRepository.
func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a new run row.
func (r *SyncRunRepository) Create(ctx context.Context, run *domain.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Finish finalizes a running run in a single conditional update.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
//   - status: terminal status.
//   - counters: final record counters.
//   - errMsg: failure message, nil on success.
//   - completedAt: completion timestamp.
//
// Returns:
//   - error: ErrRunNotRunning if no running row matched.
func (r *SyncRunRepository) Finish(ctx context.Context, id string, status domain.SyncStatus, counters domain.Counters, errMsg *string, completedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.SyncRun{}).
		Where("id = ? AND sync_status = ?", id, domain.SyncStatusRunning).
		Updates(map[string]interface{}{
			"sync_status":       status,
			"records_processed": counters.Processed,
			"records_inserted":  counters.Inserted,
			"records_updated":   counters.Updated,
			"records_failed":    counters.Failed,
			"error_message":     errMsg,
			"completed_at":      completedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotRunning
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *SyncRunRepository) GetByID(ctx context.Context, id string) (*domain.SyncRun, error) {
	var run domain.SyncRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRecent returns the newest runs first, optionally filtered by kind.
func (r *SyncRunRepository) ListRecent(ctx context.Context, syncType string, limit int) ([]domain.SyncRun, error) {
	var runs []domain.SyncRun
	q := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if syncType != "" {
		q = q.Where("sync_type = ?", syncType)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// KindActivity aggregates a kind's ledger history.
type KindActivity struct {
	SyncType      string     `json:"sync_type"`
	LastCompleted *time.Time `json:"last_sync"`
	FailedCount   int64      `json:"failed_count"`
}

// ActivitySince groups runs finished after since by kind, with each kind's
// latest successful completion.
func (r *SyncRunRepository) ActivitySince(ctx context.Context, since time.Time) ([]KindActivity, error) {
	var rows []struct {
		SyncType    string
		FailedCount int64
	}
	err := r.db.WithContext(ctx).Model(&domain.SyncRun{}).
		Select("sync_type, SUM(CASE WHEN sync_status = ? THEN 1 ELSE 0 END) AS failed_count", domain.SyncStatusFailed).
		Where("completed_at > ?", since).
		Group("sync_type").
		Order("sync_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]KindActivity, 0, len(rows))
	for _, row := range rows {
		last, err := r.lastCompleted(ctx, row.SyncType)
		if err != nil {
			return nil, err
		}
		out = append(out, KindActivity{SyncType: row.SyncType, LastCompleted: last, FailedCount: row.FailedCount})
	}
	return out, nil
}

// LastCompleted returns the completion time of the newest completed run per kind.
// Kinds that never completed are absent from the map.
func (r *SyncRunRepository) LastCompleted(ctx context.Context, kinds []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(kinds))
	for _, kind := range kinds {
		last, err := r.lastCompleted(ctx, kind)
		if err != nil {
			return nil, err
		}
		if last != nil {
			out[kind] = *last
		}
	}
	return out, nil
}

func (r *SyncRunRepository) lastCompleted(ctx context.Context, kind string) (*time.Time, error) {
	var run domain.SyncRun
	err := r.db.WithContext(ctx).
		Where("sync_type = ? AND sync_status = ?", kind, domain.SyncStatusCompleted).
		Order("completed_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run.CompletedAt, nil
}

// StuckRunning lists kinds with a run still running that started before cutoff.
func (r *SyncRunRepository) StuckRunning(ctx context.Context, cutoff time.Time) ([]string, error) {
	var kinds []string
	err := r.db.WithContext(ctx).Model(&domain.SyncRun{}).
		Distinct("sync_type").
		Where("sync_status = ? AND started_at < ?", domain.SyncStatusRunning, cutoff).
		Order("sync_type").
		Pluck("sync_type", &kinds).Error
	return kinds, err
}

// KnownKinds lists every kind that has ever been recorded.
func (r *SyncRunRepository) KnownKinds(ctx context.Context) ([]string, error) {
	var kinds []string
	err := r.db.WithContext(ctx).Model(&domain.SyncRun{}).
		Distinct("sync_type").
		Order("sync_type").
		Pluck("sync_type", &kinds).Error
	return kinds, err
}
