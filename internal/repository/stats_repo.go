package repository

import (
	"context"
	"time"

	"github.com/timmy/parlsync/internal/domain"
	"gorm.io/gorm"
)

// StatsRepository answers read-only questions about ingested data.
type StatsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Ping checks database connectivity.
func (r *StatsRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// LatestVote returns the newest vote date and the number of dated sessions.
func (r *StatsRepository) LatestVote(ctx context.Context) (*time.Time, int64, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&domain.VotingSession{}).Where("vote_date IS NOT NULL")
	if err := q.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	if count == 0 {
		return nil, 0, nil
	}

	var latest domain.VotingSession
	if err := r.db.WithContext(ctx).
		Where("vote_date IS NOT NULL").
		Order("vote_date DESC").
		First(&latest).Error; err != nil {
		return nil, 0, err
	}
	return latest.VoteDate, count, nil
}

// CountActiveMandates counts mandates flagged active.
func (r *StatsRepository) CountActiveMandates(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Mandate{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

// TableCounts returns row counts for every entity table.
func (r *StatsRepository) TableCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, model := range domain.Models() {
		stmt := &gorm.Statement{DB: r.db}
		if err := stmt.Parse(model); err != nil {
			return nil, err
		}
		var count int64
		if err := r.db.WithContext(ctx).Model(model).Count(&count).Error; err != nil {
			return nil, err
		}
		out[stmt.Schema.Table] = count
	}
	return out, nil
}

// VoteTally is one mandate's vote counts by result code.
type VoteTally struct {
	MandateID int
	Result    string
	Count     int64
}

// VoteTallies groups vote records by mandate and result code.
func (r *StatsRepository) VoteTallies(ctx context.Context) ([]VoteTally, error) {
	var rows []VoteTally
	err := r.db.WithContext(ctx).Model(&domain.VoteRecord{}).
		Select("mp_id AS mandate_id, vote_result AS result, COUNT(*) AS count").
		Group("mp_id, vote_result").
		Order("mp_id, vote_result").
		Scan(&rows).Error
	return rows, err
}
