package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/parlsync/internal/domain"
	"github.com/timmy/parlsync/internal/ledger"
	"github.com/timmy/parlsync/internal/policy"
	"github.com/timmy/parlsync/internal/repository"
)

// HealthStatus is the overall verdict of a health check.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthWarning   HealthStatus = "warning"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// MonitorConfig holds the thresholds used by freshness and health checks.
type MonitorConfig struct {
	// FreshnessWindow applies to tables refreshed by the daily sync.
	FreshnessWindow time.Duration
	// ReportWindow bounds recent activity and applies to reference tables,
	// which only the weekly full sync refreshes.
	ReportWindow time.Duration
	MinActiveMPs int64
	MaxVoteAge   time.Duration
}

// referenceKinds are refreshed weekly; every other kind daily.
var referenceKinds = []string{policy.KindElectoralPeriods, policy.KindParties, policy.KindConstituencies}

var sourceKinds = []string{
	policy.KindPersons, policy.KindMandates, policy.KindVotingSessions,
	policy.KindVoteRecords, policy.KindBills,
}

// MonitorService reports on ledger history and stored data.
type MonitorService struct {
	ledger *ledger.Ledger
	stats  *repository.StatsRepository
	cfg    *MonitorConfig
	now    func() time.Time
}

// NewMonitorService creates a new monitor service
func NewMonitorService(l *ledger.Ledger, stats *repository.StatsRepository, cfg *MonitorConfig, now func() time.Time) *MonitorService {
	if now == nil {
		now = time.Now
	}
	return &MonitorService{ledger: l, stats: stats, cfg: cfg, now: now}
}

// Recent returns the latest runs, optionally for one kind.
func (m *MonitorService) Recent(ctx context.Context, kind string, limit int) ([]domain.SyncRun, error) {
	return m.ledger.Recent(ctx, kind, limit)
}

// Run returns a single ledger run.
func (m *MonitorService) Run(ctx context.Context, id string) (*domain.SyncRun, error) {
	return m.ledger.Get(ctx, id)
}

// Freshness describes how current the stored data is.
type Freshness struct {
	LatestVoteDate      *time.Time                `json:"latest_vote_date"`
	TotalVotingSessions int64                     `json:"total_voting_sessions"`
	ActiveMPs           int64                     `json:"active_mps"`
	RecentSyncs         []repository.KindActivity `json:"recent_syncs"`
	StaleDataTypes      []string                  `json:"stale_data_types"`
	TableCounts         map[string]int64          `json:"table_counts"`
}

// Freshness gathers data and ledger freshness indicators.
func (m *MonitorService) Freshness(ctx context.Context) (*Freshness, error) {
	latest, sessions, err := m.stats.LatestVote(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest vote: %w", err)
	}
	active, err := m.stats.CountActiveMandates(ctx)
	if err != nil {
		return nil, fmt.Errorf("active mandates: %w", err)
	}
	activity, err := m.ledger.Activity(ctx, m.cfg.ReportWindow)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	stale, err := m.stale(ctx)
	if err != nil {
		return nil, fmt.Errorf("stale kinds: %w", err)
	}
	counts, err := m.stats.TableCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("table counts: %w", err)
	}

	return &Freshness{
		LatestVoteDate:      latest,
		TotalVotingSessions: sessions,
		ActiveMPs:           active,
		RecentSyncs:         activity,
		StaleDataTypes:      stale,
		TableCounts:         counts,
	}, nil
}

// stale checks reference kinds against the report window and all other kinds,
// including any the ledger has seen, against the freshness window.
func (m *MonitorService) stale(ctx context.Context) ([]string, error) {
	isReference := make(map[string]bool, len(referenceKinds))
	for _, k := range referenceKinds {
		isReference[k] = true
	}

	daily, err := m.ledger.Stale(ctx, sourceKinds, m.cfg.FreshnessWindow)
	if err != nil {
		return nil, err
	}
	weekly, err := m.ledger.Stale(ctx, referenceKinds, m.cfg.ReportWindow)
	if err != nil {
		return nil, err
	}

	out := []string{}
	for _, k := range daily {
		if !isReference[k] {
			out = append(out, k)
		}
	}
	for _, k := range weekly {
		if isReference[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// Health is the result of a health check.
type Health struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Issues    []string     `json:"issues"`
	DataStats *Freshness   `json:"data_stats,omitempty"`
}

// Health checks connectivity and data freshness. Store errors make the
// result unhealthy; data problems make it a warning.
func (m *MonitorService) Health(ctx context.Context) *Health {
	now := m.now()
	h := &Health{Status: HealthHealthy, Timestamp: now, Issues: []string{}}

	if err := m.stats.Ping(ctx); err != nil {
		h.Status = HealthUnhealthy
		h.Issues = append(h.Issues, fmt.Sprintf("Health check failed: %v", err))
		return h
	}
	fresh, err := m.Freshness(ctx)
	if err != nil {
		h.Status = HealthUnhealthy
		h.Issues = append(h.Issues, fmt.Sprintf("Health check failed: %v", err))
		return h
	}
	h.DataStats = fresh

	warn := func(issue string) {
		h.Status = HealthWarning
		h.Issues = append(h.Issues, issue)
	}
	if fresh.ActiveMPs < m.cfg.MinActiveMPs {
		warn("Low MP count detected")
	}
	if len(fresh.StaleDataTypes) > 0 {
		warn("Stale data detected: " + strings.Join(fresh.StaleDataTypes, ", "))
	}
	if fresh.LatestVoteDate != nil && now.Sub(*fresh.LatestVoteDate) > m.cfg.MaxVoteAge {
		warn("No recent voting sessions")
	}
	return h
}
