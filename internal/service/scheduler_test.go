package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/parlsync/internal/domain"
)

type fakeRunner struct {
	calls []string
	err   error
	runs  []domain.RunResult
}

func (r *fakeRunner) RunFull(context.Context) (*SyncReport, error) {
	r.calls = append(r.calls, SyncTypeFull)
	return r.report(SyncTypeFull)
}

func (r *fakeRunner) RunIncremental(context.Context) (*SyncReport, error) {
	r.calls = append(r.calls, SyncTypeIncremental)
	return r.report(SyncTypeIncremental)
}

func (r *fakeRunner) report(kind string) (*SyncReport, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &SyncReport{SyncType: kind, Runs: r.runs}, nil
}

func testSchedule() SchedulerConfig {
	return SchedulerConfig{DailyHour: 6, WeeklyDay: time.Sunday, WeeklyHour: 2}
}

func TestSchedulerDue(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, testSchedule(), nil, nil)
	// 2024-05-05 is a Sunday.
	tests := []struct {
		name string
		at   time.Time
		want string
		due  bool
	}{
		{"daily", time.Date(2024, 5, 1, 6, 0, 30, 0, time.Local), SyncTypeIncremental, true},
		{"daily on sunday", time.Date(2024, 5, 5, 6, 0, 0, 0, time.Local), SyncTypeIncremental, true},
		{"weekly", time.Date(2024, 5, 5, 2, 0, 0, 0, time.Local), SyncTypeFull, true},
		{"weekly hour on weekday", time.Date(2024, 5, 1, 2, 0, 0, 0, time.Local), "", false},
		{"past the minute", time.Date(2024, 5, 1, 6, 1, 0, 0, time.Local), "", false},
		{"other hour", time.Date(2024, 5, 1, 13, 0, 0, 0, time.Local), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, due := s.Due(tt.at)
			assert.Equal(t, tt.due, due)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchedulerSameDailyAndWeeklyHour(t *testing.T) {
	cfg := testSchedule()
	cfg.WeeklyHour = cfg.DailyHour
	s := NewScheduler(&fakeRunner{}, cfg, nil, nil)

	got, due := s.Due(time.Date(2024, 5, 5, 6, 0, 0, 0, time.Local))
	assert.True(t, due)
	assert.Equal(t, SyncTypeIncremental, got)
}

func TestSchedulerTick(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 5, 2, 0, 10, 0, time.Local)}
	runner := &fakeRunner{}
	s := NewScheduler(runner, testSchedule(), clk.Now, nil)
	ctx := context.Background()

	require.NoError(t, s.Tick(ctx))
	clk.Advance(30 * time.Second)
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, []string{SyncTypeFull}, runner.calls, "one minute fires once")

	clk.Advance(4 * time.Hour)
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, []string{SyncTypeFull, SyncTypeIncremental}, runner.calls)

	runner.runs = []domain.RunResult{{Status: domain.SyncStatusFailed}}
	clk.Advance(24 * time.Hour)
	assert.NoError(t, s.Tick(ctx), "failed table runs are logged, not returned")
}

func TestSchedulerTickErrors(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 1, 6, 0, 0, 0, time.Local)}
	runner := &fakeRunner{err: &BusyError{Tables: []string{"persons"}}}
	s := NewScheduler(runner, testSchedule(), clk.Now, nil)

	assert.NoError(t, s.Tick(context.Background()), "busy tables skip the slot")

	boom := errors.New("engine down")
	runner.err = boom
	clk.Advance(24 * time.Hour)
	assert.ErrorIs(t, s.Tick(context.Background()), boom)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, SchedulerConfig{DailyHour: 6, Tick: time.Millisecond}, func() time.Time {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, s.Run(ctx))
}

func TestTableLocks(t *testing.T) {
	locks := NewTableLocks()

	release, busy := locks.TryLock("persons", "mps")
	require.Empty(t, busy)
	assert.Equal(t, []string{"mps", "persons"}, locks.Held())

	_, busy = locks.TryLock("bills", "mps")
	assert.Equal(t, []string{"mps"}, busy)
	assert.Equal(t, []string{"mps", "persons"}, locks.Held(), "a failed attempt takes nothing")

	release()
	release()
	assert.Empty(t, locks.Held())

	other, busy := locks.TryLock("mps")
	require.Empty(t, busy)
	other()
}
