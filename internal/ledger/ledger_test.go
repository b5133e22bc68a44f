package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/parlsync/internal/domain"
	"github.com/timmy/parlsync/internal/repository"
	"github.com/timmy/parlsync/internal/repository/repotest"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newLedger(t *testing.T) (*Ledger, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return New(repository.NewSyncRunRepository(repotest.NewTestDB(t)), clock.Now), clock
}

func TestBeginFinish(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	id, err := l.Begin(ctx, "persons", "poslanci.zip")
	require.NoError(t, err)

	run, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusRunning, run.Status)
	assert.Nil(t, run.CompletedAt)

	counters := domain.Counters{Processed: 3, Inserted: 2, Failed: 1}
	require.NoError(t, l.Finish(ctx, id, domain.SyncStatusCompleted, counters, nil))

	run, err = l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusCompleted, run.Status)
	assert.Equal(t, counters, run.Counters)
	assert.True(t, run.Finished())
	assert.Nil(t, run.ErrorMessage)
}

func TestFinishTwiceIsRejected(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	id, err := l.Begin(ctx, "bills", "tisky.zip")
	require.NoError(t, err)
	require.NoError(t, l.Finish(ctx, id, domain.SyncStatusFailed, domain.Counters{}, errors.New("download failed")))

	err = l.Finish(ctx, id, domain.SyncStatusCompleted, domain.Counters{Processed: 9}, nil)
	assert.ErrorIs(t, err, ErrRunFinalized)

	run, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFailed, run.Status)
	assert.Zero(t, run.Processed)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "download failed", *run.ErrorMessage)
}

func TestFinishRejectsRunningStatus(t *testing.T) {
	l, _ := newLedger(t)
	id, err := l.Begin(context.Background(), "bills", "tisky.zip")
	require.NoError(t, err)
	assert.Error(t, l.Finish(context.Background(), id, domain.SyncStatusRunning, domain.Counters{}, nil))
}

func TestTrack(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		res, err := l.Track(ctx, "persons", "a", func(ctx context.Context) (domain.Counters, error) {
			return domain.Counters{Processed: 1, Inserted: 1}, nil
		})
		require.NoError(t, err)
		assert.True(t, res.Succeeded())

		run, err := l.Get(ctx, res.RunID)
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStatusCompleted, run.Status)
		assert.Equal(t, 1, run.Inserted)
	})

	t.Run("failed keeps partial counters", func(t *testing.T) {
		boom := errors.New("boom")
		res, err := l.Track(ctx, "persons", "b", func(ctx context.Context) (domain.Counters, error) {
			return domain.Counters{Processed: 4, Updated: 4}, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, domain.SyncStatusFailed, res.Status)
		assert.Equal(t, "boom", res.Error)

		run, err := l.Get(ctx, res.RunID)
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStatusFailed, run.Status)
		assert.Equal(t, 4, run.Updated)
	})

	t.Run("panic finishes run then re-panics", func(t *testing.T) {
		assert.PanicsWithValue(t, "kaput", func() {
			_, _ = l.Track(ctx, "panicky", "c", func(ctx context.Context) (domain.Counters, error) {
				panic("kaput")
			})
		})
		runs, err := l.Recent(ctx, "panicky", 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, domain.SyncStatusFailed, runs[0].Status)
		require.NotNil(t, runs[0].ErrorMessage)
		assert.Contains(t, *runs[0].ErrorMessage, "kaput")
	})

	t.Run("cancelled context still finishes", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		res, err := l.Track(cctx, "persons", "d", func(ctx context.Context) (domain.Counters, error) {
			cancel()
			return domain.Counters{}, ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)

		run, err := l.Get(ctx, res.RunID)
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStatusFailed, run.Status)
	})
}

func TestRecentDefaults(t *testing.T) {
	l, clock := newLedger(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		kind := "persons"
		if i%2 == 1 {
			kind = "bills"
		}
		clock.now = clock.now.Add(time.Minute)
		_, err := l.Begin(ctx, kind, "x")
		require.NoError(t, err)
	}

	all, err := l.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 20)
	assert.True(t, all[0].StartedAt.After(all[19].StartedAt))

	persons, err := l.Recent(ctx, "persons", 0)
	require.NoError(t, err)
	assert.Len(t, persons, 10)
	for _, r := range persons {
		assert.Equal(t, "persons", r.SyncType)
	}

	few, err := l.Recent(ctx, "", 3)
	require.NoError(t, err)
	assert.Len(t, few, 3)
}

func TestStale(t *testing.T) {
	l, clock := newLedger(t)
	ctx := context.Background()
	start := clock.now

	track := func(kind string, fail bool) {
		_, _ = l.Track(ctx, kind, "x", func(context.Context) (domain.Counters, error) {
			if fail {
				return domain.Counters{}, errors.New("nope")
			}
			return domain.Counters{}, nil
		})
	}

	track("persons", false)
	track("bills", false)
	_, err := l.Begin(ctx, "vote_records", "x")
	require.NoError(t, err)

	clock.now = start.Add(72 * time.Hour)
	track("persons", false)
	track("bills", true)

	stale, err := l.Stale(ctx, []string{"mps"}, 48*time.Hour)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bills", "vote_records", "mps"}, stale)

	activity, err := l.Activity(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, "bills", activity[0].SyncType)
	assert.EqualValues(t, 1, activity[0].FailedCount)
	require.NotNil(t, activity[0].LastCompleted)
	assert.True(t, activity[0].LastCompleted.Equal(start))
	assert.Equal(t, "persons", activity[1].SyncType)
}
