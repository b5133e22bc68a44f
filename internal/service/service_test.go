package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/parlsync/internal/cache"
	"github.com/timmy/parlsync/internal/domain"
	"github.com/timmy/parlsync/internal/ledger"
	"github.com/timmy/parlsync/internal/policy"
	"github.com/timmy/parlsync/internal/reconcile"
	"github.com/timmy/parlsync/internal/repository"
	"github.com/timmy/parlsync/internal/repository/repotest"
	"github.com/timmy/parlsync/internal/source"
	"github.com/timmy/parlsync/internal/storage"
	"golang.org/x/text/encoding/charmap"
	"gorm.io/gorm"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memFetcher serves archives from memory; failing names return a 503.
type memFetcher struct {
	archives map[string][]byte
	failing  map[string]bool
}

func (f *memFetcher) GetSourceID() string { return "memory" }

func (f *memFetcher) Fetch(_ context.Context, name string) ([]byte, error) {
	if f.failing[name] {
		return nil, &source.FetchError{Name: name, StatusCode: http.StatusServiceUnavailable, Err: errors.New("unavailable")}
	}
	data, ok := f.archives[name]
	if !ok {
		return nil, &source.FetchError{Name: name, StatusCode: http.StatusNotFound, Err: errors.New("not found")}
	}
	return data, nil
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, text := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		encoded, err := charmap.Windows1250.NewEncoder().String(text)
		require.NoError(t, err)
		_, err = w.Write([]byte(encoded))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testArchives(t *testing.T) map[string][]byte {
	return map[string][]byte{
		"poslanci.zip": zipOf(t, map[string]string{
			"osoby.unl":    "1||Novák|Jan||01.02.1970|M|||\r\n2||Dvořák|Petr||03.04.1975|M|||\r\n",
			"poslanec.unl": "10|1|1|1|165|||||||||||\r\n11|2|1|1|165|||||||||||\r\n",
			"neznamy.unl":  "x|y|\r\n",
		}),
		"hl-2021ps.zip": zipOf(t, map[string]string{
			"hl2021s.unl":  "100|165|1|1|1|30.04.2024|10:15|100|50|10|5|165|83|F|A|Návrh|Zákon|\r\n",
			"hl2021h1.unl": "100|10|A|\r\n",
			"hl2021h2.unl": "100|11|N|\r\n",
			"hl2021z.unl":  "ignored|\r\n",
		}),
		"tisky.zip": zipOf(t, map[string]string{
			"tisk.unl": "1|165|100|Zákon o něčem|||||30.04.2024|||http://x|\r\n",
		}),
	}
}

type fixture struct {
	db      *gorm.DB
	clock   *clock
	fetcher *memFetcher
	cache   *cache.PayloadCache
	ledger  *ledger.Ledger
	sync    *SyncService
	monitor *MonitorService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := repotest.NewTestDB(t)
	clk := &clock{now: time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		db:      db,
		clock:   clk,
		fetcher: &memFetcher{archives: testArchives(t), failing: map[string]bool{}},
		cache:   cache.New(store, "cache"),
		ledger:  ledger.New(repository.NewSyncRunRepository(db), clk.Now),
	}
	stats := repository.NewStatsRepository(db)
	f.sync = NewSyncService(SyncDeps{
		Fetcher:  f.fetcher,
		Engine:   reconcile.NewEngine(repository.NewEntityStore(db, 5*time.Second), reconcile.WithClock(clk.Now)),
		Ledger:   f.ledger,
		Policies: policy.New(policy.DefaultOptions()),
		Stats:    stats,
		Cache:    f.cache,
		Now:      clk.Now,
	}, &SyncConfig{MPArchive: "poslanci.zip", VotingPeriod: "hl-2021ps", BillsArchive: "tisky.zip"})
	f.monitor = NewMonitorService(f.ledger, stats, &MonitorConfig{
		FreshnessWindow: 48 * time.Hour,
		ReportWindow:    7 * 24 * time.Hour,
		MinActiveMPs:    2,
		MaxVoteAge:      30 * 24 * time.Hour,
	}, clk.Now)
	return f
}

func kinds(runs []domain.RunResult) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.SyncType
	}
	return out
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestRunFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.sync.RunFull(ctx)
	require.NoError(t, err)
	assert.False(t, report.Failed(), report.Errors)
	assert.Equal(t, []string{
		policy.KindElectoralPeriods, policy.KindParties, policy.KindConstituencies,
		policy.KindPersons, policy.KindMandates, policy.KindVotingSessions, policy.KindVoteRecords, policy.KindBills,
	}, kinds(report.Runs))
	for _, run := range report.Runs {
		assert.Equal(t, domain.SyncStatusCompleted, run.Status, run.SyncType)
		assert.Zero(t, run.Failed, run.SyncType)
	}

	assert.EqualValues(t, 9, f.count(t, &domain.ElectoralPeriod{}))
	assert.EqualValues(t, 2, f.count(t, &domain.Person{}))
	assert.EqualValues(t, 2, f.count(t, &domain.Mandate{}))
	assert.EqualValues(t, 1, f.count(t, &domain.VotingSession{}))
	assert.EqualValues(t, 2, f.count(t, &domain.VoteRecord{}))
	assert.EqualValues(t, 1, f.count(t, &domain.Bill{}))
	assert.Equal(t, 9+12+14+2+2+1+2+1, report.Totals.Inserted)

	var person domain.Person
	require.NoError(t, f.db.First(&person, 2).Error)
	assert.Equal(t, "Dvořák", *person.LastName)

	payload, found, err := f.cache.Get(ctx, cache.KeyMP)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, payload.Tables["osoby"].Rows, 2)
	assert.Equal(t, "x|y|\r\n", payload.Raw["neznamy_raw"])

	voting, found, err := f.cache.Get(ctx, cache.VotingKey("hl-2021ps"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, voting.Tables["hl_poslanec"].Rows, 2)
	assert.NotContains(t, voting.Raw, "hl2021z_raw")

	var running int64
	require.NoError(t, f.db.Model(&domain.SyncRun{}).Where("sync_status = ?", domain.SyncStatusRunning).Count(&running).Error)
	assert.Zero(t, running)
}

func TestIncrementalIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.RunFull(ctx)
	require.NoError(t, err)
	report, err := f.sync.RunIncremental(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		policy.KindPersons, policy.KindMandates, policy.KindVotingSessions, policy.KindVoteRecords, policy.KindBills,
	}, kinds(report.Runs))
	assert.Zero(t, report.Totals.Inserted)
	assert.Equal(t, 8, report.Totals.Updated)
	assert.EqualValues(t, 2, f.count(t, &domain.VoteRecord{}))
}

func TestFetchFailureFailsPlannedTables(t *testing.T) {
	f := newFixture(t)
	f.fetcher.failing["hl-2021ps.zip"] = true

	report, err := f.sync.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Failed())
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "hl-2021ps.zip")

	byKind := map[string]domain.RunResult{}
	for _, run := range report.Runs {
		byKind[run.SyncType] = run
	}
	for _, kind := range []string{policy.KindVotingSessions, policy.KindVoteRecords} {
		run := byKind[kind]
		assert.Equal(t, domain.SyncStatusFailed, run.Status, kind)
		assert.Equal(t, domain.Counters{}, run.Counters, kind)

		stored, err := f.ledger.Get(context.Background(), run.RunID)
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Contains(t, *stored.ErrorMessage, "status 503")
	}
	assert.Equal(t, domain.SyncStatusCompleted, byKind[policy.KindBills].Status)
}

func TestCorruptArchiveIsFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.archives["tisky.zip"] = []byte("not a zip")

	report, err := f.sync.RunTest(context.Background(), SourceBills, nil)
	require.NoError(t, err)
	require.Len(t, report.Runs, 1)
	assert.Equal(t, domain.SyncStatusFailed, report.Runs[0].Status)
	assert.Contains(t, report.Runs[0].Error, "corrupt archive")
}

func TestRunTestWithTableFilter(t *testing.T) {
	f := newFixture(t)

	report, err := f.sync.RunTest(context.Background(), SourceMP, []string{"osoby"})
	require.NoError(t, err)
	assert.Equal(t, []string{policy.KindPersons}, kinds(report.Runs))
	assert.EqualValues(t, 0, f.count(t, &domain.Mandate{}))

	payload, found, err := f.cache.Get(context.Background(), cache.KeyMP)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, payload.Tables, "poslanec")

	_, err = f.sync.RunTest(context.Background(), "organy", nil)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestBusyTablesAreRejected(t *testing.T) {
	f := newFixture(t)
	release, busy := f.sync.Locks().TryLock("persons")
	require.Empty(t, busy)

	_, err := f.sync.RunIncremental(context.Background())
	var be *BusyError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, []string{"persons"}, be.Tables)

	report, err := f.sync.RunTest(context.Background(), SourceBills, nil)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	release()
	_, err = f.sync.RunIncremental(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, f.sync.Locks().Held())
}

func TestStartRunsInBackground(t *testing.T) {
	f := newFixture(t)

	done, err := f.sync.Start(context.Background(), SourceMP, nil)
	require.NoError(t, err)

	report := <-done
	require.NotNil(t, report)
	assert.Equal(t, SyncTypeTest, report.SyncType)
	assert.Equal(t, []string{policy.KindPersons, policy.KindMandates}, kinds(report.Runs))
	assert.Empty(t, f.sync.Locks().Held())

	release, _ := f.sync.Locks().TryLock("mps")
	defer release()
	_, err = f.sync.Start(context.Background(), SourceMP, nil)
	var be *BusyError
	assert.ErrorAs(t, err, &be)

	_, err = f.sync.Start(context.Background(), "senat", nil)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

// stallingStore holds every session open until its context is cancelled,
// then takes a while to give the connection back.
type stallingStore struct {
	entered chan struct{}
	once    sync.Once
}

func (s *stallingStore) Session(ctx context.Context, _ func(reconcile.Session) error) error {
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	return ctx.Err()
}

func TestWaitDrainsCancelledBackgroundSync(t *testing.T) {
	f := newFixture(t)
	store := &stallingStore{entered: make(chan struct{})}
	svc := NewSyncService(SyncDeps{
		Fetcher:  f.fetcher,
		Engine:   reconcile.NewEngine(store, reconcile.WithClock(f.clock.Now)),
		Ledger:   f.ledger,
		Policies: policy.New(policy.DefaultOptions()),
		Stats:    repository.NewStatsRepository(f.db),
		Now:      f.clock.Now,
	}, &SyncConfig{MPArchive: "poslanci.zip", VotingPeriod: "hl-2021ps", BillsArchive: "tisky.zip"})

	ctx, cancel := context.WithCancel(context.Background())
	done, err := svc.Start(ctx, SourceMP, nil)
	require.NoError(t, err)

	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("sync never reached the store")
	}
	cancel()
	svc.Wait()

	var running int64
	require.NoError(t, f.db.Model(&domain.SyncRun{}).
		Where("sync_status = ?", domain.SyncStatusRunning).Count(&running).Error)
	assert.Zero(t, running)

	runs, err := f.ledger.Recent(context.Background(), policy.KindPersons, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.SyncStatusFailed, runs[0].Status)
	assert.Empty(t, svc.Locks().Held())

	report, ok := <-done
	require.True(t, ok)
	assert.True(t, report.Failed())
}

func TestInspect(t *testing.T) {
	f := newFixture(t)

	ins, err := f.sync.Inspect(context.Background(), "poslanci.zip")
	require.NoError(t, err)
	assert.Equal(t, "poslanci.zip", ins.Archive)
	assert.Equal(t, 31, ins.Files["osoby.unl"])
	assert.Contains(t, ins.AvailableSchemas, "osoby")
	assert.Contains(t, ins.AvailableSchemas, "poslanec")
	assert.Equal(t, []string{"neznamy"}, ins.MissingSchemas)

	_, err = f.sync.Inspect(context.Background(), "missing.zip")
	var fe *source.FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestSchemas(t *testing.T) {
	all := Schemas()
	assert.Len(t, all, 21)
	assert.Equal(t, []string{"id_hlasovani", "id_poslanec", "vysledek"}, all["hl_poslanec"])
}

func TestMPStats(t *testing.T) {
	f := newFixture(t)
	_, err := f.sync.RunFull(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&domain.VotingSession{ID: 101, CommitteeID: 165}).Error)
	require.NoError(t, f.db.Create(&domain.VoteRecord{VotingSessionID: 101, MandateID: 10, VoteResult: "@"}).Error)

	stats, err := f.sync.MPStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []MPStat{
		{MandateID: 10, TotalVotes: 2, VotesFor: 1, Absent: 1, AttendanceRate: 50},
		{MandateID: 11, TotalVotes: 1, VotesAgainst: 1, AttendanceRate: 100},
	}, stats)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h := f.monitor.Health(ctx)
	assert.Equal(t, HealthWarning, h.Status)
	assert.Contains(t, h.Issues, "Low MP count detected")

	_, err := f.sync.RunFull(ctx)
	require.NoError(t, err)

	h = f.monitor.Health(ctx)
	assert.Equal(t, HealthHealthy, h.Status, h.Issues)
	require.NotNil(t, h.DataStats)
	assert.EqualValues(t, 2, h.DataStats.ActiveMPs)
	assert.EqualValues(t, 1, h.DataStats.TotalVotingSessions)
	assert.Empty(t, h.DataStats.StaleDataTypes)
	assert.Len(t, h.DataStats.RecentSyncs, 8)

	f.clock.Advance(72 * time.Hour)
	h = f.monitor.Health(ctx)
	assert.Equal(t, HealthWarning, h.Status)
	assert.ElementsMatch(t, []string{
		policy.KindPersons, policy.KindMandates, policy.KindVotingSessions, policy.KindVoteRecords, policy.KindBills,
	}, h.DataStats.StaleDataTypes)

	f.clock.Advance(60 * 24 * time.Hour)
	h = f.monitor.Health(ctx)
	assert.Contains(t, h.Issues, "No recent voting sessions")
	assert.Contains(t, h.DataStats.StaleDataTypes, policy.KindParties)

	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	h = f.monitor.Health(ctx)
	assert.Equal(t, HealthUnhealthy, h.Status)
	assert.Nil(t, h.DataStats)
}

func TestMonitorRecent(t *testing.T) {
	f := newFixture(t)
	_, err := f.sync.RunFull(context.Background())
	require.NoError(t, err)

	runs, err := f.monitor.Recent(context.Background(), policy.KindPersons, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run, err := f.monitor.Run(context.Background(), runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "poslanci.zip", run.FileName)
}
