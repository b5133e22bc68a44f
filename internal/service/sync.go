package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/timmy/parlsync/internal/cache"
	"github.com/timmy/parlsync/internal/domain"
	"github.com/timmy/parlsync/internal/ledger"
	"github.com/timmy/parlsync/internal/logger"
	"github.com/timmy/parlsync/internal/policy"
	"github.com/timmy/parlsync/internal/reconcile"
	"github.com/timmy/parlsync/internal/repository"
	"github.com/timmy/parlsync/internal/source"
	"github.com/timmy/parlsync/internal/unl"
)

// Data sources accepted by RunTest and the manual trigger.
const (
	SourceMP     = "mp"
	SourceVoting = "voting"
	SourceBills  = "bills"
)

// Sync types recorded on reports.
const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
	SyncTypeTest        = "test"
)

// ErrUnknownSource is returned for a data source other than mp, voting or bills.
var ErrUnknownSource = errors.New("unknown data source")

// SyncService drives archives through fetch, extract, projection and
// reconciliation. Every table it writes is wrapped in one ledger run.
type SyncService struct {
	fetcher   source.Fetcher
	engine    *reconcile.Engine
	ledger    *ledger.Ledger
	policies  *policy.Set
	stats     *repository.StatsRepository
	cache     *cache.PayloadCache
	locks     *TableLocks
	projector unl.Projector
	logger    *logger.Logger
	cfg       *SyncConfig
	now       func() time.Time

	// background tracks syncs launched by Start
	background sync.WaitGroup
}

// SyncConfig holds the archive names and projection mode.
type SyncConfig struct {
	MPArchive        string
	VotingPeriod     string
	BillsArchive     string
	StrictProjection bool
}

// SyncDeps are the collaborators of a SyncService. Cache may be nil to
// disable payload caching; Now defaults to time.Now.
type SyncDeps struct {
	Fetcher  source.Fetcher
	Engine   *reconcile.Engine
	Ledger   *ledger.Ledger
	Policies *policy.Set
	Stats    *repository.StatsRepository
	Cache    *cache.PayloadCache
	Locks    *TableLocks
	Logger   *logger.Logger
	Now      func() time.Time
}

// NewSyncService creates a new sync service
func NewSyncService(deps SyncDeps, cfg *SyncConfig) *SyncService {
	mode := unl.Lenient
	if cfg.StrictProjection {
		mode = unl.Strict
	}
	if deps.Locks == nil {
		deps.Locks = NewTableLocks()
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetDefault()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SyncService{
		fetcher:   deps.Fetcher,
		engine:    deps.Engine,
		ledger:    deps.Ledger,
		policies:  deps.Policies,
		stats:     deps.Stats,
		cache:     deps.Cache,
		locks:     deps.Locks,
		projector: unl.Projector{Mode: mode},
		logger:    deps.Logger,
		cfg:       cfg,
		now:       deps.Now,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *SyncService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil && l != logger.GetDefault() {
		return l
	}
	return s.logger
}

// Locks exposes the lock set shared with the scheduler and API.
func (s *SyncService) Locks() *TableLocks {
	return s.locks
}

// SyncReport summarizes one full, incremental or test sync.
type SyncReport struct {
	SyncType    string             `json:"sync_type"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Runs        []domain.RunResult `json:"runs"`
	Totals      domain.Counters    `json:"totals"`
	Errors      []string           `json:"errors,omitempty"`
}

// Failed reports whether any table run failed.
func (r *SyncReport) Failed() bool {
	if len(r.Errors) > 0 {
		return true
	}
	for _, run := range r.Runs {
		if !run.Succeeded() {
			return true
		}
	}
	return false
}

func (r *SyncReport) add(runs []domain.RunResult, err error) {
	r.Runs = append(r.Runs, runs...)
	for _, run := range runs {
		r.Totals.Add(run.Counters)
	}
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// archivePlan describes how one data source is ingested.
type archivePlan struct {
	source   string
	archive  string
	cacheKey string
	// tables in reconcile order; parents before children
	tables []string
	// accept limits which archive entries are parsed at all
	accept func(table string) bool
}

func (s *SyncService) plan(src string) (archivePlan, error) {
	switch src {
	case SourceMP:
		return archivePlan{
			source:   SourceMP,
			archive:  s.cfg.MPArchive,
			cacheKey: cache.KeyMP,
			tables:   []string{unl.Osoby.Name, unl.Poslanec.Name},
		}, nil
	case SourceVoting:
		return archivePlan{
			source:   SourceVoting,
			archive:  s.cfg.VotingPeriod + ".zip",
			cacheKey: cache.VotingKey(s.cfg.VotingPeriod),
			tables:   []string{unl.HlHlasovani.Name, unl.HlPoslanec.Name},
			accept:   func(table string) bool { return strings.HasPrefix(table, "hl_") },
		}, nil
	case SourceBills:
		return archivePlan{
			source:   SourceBills,
			archive:  s.cfg.BillsArchive,
			cacheKey: cache.KeyBills,
			tables:   []string{unl.Tisk.Name},
		}, nil
	}
	return archivePlan{}, fmt.Errorf("%w: %q", ErrUnknownSource, src)
}

// LockTables returns the entity tables a sync of the given sources writes.
func (s *SyncService) LockTables(withReference bool, sources ...string) ([]string, error) {
	var tables []string
	if withReference {
		for _, seed := range s.policies.Seeds() {
			tables = append(tables, seed.Policy.Table)
		}
	}
	for _, src := range sources {
		plan, err := s.plan(src)
		if err != nil {
			return nil, err
		}
		for _, t := range plan.tables {
			p, _ := s.policies.ForTable(t)
			tables = append(tables, p.Table)
		}
	}
	return tables, nil
}

// RunFull loads reference data, then every source in dependency order.
func (s *SyncService) RunFull(ctx context.Context) (*SyncReport, error) {
	return s.run(ctx, SyncTypeFull, true, []string{SourceMP, SourceVoting, SourceBills}, nil)
}

// RunIncremental refreshes the frequently changing sources only.
func (s *SyncService) RunIncremental(ctx context.Context) (*SyncReport, error) {
	return s.run(ctx, SyncTypeIncremental, false, []string{SourceMP, SourceVoting, SourceBills}, nil)
}

// RunTest syncs a single source, optionally limited to some tables.
func (s *SyncService) RunTest(ctx context.Context, src string, tables []string) (*SyncReport, error) {
	if _, err := s.plan(src); err != nil {
		return nil, err
	}
	return s.run(ctx, SyncTypeTest, false, []string{src}, tables)
}

// Start takes the locks for a test sync of src and runs it in the background.
// The report is delivered on the returned channel once the sync ends.
func (s *SyncService) Start(ctx context.Context, src string, tables []string) (<-chan *SyncReport, error) {
	if _, err := s.plan(src); err != nil {
		return nil, err
	}
	release, err := s.lock(false, []string{src})
	if err != nil {
		return nil, err
	}

	done := make(chan *SyncReport, 1)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer close(done)
		defer release()

		report, err := s.execute(ctx, SyncTypeTest, false, []string{src}, tables)
		// free the tables before a reader can see the report
		release()
		if err != nil {
			s.log(ctx).WithError(err).Error("Background sync aborted")
		}
		done <- report
	}()
	return done, nil
}

// Wait blocks until every sync launched by Start has finished and written
// its ledger runs. Cancel their context first to make it return promptly.
func (s *SyncService) Wait() {
	s.background.Wait()
}

func (s *SyncService) lock(withReference bool, sources []string) (func(), error) {
	tables, err := s.LockTables(withReference, sources...)
	if err != nil {
		return nil, err
	}
	release, busy := s.locks.TryLock(tables...)
	if len(busy) > 0 {
		return nil, &BusyError{Tables: busy}
	}
	return release, nil
}

// run holds the table locks for the whole sync.
func (s *SyncService) run(ctx context.Context, syncType string, withReference bool, sources []string, filters []string) (*SyncReport, error) {
	release, err := s.lock(withReference, sources)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.execute(ctx, syncType, withReference, sources, filters)
}

// execute runs a sync whose tables are already locked. Fetch failures fail
// the affected tables and move on; engine failures and cancellation stop it.
func (s *SyncService) execute(ctx context.Context, syncType string, withReference bool, sources []string, filters []string) (*SyncReport, error) {
	ctx = s.log(ctx).WithField(logger.FieldSyncType, syncType).WithContext(ctx)
	report := &SyncReport{SyncType: syncType, StartedAt: s.now()}
	s.log(ctx).WithFields(logger.Fields{
		"sources":   sources,
		"reference": withReference,
		"tables":    filters,
	}).Info("Starting sync")

	finish := func(err error) (*SyncReport, error) {
		report.CompletedAt = s.now()
		entry := logger.With(logger.Fields{
			logger.FieldCount:    report.Totals.Processed,
			logger.FieldInserted: report.Totals.Inserted,
			logger.FieldUpdated:  report.Totals.Updated,
			logger.FieldFailed:   report.Totals.Failed,
			"runs":               len(report.Runs),
		}).WithSince(report.StartedAt)
		if err != nil || report.Failed() {
			entry.Warn(ctx, "Sync %s finished with errors", syncType)
		} else {
			entry.Info(ctx, "Sync %s completed", syncType)
		}
		return report, err
	}

	if withReference {
		runs, err := s.SyncReference(ctx)
		report.add(runs, err)
		if err != nil {
			return finish(err)
		}
	}

	for _, src := range sources {
		plan, _ := s.plan(src)
		runs, err := s.syncArchive(ctx, plan, filters)
		report.add(runs, err)
		if err != nil && fatal(ctx, err) {
			return finish(err)
		}
	}
	return finish(nil)
}

// fatal reports errors that make further archives pointless.
func fatal(ctx context.Context, err error) bool {
	var ef *reconcile.EngineFailure
	return errors.As(err, &ef) || ctx.Err() != nil
}

// SyncReference loads the embedded electoral periods, parties and
// constituencies.
func (s *SyncService) SyncReference(ctx context.Context) ([]domain.RunResult, error) {
	var runs []domain.RunResult
	for _, seed := range s.policies.Seeds() {
		res, err := seed.Records(ctx, s.projector)
		if err != nil {
			return runs, err
		}
		run, err := s.engine.ReconcileTable(ctx, s.ledger, seed.Label(), res.Records, seed.Policy)
		runs = append(runs, run)
		if err != nil {
			return runs, err
		}
	}
	return runs, nil
}

// syncArchive ingests one archive. A fetch failure is recorded as a failed
// run, with zero counters, for each planned table.
func (s *SyncService) syncArchive(ctx context.Context, plan archivePlan, filters []string) ([]domain.RunResult, error) {
	ctx = logger.SetArchive(ctx, plan.archive)

	files, err := source.Load(ctx, s.fetcher, plan.archive)
	if err != nil {
		s.log(ctx).WithError(err).Error("Failed to load archive")
		return s.failPlanned(ctx, plan, filters, err), err
	}

	records, payload := s.parse(ctx, plan, files, filters)
	s.storePayload(ctx, payload)

	var runs []domain.RunResult
	for _, table := range plan.tables {
		if !wanted(filters, table) {
			continue
		}
		recs, ok := records[table]
		if !ok {
			s.log(ctx).WithField(logger.FieldTable, table).Warn("Table missing from archive")
			continue
		}
		p, _ := s.policies.ForTable(table)
		run, err := s.engine.ReconcileTable(ctx, s.ledger, plan.archive, recs, p)
		runs = append(runs, run)
		if err != nil {
			return runs, err
		}
	}
	return runs, nil
}

func (s *SyncService) failPlanned(ctx context.Context, plan archivePlan, filters []string, cause error) []domain.RunResult {
	var runs []domain.RunResult
	for _, table := range plan.tables {
		if !wanted(filters, table) {
			continue
		}
		p, _ := s.policies.ForTable(table)
		run, _ := s.ledger.Track(ctx, p.Kind, plan.archive, func(context.Context) (domain.Counters, error) {
			return domain.Counters{}, cause
		})
		runs = append(runs, run)
	}
	return runs
}

// parse projects every accepted entry. Entries of the same table, such as
// the numbered vote files, are concatenated in name order.
func (s *SyncService) parse(ctx context.Context, plan archivePlan, files map[string]string, filters []string) (map[string][]unl.Record, *cache.Payload) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	payload := &cache.Payload{
		Key:       plan.cacheKey,
		Archive:   plan.archive,
		FetchedAt: s.now(),
		Tables:    make(map[string]cache.Table),
	}
	records := make(map[string][]unl.Record)
	schemas := make(map[string]*unl.Schema)

	for _, name := range names {
		table := unl.Canonical(unl.TableName(name))
		if plan.accept != nil && !plan.accept(table) {
			continue
		}
		if !wanted(filters, table) {
			s.log(ctx).WithField(logger.FieldTable, table).Debug("Skipping table not in filter list")
			continue
		}
		schema, ok := unl.LookupSchema(table)
		if !ok {
			s.log(ctx).WithField(logger.FieldTable, table).Warn("No schema defined, keeping raw preview")
			payload.AddRaw(table, files[name])
			continue
		}
		res := s.projector.ProjectText(logger.SetTable(ctx, table, plan.source), files[name], schema)
		records[table] = append(records[table], res.Records...)
		schemas[table] = schema
	}

	for table, recs := range records {
		payload.Tables[table] = cache.NewTable(schemas[table], recs)
	}
	return records, payload
}

// storePayload never fails the sync; a broken cache only costs a warning.
func (s *SyncService) storePayload(ctx context.Context, payload *cache.Payload) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, payload); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to cache payload")
	}
}

func wanted(filters []string, table string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f == table {
			return true
		}
	}
	return false
}

// Inspection describes an archive's contents without ingesting it.
type Inspection struct {
	Archive          string              `json:"zip_filename"`
	Files            map[string]int      `json:"files"`
	AvailableSchemas map[string][]string `json:"available_schemas"`
	MissingSchemas   []string            `json:"missing_schemas"`
}

// Inspect fetches an archive and reports, per entry, its size in characters
// and whether its table has a registered schema.
func (s *SyncService) Inspect(ctx context.Context, archive string) (*Inspection, error) {
	files, err := source.Load(logger.SetArchive(ctx, archive), s.fetcher, archive)
	if err != nil {
		return nil, err
	}

	out := &Inspection{
		Archive:          archive,
		Files:            make(map[string]int, len(files)),
		AvailableSchemas: make(map[string][]string),
		MissingSchemas:   []string{},
	}
	missing := make(map[string]bool)
	for name, text := range files {
		out.Files[name] = utf8.RuneCountInString(text)
		table := unl.Canonical(unl.TableName(name))
		if schema, ok := unl.LookupSchema(table); ok {
			out.AvailableSchemas[table] = schema.Fields
		} else {
			missing[table] = true
		}
	}
	for table := range missing {
		out.MissingSchemas = append(out.MissingSchemas, table)
	}
	sort.Strings(out.MissingSchemas)
	return out, nil
}

// Schemas lists every registered table schema.
func Schemas() map[string][]string {
	out := make(map[string][]string)
	for _, name := range unl.SchemaNames() {
		schema, _ := unl.LookupSchema(name)
		out[name] = schema.Fields
	}
	return out
}

// MPStat is one mandate's voting record summary.
type MPStat struct {
	MandateID      int     `json:"mp_id"`
	TotalVotes     int64   `json:"total_votes"`
	VotesFor       int64   `json:"votes_for"`
	VotesAgainst   int64   `json:"votes_against"`
	Abstentions    int64   `json:"abstentions"`
	Absent         int64   `json:"absent"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// MPStats tallies stored votes per mandate. Codes other than A, N and Z
// count as absent; attendance is the share of A, N and Z votes.
func (s *SyncService) MPStats(ctx context.Context) ([]MPStat, error) {
	tallies, err := s.stats.VoteTallies(ctx)
	if err != nil {
		return nil, fmt.Errorf("vote tallies: %w", err)
	}

	byMandate := make(map[int]*MPStat)
	var order []int
	for _, t := range tallies {
		st, ok := byMandate[t.MandateID]
		if !ok {
			st = &MPStat{MandateID: t.MandateID}
			byMandate[t.MandateID] = st
			order = append(order, t.MandateID)
		}
		st.TotalVotes += t.Count
		switch t.Result {
		case "A":
			st.VotesFor += t.Count
		case "N":
			st.VotesAgainst += t.Count
		case "Z":
			st.Abstentions += t.Count
		default:
			st.Absent += t.Count
		}
	}

	sort.Ints(order)
	out := make([]MPStat, 0, len(order))
	for _, id := range order {
		st := byMandate[id]
		if st.TotalVotes > 0 {
			present := st.VotesFor + st.VotesAgainst + st.Abstentions
			st.AttendanceRate = float64(present) / float64(st.TotalVotes) * 100
		}
		out = append(out, *st)
	}
	return out, nil
}
