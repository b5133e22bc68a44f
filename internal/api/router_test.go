package api_test

import (
	"archive/zip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/parlsync/internal/api"
	"github.com/timmy/parlsync/internal/config"
	"github.com/timmy/parlsync/internal/ledger"
	"github.com/timmy/parlsync/internal/policy"
	"github.com/timmy/parlsync/internal/reconcile"
	"github.com/timmy/parlsync/internal/repository"
	"github.com/timmy/parlsync/internal/repository/repotest"
	"github.com/timmy/parlsync/internal/service"
	"github.com/timmy/parlsync/internal/source/local"
	"golang.org/x/text/encoding/charmap"
)

type testServer struct {
	router http.Handler
	sync   *service.SyncService
}

func writeArchive(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for entry, text := range files {
		w, err := zw.Create(entry)
		require.NoError(t, err)
		encoded, err := charmap.Windows1250.NewEncoder().String(text)
		require.NoError(t, err)
		_, err = w.Write([]byte(encoded))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	writeArchive(t, dir, "tisky.zip", map[string]string{
		"tisk.unl": "1|165|100|Zákon o státním rozpočtu|||||30.04.2024|||https://www.psp.cz/sqw/tisky.sqw|\r\n",
	})

	db := repotest.NewTestDB(t)
	runs := ledger.New(repository.NewSyncRunRepository(db), nil)
	stats := repository.NewStatsRepository(db)
	syncSvc := service.NewSyncService(service.SyncDeps{
		Fetcher:  local.NewFetcher(dir),
		Engine:   reconcile.NewEngine(repository.NewEntityStore(db, 5*time.Second)),
		Ledger:   runs,
		Policies: policy.New(policy.DefaultOptions()),
		Stats:    stats,
	}, &service.SyncConfig{MPArchive: "poslanci.zip", VotingPeriod: "hl-2021ps", BillsArchive: "tisky.zip"})
	// triggered syncs must finish before the test database goes away
	t.Cleanup(syncSvc.Wait)
	monitor := service.NewMonitorService(runs, stats, &service.MonitorConfig{
		FreshnessWindow: 48 * time.Hour,
		ReportWindow:    7 * 24 * time.Hour,
		MinActiveMPs:    180,
		MaxVoteAge:      30 * 24 * time.Hour,
	}, nil)

	router := api.SetupRouter(api.Services{Sync: syncSvc, Monitor: monitor, Base: context.Background()},
		&config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowAllOrigins: true}}, nil)
	return &testServer{router: router, sync: syncSvc}
}

func (s *testServer) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

func TestLiveness(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync/bills", nil)
	req.Header.Set("Origin", "https://example.org")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthReportsWarningsOnEmptyStore(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "warning", body["status"])
	assert.Contains(t, body["issues"], "Low MP count detected")
}

func TestManualSync(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodPost, "/api/v1/sync/bills?tables=tisk")
	require.Equal(t, http.StatusAccepted, w.Code, body)
	assert.Equal(t, "bills", body["source"])
	assert.Equal(t, []interface{}{"tisk"}, body["tables"])

	var runs []interface{}
	require.Eventually(t, func() bool {
		if len(s.sync.Locks().Held()) > 0 {
			return false
		}
		_, body := s.do(t, http.MethodGet, "/api/v1/sync-runs?kind=bills")
		runs, _ = body["runs"].([]interface{})
		return len(runs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	run := runs[0].(map[string]interface{})
	assert.Equal(t, "completed", run["status"])
	assert.EqualValues(t, 1, run["records_inserted"])

	w, body = s.do(t, http.MethodGet, "/api/v1/sync-runs/"+run["id"].(string))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tisky.zip", body["file_name"])
}

func TestManualSyncRejections(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/v1/sync/senat")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	release, busy := s.sync.Locks().TryLock("bills")
	require.Empty(t, busy)
	defer release()

	w, body := s.do(t, http.MethodPost, "/api/v1/sync/bills")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, []interface{}{"bills"}, body["busy_tables"])

	_, body = s.do(t, http.MethodGet, "/api/v1/sync/locks")
	assert.Equal(t, []interface{}{"bills"}, body["busy_tables"])
}

func TestSyncRunQueries(t *testing.T) {
	s := newServer(t)

	for _, limit := range []string{"0", "101", "x"} {
		w, _ := s.do(t, http.MethodGet, "/api/v1/sync-runs?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}

	w, body := s.do(t, http.MethodGet, "/api/v1/sync-runs?limit=5")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/sync-runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDataEndpoints(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodGet, "/api/v1/schemas")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 21, body["count"])

	w, body = s.do(t, http.MethodGet, "/api/v1/mp-stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])

	w, body = s.do(t, http.MethodGet, "/api/v1/freshness")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "stale_data_types")
	assert.Contains(t, body, "table_counts")
}
