package opsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertrelay/internal/config"
	"alertrelay/internal/deduplication"
	"alertrelay/internal/logger"
	"alertrelay/internal/pipeline"
	"alertrelay/internal/scheduler"
	"alertrelay/pkg/health"
)

type fakeSummaries struct {
	summary pipeline.CycleSummary
	ok      bool
}

func (f fakeSummaries) LastSummary() (pipeline.CycleSummary, bool) { return f.summary, f.ok }

type fakeScheduler struct{ status scheduler.Status }

func (f fakeScheduler) Status() scheduler.Status { return f.status }

func newTestRouter(t *testing.T, summaries SummarySource) (http.Handler, *deduplication.Store) {
	t.Helper()

	repo, err := deduplication.NewFileRepository(t.TempDir(), "alerts_cache_")
	require.NoError(t, err)
	store := deduplication.NewStore(repo, time.UTC, logger.NopLogger())

	registry := health.NewCheckerRegistry()
	registry.Register(health.NewCycleChecker(func() (time.Time, string, bool) {
		s, ok := summaries.LastSummary()
		return s.FinishedAt, s.Error, ok
	}, 0))

	sched := fakeScheduler{status: scheduler.Status{Phase: scheduler.PhaseActive, Windows: 2}}
	h := NewHandler(registry, summaries, sched, store, logger.NopLogger())

	cfg := &config.Config{}
	return NewRouter(context.Background(), cfg, h, logger.NopLogger()), store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		summaries  fakeSummaries
		wantStatus health.Status
	}{
		{"no cycle yet", fakeSummaries{}, health.StatusDegraded},
		{"clean cycle", fakeSummaries{summary: pipeline.CycleSummary{FinishedAt: time.Now()}, ok: true}, health.StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, tt.summaries)
			rec := get(t, router, "/health")
			assert.Equal(t, http.StatusOK, rec.Code)

			var body health.Health
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}
}

func TestStatus(t *testing.T) {
	summary := pipeline.CycleSummary{CycleID: "c1", Target: "alerts", Found: 3, Delivered: 2, Duplicates: 1}
	router, _ := newTestRouter(t, fakeSummaries{summary: summary, ok: true})

	rec := get(t, router, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.LastCycle)
	assert.Equal(t, "c1", body.LastCycle.CycleID)
	assert.Equal(t, 2, body.LastCycle.Delivered)
	require.NotNil(t, body.Scheduler)
	assert.Equal(t, scheduler.PhaseActive, body.Scheduler.Phase)
}

func TestStatus_NoCycleYet(t *testing.T) {
	router, _ := newTestRouter(t, fakeSummaries{})

	rec := get(t, router, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lastCycle":null`)
}

func TestDedupBuckets(t *testing.T) {
	router, store := newTestRouter(t, fakeSummaries{})
	ctx := context.Background()
	require.NoError(t, store.Commit(ctx, "20240305", "<b@x>"))
	require.NoError(t, store.Commit(ctx, "20240305", "<a@x>"))
	require.NoError(t, store.Commit(ctx, "20240306", "<c@x>"))

	rec := get(t, router, "/api/v1/dedup/buckets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"buckets":["20240305","20240306"]}`, rec.Body.String())

	rec = get(t, router, "/api/v1/dedup/buckets/20240305")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"day":"20240305","keys":["<a@x>","<b@x>"]}`, rec.Body.String())

	rec = get(t, router, "/api/v1/dedup/buckets/20240101")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"day":"20240101","keys":[]}`, rec.Body.String())
}

func TestDedupBuckets_BadDay(t *testing.T) {
	router, _ := newTestRouter(t, fakeSummaries{})

	rec := get(t, router, "/api/v1/dedup/buckets/2024-03-05")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestMetricsRoute(t *testing.T) {
	router, _ := newTestRouter(t, fakeSummaries{})
	rec := get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSwaggerDoc(t *testing.T) {
	router, _ := newTestRouter(t, fakeSummaries{})

	rec := get(t, router, "/swagger/doc.json")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Info  map[string]interface{} `json:"info"`
		Paths map[string]interface{} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Alert Relay Ops API", doc.Info["title"])
	for _, path := range []string{"/health", "/api/v1/status", "/api/v1/dedup/buckets", "/api/v1/dedup/buckets/{day}"} {
		assert.Contains(t, doc.Paths, path)
	}
}
