package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutalgo/clover/pkg/catalog"
	"github.com/scoutalgo/clover/pkg/matching"
	"github.com/scoutalgo/clover/pkg/merging"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/processor"
	"github.com/scoutalgo/clover/pkg/review"
	"github.com/scoutalgo/clover/pkg/routes/health"
	"github.com/scoutalgo/clover/pkg/routes/reviews"
	"github.com/scoutalgo/clover/pkg/routes/runs"
	"github.com/scoutalgo/clover/pkg/synonyms"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fixture struct {
	server *Server
	guard  *processor.LocalGuard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := catalog.NewMemoryStore()
	for i, name := range []string{"Coca-Cola 0.5L", "Coca-Cola 0.5L"} {
		source := []string{"glovo", "wolt"}[i]
		l := &models.Listing{
			ID:             source + "-1",
			Source:         source,
			Name:           name,
			Brand:          "Coca-Cola",
			Price:          decimal.NewFromInt(450),
			SourceNativeID: "1",
			IngestedAt:     time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC),
			CanonicalID:    "p-" + source,
			Status:         models.Pending(),
		}
		require.NoError(t, store.CreateListing(context.Background(), l, models.NewProductForListing(l.CanonicalID, l)))
	}

	syn, err := synonyms.Default()
	require.NoError(t, err)

	guard := processor.NewLocalGuard()
	coordinator := merging.NewCoordinator(store, testLogger(), nil)
	matcher := processor.NewMatchProcessor(testLogger(), store, coordinator, guard,
		processor.Config{Matching: matching.DefaultConfig()}, processor.WithSynonyms(syn))
	reviewer := processor.NewReviewProcessor(testLogger(), review.NewService(store, testLogger(), review.DefaultConfig()), guard)

	checker := health.NewChecker("test")
	checker.AddCheck("store", func(context.Context) error { return nil })

	srv := New(Config{ServiceName: "clover-test"}, testLogger(), checker,
		runs.NewHandler(context.Background(), matcher, testLogger()), reviews.NewHandler(reviewer))
	return &fixture{server: srv, guard: guard}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_RunLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/matching/runs/last", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/matching/runs", runs.StartRunRequest{RunID: "r1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started runs.StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "r1", started.RunID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var report models.BatchReport
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/v1/matching/runs/last", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		return json.Unmarshal(rec.Body.Bytes(), &report) == nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "r1", report.RunID)
	assert.Equal(t, 1, report.Merged)

	// the guard is released asynchronously after the report is stored
	require.Eventually(t, func() bool {
		release, err := f.guard.Acquire(context.Background(), processor.GuardName)
		if err != nil {
			return false
		}
		_ = release(context.Background())
		return true
	}, 5*time.Second, 10*time.Millisecond)

	rec = f.do(t, http.MethodPost, "/api/v1/reviews", reviews.ReviewRequest{RunID: "r1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var reviewed models.ReviewReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reviewed))
	assert.Equal(t, 1, reviewed.Summary.Total)
}

func TestServer_Conflicts(t *testing.T) {
	f := newFixture(t)
	release, err := f.guard.Acquire(context.Background(), processor.GuardName)
	require.NoError(t, err)
	defer release(context.Background())

	rec := f.do(t, http.MethodPost, "/api/v1/matching/runs", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/reviews", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/matching/runs/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_BadRequest(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/matching/runs", map[string]any{"limit": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store"`)

	rec = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_FailingCheck(t *testing.T) {
	checker := health.NewChecker("test")
	checker.AddCheck("database", func(context.Context) error { return errors.New("connection refused") })

	srv := New(Config{ServiceName: "clover-test"}, testLogger(), checker,
		runs.NewHandler(context.Background(), nil, testLogger()), reviews.NewHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
