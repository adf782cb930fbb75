// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/audit"
	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/pipeline"
)

var testTime = time.Date(2026, 5, 3, 6, 0, 0, 0, time.UTC)

// fakeStore serves fixed values. A nil snapshot, model or run reads as
// models.ErrNotFound.
type fakeStore struct {
	pingErr  error
	snapshot *models.Snapshot
	model    *models.ModelVersion
	runs     []database.PipelineRun
	quality  map[string][]database.QualityResult
	pending  int64
	dbErr    error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) LatestSnapshot(context.Context) (*models.Snapshot, error) {
	if f.dbErr != nil {
		return nil, f.dbErr
	}
	if f.snapshot == nil {
		return nil, fmt.Errorf("catalog snapshot: %w", models.ErrNotFound)
	}
	return f.snapshot, nil
}

func (f *fakeStore) ListSnapshots(_ context.Context, limit int) ([]models.Snapshot, error) {
	if f.snapshot == nil {
		return []models.Snapshot{}, nil
	}
	return []models.Snapshot{*f.snapshot}[:min(limit, 1)], nil
}

func (f *fakeStore) ActiveModelVersion(context.Context) (*models.ModelVersion, error) {
	if f.model == nil {
		return nil, fmt.Errorf("active model: %w", models.ErrNotFound)
	}
	return f.model, nil
}

func (f *fakeStore) ListModelVersions(context.Context) ([]models.ModelVersion, error) {
	if f.model == nil {
		return []models.ModelVersion{}, nil
	}
	return []models.ModelVersion{*f.model}, nil
}

func (f *fakeStore) LastPipelineRun(context.Context) (*database.PipelineRun, error) {
	if len(f.runs) == 0 {
		return nil, fmt.Errorf("pipeline run: %w", models.ErrNotFound)
	}
	return &f.runs[0], nil
}

func (f *fakeStore) ListPipelineRuns(_ context.Context, limit int) ([]database.PipelineRun, error) {
	return f.runs[:min(limit, len(f.runs))], nil
}

func (f *fakeStore) QualityResults(_ context.Context, runID string) ([]database.QualityResult, error) {
	return f.quality[runID], nil
}

func (f *fakeStore) CountPendingSourceRecords(context.Context) (int64, error) {
	return f.pending, nil
}

type fakeRunner struct {
	busy  atomic.Bool
	calls atomic.Int32
	done  chan struct{}
}

func (f *fakeRunner) Busy() bool { return f.busy.Load() }

func (f *fakeRunner) Run(context.Context) (*pipeline.Result, error) {
	f.calls.Add(1)
	if f.done != nil {
		close(f.done)
	}
	return &pipeline.Result{RunID: "triggered", Status: pipeline.StatusSuccess}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func newTestRouter(t *testing.T, deps HandlerDeps) http.Handler {
	t.Helper()
	h, err := NewHandler(deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return NewRouter(config.ServerConfig{RateLimitDisabled: true}, h)
}

func do(t *testing.T, router http.Handler, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, env
}

func populatedStore() *fakeStore {
	finished := testTime.Add(time.Minute)
	return &fakeStore{
		snapshot: &models.Snapshot{Version: 3, RunID: "run-3", CreatedAt: testTime, EntityCount: 120, ChangedCount: 4},
		model: &models.ModelVersion{
			Version: 2, Algorithm: "bpr", Status: models.ModelStatusActive, IsActive: true,
			TrainedAt: testTime, CatalogSnapshot: 3, InteractionCount: 900,
		},
		runs: []database.PipelineRun{
			{RunID: "run-3", StartedAt: testTime, FinishedAt: &finished, Status: pipeline.StatusSuccess, SnapshotVersion: 3, ModelVersion: 2},
			{RunID: "run-2", StartedAt: testTime.Add(-time.Hour), Status: pipeline.StatusFailed, Error: "dedupe stage: boom"},
		},
		quality: map[string][]database.QualityResult{
			"run-3": {{RunID: "run-3", Check: "no_orphan_sources", Severity: "critical", Passed: true, CheckedAt: testTime}},
		},
		pending: 7,
	}
}

func TestNewHandler_RequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := NewHandler(HandlerDeps{}); err == nil {
		t.Error("NewHandler() without store error = nil, want error")
	}
}

func TestHealthLive(t *testing.T) {
	t.Parallel()

	rec, env := do(t, newTestRouter(t, HandlerDeps{Store: &fakeStore{}}), http.MethodGet, "/api/v1/health/live")
	if rec.Code != http.StatusOK || !env.Success {
		t.Errorf("live = %d success=%v, want 200 true", rec.Code, env.Success)
	}
	if env.Meta == nil || env.Meta.RequestID == "" {
		t.Errorf("meta = %+v, want a request id", env.Meta)
	}
	if rec.Header().Get("X-Request-ID") != env.Meta.RequestID {
		t.Errorf("X-Request-ID = %q, want %q", rec.Header().Get("X-Request-ID"), env.Meta.RequestID)
	}
}

func TestHealthReady(t *testing.T) {
	t.Parallel()

	keyIndexDown := errors.New("key index is closed")
	tests := []struct {
		name     string
		pingErr  error
		checkErr error
		want     int
	}{
		{"all healthy", nil, nil, http.StatusOK},
		{"duckdb down", errors.New("database is closed"), nil, http.StatusServiceUnavailable},
		{"key index down", nil, keyIndexDown, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newTestRouter(t, HandlerDeps{
				Store: &fakeStore{pingErr: tt.pingErr},
				Checks: []HealthCheck{{
					Name:  "keyindex",
					Check: func(context.Context) error { return tt.checkErr },
				}},
			})
			rec, env := do(t, router, http.MethodGet, "/api/v1/health/ready")
			if rec.Code != tt.want {
				t.Errorf("ready status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want != http.StatusOK && (env.Error == nil || env.Error.Code != ErrCodeServiceUnavailable) {
				t.Errorf("error = %+v, want %s", env.Error, ErrCodeServiceUnavailable)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.busy.Store(true)
	rec, env := do(t, newTestRouter(t, HandlerDeps{Store: populatedStore(), Runner: runner, Version: "1.2.0"}),
		http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got StatusResponse
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Snapshot == nil || got.Snapshot.Version != 3 {
		t.Errorf("Snapshot = %+v, want version 3", got.Snapshot)
	}
	if got.ActiveModel == nil || got.ActiveModel.Version != 2 || got.ActiveModel.CatalogSnapshot != 3 {
		t.Errorf("ActiveModel = %+v, want version 2 on snapshot 3", got.ActiveModel)
	}
	if got.LastRun == nil || got.LastRun.RunID != "run-3" {
		t.Errorf("LastRun = %+v, want run-3", got.LastRun)
	}
	if got.PendingRecords != 7 || !got.RunInProgress || got.Version != "1.2.0" {
		t.Errorf("pending=%d in_progress=%v version=%q, want 7 true 1.2.0", got.PendingRecords, got.RunInProgress, got.Version)
	}
}

func TestStatus_EmptyWarehouse(t *testing.T) {
	t.Parallel()

	rec, env := do(t, newTestRouter(t, HandlerDeps{Store: &fakeStore{}}), http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got StatusResponse
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Snapshot != nil || got.ActiveModel != nil || got.LastRun != nil {
		t.Errorf("status = %+v, want nil snapshot, model and run", got)
	}
}

func TestStatus_DatabaseError(t *testing.T) {
	t.Parallel()

	rec, env := do(t, newTestRouter(t, HandlerDeps{Store: &fakeStore{dbErr: errors.New("io error")}}),
		http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusInternalServerError || env.Error == nil || env.Error.Code != ErrCodeDatabaseError {
		t.Errorf("status = %d error = %+v, want 500 %s", rec.Code, env.Error, ErrCodeDatabaseError)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, HandlerDeps{Store: populatedStore()})
	tests := []struct {
		query string
		code  int
		count int
	}{
		{"", http.StatusOK, 2},
		{"?limit=1", http.StatusOK, 1},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
		{"?limit=501", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec, env := do(t, router, http.MethodGet, "/api/v1/runs"+tt.query)
		if rec.Code != tt.code {
			t.Errorf("GET /runs%s = %d, want %d", tt.query, rec.Code, tt.code)
			continue
		}
		if tt.code != http.StatusOK {
			continue
		}
		var runs []database.PipelineRun
		if err := json.Unmarshal(env.Data, &runs); err != nil {
			t.Fatal(err)
		}
		if len(runs) != tt.count {
			t.Errorf("GET /runs%s returned %d runs, want %d", tt.query, len(runs), tt.count)
		}
	}
}

func TestTriggerRun(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{done: make(chan struct{})}
	router := newTestRouter(t, HandlerDeps{Store: &fakeStore{}, Runner: runner})

	rec, _ := do(t, router, http.MethodPost, "/api/v1/runs")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /runs = %d, want 202", rec.Code)
	}
	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered run did not start")
	}

	runner.busy.Store(true)
	rec, env := do(t, router, http.MethodPost, "/api/v1/runs")
	if rec.Code != http.StatusConflict || env.Error.Code != ErrCodeConflict {
		t.Errorf("POST /runs while busy = %d %+v, want 409", rec.Code, env.Error)
	}
	if runner.calls.Load() != 1 {
		t.Errorf("runs = %d, want 1", runner.calls.Load())
	}
}

func TestTriggerRun_NoRunner(t *testing.T) {
	t.Parallel()

	rec, _ := do(t, newTestRouter(t, HandlerDeps{Store: &fakeStore{}}), http.MethodPost, "/api/v1/runs")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("POST /runs without runner = %d, want 503", rec.Code)
	}
}

func TestRunQuality(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, HandlerDeps{Store: populatedStore()})

	rec, env := do(t, router, http.MethodGet, "/api/v1/runs/run-3/quality")
	if rec.Code != http.StatusOK {
		t.Fatalf("quality = %d, want 200", rec.Code)
	}
	var results []database.QualityResult
	if err := json.Unmarshal(env.Data, &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Check != "no_orphan_sources" {
		t.Errorf("results = %+v, want the stored check", results)
	}

	if rec, _ := do(t, router, http.MethodGet, "/api/v1/runs/unknown/quality"); rec.Code != http.StatusNotFound {
		t.Errorf("quality of unknown run = %d, want 404", rec.Code)
	}
}

func TestListSnapshotsAndModels(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, HandlerDeps{Store: populatedStore()})

	_, env := do(t, router, http.MethodGet, "/api/v1/snapshots?limit=5")
	var snaps []models.Snapshot
	if err := json.Unmarshal(env.Data, &snaps); err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].Version != 3 {
		t.Errorf("snapshots = %+v, want version 3", snaps)
	}

	_, env = do(t, router, http.MethodGet, "/api/v1/models")
	var versions []models.ModelVersion
	if err := json.Unmarshal(env.Data, &versions); err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 || !versions[0].IsActive {
		t.Errorf("models = %+v, want one active version", versions)
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()

	store := audit.NewMemoryStore(100)
	entries := []models.AuditEntry{
		{ID: "a1", RunID: "run-1", Timestamp: testTime, Source: "anilist", SourceID: "16498", Decision: models.DecisionCreate, CanonicalID: 1},
		{ID: "a2", RunID: "run-1", Timestamp: testTime.Add(time.Second), Source: "kitsu", SourceID: "7442", Decision: models.DecisionMerge, CanonicalID: 1, Score: 0.894737},
		{ID: "a3", RunID: "run-2", Timestamp: testTime.Add(2 * time.Second), Source: "myanimelist", SourceID: "bad", Decision: models.DecisionReject},
	}
	if err := store.Save(context.Background(), entries); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, HandlerDeps{Store: &fakeStore{}, Audit: store})

	tests := []struct {
		query   string
		code    int
		ids     []string
		total   int64
		hasMore bool
	}{
		{"", http.StatusOK, []string{"a3", "a2", "a1"}, 3, false},
		{"?canonical_id=1", http.StatusOK, []string{"a2", "a1"}, 2, false},
		{"?decision=merge", http.StatusOK, []string{"a2"}, 1, false},
		{"?source=kitsu", http.StatusOK, []string{"a2"}, 1, false},
		{"?run_id=run-1&limit=1", http.StatusOK, []string{"a2"}, 2, true},
		{"?run_id=run-1&limit=1&offset=1", http.StatusOK, []string{"a1"}, 2, false},
		{"?source=crunchyroll", http.StatusBadRequest, nil, 0, false},
		{"?decision=split", http.StatusBadRequest, nil, 0, false},
		{"?limit=1000", http.StatusBadRequest, nil, 0, false},
		{"?canonical_id=x", http.StatusBadRequest, nil, 0, false},
	}

	for _, tt := range tests {
		rec, env := do(t, router, http.MethodGet, "/api/v1/audit"+tt.query)
		if rec.Code != tt.code {
			t.Errorf("GET /audit%s = %d, want %d: %s", tt.query, rec.Code, tt.code, rec.Body.String())
			continue
		}
		if tt.code != http.StatusOK {
			continue
		}
		var got []models.AuditEntry
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatal(err)
		}
		ids := make([]string, len(got))
		for i, e := range got {
			ids[i] = e.ID
		}
		if fmt.Sprint(ids) != fmt.Sprint(tt.ids) {
			t.Errorf("GET /audit%s ids = %v, want %v", tt.query, ids, tt.ids)
		}
		page := env.Meta.Pagination
		if page == nil || page.Total != tt.total || page.HasMore != tt.hasMore {
			t.Errorf("GET /audit%s pagination = %+v, want total %d has_more %v", tt.query, page, tt.total, tt.hasMore)
		}
	}
}

func TestAudit_NotConfigured(t *testing.T) {
	t.Parallel()

	rec, _ := do(t, newTestRouter(t, HandlerDeps{Store: &fakeStore{}}), http.MethodGet, "/api/v1/audit")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /audit without store = %d, want 503", rec.Code)
	}
}
