// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/animedex/internal/audit"
	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/pipeline"
)

const checkTimeout = 2 * time.Second

// StatusStore is the warehouse surface the handlers read.
// *database.DB satisfies it.
type StatusStore interface {
	Ping(ctx context.Context) error
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]models.Snapshot, error)
	ActiveModelVersion(ctx context.Context) (*models.ModelVersion, error)
	ListModelVersions(ctx context.Context) ([]models.ModelVersion, error)
	LastPipelineRun(ctx context.Context) (*database.PipelineRun, error)
	ListPipelineRuns(ctx context.Context, limit int) ([]database.PipelineRun, error)
	QualityResults(ctx context.Context, runID string) ([]database.QualityResult, error)
	CountPendingSourceRecords(ctx context.Context) (int64, error)
}

// RunTrigger starts pipeline runs. *pipeline.Runner satisfies it.
type RunTrigger interface {
	Busy() bool
	Run(ctx context.Context) (*pipeline.Result, error)
}

// HealthCheck is one named readiness probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HandlerDeps are the collaborators of a Handler. Store is required.
type HandlerDeps struct {
	Store  StatusStore
	Audit  audit.Store
	Runner RunTrigger
	Checks []HealthCheck

	// BaseContext parents runs triggered over HTTP. It should be canceled
	// on shutdown. Defaults to context.Background().
	BaseContext context.Context
	Version     string
}

// Handler serves the ops endpoints.
type Handler struct {
	deps      HandlerDeps
	startTime time.Time
}

// NewHandler creates a handler.
func NewHandler(deps HandlerDeps) (*Handler, error) {
	if deps.Store == nil {
		return nil, errors.New("status store is required")
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	return &Handler{deps: deps, startTime: time.Now()}, nil
}

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// CheckResult is the outcome of one readiness probe.
type CheckResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HealthReady runs every probe. It answers 503 when any fails.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	checks := append([]HealthCheck{{Name: "duckdb", Check: h.deps.Store.Ping}}, h.deps.Checks...)

	ready := true
	results := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		res := CheckResult{Name: c.Name, OK: err == nil}
		if err != nil {
			ready = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	data := map[string]any{"ready": ready, "checks": results}
	rw := NewResponseWriter(w, r)
	if !ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready", data)
		return
	}
	rw.Success(data)
}

// StatusResponse is the body of GET /api/v1/status. Nil fields mean the
// catalog has no snapshot, no model is active, or nothing ran yet.
type StatusResponse struct {
	Version        string                `json:"version,omitempty"`
	Uptime         float64               `json:"uptime"`
	Snapshot       *models.Snapshot      `json:"snapshot"`
	ActiveModel    *models.ModelVersion  `json:"active_model"`
	LastRun        *database.PipelineRun `json:"last_run"`
	PendingRecords int64                 `json:"pending_records"`
	RunInProgress  bool                  `json:"run_in_progress"`
}

// Status reports the current snapshot, the active model and the last run.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rw := NewResponseWriter(w, r)
	st := h.deps.Store

	resp := StatusResponse{
		Version: h.deps.Version,
		Uptime:  time.Since(h.startTime).Seconds(),
	}

	var err error
	if resp.Snapshot, err = st.LatestSnapshot(ctx); ignoreNotFound(err) != nil {
		rw.DatabaseError(err)
		return
	}
	if resp.ActiveModel, err = st.ActiveModelVersion(ctx); ignoreNotFound(err) != nil {
		rw.DatabaseError(err)
		return
	}
	if resp.LastRun, err = st.LastPipelineRun(ctx); ignoreNotFound(err) != nil {
		rw.DatabaseError(err)
		return
	}
	if resp.PendingRecords, err = st.CountPendingSourceRecords(ctx); err != nil {
		rw.DatabaseError(err)
		return
	}
	if h.deps.Runner != nil {
		resp.RunInProgress = h.deps.Runner.Busy()
	}
	rw.Success(resp)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}
