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
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/pipeline"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// intParam reads an optional integer query parameter bounded to [lo, hi].
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return v, nil
}

// ListRuns returns the most recent pipeline runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	limit, err := intParam(r, "limit", defaultListLimit, 1, maxListLimit)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	runs, err := h.deps.Store.ListPipelineRuns(r.Context(), limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(runs)
}

// TriggerRun starts a pipeline run in the background and answers 202. The
// run outlives the request; it is parented to BaseContext.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Runner == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "pipeline runner is not configured")
		return
	}
	if h.deps.Runner.Busy() {
		rw.Conflict(pipeline.ErrRunInProgress.Error())
		return
	}

	requestedBy := logging.CorrelationIDFromContext(r.Context())
	go func(ctx context.Context) {
		log := logging.WithComponent("api")
		res, err := h.deps.Runner.Run(ctx)
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			log.Info().Str("request_id", requestedBy).Msg("Triggered run skipped; another run started first")
		case err != nil:
			ev := log.Warn().Err(err).Str("request_id", requestedBy)
			if res != nil {
				ev = ev.Str("run_id", res.RunID)
			}
			ev.Msg("Triggered pipeline run failed")
		}
	}(h.deps.BaseContext)

	rw.Status(http.StatusAccepted, map[string]any{"accepted": true})
}

// RunQuality returns the quality check results of one run.
func (h *Handler) RunQuality(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	runID := chi.URLParam(r, "runID")
	results, err := h.deps.Store.QualityResults(r.Context(), runID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if len(results) == 0 {
		rw.NotFound("no quality results for run " + runID)
		return
	}
	rw.Success(results)
}

// ListSnapshots returns catalog snapshots, newest first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	limit, err := intParam(r, "limit", defaultListLimit, 1, maxListLimit)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	snaps, err := h.deps.Store.ListSnapshots(r.Context(), limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(snaps)
}

// ListModels returns every recorded model version, newest first.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	versions, err := h.deps.Store.ListModelVersions(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(versions)
}
