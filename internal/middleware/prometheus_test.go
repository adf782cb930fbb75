// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/animedex/internal/metrics"
)

func TestPrometheusMetrics_RoutePatternLabel(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/api/v1/runs/{runID}/quality", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/api/v1/mw-implicit", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	tests := []struct {
		path    string
		pattern string
		status  string
	}{
		{"/api/v1/runs/abc/quality", "/api/v1/runs/{runID}/quality", "418"},
		{"/api/v1/runs/def/quality", "/api/v1/runs/{runID}/quality", "418"},
		{"/api/v1/mw-implicit", "/api/v1/mw-implicit", "200"},
	}

	before := make(map[string]float64)
	for _, tt := range tests {
		key := tt.pattern + tt.status
		if _, ok := before[key]; !ok {
			before[key] = testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, tt.pattern, tt.status))
		}
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
	}

	want := map[string]float64{
		"/api/v1/runs/{runID}/quality418": 2,
		"/api/v1/mw-implicit200":          1,
	}
	for _, tt := range tests {
		key := tt.pattern + tt.status
		got := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, tt.pattern, tt.status)) - before[key]
		if got != want[key] {
			t.Errorf("requests{%s, %s} = %v, want %v", tt.pattern, tt.status, got, want[key])
		}
	}
}

func TestPrometheusMetrics_WithoutRouter(t *testing.T) {
	t.Parallel()

	h := PrometheusMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	before := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodPost, unmatchedRoute, "204"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anything", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	after := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodPost, unmatchedRoute, "204"))
	if after-before != 1 {
		t.Errorf("unmatched requests = %v, want 1", after-before)
	}
}
