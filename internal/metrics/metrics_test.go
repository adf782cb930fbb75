// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// TestRecordNormalize verifies the result label mapping
func TestRecordNormalize(t *testing.T) {
	okBefore := testutil.ToFloat64(NormalizeTotal.WithLabelValues("kitsu", "ok"))
	badBefore := testutil.ToFloat64(NormalizeTotal.WithLabelValues("kitsu", "malformed"))

	RecordNormalize("kitsu", true)
	RecordNormalize("kitsu", false)
	RecordNormalize("kitsu", false)

	if got := testutil.ToFloat64(NormalizeTotal.WithLabelValues("kitsu", "ok")) - okBefore; got != 1 {
		t.Errorf("ok delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(NormalizeTotal.WithLabelValues("kitsu", "malformed")) - badBefore; got != 2 {
		t.Errorf("malformed delta = %v, want 2", got)
	}
}

// TestRecordDedupeRun verifies the canonical gauge is set, not added
func TestRecordDedupeRun(t *testing.T) {
	before := testutil.ToFloat64(DedupeRecordsProcessed)

	RecordDedupeRun(50*time.Millisecond, 10, 7)
	RecordDedupeRun(20*time.Millisecond, 5, 9)

	if got := testutil.ToFloat64(CanonicalEntities); got != 9 {
		t.Errorf("CanonicalEntities = %v, want 9", got)
	}
	if got := testutil.ToFloat64(DedupeRecordsProcessed) - before; got != 15 {
		t.Errorf("records delta = %v, want 15", got)
	}
}

// histogramSamples reads the sample count and sum of one histogram series.
func histogramSamples(t *testing.T, o prometheus.Observer) (uint64, float64) {
	t.Helper()
	m, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("%T is not a prometheus.Metric", o)
	}
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	h := pb.GetHistogram()
	return h.GetSampleCount(), h.GetSampleSum()
}

// TestRecordPipelineStage verifies stage durations land in seconds
func TestRecordPipelineStage(t *testing.T) {
	series := PipelineStageDuration.WithLabelValues("similarity-test")
	countBefore, sumBefore := histogramSamples(t, series)

	RecordPipelineStage("similarity-test", 1500*time.Millisecond)
	RecordPipelineStage("similarity-test", 500*time.Millisecond)

	count, sum := histogramSamples(t, series)
	if count-countBefore != 2 {
		t.Errorf("sample count delta = %d, want 2", count-countBefore)
	}
	if got := sum - sumBefore; got < 1.999 || got > 2.001 {
		t.Errorf("sample sum delta = %v, want 2s", got)
	}
}

// TestRecordDBQuery verifies errors are counted per table
func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "canonical_entities"))

	RecordDBQuery("insert", "canonical_entities", time.Millisecond, nil)
	RecordDBQuery("insert", "canonical_entities", time.Millisecond, errors.New("constraint"))

	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "canonical_entities")) - before; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

// TestRecordTraining verifies failed runs leave gauges alone
func TestRecordTraining(t *testing.T) {
	RecordTraining(time.Second, "active", 3, 0.42, 0.12)
	RecordTraining(time.Second, "failed", 4, 9, 0)

	if got := testutil.ToFloat64(CollabActiveVersion); got != 3 {
		t.Errorf("CollabActiveVersion = %v, want 3", got)
	}
	if got := testutil.ToFloat64(CollabFinalLoss); got != 0.42 {
		t.Errorf("CollabFinalLoss = %v, want 0.42", got)
	}
}

// TestRecordRank verifies the cold start counter
func TestRecordRank(t *testing.T) {
	before := testutil.ToFloat64(RankColdStartTotal)

	RecordRank("control", time.Millisecond, false)
	RecordRank("treatment_a", time.Millisecond, true)

	if got := testutil.ToFloat64(RankColdStartTotal) - before; got != 1 {
		t.Errorf("cold start delta = %v, want 1", got)
	}
}

// TestRecordCircuitBreakerTransition verifies the state gauge encoding
func TestRecordCircuitBreakerTransition(t *testing.T) {
	tests := []struct {
		to   string
		want float64
	}{
		{"open", 2},
		{"half-open", 1},
		{"closed", 0},
	}
	for _, tt := range tests {
		RecordCircuitBreakerTransition("nats-publisher", "closed", tt.to)
		if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("nats-publisher")); got != tt.want {
			t.Errorf("state after %q = %v, want %v", tt.to, got, tt.want)
		}
	}
}

// TestRecordAPIRequest verifies status codes are rendered as labels
func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/entities/{id}", "404"))

	RecordAPIRequest("GET", "/api/v1/entities/{id}", 404, 2*time.Millisecond)

	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/entities/{id}", "404")) - before; got != 1 {
		t.Errorf("request delta = %v, want 1", got)
	}
}

// TestConcurrentRecording checks the helpers are safe under concurrency
func TestConcurrentRecording(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			TrackActiveRequest(true)
			RecordCacheHit("rank")
			RecordCacheMiss("rank")
			RecordNATSConsume("catalog.records", "processed", time.Millisecond)
			RecordDedupeDecision("merge")
			TrackActiveRequest(false)
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(APIActiveRequests); got != 0 {
		t.Errorf("APIActiveRequests = %v, want 0", got)
	}
}
