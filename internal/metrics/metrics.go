// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Normalization Metrics
	NormalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animedex_normalize_total",
			Help: "Source payloads normalized, by source and result",
		},
		[]string{"source", "result"}, // result: "ok", "malformed"
	)

	// Dedupe Metrics
	DedupeDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animedex_dedupe_decisions_total",
			Help: "Merge decisions by outcome",
		},
		[]string{"decision"}, // create, merge, refresh, reject
	)

	DedupeAmbiguousTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "animedex_dedupe_ambiguous_total",
			Help: "Merge decisions where the top two candidates were within the ambiguity delta",
		},
	)

	DedupeRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "animedex_dedupe_run_duration_seconds",
			Help:    "Duration of one resolve run in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	DedupeRecordsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "animedex_dedupe_records_processed_total",
			Help: "Source records fed through entity resolution",
		},
	)

	CanonicalEntities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animedex_canonical_entities",
			Help: "Current number of canonical entities",
		},
	)

	// Warehouse Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	SnapshotVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animedex_catalog_snapshot_version",
			Help: "Latest published catalog snapshot version",
		},
	)

	// Similarity Metrics
	SimilarityRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "animedex_similarity_run_duration_seconds",
			Help:    "Duration of a full similarity recomputation in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
	)

	SimilarityEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animedex_similarity_edges",
			Help: "Similarity edges produced by the latest run",
		},
	)

	// Collaborative Model Metrics
	CollabTrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "animedex_collab_training_duration_seconds",
			Help:    "Duration of collaborative model training in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800},
		},
	)

	CollabTrainingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animedex_collab_training_total",
			Help: "Collaborative training runs by status",
		},
		[]string{"status"}, // active, failed
	)

	CollabActiveVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animedex_collab_active_model_version",
			Help: "Version number of the active collaborative model",
		},
	)

	CollabFinalLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animedex_collab_final_loss",
			Help: "Final epoch BPR loss of the latest training run",
		},
	)

	CollabPrecisionAtK = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animedex_collab_precision_at_k",
			Help: "Holdout precision@K of the latest training run",
		},
	)

	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animedex_interactions_total",
			Help: "Interactions seen by the rating policy, by outcome",
		},
		[]string{"outcome"}, // accepted, clamped, rejected
	)

	// Ranking Metrics
	RankRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animedex_rank_requests_total",
			Help: "Hybrid ranking requests by cohort",
		},
		[]string{"cohort"},
	)

	RankDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "animedex_rank_duration_seconds",
			Help:    "Hybrid ranking latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"cohort"},
	)

	RankColdStartTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "animedex_rank_cold_start_total",
			Help: "Ranking requests served content-only because the user had no collaborative scores",
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animedex_cache_hits_total",
			Help: "Cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animedex_cache_misses_total",
			Help: "Cache misses by cache name",
		},
		[]string{"cache"},
	)

	// Pipeline Metrics
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animedex_pipeline_runs_total",
			Help: "Pipeline runs by status",
		},
		[]string{"status"}, // success, failed, skipped
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "animedex_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"stage"},
	)

	PipelineLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animedex_pipeline_last_success_timestamp",
			Help: "Unix timestamp of the last successful pipeline run",
		},
	)

	QualityViolations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "animedex_quality_violations",
			Help: "Rows violating each data quality check in the latest run",
		},
		[]string{"check"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// NATS Event Metrics
	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Messages published to NATS by topic",
		},
		[]string{"topic"},
	)

	NATSMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_consumed_total",
			Help: "Messages consumed from NATS by topic and result",
		},
		[]string{"topic", "result"}, // result: processed, deduplicated, parse_failed, failed
	)

	NATSProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nats_message_processing_duration_seconds",
			Help:    "Time spent handling one consumed message",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// Supervisor Metrics
	ServiceRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animedex_service_restarts_total",
			Help: "Supervised service failures that triggered a restart",
		},
		[]string{"service"},
	)

	// Application Info
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordNormalize records one adapter normalization.
func RecordNormalize(source string, ok bool) {
	result := "ok"
	if !ok {
		result = "malformed"
	}
	NormalizeTotal.WithLabelValues(source, result).Inc()
}

// RecordDedupeDecision records one merge decision.
func RecordDedupeDecision(decision string) {
	DedupeDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordDedupeRun records a finished resolve run.
func RecordDedupeRun(duration time.Duration, records, canonicalCount int) {
	DedupeRunDuration.Observe(duration.Seconds())
	DedupeRecordsProcessed.Add(float64(records))
	CanonicalEntities.Set(float64(canonicalCount))
}

// RecordDBQuery records a warehouse query
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordSnapshot records a newly published catalog snapshot.
func RecordSnapshot(version int64) {
	SnapshotVersion.Set(float64(version))
}

// RecordSimilarityRun records a similarity recomputation.
func RecordSimilarityRun(duration time.Duration, edges int) {
	SimilarityRunDuration.Observe(duration.Seconds())
	SimilarityEdges.Set(float64(edges))
}

// RecordTraining records a collaborative training run. Failed runs leave the
// active version and quality gauges untouched.
func RecordTraining(duration time.Duration, status string, version int, finalLoss, precisionAtK float64) {
	CollabTrainingDuration.Observe(duration.Seconds())
	CollabTrainingTotal.WithLabelValues(status).Inc()
	if status == "failed" {
		return
	}
	CollabActiveVersion.Set(float64(version))
	CollabFinalLoss.Set(finalLoss)
	CollabPrecisionAtK.Set(precisionAtK)
}

// RecordInteraction records how the rating policy treated one interaction.
func RecordInteraction(outcome string) {
	InteractionsTotal.WithLabelValues(outcome).Inc()
}

// RecordRank records one hybrid ranking request.
func RecordRank(cohort string, duration time.Duration, coldStart bool) {
	RankRequestsTotal.WithLabelValues(cohort).Inc()
	RankDuration.WithLabelValues(cohort).Observe(duration.Seconds())
	if coldStart {
		RankColdStartTotal.Inc()
	}
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cache string) {
	CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cache string) {
	CacheMisses.WithLabelValues(cache).Inc()
}

// RecordPipelineRun records a finished pipeline run.
func RecordPipelineRun(status string) {
	PipelineRunsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		PipelineLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordPipelineStage records the duration of one pipeline stage.
func RecordPipelineStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordQualityCheck records the violation count of a data quality check.
func RecordQualityCheck(check string, violations int64) {
	QualityViolations.WithLabelValues(check).Set(float64(violations))
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCircuitBreakerRequest records one call through a circuit breaker.
func RecordCircuitBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// RecordCircuitBreakerTransition records a breaker state change. States are
// the gobreaker state names.
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordNATSPublish records a message being published to NATS
func RecordNATSPublish(topic string) {
	NATSMessagesPublished.WithLabelValues(topic).Inc()
}

// RecordNATSConsume records the handling result of a consumed message.
func RecordNATSConsume(topic, result string, duration time.Duration) {
	NATSMessagesConsumed.WithLabelValues(topic, result).Inc()
	NATSProcessingDuration.Observe(duration.Seconds())
}

// RecordServiceRestart records a supervised service failure.
func RecordServiceRestart(service string) {
	ServiceRestartsTotal.WithLabelValues(service).Inc()
}

// SetAppInfo publishes build information.
func SetAppInfo(version, goVersion string) {
	AppInfo.WithLabelValues(version, goVersion).Set(1)
}
