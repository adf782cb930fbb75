// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package metrics provides Prometheus metrics for the animedex pipeline and API.

All collectors are registered with the default registry through promauto and
exposed by the API server at /metrics.

# Available Metrics

Entity resolution:
  - animedex_normalize_total: adapter results (counter)
    Labels: source, result (ok, malformed)
  - animedex_dedupe_decisions_total: merge decisions (counter)
    Labels: decision (create, merge, refresh, reject)
  - animedex_dedupe_ambiguous_total: near-tie decisions (counter)
  - animedex_dedupe_run_duration_seconds: resolve run latency (histogram)
  - animedex_canonical_entities: canonical set size (gauge)

Warehouse:
  - duckdb_query_duration_seconds, duckdb_query_errors_total
    Labels: operation, table
  - animedex_catalog_snapshot_version (gauge)

Scoring:
  - animedex_similarity_run_duration_seconds, animedex_similarity_edges
  - animedex_collab_training_duration_seconds, animedex_collab_training_total
  - animedex_collab_active_model_version, animedex_collab_final_loss,
    animedex_collab_precision_at_k
  - animedex_interactions_total: rating policy outcomes
    Labels: outcome (accepted, clamped, rejected)

Ranking and cache:
  - animedex_rank_requests_total, animedex_rank_duration_seconds
    Labels: cohort
  - animedex_rank_cold_start_total
  - animedex_cache_hits_total, animedex_cache_misses_total
    Labels: cache

Pipeline and supervision:
  - animedex_pipeline_runs_total (Labels: status)
  - animedex_pipeline_stage_duration_seconds (Labels: stage)
  - animedex_pipeline_last_success_timestamp
  - animedex_quality_violations (Labels: check)
  - animedex_service_restarts_total (Labels: service)

Messaging:
  - nats_messages_published_total (Labels: topic)
  - nats_messages_consumed_total (Labels: topic, result)
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total, circuit_breaker_state_transitions_total

HTTP:
  - http_requests_total, http_request_duration_seconds, http_requests_in_flight

# Usage

	start := time.Now()
	res, err := resolver.Resolve(ctx, runID, current, inputs)
	metrics.RecordPipelineStage("dedupe", time.Since(start))
*/
package metrics
