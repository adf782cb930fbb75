// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
database_schema.go - Warehouse Schema

Tables:
  - source_records: raw payloads staged by the ingest paths, keyed by source#id
  - canonical_entities: one row per entity version (slowly-changing dimension)
  - entity_sources: source#id to canonical id mapping with content hashes
  - catalog_snapshots: one row per committed dedupe run that changed the catalog
  - similarity_edges: top-K neighbors per (snapshot, method)
  - user_ratings: explicit interactions, latest rating wins
  - model_versions: collaborative training runs and the active flag
  - predicted_scores: materialized collaborative predictions per model version
  - pipeline_runs: batch cycle history for the status endpoint
  - quality_results: data quality check outcomes per run
  - merge_audit_log: created by the audit package

DuckDB rewrites updates of indexed columns as delete plus insert, which trips
primary key checks inside a transaction. Columns that are updated in place
(is_current, superseded_in, valid_to, is_active, processed) are never indexed.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the warehouse tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// getTableCreationQueries returns the table creation SQL statements.
func getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS source_records (
			source TEXT NOT NULL,
			source_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			payload TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT false,
			received_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ,
			PRIMARY KEY (source, source_id)
		);`,

		`CREATE TABLE IF NOT EXISTS canonical_entities (
			canonical_id BIGINT NOT NULL,
			version INTEGER NOT NULL,
			entity_key TEXT NOT NULL,
			title TEXT NOT NULL,
			release_year INTEGER,
			format TEXT,
			score DOUBLE,
			popularity BIGINT,
			confidence DOUBLE NOT NULL,
			source_count INTEGER NOT NULL,
			data TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			snapshot_version BIGINT NOT NULL,
			superseded_in BIGINT,
			is_current BOOLEAN NOT NULL,
			valid_from TIMESTAMPTZ NOT NULL,
			valid_to TIMESTAMPTZ,
			PRIMARY KEY (canonical_id, version)
		);`,

		`CREATE TABLE IF NOT EXISTS entity_sources (
			source TEXT NOT NULL,
			source_id TEXT NOT NULL,
			canonical_id BIGINT NOT NULL,
			canonical_key TEXT NOT NULL,
			content_hash TEXT,
			confidence DOUBLE NOT NULL,
			snapshot_version BIGINT,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (source, source_id)
		);`,

		`CREATE TABLE IF NOT EXISTS catalog_snapshots (
			version BIGINT PRIMARY KEY,
			run_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			entity_count INTEGER NOT NULL,
			changed_count INTEGER NOT NULL,
			fingerprint TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS similarity_edges (
			snapshot_version BIGINT NOT NULL,
			method TEXT NOT NULL,
			source_entity BIGINT NOT NULL,
			target_entity BIGINT NOT NULL,
			score DOUBLE NOT NULL,
			rank INTEGER NOT NULL,
			PRIMARY KEY (snapshot_version, method, source_entity, rank)
		);`,

		`CREATE TABLE IF NOT EXISTS user_ratings (
			user_id TEXT NOT NULL,
			entity_id BIGINT NOT NULL,
			rating DOUBLE NOT NULL,
			rated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, entity_id)
		);`,

		`CREATE TABLE IF NOT EXISTS model_versions (
			version INTEGER PRIMARY KEY,
			algorithm TEXT NOT NULL,
			status TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT false,
			trained_at TIMESTAMPTZ NOT NULL,
			catalog_snapshot BIGINT NOT NULL,
			interaction_count INTEGER NOT NULL,
			user_count INTEGER NOT NULL,
			item_count INTEGER NOT NULL,
			metrics TEXT,
			error TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS predicted_scores (
			user_id TEXT NOT NULL,
			entity_id BIGINT NOT NULL,
			model_version INTEGER NOT NULL,
			predicted_value DOUBLE NOT NULL,
			cohort_id TEXT,
			rank INTEGER NOT NULL,
			PRIMARY KEY (user_id, entity_id, model_version)
		);`,

		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			snapshot_version BIGINT,
			model_version INTEGER,
			stats TEXT,
			error TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS quality_results (
			run_id TEXT NOT NULL,
			check_name TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT 'warning',
			passed BOOLEAN NOT NULL,
			checked BIGINT NOT NULL,
			violations BIGINT NOT NULL,
			details TEXT,
			checked_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, check_name)
		);`,
	}
}

// createIndexes creates secondary indexes for the read paths.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_entities_snapshot ON canonical_entities(snapshot_version);`,
		`CREATE INDEX IF NOT EXISTS idx_entities_id ON canonical_entities(canonical_id);`,
		`CREATE INDEX IF NOT EXISTS idx_edges_source ON similarity_edges(method, source_entity);`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_entity ON user_ratings(entity_id);`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_user ON predicted_scores(user_id, model_version);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at);`,
	}

	for _, idx := range indexes {
		if _, err := db.conn.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", idx, err)
		}
	}
	return nil
}
