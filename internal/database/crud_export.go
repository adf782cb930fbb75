// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/animedex/internal/dedupe"
	"github.com/tomtom215/animedex/internal/models"
)

// SourceMappings returns every source#id to canonical id mapping ordered by
// source and source id. The key index is rebuilt from this table.
func (db *DB) SourceMappings(ctx context.Context) ([]models.KeyMapping, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT source, source_id, canonical_id, canonical_key, content_hash, confidence, updated_at
		FROM entity_sources ORDER BY source, source_id`)
	if err != nil {
		timed("select", "entity_sources", start, err)
		return nil, fmt.Errorf("failed to query source mappings: %w", err)
	}
	defer rows.Close()

	var out []models.KeyMapping
	for rows.Next() {
		var m models.KeyMapping
		var hash sql.NullString
		if err := rows.Scan(&m.Source, &m.SourceID, &m.CanonicalID, &m.CanonicalKey, &hash, &m.Confidence, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source mapping: %w", err)
		}
		m.ContentHash = hash.String
		out = append(out, m)
	}
	timed("select", "entity_sources", start, rows.Err())
	return out, rows.Err()
}

// ExportDedupMap writes the source key to canonical key map as a JSON file
// and returns the number of rows written.
func (db *DB) ExportDedupMap(ctx context.Context, path string) (int, error) {
	mappings, err := db.SourceMappings(ctx)
	if err != nil {
		return 0, err
	}
	rows := dedupe.MappingRowsFromKeys(mappings)
	if err := dedupe.WriteMappingFile(path, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
