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

	"github.com/tomtom215/animedex/internal/models"
)

// ReplaceSimilarityEdges replaces every edge of (snapshot, method) with
// edges. Re-running a similarity job for the same snapshot is idempotent.
func (db *DB) ReplaceSimilarityEdges(ctx context.Context, snapshot int64, method string, edges []models.SimilarityEdge) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, "replace", "similarity_edges", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM similarity_edges WHERE snapshot_version = ? AND method = ?`, snapshot, method); err != nil {
			return fmt.Errorf("failed to clear edges: %w", err)
		}
		if len(edges) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO similarity_edges (snapshot_version, method, source_entity, target_entity, score, rank)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare edge insert: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		for i := range edges {
			e := &edges[i]
			if e.Source == e.Target {
				return fmt.Errorf("self edge on entity %d", e.Source)
			}
			if _, err := stmt.ExecContext(ctx, snapshot, method, e.Source, e.Target, e.Score, e.Rank); err != nil {
				return fmt.Errorf("failed to insert edge %d->%d: %w", e.Source, e.Target, err)
			}
		}
		return nil
	})
}

// LatestEdgeSnapshot returns the newest snapshot that has edges for method,
// 0 when none.
func (db *DB) LatestEdgeSnapshot(ctx context.Context, method string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var v sql.NullInt64
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(snapshot_version) FROM similarity_edges WHERE method = ?`, method).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to query edge snapshot: %w", err)
	}
	return v.Int64, nil
}

// SimilarityNeighbors returns the ranked neighbors of entity from the newest
// edge snapshot for method. A limit of 0 returns all stored neighbors.
func (db *DB) SimilarityNeighbors(ctx context.Context, entity int64, method string, limit int) ([]models.SimilarityEdge, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	q := `
		SELECT snapshot_version, method, source_entity, target_entity, score, rank
		FROM similarity_edges
		WHERE method = ? AND source_entity = ?
		  AND snapshot_version = (SELECT MAX(snapshot_version) FROM similarity_edges WHERE method = ?)
		ORDER BY rank`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, q, method, entity, method)
	if err != nil {
		timed("select", "similarity_edges", start, err)
		return nil, fmt.Errorf("failed to query neighbors: %w", err)
	}
	defer rows.Close()

	var out []models.SimilarityEdge
	for rows.Next() {
		var e models.SimilarityEdge
		if err := rows.Scan(&e.SnapshotVersion, &e.Method, &e.Source, &e.Target, &e.Score, &e.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, e)
	}
	timed("select", "similarity_edges", start, rows.Err())
	return out, rows.Err()
}

// PruneSimilarityEdges removes edges of snapshots older than keepFrom.
func (db *DB) PruneSimilarityEdges(ctx context.Context, method string, keepFrom int64) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM similarity_edges WHERE method = ? AND snapshot_version < ?`, method, keepFrom)
	if err != nil {
		return 0, fmt.Errorf("failed to prune edges: %w", err)
	}
	return res.RowsAffected()
}
