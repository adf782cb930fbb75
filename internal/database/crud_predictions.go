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

func insertPredictions(ctx context.Context, tx *sql.Tx, version int, preds []models.PredictedScore) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM predicted_scores WHERE model_version = ?`, version); err != nil {
		return fmt.Errorf("failed to clear predictions: %w", err)
	}
	if len(preds) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO predicted_scores (user_id, entity_id, model_version, predicted_value, cohort_id, rank)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare prediction insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i := range preds {
		p := &preds[i]
		if _, err := stmt.ExecContext(ctx, p.UserID, p.EntityID, version, p.PredictedValue, nullIfEmpty(p.CohortID), p.Rank); err != nil {
			return fmt.Errorf("failed to insert prediction %s/%d: %w", p.UserID, p.EntityID, err)
		}
	}
	return nil
}

// PredictedScores returns a user's predictions for a model version ordered
// by rank.
func (db *DB) PredictedScores(ctx context.Context, userID string, version int) ([]models.PredictedScore, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, entity_id, model_version, predicted_value, cohort_id, rank
		FROM predicted_scores
		WHERE user_id = ? AND model_version = ?
		ORDER BY rank`, userID, version)
	if err != nil {
		timed("select", "predicted_scores", start, err)
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []models.PredictedScore
	for rows.Next() {
		var p models.PredictedScore
		var cohort sql.NullString
		if err := rows.Scan(&p.UserID, &p.EntityID, &p.ModelVersion, &p.PredictedValue, &cohort, &p.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.CohortID = cohort.String
		out = append(out, p)
	}
	timed("select", "predicted_scores", start, rows.Err())
	return out, rows.Err()
}

// PrunePredictions deletes predictions of every model version except keep.
func (db *DB) PrunePredictions(ctx context.Context, keep []int) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if len(keep) == 0 {
		return 0, nil
	}
	placeholders := ""
	args := make([]any, len(keep))
	for i, v := range keep {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = v
	}
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM predicted_scores WHERE model_version NOT IN (`+placeholders+`)`, args...) //nolint:gosec // placeholders only
	if err != nil {
		return 0, fmt.Errorf("failed to prune predictions: %w", err)
	}
	return res.RowsAffected()
}
