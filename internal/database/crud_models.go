// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/models"
)

const modelColumns = `version, algorithm, status, is_active, trained_at, catalog_snapshot,
	interaction_count, user_count, item_count, metrics, error`

// NextModelVersion returns the version number for the next training run.
func (db *DB) NextModelVersion(ctx context.Context) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var v int
	if err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to allocate model version: %w", err)
	}
	return v, nil
}

func insertModelVersion(ctx context.Context, tx *sql.Tx, mv *models.ModelVersion) error {
	metricsJSON, err := json.Marshal(mv.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode model metrics: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO model_versions (`+modelColumns+`)
		VALUES (?, ?, ?, false, ?, ?, ?, ?, ?, ?, ?)`,
		mv.Version, mv.Algorithm, string(mv.Status), mv.TrainedAt, mv.CatalogSnapshot,
		mv.InteractionCount, mv.UserCount, mv.ItemCount, string(metricsJSON), nullIfEmpty(mv.Error))
	if err != nil {
		return fmt.Errorf("failed to insert model version %d: %w", mv.Version, err)
	}
	return nil
}

func activate(ctx context.Context, tx *sql.Tx, version int) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM model_versions WHERE version = ?`, version).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("model version %d: %w", version, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read model version %d: %w", version, err)
	}
	if models.ModelStatus(status) == models.ModelStatusFailed {
		return fmt.Errorf("model version %d failed training and cannot be activated", version)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE model_versions SET is_active = false, status = ?
		WHERE is_active AND version <> ?`, string(models.ModelStatusInactive), version); err != nil {
		return fmt.Errorf("failed to deactivate model versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE model_versions SET is_active = true, status = ? WHERE version = ?`,
		string(models.ModelStatusActive), version); err != nil {
		return fmt.Errorf("failed to activate model version %d: %w", version, err)
	}
	return nil
}

// CommitModelVersion stores a successful training run and its predictions
// and makes it the single active version, all in one transaction. The
// previously active version stays active if anything fails.
func (db *DB) CommitModelVersion(ctx context.Context, mv models.ModelVersion, preds []models.PredictedScore) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	mv.Status = models.ModelStatusInactive
	err := db.withTx(ctx, "commit", "model_versions", func(tx *sql.Tx) error {
		if err := insertModelVersion(ctx, tx, &mv); err != nil {
			return err
		}
		if err := insertPredictions(ctx, tx, mv.Version, preds); err != nil {
			return err
		}
		return activate(ctx, tx, mv.Version)
	})
	if err != nil {
		return err
	}
	logging.Info().
		Int("model_version", mv.Version).
		Int("predictions", len(preds)).
		Int64("catalog_snapshot", mv.CatalogSnapshot).
		Msg("Model version activated")
	return nil
}

// RecordFailedModelVersion stores a failed training run. The active version
// is not touched.
func (db *DB) RecordFailedModelVersion(ctx context.Context, mv models.ModelVersion) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	mv.Status = models.ModelStatusFailed
	return db.withTx(ctx, "insert", "model_versions", func(tx *sql.Tx) error {
		return insertModelVersion(ctx, tx, &mv)
	})
}

// ActivateModelVersion marks version as the single active version. It is
// used to roll back to an earlier model.
func (db *DB) ActivateModelVersion(ctx context.Context, version int) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, "activate", "model_versions", func(tx *sql.Tx) error {
		return activate(ctx, tx, version)
	})
}

// ActiveModelVersion returns the active model version, or ErrNotFound.
func (db *DB) ActiveModelVersion(ctx context.Context) (*models.ModelVersion, error) {
	out, err := db.queryModelVersions(ctx, `SELECT `+modelColumns+` FROM model_versions WHERE is_active`)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("active model version: %w", models.ErrNotFound)
	}
	return &out[0], nil
}

// ListModelVersions returns every model version, newest first.
func (db *DB) ListModelVersions(ctx context.Context) ([]models.ModelVersion, error) {
	return db.queryModelVersions(ctx, `SELECT `+modelColumns+` FROM model_versions ORDER BY version DESC`)
}

func (db *DB) queryModelVersions(ctx context.Context, q string, args ...any) ([]models.ModelVersion, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		timed("select", "model_versions", start, err)
		return nil, fmt.Errorf("failed to query model versions: %w", err)
	}
	defer rows.Close()

	var out []models.ModelVersion
	for rows.Next() {
		var (
			mv          models.ModelVersion
			status      string
			metricsJSON sql.NullString
			errText     sql.NullString
		)
		if err := rows.Scan(&mv.Version, &mv.Algorithm, &status, &mv.IsActive, &mv.TrainedAt, &mv.CatalogSnapshot,
			&mv.InteractionCount, &mv.UserCount, &mv.ItemCount, &metricsJSON, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan model version: %w", err)
		}
		mv.Status = models.ModelStatus(status)
		mv.Error = errText.String
		if metricsJSON.Valid && metricsJSON.String != "" {
			if err := json.Unmarshal([]byte(metricsJSON.String), &mv.Metrics); err != nil {
				logging.Debug().Err(err).Int("version", mv.Version).Msg("Failed to parse model metrics JSON")
			}
		}
		out = append(out, mv)
	}
	timed("select", "model_versions", start, rows.Err())
	return out, rows.Err()
}
