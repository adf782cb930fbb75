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

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/models"
)

// PipelineRun is one batch cycle as recorded for the status endpoint.
type PipelineRun struct {
	RunID           string          `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	Status          string          `json:"status"`
	SnapshotVersion int64           `json:"snapshot_version,omitempty"`
	ModelVersion    int             `json:"model_version,omitempty"`
	Stats           json.RawMessage `json:"stats,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// StartPipelineRun records a run as running.
func (db *DB) StartPipelineRun(ctx context.Context, runID string, startedAt time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO pipeline_runs (run_id, started_at, status) VALUES (?, ?, 'running')`, runID, startedAt)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// FinishPipelineRun records the outcome of a run.
func (db *DB) FinishPipelineRun(ctx context.Context, run PipelineRun) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	var snap *int64
	if run.SnapshotVersion > 0 {
		snap = &run.SnapshotVersion
	}
	var model *int
	if run.ModelVersion > 0 {
		model = &run.ModelVersion
	}
	var stats *string
	if len(run.Stats) > 0 {
		s := string(run.Stats)
		stats = &s
	}

	_, err := db.conn.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET finished_at = ?, status = ?, snapshot_version = ?, model_version = ?, stats = ?, error = ?
		WHERE run_id = ?`,
		finished, run.Status, snap, model, stats, nullIfEmpty(run.Error), run.RunID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// ListPipelineRuns returns runs newest first.
func (db *DB) ListPipelineRuns(ctx context.Context, limit int) ([]PipelineRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	q := `SELECT run_id, started_at, finished_at, status, snapshot_version, model_version, stats, error
		FROM pipeline_runs ORDER BY started_at DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := db.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}
	defer rows.Close()

	var out []PipelineRun
	for rows.Next() {
		var (
			r        PipelineRun
			finished sql.NullTime
			snap     sql.NullInt64
			model    sql.NullInt64
			stats    sql.NullString
			errText  sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.StartedAt, &finished, &r.Status, &snap, &model, &stats, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		r.SnapshotVersion = snap.Int64
		r.ModelVersion = int(model.Int64)
		if stats.Valid {
			r.Stats = json.RawMessage(stats.String)
		}
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastPipelineRun returns the newest run, or ErrNotFound.
func (db *DB) LastPipelineRun(ctx context.Context) (*PipelineRun, error) {
	runs, err := db.ListPipelineRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("pipeline run: %w", models.ErrNotFound)
	}
	return &runs[0], nil
}

// QualityResult is the stored outcome of one data quality check.
type QualityResult struct {
	RunID      string    `json:"run_id"`
	Check      string    `json:"check"`
	Severity   string    `json:"severity"`
	Passed     bool      `json:"passed"`
	Checked    int64     `json:"checked"`
	Violations int64     `json:"violations"`
	Details    string    `json:"details,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// SaveQualityResults replaces the results of a run.
func (db *DB) SaveQualityResults(ctx context.Context, runID string, results []QualityResult) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, "replace", "quality_results", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM quality_results WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear quality results: %w", err)
		}
		for i := range results {
			r := &results[i]
			_, err := tx.ExecContext(ctx, `
				INSERT INTO quality_results (run_id, check_name, severity, passed, checked, violations, details, checked_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, r.Check, severityOrDefault(r.Severity), r.Passed, r.Checked, r.Violations, nullIfEmpty(r.Details), r.CheckedAt)
			if err != nil {
				return fmt.Errorf("failed to insert quality result %s: %w", r.Check, err)
			}
		}
		return nil
	})
}

// QualityResults returns the stored results of a run ordered by check name.
func (db *DB) QualityResults(ctx context.Context, runID string) ([]QualityResult, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id, check_name, severity, passed, checked, violations, details, checked_at
		FROM quality_results WHERE run_id = ? ORDER BY check_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality results: %w", err)
	}
	defer rows.Close()

	var out []QualityResult
	for rows.Next() {
		var r QualityResult
		var details sql.NullString
		if err := rows.Scan(&r.RunID, &r.Check, &r.Severity, &r.Passed, &r.Checked, &r.Violations, &details, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quality result: %w", err)
		}
		r.Details = details.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func severityOrDefault(s string) string {
	if s == "" {
		return "warning"
	}
	return s
}
