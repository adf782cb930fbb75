// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/audit"
	"github.com/tomtom215/animedex/internal/database/query"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
)

// RunCommit is everything one dedupe run writes to the warehouse.
type RunCommit struct {
	RunID    string
	Changed  []*models.CanonicalEntity
	Mappings []models.KeyMapping
	Audit    []models.AuditEntry
	Consumed []StagedKey
	At       time.Time
}

// CommitRun persists a dedupe run in one transaction: superseded versions are
// closed, new versions inserted, source mappings upserted, audit entries
// saved and staged records marked processed. A run with changed entities
// publishes a new catalog snapshot; a run that changed nothing does not and
// the returned snapshot is nil. On error nothing is written.
func (db *DB) CommitRun(ctx context.Context, c RunCommit) (*models.Snapshot, error) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	var snap *models.Snapshot
	err := db.withTx(ctx, "commit", "canonical_entities", func(tx *sql.Tx) error {
		snap = nil
		var version int64
		if len(c.Changed) > 0 {
			if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM catalog_snapshots`).Scan(&version); err != nil {
				return fmt.Errorf("failed to allocate snapshot version: %w", err)
			}
			if err := writeEntityVersions(ctx, tx, c.Changed, version, c.At); err != nil {
				return err
			}
		}

		if err := upsertMappings(ctx, tx, c.Mappings, version); err != nil {
			return err
		}
		if err := audit.SaveTx(ctx, tx, c.Audit); err != nil {
			return err
		}
		if err := markProcessed(ctx, tx, c.Consumed, c.At); err != nil {
			return err
		}

		if version == 0 {
			return nil
		}
		s, err := insertSnapshot(ctx, tx, c.RunID, version, len(c.Changed), c.At)
		if err != nil {
			return err
		}
		snap = s
		return nil
	})
	if err != nil {
		for _, e := range c.Changed {
			e.SnapshotVersion = 0
		}
		return nil, fmt.Errorf("failed to commit run %s: %w", c.RunID, err)
	}

	if snap != nil {
		metrics.RecordSnapshot(snap.Version)
		logging.Info().
			Str("run_id", c.RunID).
			Int64("snapshot", snap.Version).
			Int("changed", snap.ChangedCount).
			Int("entities", snap.EntityCount).
			Msg("Catalog snapshot committed")
	}
	return snap, nil
}

func writeEntityVersions(ctx context.Context, tx *sql.Tx, changed []*models.CanonicalEntity, version int64, at time.Time) error {
	closeStmt, err := tx.PrepareContext(ctx, `
		UPDATE canonical_entities
		SET is_current = false, valid_to = ?, superseded_in = ?
		WHERE canonical_id = ? AND is_current`)
	if err != nil {
		return fmt.Errorf("failed to prepare supersede: %w", err)
	}
	defer closeWithLog(closeStmt, "prepared statement")

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO canonical_entities (
			canonical_id, version, entity_key, title, release_year, format,
			score, popularity, confidence, source_count, data, fingerprint,
			snapshot_version, superseded_in, is_current, valid_from, valid_to
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, true, ?, NULL)`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity insert: %w", err)
	}
	defer closeWithLog(insertStmt, "prepared statement")

	for _, e := range changed {
		if e.SourceCount() == 0 {
			return fmt.Errorf("entity %d has no contributing sources", e.CanonicalID)
		}
		validFrom := e.ValidFrom
		if validFrom.IsZero() {
			validFrom = at
		}
		if _, err := closeStmt.ExecContext(ctx, validFrom, version, e.CanonicalID); err != nil {
			return fmt.Errorf("failed to supersede entity %d: %w", e.CanonicalID, err)
		}

		e.SnapshotVersion = version
		e.IsCurrent = true
		e.ValidFrom = validFrom
		e.ValidTo = nil
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entity %d: %w", e.CanonicalID, err)
		}
		_, err = insertStmt.ExecContext(ctx,
			e.CanonicalID, e.Version, e.Key, e.Title, nullIfZero(e.ReleaseYear), nullIfEmpty(e.Format),
			e.Score, e.Popularity, e.Confidence, e.SourceCount(), string(data), e.ContentFingerprint(),
			version, validFrom,
		)
		if err != nil {
			return fmt.Errorf("failed to insert entity %d v%d: %w", e.CanonicalID, e.Version, err)
		}
	}
	return nil
}

func upsertMappings(ctx context.Context, tx *sql.Tx, mappings []models.KeyMapping, version int64) error {
	if len(mappings) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entity_sources (
			source, source_id, canonical_id, canonical_key, content_hash,
			confidence, snapshot_version, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, source_id) DO UPDATE SET
			canonical_id = EXCLUDED.canonical_id,
			canonical_key = EXCLUDED.canonical_key,
			content_hash = EXCLUDED.content_hash,
			confidence = EXCLUDED.confidence,
			snapshot_version = COALESCE(EXCLUDED.snapshot_version, entity_sources.snapshot_version),
			updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare mapping upsert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	var snap *int64
	if version > 0 {
		snap = &version
	}
	for i := range mappings {
		m := &mappings[i]
		_, err := stmt.ExecContext(ctx, m.Source, m.SourceID, m.CanonicalID, m.CanonicalKey,
			m.ContentHash, m.Confidence, snap, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert mapping %s: %w", m.SourceKey(), err)
		}
	}
	return nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, runID string, version int64, changed int, at time.Time) (*models.Snapshot, error) {
	rows, err := tx.QueryContext(ctx, `SELECT fingerprint FROM canonical_entities WHERE is_current ORDER BY canonical_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity fingerprints: %w", err)
	}
	h := sha256.New()
	count := 0
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			closeQuietly(rows)
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		h.Write([]byte(fp))
		count++
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return nil, err
	}
	closeQuietly(rows)

	snap := &models.Snapshot{
		Version:      version,
		RunID:        runID,
		CreatedAt:    at,
		EntityCount:  count,
		ChangedCount: changed,
		Fingerprint:  hex.EncodeToString(h.Sum(nil)[:16]),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO catalog_snapshots (version, run_id, created_at, entity_count, changed_count, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.Version, snap.RunID, snap.CreatedAt, snap.EntityCount, snap.ChangedCount, snap.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot %d: %w", version, err)
	}
	return snap, nil
}

const entityColumns = `data, snapshot_version, is_current, valid_from, valid_to`

func scanEntities(rows *sql.Rows) ([]*models.CanonicalEntity, error) {
	var out []*models.CanonicalEntity
	for rows.Next() {
		var (
			data     string
			snapshot int64
			current  bool
			from     time.Time
			to       sql.NullTime
		)
		if err := rows.Scan(&data, &snapshot, &current, &from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		var e models.CanonicalEntity
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("failed to decode entity: %w", err)
		}
		e.SnapshotVersion = snapshot
		e.IsCurrent = current
		e.ValidFrom = from
		e.ValidTo = nil
		if to.Valid {
			t := to.Time
			e.ValidTo = &t
		}
		if e.ContributingSources == nil {
			e.ContributingSources = map[string]string{}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (db *DB) queryEntities(ctx context.Context, op, q string, args ...any) ([]*models.CanonicalEntity, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		timed(op, "canonical_entities", start, err)
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	out, err := scanEntities(rows)
	timed(op, "canonical_entities", start, err)
	return out, err
}

// LoadCurrentEntities returns the current version of every entity ordered by
// canonical id.
func (db *DB) LoadCurrentEntities(ctx context.Context) ([]*models.CanonicalEntity, error) {
	return db.queryEntities(ctx, "select_current",
		`SELECT `+entityColumns+` FROM canonical_entities WHERE is_current ORDER BY canonical_id`)
}

// EntitiesAsOf returns the catalog as it was at snapshot v: for each entity
// the version introduced at or before v and not superseded by v.
func (db *DB) EntitiesAsOf(ctx context.Context, v int64) ([]*models.CanonicalEntity, error) {
	return db.queryEntities(ctx, "select_as_of", `
		SELECT `+entityColumns+` FROM canonical_entities
		WHERE snapshot_version <= ? AND (superseded_in IS NULL OR superseded_in > ?)
		ORDER BY canonical_id`, v, v)
}

// GetEntity returns the current version of one entity.
func (db *DB) GetEntity(ctx context.Context, id int64) (*models.CanonicalEntity, error) {
	out, err := db.queryEntities(ctx, "select_one",
		`SELECT `+entityColumns+` FROM canonical_entities WHERE canonical_id = ? AND is_current`, id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("entity %d: %w", id, models.ErrNotFound)
	}
	return out[0], nil
}

// EntityHistory returns every version of an entity, oldest first.
func (db *DB) EntityHistory(ctx context.Context, id int64) ([]*models.CanonicalEntity, error) {
	out, err := db.queryEntities(ctx, "select_history", `
		SELECT `+entityColumns+` FROM canonical_entities
		WHERE canonical_id = ? ORDER BY version`, id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("entity %d: %w", id, models.ErrNotFound)
	}
	return out, nil
}

// EntityFilter narrows ListEntities. Zero values do not filter.
type EntityFilter struct {
	IDs      []int64
	Formats  []string
	MinYear  int
	MaxYear  int
	MinScore float64
	Limit    int
}

// ListEntities returns current entities matching the filter, most popular
// first and then by canonical id.
func (db *DB) ListEntities(ctx context.Context, f EntityFilter) ([]*models.CanonicalEntity, error) {
	wb := query.NewWhereBuilder().AddClause("is_current")
	wb.AddInt64In("canonical_id", f.IDs)
	wb.AddIn("format", f.Formats)
	wb.AddIntRange("release_year", f.MinYear, f.MaxYear)
	if f.MinScore > 0 {
		wb.AddClause("score >= ?", f.MinScore)
	}
	where, args := wb.BuildWithPrefix()

	q := `SELECT ` + entityColumns + ` FROM canonical_entities ` + where +
		` ORDER BY popularity DESC NULLS LAST, canonical_id`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return db.queryEntities(ctx, "select_list", q, args...)
}

// LatestSnapshot returns the newest catalog snapshot, or ErrNotFound before
// the first committed run.
func (db *DB) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	snaps, err := db.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("catalog snapshot: %w", models.ErrNotFound)
	}
	return &snaps[0], nil
}

// CurrentSnapshotVersion returns the newest snapshot version, 0 when none.
func (db *DB) CurrentSnapshotVersion(ctx context.Context) (int64, error) {
	snap, err := db.LatestSnapshot(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return snap.Version, nil
}

// ListSnapshots returns snapshots newest first. A limit of 0 returns all.
func (db *DB) ListSnapshots(ctx context.Context, limit int) ([]models.Snapshot, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	q := `SELECT version, run_id, created_at, entity_count, changed_count, fingerprint
		FROM catalog_snapshots ORDER BY version DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := db.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.Version, &s.RunID, &s.CreatedAt, &s.EntityCount, &s.ChangedCount, &s.Fingerprint); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullIfZero(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
