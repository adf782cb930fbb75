// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tomtom215/animedex/internal/models"
)

// StagedRecord is a raw source payload waiting for a dedupe run.
type StagedRecord struct {
	Source      string
	SourceID    string
	ContentHash string
	Payload     []byte
	ReceivedAt  time.Time
}

// Key returns the natural key of the staged record.
func (r *StagedRecord) Key() string {
	return models.SourceKey(r.Source, r.SourceID)
}

// PayloadHash digests a raw payload for staging change detection.
func PayloadHash(payload []byte) string {
	return strconv.FormatUint(xxhash.Sum64(payload), 16)
}

// StageSourceRecords upserts raw payloads keyed by source#id. A record whose
// payload hash is unchanged is left alone, so re-delivering the same message
// never schedules redundant work. It returns the number of records that were
// new or changed.
func (db *DB) StageSourceRecords(ctx context.Context, records []StagedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	// Keep the last payload per key so a batch never touches a row twice.
	last := make(map[string]int, len(records))
	for i := range records {
		last[records[i].Key()] = i
	}

	const query = `
		INSERT INTO source_records (source, source_id, content_hash, payload, processed, received_at)
		VALUES (?, ?, ?, ?, false, ?)
		ON CONFLICT (source, source_id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			payload = EXCLUDED.payload,
			processed = false,
			processed_at = NULL
		WHERE source_records.content_hash <> EXCLUDED.content_hash`

	staged := 0
	err := db.withTx(ctx, "upsert", "source_records", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare staging insert: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		staged = 0
		for i := range records {
			r := &records[i]
			if last[r.Key()] != i {
				continue
			}
			if r.ContentHash == "" {
				r.ContentHash = PayloadHash(r.Payload)
			}
			if r.ReceivedAt.IsZero() {
				r.ReceivedAt = time.Now().UTC()
			}
			res, err := stmt.ExecContext(ctx, r.Source, r.SourceID, r.ContentHash, string(r.Payload), r.ReceivedAt)
			if err != nil {
				return fmt.Errorf("failed to stage %s: %w", r.Key(), err)
			}
			if n, err := res.RowsAffected(); err == nil {
				staged += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return staged, nil
}

// PendingSourceRecords returns staged records not yet processed by a dedupe
// run, oldest first. A limit of 0 returns all.
func (db *DB) PendingSourceRecords(ctx context.Context, limit int) ([]StagedRecord, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
		SELECT source, source_id, content_hash, payload, received_at
		FROM source_records
		WHERE NOT processed
		ORDER BY received_at, source, source_id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		timed("select", "source_records", start, err)
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	var out []StagedRecord
	for rows.Next() {
		var r StagedRecord
		var payload string
		if err := rows.Scan(&r.Source, &r.SourceID, &r.ContentHash, &payload, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staged record: %w", err)
		}
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	timed("select", "source_records", start, rows.Err())
	return out, rows.Err()
}

// CountPendingSourceRecords returns the size of the staging backlog.
func (db *DB) CountPendingSourceRecords(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_records WHERE NOT processed`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return n, nil
}

// markProcessed flags staged records as consumed by a run.
func markProcessed(ctx context.Context, tx *sql.Tx, keys []StagedKey, at time.Time) error {
	if len(keys) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		UPDATE source_records SET processed = true, processed_at = ?
		WHERE source = ? AND source_id = ? AND content_hash = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare processed update: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, at, k.Source, k.SourceID, k.ContentHash); err != nil {
			return fmt.Errorf("failed to mark %s processed: %w", models.SourceKey(k.Source, k.SourceID), err)
		}
	}
	return nil
}

// StagedKey identifies the exact staged payload a run consumed. The hash
// guard keeps a payload re-staged mid-run pending for the next run.
type StagedKey struct {
	Source      string
	SourceID    string
	ContentHash string
}
