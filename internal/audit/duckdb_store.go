// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/models"
)

// DuckDBStore implements Store on the merge_audit_log table.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a new DuckDB-backed audit store.
// The caller is responsible for ensuring the merge_audit_log table exists.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// countByColumn executes a GROUP BY query and returns counts per value.
func (s *DuckDBStore) countByColumn(ctx context.Context, column string) (map[string]int64, error) {
	result := make(map[string]int64)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM merge_audit_log GROUP BY %s", column, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s counts: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err == nil {
			result[key] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return result, nil
}

// buildSliceCondition creates a SQL IN condition for a slice of string values.
func buildSliceCondition[T ~string](column string, values []T, args *[]any) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

// CreateTable creates the merge_audit_log table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS merge_audit_log (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			source TEXT NOT NULL,
			source_id TEXT,
			title TEXT,
			decision TEXT NOT NULL,
			canonical_id BIGINT,
			score DOUBLE NOT NULL,
			runner_up_id BIGINT,
			runner_up_score DOUBLE,
			candidates INTEGER NOT NULL,
			ambiguous BOOLEAN NOT NULL,
			breakdown JSON,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_merge_audit_timestamp ON merge_audit_log(timestamp);
		CREATE INDEX IF NOT EXISTS idx_merge_audit_run ON merge_audit_log(run_id);
		CREATE INDEX IF NOT EXISTS idx_merge_audit_canonical ON merge_audit_log(canonical_id);
		CREATE INDEX IF NOT EXISTS idx_merge_audit_source ON merge_audit_log(source, source_id)
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Msg("Merge audit table created/verified")
	return nil
}

const insertQuery = `
	INSERT INTO merge_audit_log (
		id, run_id, timestamp, source, source_id, title, decision,
		canonical_id, score, runner_up_id, runner_up_score,
		candidates, ambiguous, breakdown, reason
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Save persists a batch of entries in one transaction.
func (s *DuckDBStore) Save(ctx context.Context, entries []models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	if err := SaveTx(ctx, tx, entries); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit entries: %w", err)
	}
	return nil
}

// SaveTx writes entries inside a caller-owned transaction so that audit rows
// commit together with the entity versions they describe.
func SaveTx(ctx context.Context, tx execer, entries []models.AuditEntry) error {
	for i := range entries {
		if _, err := tx.ExecContext(ctx, insertQuery, entryParams(&entries[i])...); err != nil {
			return fmt.Errorf("failed to save audit entry %s: %w", entries[i].ID, err)
		}
	}
	return nil
}

func entryParams(e *models.AuditEntry) []any {
	var breakdown *string
	if e.Breakdown != nil {
		if data, err := json.Marshal(e.Breakdown); err == nil {
			s := string(data)
			breakdown = &s
		}
	}
	return []any{
		e.ID, e.RunID, e.Timestamp, e.Source, nullString(e.SourceID), nullString(e.Title),
		string(e.Decision), nullInt(e.CanonicalID), e.Score, nullInt(e.RunnerUpID), nullFloat(e.RunnerUpScore),
		e.Candidates, e.Ambiguous, breakdown, nullString(e.Reason),
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nullFloat(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

const selectColumns = `
	SELECT
		id, run_id, timestamp, source, source_id, title, decision,
		canonical_id, score, runner_up_id, runner_up_score,
		candidates, ambiguous, CAST(breakdown AS VARCHAR) AS breakdown, reason
	FROM merge_audit_log
`

// Get retrieves an entry by ID.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	var data scannedEntry
	if err := row.Scan(data.scanDestinations()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return data.toEntry(), nil
}

// Query retrieves entries matching the filter.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var data scannedEntry
		if err := rows.Scan(data.scanDestinations()...); err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit entry row")
			continue
		}
		entries = append(entries, *data.toEntry())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of entries matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, true)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// Delete removes entries older than the given time.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM merge_audit_log WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit entries: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	if count > 0 {
		logging.Info().Int64("deleted", count).Time("older_than", olderThan).Msg("Deleted old audit entries")
	}
	return count, nil
}

// Stats summarizes the stored entries.
func (s *DuckDBStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := newStats()
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE ambiguous) FROM merge_audit_log",
	).Scan(&stats.TotalEntries, &stats.Ambiguous); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	var err error
	if stats.ByDecision, err = s.countByColumn(ctx, "decision"); err != nil {
		return nil, err
	}
	if stats.BySource, err = s.countByColumn(ctx, "source"); err != nil {
		return nil, err
	}

	var oldest, newest sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM merge_audit_log").Scan(&oldest, &newest); err == nil {
		if oldest.Valid {
			stats.OldestEntry = &oldest.Time
		}
		if newest.Valid {
			stats.NewestEntry = &newest.Time
		}
	}
	return stats, nil
}

// buildQuery constructs the SQL query based on the filter.
func buildQuery(filter QueryFilter, countOnly bool) (string, []any) {
	var args []any
	var conditions []string

	if cond := buildSliceCondition("source", filter.Sources, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := buildSliceCondition("decision", filter.Decisions, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if filter.SourceID != "" {
		conditions = append(conditions, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.CanonicalID != 0 {
		conditions = append(conditions, "canonical_id = ?")
		args = append(args, filter.CanonicalID)
	}
	if filter.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.AmbiguousOnly {
		conditions = append(conditions, "ambiguous")
	}
	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}

	query := selectColumns
	if countOnly {
		query = "SELECT COUNT(*) FROM merge_audit_log"
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if countOnly {
		return query, args
	}

	if filter.OrderDesc {
		query += " ORDER BY timestamp DESC, id DESC"
	} else {
		query += " ORDER BY timestamp ASC, id ASC"
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}
	return query, args
}

// scannedEntry holds raw scanned values from database.
type scannedEntry struct {
	entry         models.AuditEntry
	decision      string
	sourceID      sql.NullString
	title         sql.NullString
	canonicalID   sql.NullInt64
	runnerUpID    sql.NullInt64
	runnerUpScore sql.NullFloat64
	breakdown     sql.NullString
	reason        sql.NullString
}

func (d *scannedEntry) scanDestinations() []any {
	return []any{
		&d.entry.ID,
		&d.entry.RunID,
		&d.entry.Timestamp,
		&d.entry.Source,
		&d.sourceID,
		&d.title,
		&d.decision,
		&d.canonicalID,
		&d.entry.Score,
		&d.runnerUpID,
		&d.runnerUpScore,
		&d.entry.Candidates,
		&d.entry.Ambiguous,
		&d.breakdown,
		&d.reason,
	}
}

func (d *scannedEntry) toEntry() *models.AuditEntry {
	d.entry.Decision = models.Decision(d.decision)
	d.entry.SourceID = d.sourceID.String
	d.entry.Title = d.title.String
	d.entry.CanonicalID = d.canonicalID.Int64
	d.entry.RunnerUpID = d.runnerUpID.Int64
	d.entry.RunnerUpScore = d.runnerUpScore.Float64
	d.entry.Reason = d.reason.String
	if d.breakdown.Valid && d.breakdown.String != "" {
		var bd models.ScoreBreakdown
		if err := json.Unmarshal([]byte(d.breakdown.String), &bd); err != nil {
			logging.Debug().Err(err).Msg("Failed to parse audit breakdown JSON")
		} else {
			d.entry.Breakdown = &bd
		}
	}
	return &d.entry
}
