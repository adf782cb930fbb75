// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package quality

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/database"
)

var checkTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB", Threads: 2})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func exec(t *testing.T, db *database.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Conn().ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func insertEntity(t *testing.T, db *database.DB, id int64, key string, score, confidence float64) {
	t.Helper()
	exec(t, db, `INSERT INTO canonical_entities
		(canonical_id, version, entity_key, title, score, popularity, confidence, source_count,
		 data, fingerprint, snapshot_version, is_current, valid_from)
		VALUES (?, 1, ?, 'Title', ?, 100, ?, 1, '{}', 'fp', 1, true, ?)`,
		id, key, score, confidence, checkTime)
}

func resultsByName(r *Report) map[string]Result {
	out := make(map[string]Result, len(r.Checks))
	for _, c := range r.Checks {
		out[c.Name] = c
	}
	return out
}

func TestChecker_CleanWarehouse(t *testing.T) {
	db := setupTestDB(t)
	insertEntity(t, db, 1, "attack on titan|2013|tv", 84, 1)
	insertEntity(t, db, 2, "cowboy bebop|1998|tv", 86, 0.9)

	checker := NewChecker(db.Conn(), db, StandardChecks()...)
	checker.now = func() time.Time { return checkTime }

	report, err := checker.Run(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Total != len(StandardChecks()) || report.Passed != report.Total {
		for _, c := range report.Checks {
			if c.Status != StatusPassed {
				t.Logf("%s: %s %s", c.Name, c.Status, c.Message)
			}
		}
		t.Fatalf("Passed = %d/%d, want all", report.Passed, report.Total)
	}
	if report.PassRate != 100 {
		t.Errorf("PassRate = %v, want 100", report.PassRate)
	}
	if !report.Healthy() {
		t.Error("Healthy() = false, want true")
	}

	stored, err := db.QualityResults(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("QualityResults() error = %v", err)
	}
	if len(stored) != report.Total {
		t.Errorf("stored results = %d, want %d", len(stored), report.Total)
	}
}

func TestChecker_DetectsViolations(t *testing.T) {
	db := setupTestDB(t)
	insertEntity(t, db, 1, "attack on titan|2013|tv", 150, 1)
	insertEntity(t, db, 2, "attack on titan|2013|tv", 80, 1)
	exec(t, db, `INSERT INTO similarity_edges VALUES (1, 'tfidf_cosine', 1, 1, 1.0, 1)`)
	exec(t, db, `INSERT INTO entity_sources (source, source_id, canonical_id, canonical_key, confidence, updated_at)
		VALUES ('anilist', '99', 42, 'ghost', 1, ?)`, checkTime)

	report, err := NewChecker(db.Conn(), db, StandardChecks()...).Run(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byName := resultsByName(report)
	tests := []struct {
		check      string
		status     string
		violations int64
	}{
		{"canonical_entities.score_range", StatusFailed, 1},
		{"no_duplicate_current_key", StatusFailed, 1},
		{"no_self_similarity", StatusFailed, 1},
		{"entity_sources.canonical_id_ref_integrity", StatusFailed, 1},
		{"canonical_entities.canonical_id_unique", StatusPassed, 0},
		{"canonical_entities.confidence_range", StatusPassed, 0},
	}
	for _, tt := range tests {
		got, ok := byName[tt.check]
		if !ok {
			t.Errorf("check %s missing from report", tt.check)
			continue
		}
		if got.Status != tt.status || got.Violations != tt.violations {
			t.Errorf("%s = %s/%d, want %s/%d", tt.check, got.Status, got.Violations, tt.status, tt.violations)
		}
	}

	if report.CriticalFailures != 4 {
		t.Errorf("CriticalFailures = %d, want 4", report.CriticalFailures)
	}
	if report.Healthy() {
		t.Error("Healthy() = true, want false")
	}
	wantRate := 100 * float64(report.Total-4) / float64(report.Total)
	if report.PassRate != wantRate {
		t.Errorf("PassRate = %v, want %v", report.PassRate, wantRate)
	}
}

func TestChecker_ErroringCheckContinues(t *testing.T) {
	db := setupTestDB(t)

	checker := NewChecker(db.Conn(), nil,
		Custom{CheckName: "broken", Query: "SELECT * FROM no_such_table"},
		NotNull{Table: "canonical_entities", Column: "title"},
		NotNull{Table: "canonical_entities; DROP TABLE x", Column: "title"},
	)
	report, err := checker.Run(context.Background(), "run-3")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{StatusError, StatusPassed, StatusError}
	for i, c := range report.Checks {
		if c.Status != want[i] {
			t.Errorf("Checks[%d] (%s) status = %s, want %s", i, c.Name, c.Status, want[i])
		}
	}
	if report.Failed != 2 || report.Passed != 1 {
		t.Errorf("Passed/Failed = %d/%d, want 1/2", report.Passed, report.Failed)
	}
	if report.Checks[0].Severity != SeverityWarning {
		t.Errorf("custom check severity = %s, want warning", report.Checks[0].Severity)
	}
}

func TestChecker_Canceled(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChecker(db.Conn(), db, StandardChecks()...).Run(ctx, "run-4")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestCheckNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		check Check
		name  string
		sev   Severity
	}{
		{NotNull{Table: "t", Column: "c"}, "t.c_not_null", SeverityCritical},
		{Range{Table: "t", Column: "c", Level: SeverityWarning}, "t.c_range", SeverityWarning},
		{Unique{Table: "t", Columns: []string{"a", "b"}}, "t.a_b_unique", SeverityCritical},
		{Referential{Child: "c", ForeignKey: "fk", Parent: "p", PrimaryKey: "pk"}, "c.fk_ref_integrity", SeverityCritical},
		{Custom{CheckName: "x"}, "x", SeverityWarning},
	}

	for _, tt := range tests {
		if got := tt.check.Name(); got != tt.name {
			t.Errorf("Name() = %q, want %q", got, tt.name)
		}
		if got := tt.check.Severity(); got != tt.sev {
			t.Errorf("%s Severity() = %q, want %q", tt.name, got, tt.sev)
		}
	}
}
