// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

//go:build integration

package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/animedex/internal/models"
)

func setupDuckDBStore(t *testing.T) *DuckDBStore {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := NewDuckDBStore(db)
	if err := s.CreateTable(context.Background()); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	return s
}

func TestDuckDBStore_SaveGetQuery(t *testing.T) {
	ctx := context.Background()
	s := setupDuckDBStore(t)

	if err := s.Save(ctx, testEntries()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Get(ctx, "e2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Ambiguous || got.RunnerUpID != 4 || got.Candidates != 2 {
		t.Errorf("Get() = %+v", got)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrEntryNotFound", err)
	}

	rejects, err := s.Query(ctx, QueryFilter{Decisions: []models.Decision{models.DecisionReject}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rejects) != 1 || rejects[0].Reason != "missing title" {
		t.Errorf("Query(reject) = %+v", rejects)
	}

	desc, err := s.Query(ctx, QueryFilter{OrderDesc: true, Limit: 2})
	if err != nil {
		t.Fatalf("Query(desc) error = %v", err)
	}
	if len(desc) != 2 || desc[0].ID != "e4" {
		t.Errorf("Query(desc) first = %v, want e4", desc)
	}

	n, err := s.Count(ctx, QueryFilter{RunID: "run-1"})
	if err != nil || n != 2 {
		t.Errorf("Count(run-1) = %d, %v, want 2", n, err)
	}
}

func TestDuckDBStore_SaveTxAndStats(t *testing.T) {
	ctx := context.Background()
	s := setupDuckDBStore(t)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := SaveTx(ctx, tx, testEntries()); err != nil {
		t.Fatalf("SaveTx() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if n, _ := s.Count(ctx, QueryFilter{}); n != 0 {
		t.Fatalf("Count() after rollback = %d, want 0", n)
	}

	if err := s.Save(ctx, testEntries()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalEntries != 4 || stats.Ambiguous != 1 || stats.BySource["anilist"] != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	deleted, err := s.Delete(ctx, baseTime.Add(2*time.Minute))
	if err != nil || deleted != 2 {
		t.Errorf("Delete() = %d, %v, want 2", deleted, err)
	}
}
