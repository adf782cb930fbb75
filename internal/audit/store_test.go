// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEntries() []models.AuditEntry {
	return []models.AuditEntry{
		{ID: "e1", RunID: "run-1", Timestamp: baseTime, Source: "anilist", SourceID: "1", Title: "Cowboy Bebop", Decision: models.DecisionCreate, CanonicalID: 1, Score: 1},
		{ID: "e2", RunID: "run-1", Timestamp: baseTime.Add(time.Minute), Source: "kitsu", SourceID: "7", Title: "Cowboy Bebop", Decision: models.DecisionMerge, CanonicalID: 1, Score: 0.93, RunnerUpID: 4, RunnerUpScore: 0.91, Candidates: 2, Ambiguous: true},
		{ID: "e3", RunID: "run-2", Timestamp: baseTime.Add(2 * time.Minute), Source: "myanimelist", SourceID: "9", Title: "", Decision: models.DecisionReject, Reason: "missing title"},
		{ID: "e4", RunID: "run-2", Timestamp: baseTime.Add(3 * time.Minute), Source: "anilist", SourceID: "1", Title: "Cowboy Bebop", Decision: models.DecisionRefresh, CanonicalID: 1, Score: 1},
	}
}

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(100)
	if err := s.Save(context.Background(), testEntries()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return s
}

func TestMemoryStore_Get(t *testing.T) {
	t.Parallel()
	s := seededStore(t)

	got, err := s.Get(context.Background(), "e2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Decision != models.DecisionMerge || got.RunnerUpID != 4 {
		t.Errorf("Get() = %+v, want merge entry with runner-up 4", got)
	}

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrEntryNotFound", err)
	}
}

func TestMemoryStore_Query(t *testing.T) {
	t.Parallel()
	s := seededStore(t)
	start := baseTime.Add(90 * time.Second)

	tests := []struct {
		name    string
		filter  QueryFilter
		wantIDs []string
	}{
		{"all ascending", QueryFilter{}, []string{"e1", "e2", "e3", "e4"}},
		{"all descending", QueryFilter{OrderDesc: true}, []string{"e4", "e3", "e2", "e1"}},
		{"by source", QueryFilter{Sources: []string{"anilist"}}, []string{"e1", "e4"}},
		{"by decision", QueryFilter{Decisions: []models.Decision{models.DecisionReject, models.DecisionMerge}}, []string{"e2", "e3"}},
		{"by run", QueryFilter{RunID: "run-2"}, []string{"e3", "e4"}},
		{"by canonical", QueryFilter{CanonicalID: 1}, []string{"e1", "e2", "e4"}},
		{"by source id", QueryFilter{SourceID: "7"}, []string{"e2"}},
		{"ambiguous only", QueryFilter{AmbiguousOnly: true}, []string{"e2"}},
		{"start time", QueryFilter{StartTime: &start}, []string{"e3", "e4"}},
		{"end time", QueryFilter{EndTime: &start}, []string{"e1", "e2"}},
		{"limit", QueryFilter{Limit: 2}, []string{"e1", "e2"}},
		{"offset and limit", QueryFilter{Offset: 1, Limit: 2, OrderDesc: true}, []string{"e3", "e2"}},
		{"no match", QueryFilter{Sources: []string{"unknown"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.Query(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			var ids []string
			for i := range got {
				ids = append(ids, got[i].ID)
			}
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("Query() ids = %v, want %v", ids, tt.wantIDs)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Errorf("Query() ids = %v, want %v", ids, tt.wantIDs)
					break
				}
			}
		})
	}
}

func TestMemoryStore_CountDeleteStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := seededStore(t)

	n, err := s.Count(ctx, QueryFilter{Sources: []string{"anilist"}})
	if err != nil || n != 2 {
		t.Errorf("Count() = %d, %v, want 2", n, err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalEntries != 4 || stats.Ambiguous != 1 {
		t.Errorf("Stats() total=%d ambiguous=%d, want 4 and 1", stats.TotalEntries, stats.Ambiguous)
	}
	if stats.ByDecision["merge"] != 1 || stats.BySource["anilist"] != 2 {
		t.Errorf("Stats() breakdown = %v %v", stats.ByDecision, stats.BySource)
	}
	if !stats.OldestEntry.Equal(baseTime) || !stats.NewestEntry.Equal(baseTime.Add(3*time.Minute)) {
		t.Errorf("Stats() range = %v..%v", stats.OldestEntry, stats.NewestEntry)
	}

	deleted, err := s.Delete(ctx, baseTime.Add(2*time.Minute))
	if err != nil || deleted != 2 {
		t.Errorf("Delete() = %d, %v, want 2", deleted, err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", s.Len())
	}
}

func TestMemoryStore_Trim(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(10)
	entries := make([]models.AuditEntry, 15)
	for i := range entries {
		entries[i] = models.AuditEntry{ID: string(rune('a' + i)), Timestamp: baseTime}
	}
	if err := s.Save(context.Background(), entries); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if s.Len() > 10 {
		t.Errorf("Len() = %d, want <= 10", s.Len())
	}
	if _, err := s.Get(context.Background(), "o"); err != nil {
		t.Errorf("newest entry missing after trim: %v", err)
	}
}

func TestExportJSON(t *testing.T) {
	t.Parallel()

	data, err := ExportJSON(nil)
	if err != nil || string(data) != "[]" {
		t.Errorf("ExportJSON(nil) = %s, %v, want []", data, err)
	}

	data, err = ExportJSON(testEntries()[:1])
	if err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}
	var back []models.AuditEntry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(back) != 1 || back[0].Title != "Cowboy Bebop" {
		t.Errorf("round trip = %+v", back)
	}
}

func TestRecorder_RecordAndClose(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(100)
	r := NewRecorder(s, config.AuditConfig{BufferSize: 4})

	r.Record(testEntries()[:2])
	r.Record(nil)
	r.Record(testEntries()[2:])
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if s.Len() != 4 {
		t.Errorf("Len() = %d, want 4", s.Len())
	}
	if r.Store() != Store(s) {
		t.Error("Store() did not return the backing store")
	}
}

func TestRecorder_Cleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name      string
		retention int
		now       time.Time
		want      int64
	}{
		{"disabled", 0, baseTime.AddDate(1, 0, 0), 0},
		{"nothing expired", 30, baseTime.AddDate(0, 0, 1), 0},
		{"all expired", 30, baseTime.AddDate(0, 0, 31), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := seededStore(t)
			r := NewRecorder(s, config.AuditConfig{RetentionDays: tt.retention})
			defer r.Close()

			got, err := r.Cleanup(ctx, tt.now)
			if err != nil {
				t.Fatalf("Cleanup() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Cleanup() = %d, want %d", got, tt.want)
			}
		})
	}
}
