// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package query

import (
	"testing"
	"time"
)

func TestWhereBuilder_Empty(t *testing.T) {
	t.Parallel()
	wb := NewWhereBuilder()

	if !wb.IsEmpty() {
		t.Error("Expected new builder to be empty")
	}
	if wb.Count() != 0 {
		t.Errorf("Count() = %d, want 0", wb.Count())
	}

	whereClause, args := wb.Build()
	if whereClause != "1=1" {
		t.Errorf("Build() = %q, want 1=1", whereClause)
	}
	if len(args) != 0 {
		t.Errorf("len(args) = %d, want 0", len(args))
	}
}

func TestWhereBuilder_Clauses(t *testing.T) {
	t.Parallel()
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		build    func(wb *WhereBuilder)
		want     string
		wantArgs int
	}{
		{
			name:     "in strings",
			build:    func(wb *WhereBuilder) { wb.AddIn("format", []string{"TV", "MOVIE"}) },
			want:     "format IN (?, ?)",
			wantArgs: 2,
		},
		{
			name:     "empty in skipped",
			build:    func(wb *WhereBuilder) { wb.AddIn("format", nil) },
			want:     "1=1",
			wantArgs: 0,
		},
		{
			name:     "in ids",
			build:    func(wb *WhereBuilder) { wb.AddInt64In("canonical_id", []int64{1, 2, 3}) },
			want:     "canonical_id IN (?, ?, ?)",
			wantArgs: 3,
		},
		{
			name:     "time range start only",
			build:    func(wb *WhereBuilder) { wb.AddTimeRange("rated_at", &since, nil) },
			want:     "rated_at >= ?",
			wantArgs: 1,
		},
		{
			name:     "int range both",
			build:    func(wb *WhereBuilder) { wb.AddIntRange("release_year", 1990, 1999) },
			want:     "release_year >= ? AND release_year <= ?",
			wantArgs: 2,
		},
		{
			name: "chained",
			build: func(wb *WhereBuilder) {
				wb.AddClause("is_current").AddIn("format", []string{"OVA"}).AddClause("score >= ?", 80.0)
			},
			want:     "is_current AND format IN (?) AND score >= ?",
			wantArgs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			wb := NewWhereBuilder()
			tt.build(wb)
			got, args := wb.Build()
			if got != tt.want {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestWhereBuilder_BuildWithPrefix(t *testing.T) {
	t.Parallel()
	wb := NewWhereBuilder().AddClause("user_id = ?", "u1")

	got, args := wb.BuildWithPrefix()
	if got != "WHERE user_id = ?" {
		t.Errorf("BuildWithPrefix() = %q", got)
	}
	if len(args) != 1 || args[0] != "u1" {
		t.Errorf("args = %v, want [u1]", args)
	}
	if wb.IsEmpty() || wb.Count() != 1 {
		t.Errorf("Count() = %d, want 1", wb.Count())
	}
}
