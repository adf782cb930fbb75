// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package models

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSourceRecord_Key(t *testing.T) {
	t.Parallel()

	r := &SourceRecord{Source: SourceAniList, SourceID: "16498"}
	if got := r.Key(); got != "anilist#16498" {
		t.Errorf("Key() = %q, want %q", got, "anilist#16498")
	}
}

func TestSourceRecord_TitleVariants(t *testing.T) {
	t.Parallel()

	r := &SourceRecord{
		Title:        "Shingeki no Kyojin",
		TitleAliases: []string{"Attack on Titan", "", "Shingeki no Kyojin", "  ", "進撃の巨人"},
	}
	got := r.TitleVariants()
	want := []string{"Shingeki no Kyojin", "Attack on Titan", "進撃の巨人"}
	if len(got) != len(want) {
		t.Fatalf("TitleVariants() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TitleVariants()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSourceRecord_ContentHash(t *testing.T) {
	t.Parallel()

	a := &SourceRecord{Source: "kitsu", SourceID: "7442", Title: "Attack on Titan", ExtractedAt: time.Now()}
	b := *a
	b.ExtractedAt = a.ExtractedAt.Add(time.Hour)

	if a.ContentHash() == "" {
		t.Fatal("ContentHash() returned empty string")
	}
	if a.ContentHash() != b.ContentHash() {
		t.Error("ContentHash() should ignore ExtractedAt")
	}

	b.Description = "changed"
	if a.ContentHash() == b.ContentHash() {
		t.Error("ContentHash() should change when content changes")
	}
}

func TestCanonicalEntity_CloneIsDeep(t *testing.T) {
	t.Parallel()

	e := &CanonicalEntity{
		CanonicalID:         1,
		Title:               "Attack on Titan",
		Tags:                []Tag{{Name: "military", Rank: 90}},
		ContributingSources: map[string]string{"anilist": "16498"},
	}
	c := e.Clone()
	c.Tags[0].Name = "changed"
	c.ContributingSources["kitsu"] = "7442"

	if e.Tags[0].Name != "military" {
		t.Error("Clone() shares the tag slice with the original")
	}
	if len(e.ContributingSources) != 1 {
		t.Error("Clone() shares the source map with the original")
	}
	if got := c.SourceKeys(); len(got) != 2 || got[0] != "anilist#16498" || got[1] != "kitsu#7442" {
		t.Errorf("SourceKeys() = %v", got)
	}
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"malformed", NewMalformedRecordError("mal", "1", nil, "title"), ErrMalformedRecord},
		{"wrapped malformed", fmt.Errorf("ingest: %w", NewMalformedRecordError("mal", "1", nil)), ErrMalformedRecord},
		{"training", &TrainingFailureError{Reason: "insufficient interactions"}, ErrTrainingFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.target)
			}
		})
	}
}

func TestMalformedRecordError_Message(t *testing.T) {
	t.Parallel()

	err := NewMalformedRecordError("anilist", "42", errors.New("boom"), "title", "source_id")
	want := "malformed record anilist#42: invalid fields [title, source_id]: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
