// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package dedupe

import (
	"reflect"
	"testing"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
)

func testEngine() *MergeEngine {
	return NewMergeEngine(config.DedupeConfig{Threshold: 0.85, AmbiguityDelta: 0.01, MergeWeight: 1})
}

func cand(e *models.CanonicalEntity, score float64) Candidate {
	return Candidate{Entity: e, Breakdown: models.ScoreBreakdown{Title: score, Total: score}}
}

func TestMergeEngine_Decide(t *testing.T) {
	t.Parallel()

	one := testEntity(1, "A", 0)
	two := testEntity(2, "B", 0)
	established := testEntity(3, "C", 0)
	established.ContributingSources[models.SourceKitsu] = "9"

	tests := []struct {
		name      string
		cands     []Candidate
		decision  models.Decision
		targetID  int64
		ambiguous bool
	}{
		{"no candidates", nil, models.DecisionCreate, 0, false},
		{"threshold inclusive", []Candidate{cand(one, 0.85)}, models.DecisionMerge, 1, false},
		{"just below threshold", []Candidate{cand(one, 0.849)}, models.DecisionCreate, 0, false},
		{"highest score wins", []Candidate{cand(one, 0.86), cand(two, 0.95)}, models.DecisionMerge, 2, false},
		{"ambiguous near tie", []Candidate{cand(one, 0.90), cand(two, 0.895)}, models.DecisionMerge, 1, true},
		{"clear winner", []Candidate{cand(one, 0.90), cand(two, 0.88)}, models.DecisionMerge, 1, false},
		{"runner-up below threshold is not ambiguous", []Candidate{cand(one, 0.855), cand(two, 0.849)}, models.DecisionMerge, 1, false},
		{"tie prefers more sources", []Candidate{cand(one, 0.9), cand(established, 0.9)}, models.DecisionMerge, 3, true},
		{"tie prefers lower id", []Candidate{cand(two, 0.9), cand(one, 0.9)}, models.DecisionMerge, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cands := append([]Candidate(nil), tt.cands...)
			out := testEngine().Decide(cands)
			if out.Decision != tt.decision {
				t.Errorf("Decision = %v, want %v", out.Decision, tt.decision)
			}
			if tt.targetID != 0 && (out.Target == nil || out.Target.Entity.CanonicalID != tt.targetID) {
				t.Errorf("Target = %+v, want id %d", out.Target, tt.targetID)
			}
			if out.Ambiguous != tt.ambiguous {
				t.Errorf("Ambiguous = %v, want %v", out.Ambiguous, tt.ambiguous)
			}
			if out.Candidates != len(tt.cands) {
				t.Errorf("Candidates = %d, want %d", out.Candidates, len(tt.cands))
			}
		})
	}
}

func TestCanonicalKey(t *testing.T) {
	t.Parallel()

	if got := CanonicalKey(models.SourceAniList, "16498", 7); got != "AL_16498" {
		t.Errorf("CanonicalKey(anilist) = %q, want AL_16498", got)
	}
	if got := CanonicalKey(models.SourceKitsu, "7442", 7); got != "KITSU_7" {
		t.Errorf("CanonicalKey(kitsu) = %q, want KITSU_7", got)
	}
}

func TestMergeEngine_Merge(t *testing.T) {
	t.Parallel()

	m := testEngine()
	e := m.NewEntity(1, &models.SourceRecord{
		Source:      models.SourceAniList,
		SourceID:    "1",
		Title:       "Cowboy Bebop",
		Tags:        []models.Tag{{Name: "Space", Rank: 70}, {Name: "Noir", Rank: 40}},
		Genres:      []string{"Action"},
		Studios:     []string{"Sunrise"},
		Description: "Short.",
		Score:       86,
		Popularity:  100,
	})
	if e.Confidence != 1 || e.SourceCount() != 1 {
		t.Fatalf("new entity confidence=%v sources=%d, want 1 and 1", e.Confidence, e.SourceCount())
	}

	m.Merge(e, &models.SourceRecord{
		Source:       models.SourceMyAnimeList,
		SourceID:     "1",
		Title:        "Cowboy Bebop",
		TitleAliases: []string{"カウボーイビバップ"},
		Tags:         []models.Tag{{Name: "space", Rank: 90}},
		Genres:       []string{"Sci-Fi", "action"},
		Studios:      []string{"Sunrise"},
		Description:  "A much longer description.",
		Format:       "TV",
		ReleaseYear:  1998,
		Score:        88,
		Popularity:   500,
	}, 0.9)

	wantTags := []models.Tag{{Name: "Noir", Rank: 40}, {Name: "Space", Rank: 90}}
	if !reflect.DeepEqual(e.Tags, wantTags) {
		t.Errorf("Tags = %v, want %v", e.Tags, wantTags)
	}
	if want := []string{"Action", "Sci-Fi"}; !reflect.DeepEqual(e.Genres, want) {
		t.Errorf("Genres = %v, want %v", e.Genres, want)
	}
	if e.Description != "A much longer description." {
		t.Errorf("Description = %q, want the longer one", e.Description)
	}
	if e.Format != "TV" || e.ReleaseYear != 1998 {
		t.Errorf("empty scalars not filled: format=%q year=%d", e.Format, e.ReleaseYear)
	}
	if e.Popularity != 500 {
		t.Errorf("Popularity = %d, want 500", e.Popularity)
	}
	if e.Score != 87 {
		t.Errorf("Score = %v, want 87", e.Score)
	}
	if !reflect.DeepEqual(e.Aliases, []string{"カウボーイビバップ"}) {
		t.Errorf("Aliases = %v", e.Aliases)
	}
	if e.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", e.Confidence)
	}

	m.Merge(e, &models.SourceRecord{
		Source:   models.SourceKitsu,
		SourceID: "1",
		Title:    "Cowboy Bebop",
		Studios:  []string{"Sunrise", "Bandai Visual"},
	}, 0.8)
	if e.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", e.Confidence)
	}
	if len(e.Studios) != 2 {
		t.Errorf("Studios = %v, want the more complete list", e.Studios)
	}
	if e.SourceCount() != 3 || e.MergeEvidence.Merges != 2 {
		t.Errorf("sources=%d merges=%d, want 3 and 2", e.SourceCount(), e.MergeEvidence.Merges)
	}
}

func TestMergeEngine_Refresh(t *testing.T) {
	t.Parallel()

	m := testEngine()
	rec := &models.SourceRecord{Source: models.SourceAniList, SourceID: "5", Title: "Mushishi", Score: 80}
	e := m.NewEntity(1, rec)

	changed := *rec
	changed.Score = 90
	changed.Description = "Ginko travels."
	m.Refresh(e, &changed)

	if e.Score != 90 || e.Description != "Ginko travels." {
		t.Errorf("refresh did not apply fields: score=%v desc=%q", e.Score, e.Description)
	}
	if e.SourceCount() != 1 || e.MergeEvidence.Merges != 0 || e.Confidence != 1 {
		t.Errorf("refresh changed provenance: %+v", e.MergeEvidence)
	}
}
