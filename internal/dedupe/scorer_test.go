// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package dedupe

import (
	"testing"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/titles"
)

var defaultWeights = config.FieldWeights{Title: 0.70, Year: 0.10, Format: 0.05, Tags: 0.15}

func aotAniList() *models.SourceRecord {
	return &models.SourceRecord{
		Source:      models.SourceAniList,
		SourceID:    "16498",
		Title:       "Shingeki no Kyojin",
		ReleaseYear: 2013,
		Tags:        []models.Tag{{Name: "Military", Rank: 90}, {Name: "Survival", Rank: 85}},
		Popularity:  1000,
		Score:       84,
	}
}

func aotKitsu() *models.SourceRecord {
	return &models.SourceRecord{
		Source:      models.SourceKitsu,
		SourceID:    "7442",
		Title:       "Attack on Titan",
		ReleaseYear: 2013,
		Tags:        []models.Tag{{Name: "military"}, {Name: "tragedy"}},
		Popularity:  500,
		Score:       82,
	}
}

func aotHints() *titles.AliasHints {
	return titles.NewAliasHints([][]string{{"Shingeki no Kyojin", "Attack on Titan"}})
}

func TestScorer_AliasHint(t *testing.T) {
	t.Parallel()

	s := NewScorer(defaultWeights, nil, aotHints())
	bd := s.Score(RecordComparable(aotAniList()), RecordComparable(aotKitsu()))

	if bd.Title != 1 {
		t.Errorf("Title = %v, want 1", bd.Title)
	}
	if bd.Year == nil || *bd.Year != 1 {
		t.Errorf("Year = %v, want 1", bd.Year)
	}
	if bd.Format != nil {
		t.Errorf("Format = %v, want nil (absent on both sides)", *bd.Format)
	}
	if bd.Tags == nil || !approx(*bd.Tags, 1.0/3) {
		t.Errorf("Tags = %v, want 1/3", bd.Tags)
	}
	// (0.70 + 0.10 + 0.15/3) / 0.95
	if bd.Total != 0.894737 {
		t.Errorf("Total = %v, want 0.894737", bd.Total)
	}
}

func TestScorer_NoHintBelowThreshold(t *testing.T) {
	t.Parallel()

	s := NewScorer(defaultWeights, nil, nil)
	bd := s.Score(RecordComparable(aotAniList()), RecordComparable(aotKitsu()))
	if bd.Total >= 0.85 {
		t.Errorf("Total = %v, want < 0.85 without alias hint", bd.Total)
	}
}

func TestScorer_FieldRules(t *testing.T) {
	t.Parallel()

	s := NewScorer(defaultWeights, nil, nil)

	tests := []struct {
		name  string
		a, b  *models.SourceRecord
		check func(t *testing.T, bd models.ScoreBreakdown)
	}{
		{
			name: "title only renormalizes",
			a:    &models.SourceRecord{Title: "Monster"},
			b:    &models.SourceRecord{Title: "MONSTER"},
			check: func(t *testing.T, bd models.ScoreBreakdown) {
				if bd.Total != 1 || bd.Year != nil || bd.Tags != nil {
					t.Errorf("breakdown = %+v, want title-only total 1", bd)
				}
			},
		},
		{
			name: "adjacent year scores half",
			a:    &models.SourceRecord{Title: "Monster", ReleaseYear: 2004},
			b:    &models.SourceRecord{Title: "Monster", ReleaseYear: 2005},
			check: func(t *testing.T, bd models.ScoreBreakdown) {
				if bd.Year == nil || *bd.Year != 0.5 {
					t.Errorf("Year = %v, want 0.5", bd.Year)
				}
				if bd.Total != round6((0.70+0.05)/0.80) {
					t.Errorf("Total = %v", bd.Total)
				}
			},
		},
		{
			name: "distant year scores zero",
			a:    &models.SourceRecord{Title: "Monster", ReleaseYear: 2004},
			b:    &models.SourceRecord{Title: "Monster", ReleaseYear: 2010},
			check: func(t *testing.T, bd models.ScoreBreakdown) {
				if bd.Year == nil || *bd.Year != 0 {
					t.Errorf("Year = %v, want 0", bd.Year)
				}
			},
		},
		{
			name: "format mismatch",
			a:    &models.SourceRecord{Title: "Akira", Format: "MOVIE"},
			b:    &models.SourceRecord{Title: "Akira", Format: "TV"},
			check: func(t *testing.T, bd models.ScoreBreakdown) {
				if bd.Format == nil || *bd.Format != 0 {
					t.Errorf("Format = %v, want 0", bd.Format)
				}
				if bd.Total != round6(0.70/0.75) {
					t.Errorf("Total = %v, want %v", bd.Total, round6(0.70/0.75))
				}
			},
		},
		{
			name: "genres count as tags",
			a:    &models.SourceRecord{Title: "Akira", Genres: []string{"Action"}},
			b:    &models.SourceRecord{Title: "Akira", Tags: []models.Tag{{Name: "action"}}},
			check: func(t *testing.T, bd models.ScoreBreakdown) {
				if bd.Tags == nil || *bd.Tags != 1 {
					t.Errorf("Tags = %v, want 1", bd.Tags)
				}
			},
		},
		{
			name: "best alias pair wins",
			a:    &models.SourceRecord{Title: "Kimi no Na wa", TitleAliases: []string{"Your Name."}},
			b:    &models.SourceRecord{Title: "Your Name"},
			check: func(t *testing.T, bd models.ScoreBreakdown) {
				if bd.Title != 1 {
					t.Errorf("Title = %v, want 1", bd.Title)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.check(t, s.Score(RecordComparable(tt.a), RecordComparable(tt.b)))
		})
	}
}

func TestScorer_Symmetric(t *testing.T) {
	t.Parallel()

	records := []*models.SourceRecord{
		aotAniList(),
		aotKitsu(),
		{Title: "Shingeki no Kyojin Season 2", ReleaseYear: 2017, Format: "TV"},
		{Title: "Attack on Titan: Junior High", ReleaseYear: 2015, Format: "TV", Genres: []string{"Comedy"}},
	}
	for name, strategy := range Strategies {
		s := NewScorer(defaultWeights, strategy, aotHints())
		for i := range records {
			for j := range records {
				a, b := RecordComparable(records[i]), RecordComparable(records[j])
				ab, ba := s.Score(a, b).Total, s.Score(b, a).Total
				if ab != ba {
					t.Errorf("%s: Score(%d,%d)=%v != Score(%d,%d)=%v", name, i, j, ab, j, i, ba)
				}
			}
		}
	}
}

func TestJaccard(t *testing.T) {
	t.Parallel()

	set := func(xs ...string) map[string]struct{} {
		m := make(map[string]struct{})
		for _, x := range xs {
			m[x] = struct{}{}
		}
		return m
	}
	if got := Jaccard(set(), set()); got != 0 {
		t.Errorf("Jaccard(empty) = %v, want 0", got)
	}
	if got := Jaccard(set("a", "b"), set("b", "c")); !approx(got, 1.0/3) {
		t.Errorf("Jaccard = %v, want 1/3", got)
	}
}
