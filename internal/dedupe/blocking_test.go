// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package dedupe

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
)

var defaultBlocking = config.BlockingConfig{
	PrefixLength:   5,
	MinTokenLength: 3,
	MaxCandidates:  50,
	YearFallback:   true,
	YearBucket:     1,
}

func testEntity(id int64, title string, year int, tags ...string) *models.CanonicalEntity {
	e := &models.CanonicalEntity{
		CanonicalID:         id,
		Title:               title,
		ReleaseYear:         year,
		ContributingSources: map[string]string{models.SourceAniList: strconv.FormatInt(id, 10)},
		Confidence:          1,
		IsCurrent:           true,
		Version:             1,
	}
	for _, tag := range tags {
		e.Tags = append(e.Tags, models.Tag{Name: tag})
	}
	return e
}

func TestIndex_Keys(t *testing.T) {
	t.Parallel()

	ix := NewIndex(defaultBlocking, aotHints())
	got := ix.Keys(RecordComparable(&models.SourceRecord{Title: "Shingeki no Kyojin"}))
	want := []string{"a:attack on titan", "p:shing", "t:kyojin", "t:shingeki"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestIndex_Candidates(t *testing.T) {
	t.Parallel()

	build := func(cfg config.BlockingConfig) *Index {
		ix := NewIndex(cfg, nil)
		ix.Add(testEntity(1, "Naruto", 2002))
		ix.Add(testEntity(2, "Naruto Shippuden", 2007))
		ix.Add(testEntity(3, "Bleach", 2004, "shinigami"))
		ix.Add(testEntity(4, "Monster", 2004, "thriller"))
		return ix
	}
	noFallback := defaultBlocking
	noFallback.YearFallback = false
	capped := defaultBlocking
	capped.MaxCandidates = 1

	tests := []struct {
		name string
		cfg  config.BlockingConfig
		rec  *models.SourceRecord
		want []int64
	}{
		{"shared keys ranked by count then id", defaultBlocking, &models.SourceRecord{Title: "Naruto"}, []int64{1, 2}},
		{"more shared keys rank first", defaultBlocking, &models.SourceRecord{Title: "Naruto Shippuden"}, []int64{2, 1}},
		{"capped", capped, &models.SourceRecord{Title: "Naruto"}, []int64{1}},
		{
			"year fallback ranked by tag overlap",
			defaultBlocking,
			&models.SourceRecord{Title: "Tengen Toppa", ReleaseYear: 2004, Tags: []models.Tag{{Name: "Thriller"}}},
			[]int64{4, 3},
		},
		{"fallback disabled", noFallback, &models.SourceRecord{Title: "Tengen Toppa", ReleaseYear: 2004}, nil},
		{"no year no keys", defaultBlocking, &models.SourceRecord{Title: "Tengen Toppa"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := build(tt.cfg).Candidates(RecordComparable(tt.rec))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Candidates() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIndex_AddReplacesAndRemove(t *testing.T) {
	t.Parallel()

	ix := NewIndex(defaultBlocking, nil)
	e := testEntity(1, "Naruto", 2002)
	ix.Add(e)

	renamed := e.Clone()
	renamed.Title = "Bleach"
	ix.Add(renamed)

	if ix.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ix.Len())
	}
	if got := ix.Candidates(RecordComparable(&models.SourceRecord{Title: "Naruto"})); len(got) != 0 {
		t.Errorf("stale keys still indexed: %v", got)
	}
	if got := ix.Candidates(RecordComparable(&models.SourceRecord{Title: "Bleach"})); !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("Candidates(Bleach) = %v, want [1]", got)
	}

	ix.Remove(1)
	if ix.Len() != 0 {
		t.Errorf("Len() after Remove = %d, want 0", ix.Len())
	}
	if _, ok := ix.Get(1); ok {
		t.Error("Get() found removed entity")
	}
}

func TestMatcher_SkipsSameSource(t *testing.T) {
	t.Parallel()

	ix := NewIndex(defaultBlocking, nil)
	ix.Add(testEntity(1, "Naruto", 2002))
	m := NewMatcher(ix, NewScorer(defaultWeights, nil, nil))

	comp := RecordComparable(&models.SourceRecord{Title: "Naruto", ReleaseYear: 2002})
	if got := m.Match(comp, models.SourceAniList); len(got) != 0 {
		t.Errorf("Match(same source) = %d candidates, want 0", len(got))
	}
	got := m.Match(comp, models.SourceKitsu)
	if len(got) != 1 || got[0].Score() != 1 {
		t.Errorf("Match(other source) = %+v, want one candidate scoring 1", got)
	}
}

func TestMatcher_SameSourceDoesNotUseCap(t *testing.T) {
	t.Parallel()

	cfg := defaultBlocking
	cfg.MaxCandidates = 2
	ix := NewIndex(cfg, nil)
	// 1 and 2 share more keys with the record but already carry a Kitsu id.
	for _, e := range []*models.CanonicalEntity{
		testEntity(1, "Naruto Shippuden", 2007),
		testEntity(2, "Naruto Shippuden Movie", 2007),
	} {
		e.ContributingSources[models.SourceKitsu] = strconv.FormatInt(e.CanonicalID, 10)
		ix.Add(e)
	}
	ix.Add(testEntity(3, "Naruto", 2002))
	comp := RecordComparable(&models.SourceRecord{Title: "Naruto Shippuden", ReleaseYear: 2007})

	if got := ix.Candidates(comp); !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Fatalf("Candidates() = %v, want [1 2]", got)
	}
	if got := ix.CandidatesExcluding(comp, models.SourceKitsu); !reflect.DeepEqual(got, []int64{3}) {
		t.Errorf("CandidatesExcluding(kitsu) = %v, want [3]", got)
	}

	m := NewMatcher(ix, NewScorer(defaultWeights, nil, nil))
	got := m.Match(comp, models.SourceKitsu)
	if len(got) != 1 || got[0].Entity.CanonicalID != 3 {
		t.Errorf("Match(kitsu) = %+v, want only entity 3", got)
	}
}
