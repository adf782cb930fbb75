// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package similarity

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/tomtom215/animedex/internal/models"
)

var tagPool = []string{"Military", "Mecha", "Space", "Romance", "School", "Magic", "Samurai", "Idol", "Sports", "Horror", "Time Travel", "Cooking"}

// syntheticCatalog builds n entities whose tags overlap in a regular pattern.
func syntheticCatalog(n int) []*models.CanonicalEntity {
	out := make([]*models.CanonicalEntity, n)
	for i := 0; i < n; i++ {
		tags := []models.Tag{
			{Name: tagPool[i%len(tagPool)], Rank: 90},
			{Name: tagPool[(i/3)%len(tagPool)], Rank: 55},
			{Name: tagPool[(i*7)%len(tagPool)], Rank: 20},
		}
		out[i] = &models.CanonicalEntity{
			CanonicalID: int64(i + 1),
			Title:       fmt.Sprintf("Title %d", i+1),
			Tags:        tags,
			Genres:      []string{[]string{"Action", "Drama", "Comedy"}[i%3]},
			Studios:     []string{fmt.Sprintf("Studio %d", i%9)},
			ReleaseYear: 1990 + i%30,
		}
	}
	return out
}

func edgesBySource(edges []models.SimilarityEdge) map[int64][]models.SimilarityEdge {
	out := make(map[int64][]models.SimilarityEdge)
	for _, e := range edges {
		out[e.Source] = append(out[e.Source], e)
	}
	return out
}

func TestEngine_ComputeInvariants(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.TopK = 5
	engine := NewEngine(cfg)

	entities := syntheticCatalog(150)
	edges, err := engine.Compute(context.Background(), entities, 7)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if len(edges) == 0 {
		t.Fatal("Compute() returned no edges")
	}

	score := make(map[[2]int64]float64, len(edges))
	for source, list := range edgesBySource(edges) {
		if len(list) > cfg.TopK {
			t.Errorf("entity %d has %d edges, want at most %d", source, len(list), cfg.TopK)
		}
		for i, e := range list {
			if e.Source == e.Target {
				t.Errorf("self edge on %d", e.Source)
			}
			if e.Score < cfg.MinScore || e.Score > 1 {
				t.Errorf("edge %d->%d score = %v, out of range", e.Source, e.Target, e.Score)
			}
			if e.Rank != i+1 {
				t.Errorf("edge %d->%d rank = %d, want %d", e.Source, e.Target, e.Rank, i+1)
			}
			if e.Method != MethodTFIDFCosine || e.SnapshotVersion != 7 {
				t.Errorf("edge tags = %q/%d", e.Method, e.SnapshotVersion)
			}
			if i > 0 {
				prev := list[i-1]
				if prev.Score < e.Score || (prev.Score == e.Score && prev.Target > e.Target) {
					t.Errorf("edges of %d out of order at rank %d", source, e.Rank)
				}
			}
			score[[2]int64{e.Source, e.Target}] = e.Score
		}
	}

	// Cosine is symmetric whenever both directions survive the top-K cut.
	for pair, s := range score {
		if back, ok := score[[2]int64{pair[1], pair[0]}]; ok && back != s {
			t.Errorf("score(%d,%d) = %v but score(%d,%d) = %v", pair[0], pair[1], s, pair[1], pair[0], back)
		}
	}
}

func TestEngine_DeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	entities := syntheticCatalog(200)

	cfg := testConfig()
	cfg.Workers = 1
	serial, err := NewEngine(cfg).Compute(context.Background(), entities, 1)
	if err != nil {
		t.Fatalf("Compute(workers=1) error = %v", err)
	}

	cfg.Workers = 8
	// Reverse the input; the engine orders by canonical id itself.
	reversed := make([]*models.CanonicalEntity, len(entities))
	for i, e := range entities {
		reversed[len(entities)-1-i] = e
	}
	parallel, err := NewEngine(cfg).Compute(context.Background(), reversed, 1)
	if err != nil {
		t.Fatalf("Compute(workers=8) error = %v", err)
	}

	if !reflect.DeepEqual(serial, parallel) {
		t.Error("Compute() output depends on worker count or input order")
	}
}

func TestEngine_SharedFeaturesRankFirst(t *testing.T) {
	t.Parallel()

	entities := []*models.CanonicalEntity{
		{CanonicalID: 1, Tags: []models.Tag{{Name: "Mecha", Rank: 95}, {Name: "Space", Rank: 80}}, Studios: []string{"Sunrise"}},
		{CanonicalID: 2, Tags: []models.Tag{{Name: "Mecha", Rank: 90}, {Name: "Space", Rank: 85}}, Studios: []string{"Sunrise"}},
		{CanonicalID: 3, Tags: []models.Tag{{Name: "Mecha", Rank: 30}}, Studios: []string{"Bones"}},
		{CanonicalID: 4, Tags: []models.Tag{{Name: "Cooking", Rank: 90}}},
	}

	edges, err := NewEngine(testConfig()).Compute(context.Background(), entities, 1)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	by := edgesBySource(edges)

	if got := by[1]; len(got) != 2 || got[0].Target != 2 || got[1].Target != 3 {
		t.Errorf("neighbors of 1 = %+v, want 2 then 3", got)
	}
	if got := by[4]; len(got) != 0 {
		t.Errorf("entity without shared terms has neighbors %+v", got)
	}
	if by[1][0].Score <= by[1][1].Score {
		t.Errorf("shared studio and tags did not outrank a single weak tag: %v <= %v", by[1][0].Score, by[1][1].Score)
	}
}

func TestEngine_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(testConfig()).Compute(ctx, syntheticCatalog(10), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Compute() error = %v, want context.Canceled", err)
	}
}
