// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package similarity

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
)

// MethodTFIDFCosine is the method tag of edges produced by Engine.
const MethodTFIDFCosine = "tfidf_cosine"

// chunkSize is the number of entities scored per errgroup task.
const chunkSize = 64

// Engine computes top-K content neighbors for a catalog snapshot.
type Engine struct {
	cfg     config.SimilarityConfig
	builder *FeatureBuilder
}

// NewEngine creates an engine. Zero settings fall back to defaults.
func NewEngine(cfg config.SimilarityConfig) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.Method == "" {
		cfg.Method = MethodTFIDFCosine
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Engine{cfg: cfg, builder: NewFeatureBuilder(cfg)}
}

// Method returns the method tag written on every edge.
func (e *Engine) Method() string { return e.cfg.Method }

// Vectorize builds and fits the feature vectors of entities.
func (e *Engine) Vectorize(entities []*models.CanonicalEntity) *Matrix {
	bags := make([]Bag, len(entities))
	for i, ent := range entities {
		bags[i] = e.builder.Build(ent)
	}
	v := Vectorizer{MaxDocFreq: e.cfg.MaxDocFreq, MinDocs: e.cfg.MaxDocFreqMinDocs}
	return v.Fit(bags)
}

// Compute returns the top-K neighbors of every entity, ordered by source id
// and rank, tagged with snapshot. The input order does not affect the result.
func (e *Engine) Compute(ctx context.Context, entities []*models.CanonicalEntity, snapshot int64) ([]models.SimilarityEdge, error) {
	start := time.Now()

	sorted := append([]*models.CanonicalEntity(nil), entities...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CanonicalID < sorted[j].CanonicalID })

	matrix := e.Vectorize(sorted)
	index := matrix.invertedIndex()
	n := matrix.Len()

	chunks := (n + chunkSize - 1) / chunkSize
	results := make([][]models.SimilarityEdge, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for c := 0; c < chunks; c++ {
		g.Go(func() error {
			lo := c * chunkSize
			hi := min(lo+chunkSize, n)
			scratch := make([]float64, n)
			var out []models.SimilarityEdge
			for d := lo; d < hi; d++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				out = append(out, e.neighbors(d, sorted, matrix, index, scratch, snapshot)...)
			}
			results[c] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("similarity computation canceled: %w", err)
	}

	var edges []models.SimilarityEdge
	for _, chunk := range results {
		edges = append(edges, chunk...)
	}

	duration := time.Since(start)
	metrics.RecordSimilarityRun(duration, len(edges))
	logging.Info().
		Int64("snapshot", snapshot).
		Int("entities", n).
		Int("vocabulary", matrix.VocabularySize()).
		Int("edges", len(edges)).
		Dur("duration", duration).
		Msg("Similarity edges computed")
	return edges, nil
}

type scored struct {
	doc   int
	score float64
}

// neighbors scores document d against every document sharing a term with it.
// scratch must be zeroed and is left zeroed.
func (e *Engine) neighbors(d int, entities []*models.CanonicalEntity, m *Matrix, index [][]posting,
	scratch []float64, snapshot int64) []models.SimilarityEdge {
	var touched []int
	for _, t := range m.rows[d] {
		for _, p := range index[t.term] {
			if p.doc == d {
				continue
			}
			if scratch[p.doc] == 0 {
				touched = append(touched, p.doc)
			}
			scratch[p.doc] += t.weight * p.weight
		}
	}

	candidates := make([]scored, 0, len(touched))
	for _, doc := range touched {
		s := clamp01(scratch[doc])
		scratch[doc] = 0
		if s < e.cfg.MinScore || s == 0 {
			continue
		}
		candidates = append(candidates, scored{doc: doc, score: s})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return entities[candidates[i].doc].CanonicalID < entities[candidates[j].doc].CanonicalID
	})
	if len(candidates) > e.cfg.TopK {
		candidates = candidates[:e.cfg.TopK]
	}

	edges := make([]models.SimilarityEdge, len(candidates))
	for i, c := range candidates {
		edges[i] = models.SimilarityEdge{
			Source:          entities[d].CanonicalID,
			Target:          entities[c.doc].CanonicalID,
			Score:           c.score,
			Method:          e.cfg.Method,
			Rank:            i + 1,
			SnapshotVersion: snapshot,
		}
	}
	return edges
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
