// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package dedupe

import (
	"math"
	"strings"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/titles"
)

// Comparable is the matching view of a source record or a canonical entity.
// Titles are normalized and deduplicated; Tags holds lower-cased tag and
// genre names.
type Comparable struct {
	ID     int64
	Titles []string
	Year   int
	Format string
	Tags   map[string]struct{}
}

// RecordComparable builds the matching view of a source record.
func RecordComparable(r *models.SourceRecord) *Comparable {
	return newComparable(0, r.TitleVariants(), r.ReleaseYear, r.Format, r.Tags, r.Genres)
}

// EntityComparable builds the matching view of a canonical entity.
func EntityComparable(e *models.CanonicalEntity) *Comparable {
	return newComparable(e.CanonicalID, e.TitleVariants(), e.ReleaseYear, e.Format, e.Tags, e.Genres)
}

func newComparable(id int64, variants []string, year int, format string, tags []models.Tag, genres []string) *Comparable {
	c := &Comparable{
		ID:     id,
		Year:   year,
		Format: format,
		Tags:   make(map[string]struct{}, len(tags)+len(genres)),
	}
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		n := titles.Normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		c.Titles = append(c.Titles, n)
	}
	for _, t := range tags {
		if name := strings.ToLower(strings.TrimSpace(t.Name)); name != "" {
			c.Tags[name] = struct{}{}
		}
	}
	for _, g := range genres {
		if name := strings.ToLower(strings.TrimSpace(g)); name != "" {
			c.Tags[name] = struct{}{}
		}
	}
	return c
}

// Scorer computes weighted field similarity between two comparables.
type Scorer struct {
	weights  config.FieldWeights
	strategy Strategy
	hints    *titles.AliasHints
}

// NewScorer creates a scorer. A nil strategy falls back to TokenSortBlend.
func NewScorer(weights config.FieldWeights, strategy Strategy, hints *titles.AliasHints) *Scorer {
	if strategy == nil {
		strategy = Strategies[StrategyTokenSortBlend]
	}
	return &Scorer{weights: weights, strategy: strategy, hints: hints}
}

// Strategy returns the title strategy in use.
func (s *Scorer) Strategy() Strategy { return s.strategy }

// Score returns the field breakdown and weighted total of a against b.
// Fields missing on either side are left out of both the numerator and the
// denominator. The total is rounded to six decimals.
func (s *Scorer) Score(a, b *Comparable) models.ScoreBreakdown {
	var bd models.ScoreBreakdown

	bd.Title = s.TitleScore(a.Titles, b.Titles)
	num := s.weights.Title * bd.Title
	den := s.weights.Title

	if a.Year > 0 && b.Year > 0 {
		v := yearScore(a.Year, b.Year)
		bd.Year = &v
		num += s.weights.Year * v
		den += s.weights.Year
	}
	if a.Format != "" && b.Format != "" {
		v := 0.0
		if a.Format == b.Format {
			v = 1
		}
		bd.Format = &v
		num += s.weights.Format * v
		den += s.weights.Format
	}
	if len(a.Tags) > 0 && len(b.Tags) > 0 {
		v := Jaccard(a.Tags, b.Tags)
		bd.Tags = &v
		num += s.weights.Tags * v
		den += s.weights.Tags
	}

	if den > 0 {
		bd.Total = round6(num / den)
	}
	return bd
}

// TitleScore is the best strategy score across all pairs of normalized title
// variants. Variants sharing an alias-hint group score 1.
func (s *Scorer) TitleScore(as, bs []string) float64 {
	best := 0.0
	for _, a := range as {
		for _, b := range bs {
			if a == b || s.hints.Same(a, b) {
				return 1
			}
			if v := s.strategy.Score(a, b); v > best {
				best = v
			}
		}
	}
	return best
}

func yearScore(a, b int) float64 {
	switch d := a - b; {
	case d == 0:
		return 1
	case d == 1 || d == -1:
		return 0.5
	default:
		return 0
	}
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
