// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package recommend

import (
	"math"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
)

// blendWeights returns the content and collaborative weights for a cohort.
// Without collaborative scores all weight moves to content. coldStart is only
// reported for cohorts that blend in collaborative scores.
func blendWeights(c *config.CohortConfig, haveCollab bool) (content, collab float64, coldStart bool) {
	if c.CollabWeight <= 0 {
		return 1, 0, false
	}
	if !haveCollab {
		return 1, 0, true
	}
	sum := c.ContentWeight + c.CollabWeight
	if sum <= 0 {
		return 1, 0, true
	}
	return c.ContentWeight / sum, c.CollabWeight / sum, false
}

// normalizer rescales one score component over the candidate set.
type normalizer func(v float64) float64

// minMax maps values to [0,1] over their observed range. A constant range
// maps every non-zero value to 1.
func minMax(values map[int64]float64) normalizer {
	if len(values) == 0 {
		return func(float64) float64 { return 0 }
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	return func(v float64) float64 {
		if span <= 0 {
			if v != 0 {
				return 1
			}
			return 0
		}
		return clamp01((v - lo) / span)
	}
}

// bounded divides by the component's known maximum.
func bounded(upper float64) normalizer {
	return func(v float64) float64 { return clamp01(v / upper) }
}

func normalizers(mode string, content, collab map[int64]float64) (normContent, normCollab normalizer) {
	if mode == config.NormalizationBounded {
		return bounded(1), bounded(models.MaxRating)
	}
	return minMax(content), minMax(collab)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}
