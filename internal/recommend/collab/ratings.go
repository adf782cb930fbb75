// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package collab

import (
	"fmt"
	"math"
	"sort"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
)

// NormalizeRating applies the rating policy. NaN and Inf are always
// rejected. Out-of-range values are clamped to [0,5] under the clamp policy
// and rejected under the reject policy.
func NormalizeRating(rating float64, policy string) (float64, error) {
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return 0, fmt.Errorf("%w: %v is not a number", models.ErrInvalidRating, rating)
	}
	if rating >= models.MinRating && rating <= models.MaxRating {
		return rating, nil
	}
	if policy == config.RatingPolicyReject {
		return 0, fmt.Errorf("%w: %v outside [%v, %v]", models.ErrInvalidRating, rating, models.MinRating, models.MaxRating)
	}
	return math.Min(math.Max(rating, models.MinRating), models.MaxRating), nil
}

type ratingKey struct {
	user   string
	entity int64
}

// PrepareRatings collapses records to one per (user, entity), the latest
// RatedAt winning, and applies the rating policy. Rejected ratings are
// dropped and counted. The result is ordered by user then entity.
func PrepareRatings(records []models.InteractionRecord, policy string) (out []models.InteractionRecord, rejected int) {
	latest := make(map[ratingKey]models.InteractionRecord, len(records))
	for _, r := range records {
		k := ratingKey{r.UserID, r.EntityID}
		if prev, ok := latest[k]; ok && r.RatedAt.Before(prev.RatedAt) {
			continue
		}
		latest[k] = r
	}

	out = make([]models.InteractionRecord, 0, len(latest))
	for _, r := range latest {
		v, err := NormalizeRating(r.Rating, policy)
		if err != nil {
			rejected++
			metrics.RecordInteraction("rejected")
			continue
		}
		r.Rating = v
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, rejected
}
