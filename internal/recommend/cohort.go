// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package recommend

import (
	"github.com/cespare/xxhash/v2"

	"github.com/tomtom215/animedex/internal/config"
)

// cohortBuckets is the resolution of the cohort hash.
const cohortBuckets = 10000

// AssignCohort maps a user to a cohort name. The assignment depends only on
// the user id and the cohort list, so a user keeps the same cohort across
// processes and restarts. The last cohort absorbs proportion rounding.
func AssignCohort(userID string, cohorts []config.CohortConfig) string {
	c := cohortFor(userID, cohorts)
	if c == nil {
		return ""
	}
	return c.Name
}

func cohortFor(userID string, cohorts []config.CohortConfig) *config.CohortConfig {
	if len(cohorts) == 0 {
		return nil
	}
	if userID == "" {
		return &cohorts[0]
	}

	bucket := float64(xxhash.Sum64String(userID)%cohortBuckets) / cohortBuckets
	cumulative := 0.0
	for i := range cohorts {
		cumulative += cohorts[i].Proportion
		if bucket < cumulative {
			return &cohorts[i]
		}
	}
	return &cohorts[len(cohorts)-1]
}
