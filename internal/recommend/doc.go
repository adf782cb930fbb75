// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package recommend ranks catalog entities for a user by blending content
// similarity with collaborative predictions.
//
// # Architecture
//
// Scoring is split across three packages:
//
//   - similarity: precomputed top-K content neighbors per entity
//   - recommend/collab: BPR matrix factorization and materialized predictions
//   - recommend: the online Ranker that blends both per request
//
// The Ranker reads only materialized state (similarity edges, predicted
// scores, the active model version), so a request never trains or
// vectorizes anything.
//
// # Cohorts
//
// Users are assigned to an A/B cohort by AssignCohort, a pure function of
// the user id. Each cohort carries its own content/collaborative weights:
//
//	control      50%  1.0 / 0.0
//	treatment_a  25%  0.6 / 0.4
//	treatment_b  25%  0.5 / 0.5
//
// A user without predictions is a cold start: all weight moves to content.
// A user with neither favorites nor predictions gets the popularity ranking.
//
// # Staleness
//
// Every result reports the catalog snapshot it was computed against. When
// similarity edges or the active model lag the current snapshot the result
// is flagged Stale with the lagging components listed.
//
// # Usage
//
//	ranker := recommend.NewRanker(db, cfg.Hybrid, cfg.Similarity)
//	defer ranker.Close()
//
//	res, err := ranker.Recommend(ctx, recommend.Query{
//	    UserID: "user-42",
//	    Limit:  20,
//	})
//
// # Thread Safety
//
// Ranker is safe for concurrent use. Results are cached per user, anchor,
// limit, cohort, snapshot and model version for hybrid.cache_ttl.
package recommend
