// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package audit persists the merge audit log: one entry per create, merge,
refresh, and reject decision, with the score breakdown, the runner-up
candidate, and the ambiguity flag.

# Stores

  - MemoryStore: bounded in-memory store for tests and development
  - DuckDBStore: the merge_audit_log table in the warehouse

SaveTx writes entries inside an existing warehouse transaction so entity
versions and their provenance commit together. Recorder is the asynchronous
path for callers that do not need that guarantee, and it applies retention.

# Querying

	entries, err := store.Query(ctx, audit.QueryFilter{
	    Decisions:     []models.Decision{models.DecisionMerge},
	    AmbiguousOnly: true,
	    Limit:         50,
	    OrderDesc:     true,
	})
*/
package audit
