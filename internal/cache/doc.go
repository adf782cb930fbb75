// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package cache provides the in-memory caches used by the ranker and the event
router.

  - Cache[V]: TTL cache with hit/miss statistics. The hybrid ranker keeps
    recommendation lists here keyed by user, anchor, limit, cohort, catalog
    snapshot and model version, so a new snapshot or model never serves stale
    entries; the runner also clears it after each committed run.
  - LRU[V]: capacity-bounded LRU with TTL.
  - SeenSet: LRU of keys only, used to drop redelivered JetStream messages.

All types are safe for concurrent use.
*/
package cache
