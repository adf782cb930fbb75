// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package database is the DuckDB warehouse behind the catalog pipeline.

# Versioned Catalog

Canonical entities are stored as a slowly-changing dimension. Every dedupe
run that changes the catalog is committed by CommitRun in one transaction:

  - the current row of each changed entity is closed (is_current = false,
    valid_to and superseded_in set)
  - the new version is inserted with the new snapshot version
  - entity_sources mappings are upserted
  - merge audit entries are written through audit.SaveTx
  - the consumed staged records are marked processed
  - a catalog_snapshots row records the entity count and a fingerprint

A run that changes nothing writes its audit entries and mappings but no
snapshot. Readers pin to a snapshot with EntitiesAsOf:

	entities, err := db.EntitiesAsOf(ctx, snapshot)

# Derived Data

Similarity edges are replaced per (snapshot, method). Collaborative models
are committed with CommitModelVersion, which stores the version row and its
predictions and activates it; exactly one version is active at a time and a
failed run is recorded without touching the active one.

# Staging

Both ingest paths (file drop and message bus) stage raw payloads in
source_records keyed by source#id with a payload hash, so redelivery of an
unchanged payload is a no-op.

# Concurrency

DuckDB uses optimistic concurrency. Write transactions are serialized on a
mutex and transaction conflicts are retried with exponential backoff.
Reads run concurrently on the connection pool.
*/
package database
