// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package pipeline runs the batch cycle that turns staged source records into a
versioned catalog, similarity edges and collaborative predictions.

# Stages

One Runner.Run executes, in order:

	ingest       import-dir files -> source_records, user_ratings
	dedupe       pending source_records -> canonical_entities (new snapshot)
	similarity   EntitiesAsOf(snapshot) -> similarity_edges      } in parallel
	training     user_ratings -> BPR model -> predicted_scores    }
	materialize  replace edges, save model file, activate version, prune
	quality      data quality checks over the warehouse
	export       dedup map JSON, ranker cache invalidation

Runs never overlap: a trigger arriving while a run is in progress gets
ErrRunInProgress. The run ID is carried as the logging correlation ID, so all
log lines of one run can be grouped.

# Pinning

Similarity and training read the snapshot current when the dedupe stage
finished. Every output is tagged with the version it was computed from:
edges with the catalog snapshot, predictions with the model version and the
model version with the catalog snapshot. A training failure records a failed
model version and leaves the previously active version in place.

# File Source

FileSource reads the import directory:

	<source>_*.json    JSON array of raw source payloads
	<source>_*.jsonl   one raw payload per line
	ratings_*.jsonl    one interaction record per line

Processed files are moved into the archive directory. A file that cannot be
read at all is archived with a ".rejected" suffix.
*/
package pipeline
