// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package models defines the data structures shared by the Animedex pipeline.

Key Components:

  - SourceRecord: one normalized item from one upstream catalog (AniList,
    MyAnimeList, Kitsu). Its natural key is "source#id".
  - CanonicalEntity: the deduplicated, merged representation of a title.
    Rows are versioned; superseded versions keep IsCurrent=false.
  - AuditEntry: provenance of every create/merge/refresh/reject decision.
  - SimilarityEdge: one top-K content neighbor, tagged with the catalog
    snapshot it was computed against.
  - InteractionRecord, PredictedScore, ModelVersion: collaborative inputs,
    outputs and training runs.

Error Taxonomy:

The package also defines the sentinel errors used across the pipeline
(ErrMalformedRecord, ErrAmbiguousMatch, ErrStaleScore, ErrColdStart,
ErrTrainingFailure, ErrInvalidRating, ErrNotFound) together with typed errors
that carry details and still match with errors.Is.
*/
package models
