// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package adapters maps each source's raw JSON payload into models.SourceRecord.

Every source gets an explicit Adapter. Adapters know nothing about other
records; cross-record logic lives in package dedupe, which never branches on
source-specific structure.

# Sources

  - anilist: one GraphQL Media object. Romaji title is primary; english,
    native and synonyms become aliases. averageScore is already 0-100.
  - myanimelist: one v2 API anime node. mean is 0-10 and is scaled by 10;
    average_episode_duration is converted from seconds to minutes.
  - kitsu: one JSON:API anime resource, bare or wrapped in {"data": ...}
    with optional "included" categories. averageRating is a decimal string
    on 0-100; popularityRank is inverted so that higher means more popular.

# Errors

Undecodable JSON, a missing id or title, and struct validation failures are
reported as *models.MalformedRecordError, which matches models.ErrMalformedRecord
with errors.Is. Callers log and skip the record; the batch continues.

# Usage

	reg := adapters.NewDefaultRegistry()
	rec, err := reg.Normalize("anilist", payload)
	if errors.Is(err, models.ErrMalformedRecord) {
	    // reject this record only
	}
*/
package adapters
