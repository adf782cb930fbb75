// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package validation provides struct validation using go-playground/validator v10.

A single validator instance is built lazily and shared; validator caches struct
metadata, so reusing it keeps per-record validation cheap on large batches.

Custom tags:

  - animesource: the value is one of anilist, myanimelist, kitsu
  - finite: a float that is neither NaN nor infinite

Field names in messages are the json names of the fields, so a rejected
record reports "source_id is required" rather than the Go field name.

Usage:

	if verr := validation.ValidateStruct(rec); verr != nil {
	    return models.NewMalformedRecordError(rec.Source, rec.SourceID, verr, verr.Fields()...)
	}
*/
package validation
