// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package keyindex persists the natural-key map from source records
// (source#id) to canonical entities in BadgerDB.
//
// The resolver consults it before matching: a known key with an unchanged
// content hash is skipped, a known key with a new hash refreshes its entity.
// The warehouse remains the source of truth; Rebuild reloads the index from
// it.
package keyindex
