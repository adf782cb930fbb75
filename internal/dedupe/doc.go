// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package dedupe resolves source records from several catalogs into canonical
entities.

A run has four stages:

 1. Blocking (Index): title prefixes, title tokens, and alias-hint groups map
    to entity ids so each record is scored against a bounded candidate set.
    Entities released in the same year bucket are a fallback when no title
    key matches.
 2. Scoring (Scorer): weighted title, year, format, and tag similarity,
    renormalized over the fields both sides carry. The title strategy is
    pluggable (see Strategies).
 3. Decision (MergeEngine.Decide): the best candidate at or above the
    threshold wins; near ties are flagged as ambiguous.
 4. Merge (MergeEngine.Merge): fields are folded into a new entity version.

Resolver drives the stages for a batch. Records already known by natural key
(source#id) skip matching: an unchanged record is a no-op and a changed one
refreshes its entity.

Example:

	r, err := dedupe.NewResolver(cfg.Dedupe,
	    dedupe.WithNormalizer(adapters.NewDefaultRegistry()),
	    dedupe.WithKeyLookup(keys))
	if err != nil {
	    return err
	}
	res, err := r.Resolve(ctx, runID, current, inputs)
*/
package dedupe
