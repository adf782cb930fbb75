// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package similarity computes content-based neighbor lists for canonical
entities.

Each entity is turned into a weighted bag of feature tokens (tags, genres,
studios, staff, source material, era, season and description words). The
repetition count of every feature class comes from configuration, so tags
dominate and a short description prefix barely registers:

	tag:<name>          6/4/2 by tag rank tier
	studio:<name>       3
	genre:<name>        2
	staff:<name>        2
	source:<material>   1
	era:<decade>s       1
	season:<year>_<s>   1
	w:<word>            1

Bags are vectorized with smooth TF-IDF (idf = ln((1+n)/(1+df)) + 1), terms
that appear in too large a share of the catalog are dropped, and vectors are
L2-normalized. Cosine similarity is then a dot product evaluated through an
inverted index, so only entity pairs that share at least one term are ever
scored.

# Determinism

Entities are processed in fixed-size chunks through an errgroup. Every chunk
writes into its own slot of the result, and vectors are stored as term-sorted
slices, so the output is identical for any worker count.

# Usage

	engine := similarity.NewEngine(cfg.Similarity)
	edges, err := engine.Compute(ctx, entities, snapshotVersion)
	if err != nil {
	    return err
	}
	err = db.ReplaceSimilarityEdges(ctx, snapshotVersion, engine.Method(), edges)
*/
package similarity
