// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package quality

const currentRows = "is_current"

// StandardChecks returns the catalog warehouse assertions run after every
// pipeline cycle.
func StandardChecks() []Check {
	return []Check{
		// Canonical catalog
		NotNull{Table: "canonical_entities", Column: "title", Filter: currentRows},
		NotNull{Table: "canonical_entities", Column: "entity_key", Filter: currentRows},
		Unique{Table: "canonical_entities", Columns: []string{"canonical_id"}, Filter: currentRows},
		Range{Table: "canonical_entities", Column: "score", Min: 0, Max: 100, Filter: currentRows},
		Range{Table: "canonical_entities", Column: "confidence", Min: 0, Max: 1, Filter: currentRows},
		Range{Table: "canonical_entities", Column: "popularity", Min: 0, Max: 999999999, Filter: currentRows, Level: SeverityWarning},
		Custom{
			CheckName: "no_duplicate_current_key",
			Query: `SELECT entity_key FROM canonical_entities WHERE is_current
				GROUP BY entity_key HAVING COUNT(*) > 1`,
			Level: SeverityCritical,
		},

		// Provenance
		Referential{Child: "entity_sources", ForeignKey: "canonical_id", Parent: "canonical_entities",
			PrimaryKey: "canonical_id", ParentFilter: currentRows},
		Range{Table: "entity_sources", Column: "confidence", Min: 0, Max: 1},

		// Similarity
		Range{Table: "similarity_edges", Column: "score", Min: 0, Max: 1},
		Custom{
			CheckName: "no_self_similarity",
			Query:     `SELECT source_entity FROM similarity_edges WHERE source_entity = target_entity`,
			Level:     SeverityCritical,
		},
		Referential{Child: "similarity_edges", ForeignKey: "target_entity", Parent: "canonical_entities",
			PrimaryKey: "canonical_id", Level: SeverityWarning},

		// Interactions and predictions
		Range{Table: "user_ratings", Column: "rating", Min: 0, Max: 5},
		Range{Table: "predicted_scores", Column: "predicted_value", Min: 0, Max: 5},
		Referential{Child: "predicted_scores", ForeignKey: "entity_id", Parent: "canonical_entities",
			PrimaryKey: "canonical_id", Level: SeverityWarning},
		Custom{
			CheckName: "single_active_model",
			Query:     `SELECT COUNT(*) FROM model_versions WHERE is_active HAVING COUNT(*) > 1`,
			Level:     SeverityCritical,
		},
	}
}
