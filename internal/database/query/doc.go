// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package query provides SQL WHERE clause construction for the warehouse.
//
// WhereBuilder collects conditions and their bound arguments so filters can
// be composed without string concatenation of values:
//
//	wb := query.NewWhereBuilder()
//	wb.AddIn("format", filter.Formats)
//	wb.AddIntRange("release_year", filter.MinYear, filter.MaxYear)
//	whereClause, args := wb.BuildWithPrefix()
//	rows, err := conn.QueryContext(ctx, "SELECT ... FROM canonical_entities "+whereClause, args...)
//
// Column names passed to the builder are identifiers chosen by the caller and
// must never come from user input; values are always bound as parameters.
package query
