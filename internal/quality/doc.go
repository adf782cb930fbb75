// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package quality runs data quality assertions against the DuckDB warehouse
// after each pipeline cycle.
//
// Check kinds:
//
//   - NotNull: a column has no NULL values
//   - Range: non-NULL values lie within [Min, Max]
//   - Unique: a column combination has no duplicates
//   - Referential: every foreign key has a parent row
//   - Custom: every row returned by a query is a violation
//
// Each check has a severity. Critical failures are logged at error level and
// make Report.Healthy false; warnings are logged and counted. The report's
// pass rate is the share of checks that passed, and the per-check results
// are stored in the quality_results table under the pipeline run id.
//
// Usage:
//
//	checker := quality.NewChecker(db.Conn(), db, quality.StandardChecks()...)
//	report, err := checker.Run(ctx, runID)
package quality
