// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package logging provides centralized zerolog-based structured logging for Animedex.
//
// # Overview
//
// The package provides:
//   - JSON output for production and console output for development
//   - A global logger configured once from main via Init
//   - Run correlation: every pipeline run carries a correlation ID that is
//     attached to each log line written through Ctx
//   - An slog adapter for Suture v4 (sutureslog)
//   - A Watermill LoggerAdapter so message routing logs through zerolog
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	ctx = logging.ContextWithCorrelationID(ctx, runID)
//	logging.Ctx(ctx).Info().Int("records", n).Msg("Dedupe run started")
//
//	logger := logging.WithComponent("similarity")
//	logger.Debug().Int64("entity", id).Msg("Neighbors computed")
//
// # Best Practices
//
// Always terminate log chains with .Msg() or .Send(), and prefer structured
// fields over formatted strings.
package logging
