// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package services adapts animedex components to suture's Serve pattern.

	PipelineService       ticker-driven pipeline runs (data layer)
	AuditRetentionService periodic audit log cleanup (data layer)
	EventIngestService         JetStream catalog consumers (messaging layer)
	HTTPServerService     *http.Server with graceful shutdown (api layer)

Every wrapper returns ctx.Err() after a requested shutdown and a wrapped
error on failure, which makes the supervisor restart it. Each one
implements fmt.Stringer so supervisor events carry a readable name.
*/
package services
