// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package api serves the operational HTTP surface of animedex.

Routes:

	GET  /api/v1/health/live          process is up
	GET  /api/v1/health/ready         DuckDB ping plus registered checks (key index, NATS)
	GET  /api/v1/status               current snapshot, active model, last run
	GET  /api/v1/runs                 recent pipeline runs
	POST /api/v1/runs                 trigger a run (202, or 409 while one is running)
	GET  /api/v1/runs/{runID}/quality quality check results of a run
	GET  /api/v1/snapshots            catalog snapshots, newest first
	GET  /api/v1/models               model versions, newest first
	GET  /api/v1/audit                merge audit log query
	GET  /metrics                     Prometheus metrics

Every /api/v1 response uses the APIResponse envelope and is encoded with
goccy/go-json. /api/v1 is rate limited per client IP with httprate.
*/
package api
