// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package testinfra provides container fixtures for integration tests.
//
// Every file carries the integration build tag, so the fixtures only build
// with:
//
//	go test -tags integration ./internal/testinfra/...
//
// # NATS Container
//
// NewNATSContainer starts a real NATS server with JetStream enabled. The
// integration tests in this package run the catalog ingest end to end
// against it: stream provisioning, publishing a raw source record through
// the circuit-breaker publisher, consuming it with the durable JetStream
// subscriber and staging it in an in-memory DuckDB warehouse.
//
// Tests skip when Docker is unavailable. The first run pulls the image.
package testinfra
