// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package eventprocessor connects the catalog to NATS JetStream through
// Watermill.
//
// Source records and user ratings arrive on the message bus and are staged
// in DuckDB for the next pipeline cycle; committed dedupe runs announce the
// entities they changed.
//
//	┌──────────────┐  catalog.records.<source>  ┌──────────────┐
//	│  Harvesters  │ ─────────────────────────▶ │ RecordHandler│ ─▶ source_records
//	└──────────────┘                            └──────────────┘
//	┌──────────────┐  catalog.ratings           ┌──────────────┐
//	│  Frontends   │ ─────────────────────────▶ │ RatingHandler│ ─▶ user_ratings
//	└──────────────┘                            └──────────────┘
//	┌──────────────┐  catalog.entities.changed
//	│   Pipeline   │ ─────────────────────────▶ downstream consumers
//	└──────────────┘
//
// # Components
//
//   - EmbeddedServer: in-process NATS server with JetStream for single-node deployments
//   - StreamInitializer: creates or updates the CATALOG stream covering catalog.>
//   - Publisher: Watermill NATS publisher guarded by a gobreaker circuit breaker
//   - Subscriber: durable JetStream consumer bound to the CATALOG stream
//   - Router: Watermill router with recovery, poison queue, deduplication,
//     retry and throttling middleware
//   - Ingest: wires one handler per source topic plus the rating handler
//
// # Delivery Semantics
//
// Delivery is at least once. Staging is idempotent on (source, source id,
// content hash) and ratings keep the latest RatedAt, so a redelivered message
// has no effect. The router additionally drops repeats of a Nats-Msg-Id seen
// within the deduplication window; a key is only remembered after its
// handler succeeded.
//
// Malformed payloads are permanent failures: they skip the retry loop, are
// counted as rejected and forwarded to the poison topic when one is
// configured. Store failures are retried with backoff and poisoned once the
// retries are exhausted.
//
// # Usage
//
//	srv, _ := eventprocessor.NewEmbeddedServer(&serverCfg)
//	ingest, _ := eventprocessor.NewIngest(cfg.NATS, srv.ClientURL(), deps, logger)
//	_ = ingest.Start(ctx)
//	defer ingest.Stop()
package eventprocessor
