// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package main is the entry point for the Animedex server.

Animedex merges anime catalog records from AniList, MyAnimeList and Kitsu
into one deduplicated canonical catalog, computes content similarity and a
collaborative model over user ratings, and serves blended recommendations
through an in-process ranker.

# Application Architecture

Long-running work runs under a Suture v4 supervisor tree:

	RootSupervisor ("animedex")
	├── DataSupervisor ("data-layer")
	│   ├── pipeline-scheduler (import, dedupe, similarity, training, quality)
	│   └── audit-retention (merge audit log cleanup)
	├── MessagingSupervisor ("messaging-layer")
	│   └── catalog-ingest (NATS JetStream consumers, optional)
	└── APISupervisor ("api-layer")
	    └── http-server (health, status, runs, audit, metrics)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, an optional YAML file and environment variables
 2. Logging: zerolog with JSON or console output
 3. NATS (optional): embedded or external server, the CATALOG stream and the publisher
 4. Warehouse: DuckDB with the catalog schema
 5. Key index: BadgerDB natural-key to canonical-id index
 6. Pipeline: adapters, resolver, similarity engine, BPR trainer, model store, quality checks
 7. HTTP server: chi router with request ids, rate limiting and Prometheus metrics
 8. Supervisor tree

# Configuration

Priority: environment variables > config file > defaults. The config file is
read from CONFIG_PATH when set. Common environment variables:

	DUCKDB_PATH=/data/animedex.duckdb
	KEYINDEX_PATH=/data/keyindex
	PIPELINE_IMPORT_DIR=/data/import
	PIPELINE_INTERVAL=1h
	PIPELINE_RUN_ON_STARTUP=true
	DEDUPE_THRESHOLD=0.85
	COLLAB_MODEL_DIR=/data/models
	NATS_ENABLED=true
	HTTP_PORT=8090
	LOG_LEVEL=info
	LOG_FORMAT=json

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops every
service (the HTTP server drains for up to 10s, an in-flight pipeline run
records its outcome), then the audit recorder is flushed and the stores and
the NATS components are closed.
*/
package main
