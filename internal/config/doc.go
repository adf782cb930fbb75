// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package config provides centralized configuration management for Animedex.

# Configuration Sources

Configuration is layered with Koanf v2, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: $CONFIG_PATH, ./config.yaml, /etc/animedex/config.yaml
 3. Environment variables with explicit mappings (see envTransformFunc)

# Configuration Structure

  - Database: DuckDB warehouse path and tuning
  - Logging: zerolog level and format
  - KeyIndex: BadgerDB natural-key index location
  - Dedupe: match threshold, ambiguity delta, string strategy, field
    weights, blocking parameters and alias hints
  - Similarity: feature weight classes, TF-IDF document-frequency cut-off,
    top-K and score floor
  - Collab: BPR hyperparameters, minimum interactions, rating policy,
    model directory and evaluation cutoff
  - Hybrid: A/B cohort weight profiles, normalization and favorites
  - Pipeline: schedule, import directory and job timeout
  - NATS: optional JetStream ingestion and entity-change events
  - Server: operational HTTP endpoint (health, status, metrics)

# Environment Variables

Only mapped variables are read. Frequently used ones:

  - DUCKDB_PATH, DUCKDB_MAX_MEMORY
  - LOG_LEVEL, LOG_FORMAT
  - DEDUPE_THRESHOLD (default 0.85), DEDUPE_STRATEGY
  - SIMILARITY_TOP_K (default 10), SIMILARITY_MAX_DF
  - COLLAB_MIN_INTERACTIONS (default 100), COLLAB_RATING_POLICY
  - PIPELINE_INTERVAL, PIPELINE_IMPORT_DIR
  - NATS_ENABLED, NATS_URL
  - HTTP_HOST, HTTP_PORT

Cohort profiles, tag tiers and alias hints are lists of objects and can only
be set from the YAML file.
*/
package config
