// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/animedex/config.yaml",
	"/etc/animedex/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Strategy names accepted by dedupe.strategy.
const (
	StrategyTokenSortBlend = "token_sort_blend"
	StrategyTokenSet       = "token_set"
	StrategyTokenSort      = "token_sort"
	StrategyLevenshtein    = "levenshtein"
)

// Rating policies accepted by collab.rating_policy.
const (
	RatingPolicyClamp  = "clamp"
	RatingPolicyReject = "reject"
)

// Score normalizations accepted by hybrid.normalization.
const (
	NormalizationMinMax  = "minmax"
	NormalizationBounded = "bounded"
)

// DefaultCohorts returns the three stock A/B weight profiles.
func DefaultCohorts() []CohortConfig {
	return []CohortConfig{
		{Name: "control", Proportion: 0.50, ContentWeight: 1.0, CollabWeight: 0.0, ModelTag: "tfidf_v1.0"},
		{Name: "treatment_a", Proportion: 0.25, ContentWeight: 0.6, CollabWeight: 0.4, ModelTag: "hybrid_v1.1"},
		{Name: "treatment_b", Proportion: 0.25, ContentWeight: 0.5, CollabWeight: 0.5, ModelTag: "hybrid_v1.2"},
	}
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/animedex.duckdb",
			MaxMemory:              "2GB",
			Threads:                0,
			PreserveInsertionOrder: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		KeyIndex: KeyIndexConfig{
			Path:       "/data/keyindex",
			InMemory:   false,
			SyncWrites: true,
		},
		Audit: AuditConfig{
			RetentionDays:   365,
			CleanupInterval: 24 * time.Hour,
			BufferSize:      1000,
		},
		Dedupe: DedupeConfig{
			Threshold:      0.85,
			AmbiguityDelta: 0.01,
			Strategy:       StrategyTokenSortBlend,
			MergeWeight:    1.0,
			Weights: FieldWeights{
				Title:  0.70,
				Year:   0.10,
				Format: 0.05,
				Tags:   0.15,
			},
			Blocking: BlockingConfig{
				PrefixLength:   5,
				MinTokenLength: 3,
				MaxCandidates:  50,
				YearFallback:   true,
				YearBucket:     1,
			},
			Workers:    0,
			ExportPath: "",
		},
		Similarity: SimilarityConfig{
			TopK:              10,
			MinScore:          0.01,
			MaxDocFreq:        0.8,
			MaxDocFreqMinDocs: 10,
			DescriptionPrefix: 200,
			Method:            "tfidf_cosine",
			Workers:           0,
			Weights: FeatureWeights{
				TagTiers: []TagTier{
					{MinRank: 80, Repeat: 6},
					{MinRank: 50, Repeat: 4},
					{MinRank: 0, Repeat: 2},
				},
				Genre:       2,
				Studio:      3,
				Staff:       2,
				Source:      1,
				Era:         1,
				Season:      1,
				Description: 1,
			},
		},
		Collab: CollabConfig{
			Enabled:         true,
			Factors:         50,
			LearningRate:    0.05,
			Regularization:  0.01,
			Epochs:          10,
			NegativeSamples: 5,
			Seed:            42,
			MinInteractions: 100,
			TopN:            10,
			EvalCutoff:      10,
			Evaluate:        true,
			RatingPolicy:    RatingPolicyClamp,
			ModelDir:        "/data/models",
			KeepVersions:    5,
		},
		Hybrid: HybridConfig{
			Cohorts:           DefaultCohorts(),
			Normalization:     NormalizationMinMax,
			FavoriteMinRating: 4.0,
			MaxFavorites:      5,
			ExcludeSameSeries: true,
			DefaultLimit:      10,
			MaxLimit:          100,
			CacheTTL:          5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Interval:       24 * time.Hour,
			RunOnStartup:   true,
			Sources:        []string{"anilist", "myanimelist", "kitsu"},
			ImportDir:      "/data/import",
			ArchiveDir:     "",
			JobTimeout:     30 * time.Minute,
			QualityChecks:  true,
			MaterializeTop: 10,
		},
		NATS: NATSConfig{
			Enabled:                    false,
			URL:                        "nats://127.0.0.1:4222",
			EmbeddedServer:             true,
			StoreDir:                   "/data/nats/jetstream",
			MaxMemory:                  256 << 20,
			MaxStore:                   2 << 30,
			StreamName:                 "CATALOG",
			StreamRetentionDays:        7,
			DurableName:                "animedex-ingest",
			QueueGroup:                 "animedex",
			SubscribersCount:           2,
			RouterRetryCount:           5,
			RouterRetryInitialInterval: 100 * time.Millisecond,
			RouterThrottlePerSecond:    0,
			RouterDeduplicationEnabled: true,
			RouterDeduplicationTTL:     5 * time.Minute,
			RouterPoisonQueueTopic:     "catalog.poison",
			RouterCloseTimeout:         30 * time.Second,
			PublishEntityChanges:       true,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8090,
			Timeout:           30 * time.Second,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf with layered sources:
//  1. Defaults
//  2. Config file (optional)
//  3. Environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile loads configuration from an explicit YAML file, still applying
// defaults underneath and environment variables on top.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// DEDUPE_THRESHOLD -> dedupe.threshold
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default locations.
// Returns empty string if no config file is found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
// when provided via environment variables.
var sliceConfigPaths = []string{
	"pipeline.sources",
}

// processSliceFields converts comma-separated string values to slices
// for configuration fields that expect []string.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Only explicitly mapped variables are accepted.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Key index mappings
		"keyindex_path":      "keyindex.path",
		"keyindex_in_memory": "keyindex.in_memory",

		// Audit mappings
		"audit_retention_days": "audit.retention_days",
		"audit_log_to_stdout":  "audit.log_to_stdout",

		// Dedupe mappings
		"dedupe_threshold":       "dedupe.threshold",
		"dedupe_ambiguity_delta": "dedupe.ambiguity_delta",
		"dedupe_strategy":        "dedupe.strategy",
		"dedupe_max_candidates":  "dedupe.blocking.max_candidates",
		"dedupe_year_fallback":   "dedupe.blocking.year_fallback",
		"dedupe_workers":         "dedupe.workers",
		"dedupe_export_path":     "dedupe.export_path",

		// Similarity mappings
		"similarity_top_k":     "similarity.top_k",
		"similarity_min_score": "similarity.min_score",
		"similarity_max_df":    "similarity.max_df",
		"similarity_workers":   "similarity.workers",

		// Collaborative training mappings
		"collab_enabled":          "collab.enabled",
		"collab_factors":          "collab.factors",
		"collab_learning_rate":    "collab.learning_rate",
		"collab_regularization":   "collab.regularization",
		"collab_epochs":           "collab.epochs",
		"collab_negative_samples": "collab.negative_samples",
		"collab_seed":             "collab.seed",
		"collab_min_interactions": "collab.min_interactions",
		"collab_rating_policy":    "collab.rating_policy",
		"collab_model_dir":        "collab.model_dir",
		"collab_evaluate":         "collab.evaluate",

		// Hybrid ranker mappings
		"hybrid_normalization":       "hybrid.normalization",
		"hybrid_exclude_same_series": "hybrid.exclude_same_series",
		"hybrid_cache_ttl":           "hybrid.cache_ttl",

		// Pipeline mappings
		"pipeline_interval":       "pipeline.interval",
		"pipeline_run_on_startup": "pipeline.run_on_startup",
		"pipeline_sources":        "pipeline.sources",
		"pipeline_import_dir":     "pipeline.import_dir",
		"pipeline_archive_dir":    "pipeline.archive_dir",
		"pipeline_job_timeout":    "pipeline.job_timeout",

		// NATS mappings
		"nats_enabled":              "nats.enabled",
		"nats_url":                  "nats.url",
		"nats_embedded":             "nats.embedded_server",
		"nats_store_dir":            "nats.store_dir",
		"nats_max_memory":           "nats.max_memory",
		"nats_max_store":            "nats.max_store",
		"nats_stream_name":          "nats.stream_name",
		"nats_retention_days":       "nats.stream_retention_days",
		"nats_subscribers":          "nats.subscribers_count",
		"nats_durable_name":         "nats.durable_name",
		"nats_queue_group":          "nats.queue_group",
		"nats_router_retry_count":   "nats.router_retry_count",
		"nats_router_throttle":      "nats.router_throttle_per_second",
		"nats_router_dedup_enabled": "nats.router_deduplication_enabled",
		"nats_router_dedup_ttl":     "nats.router_deduplication_ttl",
		"nats_router_poison_topic":  "nats.router_poison_queue_topic",
		"nats_publish_changes":      "nats.publish_entity_changes",

		// Server mappings
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"rate_limit_requests": "server.rate_limit_requests",
		"rate_limit_window":   "server.rate_limit_window",
		"disable_rate_limit":  "server.rate_limit_disabled",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so stray environment variables never leak into config.
	return ""
}
