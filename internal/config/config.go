// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package config

import "time"

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Logging    LoggingConfig    `koanf:"logging"`
	KeyIndex   KeyIndexConfig   `koanf:"keyindex"`
	Audit      AuditConfig      `koanf:"audit"`
	Dedupe     DedupeConfig     `koanf:"dedupe"`
	Similarity SimilarityConfig `koanf:"similarity"`
	Collab     CollabConfig     `koanf:"collab"`
	Hybrid     HybridConfig     `koanf:"hybrid"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	NATS       NATSConfig       `koanf:"nats"`
	Server     ServerConfig     `koanf:"server"`
}

// DatabaseConfig holds DuckDB warehouse settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = use NumCPU
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// KeyIndexConfig holds the BadgerDB natural-key index settings.
type KeyIndexConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// FieldWeights are the per-field weights of the match scorer.
type FieldWeights struct {
	Title  float64 `koanf:"title"`
	Year   float64 `koanf:"year"`
	Format float64 `koanf:"format"`
	Tags   float64 `koanf:"tags"`
}

// BlockingConfig controls candidate generation.
type BlockingConfig struct {
	PrefixLength   int  `koanf:"prefix_length"`
	MinTokenLength int  `koanf:"min_token_length"`
	MaxCandidates  int  `koanf:"max_candidates"`
	YearFallback   bool `koanf:"year_fallback"`
	YearBucket     int  `koanf:"year_bucket"`
}

// AuditConfig holds merge audit log settings.
type AuditConfig struct {
	RetentionDays   int           `koanf:"retention_days"` // 0 = keep forever
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	BufferSize      int           `koanf:"buffer_size"`
	LogToStdout     bool          `koanf:"log_to_stdout"`
}

// DedupeConfig holds entity-resolution settings.
type DedupeConfig struct {
	Threshold      float64        `koanf:"threshold"`
	AmbiguityDelta float64        `koanf:"ambiguity_delta"`
	Strategy       string         `koanf:"strategy"`
	MergeWeight    float64        `koanf:"merge_weight"`
	Weights        FieldWeights   `koanf:"weights"`
	Blocking       BlockingConfig `koanf:"blocking"`
	AliasHints     [][]string     `koanf:"alias_hints"`
	Workers        int            `koanf:"workers"` // 0 = use NumCPU
	ExportPath     string         `koanf:"export_path"`
}

// TagTier maps a minimum tag rank to a repetition count.
type TagTier struct {
	MinRank int `koanf:"min_rank"`
	Repeat  int `koanf:"repeat"`
}

// FeatureWeights are the repetition counts of each feature class.
type FeatureWeights struct {
	TagTiers    []TagTier `koanf:"tag_tiers"`
	Genre       int       `koanf:"genre"`
	Studio      int       `koanf:"studio"`
	Staff       int       `koanf:"staff"`
	Source      int       `koanf:"source"`
	Era         int       `koanf:"era"`
	Season      int       `koanf:"season"`
	Description int       `koanf:"description"`
}

// SimilarityConfig holds content-similarity settings.
type SimilarityConfig struct {
	TopK              int            `koanf:"top_k"`
	MinScore          float64        `koanf:"min_score"`
	MaxDocFreq        float64        `koanf:"max_df"`
	MaxDocFreqMinDocs int            `koanf:"max_df_min_docs"`
	DescriptionPrefix int            `koanf:"description_prefix"`
	Method            string         `koanf:"method"`
	Workers           int            `koanf:"workers"`
	Weights           FeatureWeights `koanf:"weights"`
}

// CollabConfig holds collaborative training settings.
type CollabConfig struct {
	Enabled         bool    `koanf:"enabled"`
	Factors         int     `koanf:"factors"`
	LearningRate    float64 `koanf:"learning_rate"`
	Regularization  float64 `koanf:"regularization"`
	Epochs          int     `koanf:"epochs"`
	NegativeSamples int     `koanf:"negative_samples"`
	Seed            int64   `koanf:"seed"`
	MinInteractions int     `koanf:"min_interactions"`
	TopN            int     `koanf:"top_n"`
	EvalCutoff      int     `koanf:"eval_cutoff"`
	Evaluate        bool    `koanf:"evaluate"`
	RatingPolicy    string  `koanf:"rating_policy"` // clamp or reject
	ModelDir        string  `koanf:"model_dir"`
	KeepVersions    int     `koanf:"keep_versions"`
}

// CohortConfig is one A/B weight profile.
type CohortConfig struct {
	Name          string  `koanf:"name"`
	Proportion    float64 `koanf:"proportion"`
	ContentWeight float64 `koanf:"content_weight"`
	CollabWeight  float64 `koanf:"collab_weight"`
	ModelTag      string  `koanf:"model_tag"`
}

// HybridConfig holds ranker settings.
type HybridConfig struct {
	Cohorts           []CohortConfig `koanf:"cohorts"`
	Normalization     string         `koanf:"normalization"` // minmax or bounded
	FavoriteMinRating float64        `koanf:"favorite_min_rating"`
	MaxFavorites      int            `koanf:"max_favorites"`
	ExcludeSameSeries bool           `koanf:"exclude_same_series"`
	DefaultLimit      int            `koanf:"default_limit"`
	MaxLimit          int            `koanf:"max_limit"`
	CacheTTL          time.Duration  `koanf:"cache_ttl"`
}

// PipelineConfig holds batch scheduling settings.
type PipelineConfig struct {
	Interval       time.Duration `koanf:"interval"`
	RunOnStartup   bool          `koanf:"run_on_startup"`
	Sources        []string      `koanf:"sources"`
	ImportDir      string        `koanf:"import_dir"`
	ArchiveDir     string        `koanf:"archive_dir"`
	JobTimeout     time.Duration `koanf:"job_timeout"`
	QualityChecks  bool          `koanf:"quality_checks"`
	MaterializeTop int           `koanf:"materialize_top"`
}

// NATSConfig holds JetStream ingestion settings.
type NATSConfig struct {
	Enabled                    bool          `koanf:"enabled"`
	URL                        string        `koanf:"url"`
	EmbeddedServer             bool          `koanf:"embedded_server"`
	StoreDir                   string        `koanf:"store_dir"`
	MaxMemory                  int64         `koanf:"max_memory"`
	MaxStore                   int64         `koanf:"max_store"`
	StreamName                 string        `koanf:"stream_name"`
	StreamRetentionDays        int           `koanf:"stream_retention_days"`
	DurableName                string        `koanf:"durable_name"`
	QueueGroup                 string        `koanf:"queue_group"`
	SubscribersCount           int           `koanf:"subscribers_count"`
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterThrottlePerSecond    int64         `koanf:"router_throttle_per_second"`
	RouterDeduplicationEnabled bool          `koanf:"router_deduplication_enabled"`
	RouterDeduplicationTTL     time.Duration `koanf:"router_deduplication_ttl"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
	PublishEntityChanges       bool          `koanf:"publish_entity_changes"`
}

// ServerConfig holds the operational HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}
