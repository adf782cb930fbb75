// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package config

import (
	"fmt"
	"math"
	"strings"
)

// cohortSumTolerance bounds rounding error when cohort proportions are summed.
const cohortSumTolerance = 1e-6

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateDedupe(); err != nil {
		return err
	}

	if err := c.validateSimilarity(); err != nil {
		return err
	}

	if err := c.validateCollab(); err != nil {
		return err
	}

	if err := c.validateHybrid(); err != nil {
		return err
	}

	if err := c.validatePipeline(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be non-negative, got %d", c.Database.Threads)
	}
	if !c.KeyIndex.InMemory && c.KeyIndex.Path == "" {
		return fmt.Errorf("KEYINDEX_PATH is required unless KEYINDEX_IN_MEMORY=true")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be non-negative, got %d", c.Audit.RetentionDays)
	}
	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("audit.buffer_size must be at least 1, got %d", c.Audit.BufferSize)
	}
	return nil
}

func (c *Config) validateDedupe() error {
	d := c.Dedupe
	if d.Threshold <= 0 || d.Threshold > 1 {
		return fmt.Errorf("DEDUPE_THRESHOLD must be in (0, 1], got %v", d.Threshold)
	}
	if d.AmbiguityDelta < 0 || d.AmbiguityDelta >= 1 {
		return fmt.Errorf("DEDUPE_AMBIGUITY_DELTA must be in [0, 1), got %v", d.AmbiguityDelta)
	}
	if d.MergeWeight <= 0 {
		return fmt.Errorf("dedupe.merge_weight must be positive, got %v", d.MergeWeight)
	}
	switch d.Strategy {
	case StrategyTokenSortBlend, StrategyTokenSet, StrategyTokenSort, StrategyLevenshtein:
	default:
		return fmt.Errorf("DEDUPE_STRATEGY must be one of %s, %s, %s, %s; got %q",
			StrategyTokenSortBlend, StrategyTokenSet, StrategyTokenSort, StrategyLevenshtein, d.Strategy)
	}
	if err := validateFieldWeights(d.Weights); err != nil {
		return err
	}
	if d.Blocking.PrefixLength < 1 {
		return fmt.Errorf("dedupe.blocking.prefix_length must be at least 1, got %d", d.Blocking.PrefixLength)
	}
	if d.Blocking.MinTokenLength < 1 {
		return fmt.Errorf("dedupe.blocking.min_token_length must be at least 1, got %d", d.Blocking.MinTokenLength)
	}
	if d.Blocking.MaxCandidates < 1 {
		return fmt.Errorf("DEDUPE_MAX_CANDIDATES must be at least 1, got %d", d.Blocking.MaxCandidates)
	}
	if d.Blocking.YearBucket < 0 {
		return fmt.Errorf("dedupe.blocking.year_bucket must be non-negative, got %d", d.Blocking.YearBucket)
	}
	if d.Workers < 0 {
		return fmt.Errorf("DEDUPE_WORKERS must be non-negative, got %d", d.Workers)
	}
	return nil
}

func validateFieldWeights(w FieldWeights) error {
	for name, v := range map[string]float64{"title": w.Title, "year": w.Year, "format": w.Format, "tags": w.Tags} {
		if v < 0 {
			return fmt.Errorf("dedupe.weights.%s must be non-negative, got %v", name, v)
		}
	}
	if w.Title <= 0 {
		return fmt.Errorf("dedupe.weights.title must be positive, got %v", w.Title)
	}
	return nil
}

func (c *Config) validateSimilarity() error {
	s := c.Similarity
	if s.TopK < 1 {
		return fmt.Errorf("SIMILARITY_TOP_K must be at least 1, got %d", s.TopK)
	}
	if s.MinScore < 0 || s.MinScore > 1 {
		return fmt.Errorf("SIMILARITY_MIN_SCORE must be in [0, 1], got %v", s.MinScore)
	}
	if s.MaxDocFreq <= 0 || s.MaxDocFreq > 1 {
		return fmt.Errorf("SIMILARITY_MAX_DF must be in (0, 1], got %v", s.MaxDocFreq)
	}
	if s.DescriptionPrefix < 0 {
		return fmt.Errorf("similarity.description_prefix must be non-negative, got %d", s.DescriptionPrefix)
	}
	if len(s.Weights.TagTiers) == 0 {
		return fmt.Errorf("similarity.weights.tag_tiers must define at least one tier")
	}
	for i, tier := range s.Weights.TagTiers {
		if tier.Repeat < 0 {
			return fmt.Errorf("similarity.weights.tag_tiers[%d].repeat must be non-negative", i)
		}
		if i > 0 && tier.MinRank >= s.Weights.TagTiers[i-1].MinRank {
			return fmt.Errorf("similarity.weights.tag_tiers must be ordered by descending min_rank")
		}
	}
	return nil
}

func (c *Config) validateCollab() error {
	cl := c.Collab
	if !cl.Enabled {
		return nil
	}
	if cl.Factors < 1 {
		return fmt.Errorf("COLLAB_FACTORS must be at least 1, got %d", cl.Factors)
	}
	if cl.LearningRate <= 0 {
		return fmt.Errorf("COLLAB_LEARNING_RATE must be positive, got %v", cl.LearningRate)
	}
	if cl.Regularization < 0 {
		return fmt.Errorf("COLLAB_REGULARIZATION must be non-negative, got %v", cl.Regularization)
	}
	if cl.Epochs < 1 {
		return fmt.Errorf("COLLAB_EPOCHS must be at least 1, got %d", cl.Epochs)
	}
	if cl.NegativeSamples < 1 {
		return fmt.Errorf("COLLAB_NEGATIVE_SAMPLES must be at least 1, got %d", cl.NegativeSamples)
	}
	if cl.MinInteractions < 1 {
		return fmt.Errorf("COLLAB_MIN_INTERACTIONS must be at least 1, got %d", cl.MinInteractions)
	}
	if cl.TopN < 1 {
		return fmt.Errorf("collab.top_n must be at least 1, got %d", cl.TopN)
	}
	if cl.RatingPolicy != RatingPolicyClamp && cl.RatingPolicy != RatingPolicyReject {
		return fmt.Errorf("COLLAB_RATING_POLICY must be %s or %s, got %q", RatingPolicyClamp, RatingPolicyReject, cl.RatingPolicy)
	}
	if cl.ModelDir == "" {
		return fmt.Errorf("COLLAB_MODEL_DIR is required when COLLAB_ENABLED=true")
	}
	return nil
}

func (c *Config) validateHybrid() error {
	h := c.Hybrid
	if len(h.Cohorts) == 0 {
		return fmt.Errorf("hybrid.cohorts must define at least one cohort")
	}
	seen := make(map[string]bool, len(h.Cohorts))
	var sum float64
	for _, cohort := range h.Cohorts {
		if cohort.Name == "" {
			return fmt.Errorf("hybrid.cohorts entries require a name")
		}
		if seen[cohort.Name] {
			return fmt.Errorf("hybrid.cohorts has duplicate cohort %q", cohort.Name)
		}
		seen[cohort.Name] = true
		if cohort.Proportion < 0 {
			return fmt.Errorf("cohort %q proportion must be non-negative", cohort.Name)
		}
		if cohort.ContentWeight < 0 || cohort.CollabWeight < 0 {
			return fmt.Errorf("cohort %q weights must be non-negative", cohort.Name)
		}
		if math.Abs(cohort.ContentWeight+cohort.CollabWeight-1) > cohortSumTolerance {
			return fmt.Errorf("cohort %q weights must sum to 1, got %v", cohort.Name, cohort.ContentWeight+cohort.CollabWeight)
		}
		sum += cohort.Proportion
	}
	if math.Abs(sum-1) > cohortSumTolerance {
		return fmt.Errorf("hybrid.cohorts proportions must sum to 1, got %v", sum)
	}
	if h.Normalization != NormalizationMinMax && h.Normalization != NormalizationBounded {
		return fmt.Errorf("HYBRID_NORMALIZATION must be %s or %s, got %q", NormalizationMinMax, NormalizationBounded, h.Normalization)
	}
	if h.MaxFavorites < 1 {
		return fmt.Errorf("hybrid.max_favorites must be at least 1, got %d", h.MaxFavorites)
	}
	if h.DefaultLimit < 1 || h.MaxLimit < h.DefaultLimit {
		return fmt.Errorf("hybrid limits invalid: default %d, max %d", h.DefaultLimit, h.MaxLimit)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Interval < 0 {
		return fmt.Errorf("PIPELINE_INTERVAL must be non-negative, got %v", c.Pipeline.Interval)
	}
	if c.Pipeline.JobTimeout <= 0 {
		return fmt.Errorf("PIPELINE_JOB_TIMEOUT must be positive, got %v", c.Pipeline.JobTimeout)
	}
	for _, src := range c.Pipeline.Sources {
		switch strings.ToLower(src) {
		case "anilist", "myanimelist", "kitsu":
		default:
			return fmt.Errorf("PIPELINE_SOURCES contains unknown source %q", src)
		}
	}
	return nil
}

// validateNATS validates NATS configuration (only if enabled)
func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true and NATS_EMBEDDED=false")
	}
	if c.NATS.StreamName == "" {
		return fmt.Errorf("NATS_STREAM_NAME is required when NATS_ENABLED=true")
	}
	if c.NATS.MaxMemory < 0 || c.NATS.MaxStore < 0 {
		return fmt.Errorf("NATS_MAX_MEMORY and NATS_MAX_STORE must be non-negative")
	}
	if c.NATS.StreamRetentionDays < 1 {
		return fmt.Errorf("NATS_RETENTION_DAYS must be at least 1, got %d", c.NATS.StreamRetentionDays)
	}
	if c.NATS.SubscribersCount < 1 {
		return fmt.Errorf("NATS_SUBSCRIBERS must be at least 1, got %d", c.NATS.SubscribersCount)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Server.RateLimitDisabled && c.Server.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Server.RateLimitRequests)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled", "":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
