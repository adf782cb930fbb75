// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/animedex/internal/api"
	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/pipeline"
)

const aniListImport = `[{"id":19,"title":{"romaji":"Monster"},"format":"TV","seasonYear":2004,"genres":["Mystery"]},` +
	`{"id":1,"title":{"romaji":"Cowboy Bebop"},"format":"TV","seasonYear":1998,"genres":["Action","Sci-Fi"]}]`

func catalogTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB", Threads: 2},
		KeyIndex: config.KeyIndexConfig{InMemory: true},
		Audit:    config.AuditConfig{RetentionDays: 30, CleanupInterval: time.Hour, BufferSize: 16},
		Dedupe: config.DedupeConfig{
			Threshold:      0.85,
			AmbiguityDelta: 0.01,
			Strategy:       config.StrategyTokenSortBlend,
			MergeWeight:    1,
			Weights:        config.FieldWeights{Title: 0.70, Year: 0.10, Format: 0.05, Tags: 0.15},
			Blocking: config.BlockingConfig{
				PrefixLength:   5,
				MinTokenLength: 3,
				MaxCandidates:  50,
				YearFallback:   true,
				YearBucket:     1,
			},
			Workers:    2,
			ExportPath: filepath.Join(dir, "dedup_map.json"),
		},
		Similarity: config.SimilarityConfig{
			TopK:              10,
			MinScore:          0.01,
			MaxDocFreq:        0.8,
			MaxDocFreqMinDocs: 10,
			DescriptionPrefix: 200,
			Method:            "tfidf_cosine",
			Workers:           2,
			Weights: config.FeatureWeights{
				TagTiers: []config.TagTier{{MinRank: 80, Repeat: 6}, {MinRank: 0, Repeat: 2}},
				Genre:    2,
				Studio:   3,
				Staff:    2,
				Source:   1,
				Era:      1,
				Season:   1,
			},
		},
		Collab: config.CollabConfig{
			Factors:         4,
			Epochs:          3,
			NegativeSamples: 1,
			Seed:            7,
			MinInteractions: 1,
			TopN:            5,
			RatingPolicy:    config.RatingPolicyClamp,
			ModelDir:        filepath.Join(dir, "models"),
			KeepVersions:    2,
		},
		Pipeline: config.PipelineConfig{
			Interval:       time.Hour,
			Sources:        []string{"anilist", "kitsu"},
			ImportDir:      filepath.Join(dir, "import"),
			JobTimeout:     time.Minute,
			QualityChecks:  true,
			MaterializeTop: 5,
		},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, RateLimitDisabled: true},
	}
	if err := os.MkdirAll(cfg.Pipeline.ImportDir, 0o750); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestInitCatalog(t *testing.T) {
	cfg := catalogTestConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.Pipeline.ImportDir, "anilist_1.json"), []byte(aniListImport), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := initCatalog(cfg, nil)
	if err != nil {
		t.Fatalf("initCatalog() error = %v", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	res, err := c.Runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != pipeline.StatusSuccess || res.SnapshotVersion != 1 {
		t.Errorf("Run() = status %q snapshot %d (%s), want success at snapshot 1",
			res.Status, res.SnapshotVersion, res.Error)
	}
	if err := c.Keys.Ping(); err != nil {
		t.Errorf("Keys.Ping() error = %v", err)
	}
}

func TestInitCatalog_InvalidStrategy(t *testing.T) {
	cfg := catalogTestConfig(t)
	cfg.Dedupe.Strategy = "soundex"

	if _, err := initCatalog(cfg, nil); err == nil {
		t.Fatal("initCatalog() error = nil, want error for an unknown strategy")
	}
}

func TestCatalogComponents_CloseNil(t *testing.T) {
	t.Parallel()

	var c *CatalogComponents
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v, want nil", err)
	}
	if err := (&CatalogComponents{}).Close(); err != nil {
		t.Errorf("Close() on empty = %v, want nil", err)
	}
}

func TestSupervisorTree_RunsPipelineOnStartup(t *testing.T) {
	cfg := catalogTestConfig(t)
	cfg.Pipeline.RunOnStartup = true

	c, err := initCatalog(cfg, nil)
	if err != nil {
		t.Fatalf("initCatalog() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	handler, err := api.NewHandler(api.HandlerDeps{Store: c.DB, Audit: c.Audit.Store(), Runner: c.Runner})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := api.NewServer(cfg.Server, api.NewRouter(cfg.Server, handler))

	tree, err := buildSupervisorTree(cfg, c, nil, server)
	if err != nil {
		t.Fatalf("buildSupervisorTree() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(30 * time.Second)
	for {
		run, err := c.DB.LastPipelineRun(context.Background())
		if err == nil && run.Status == pipeline.StatusSuccess {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("no successful pipeline run recorded: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("supervisor error = %v", err)
		}
	}
}
