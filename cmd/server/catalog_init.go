// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package main

import (
	"errors"
	"fmt"

	"github.com/tomtom215/animedex/internal/adapters"
	"github.com/tomtom215/animedex/internal/audit"
	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/dedupe"
	"github.com/tomtom215/animedex/internal/keyindex"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/pipeline"
	"github.com/tomtom215/animedex/internal/quality"
	"github.com/tomtom215/animedex/internal/recommend"
	"github.com/tomtom215/animedex/internal/recommend/collab"
	"github.com/tomtom215/animedex/internal/recommend/storage"
	"github.com/tomtom215/animedex/internal/similarity"
)

// CatalogComponents holds the warehouse, the key index and everything the
// pipeline runner is built from.
type CatalogComponents struct {
	DB       *database.DB
	Keys     *keyindex.Store
	Registry *adapters.Registry
	Ranker   *recommend.Ranker
	Audit    *audit.Recorder
	Runner   *pipeline.Runner
}

// initCatalog opens the stores and builds the pipeline runner. publisher may
// be nil, in which case committed snapshots are not announced.
func initCatalog(cfg *config.Config, publisher pipeline.ChangePublisher) (*CatalogComponents, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	c := &CatalogComponents{DB: db}

	c.Keys, err = keyindex.Open(cfg.KeyIndex)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("open key index: %w", err)
	}
	c.Registry = adapters.NewDefaultRegistry()

	resolver, err := dedupe.NewResolver(cfg.Dedupe,
		dedupe.WithKeyLookup(c.Keys),
		dedupe.WithNormalizer(c.Registry),
	)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create resolver: %w", err)
	}
	source, err := pipeline.NewFileSource(cfg.Pipeline.ImportDir, cfg.Pipeline.ArchiveDir,
		cfg.Pipeline.Sources, c.Registry, cfg.Collab.RatingPolicy)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create import source: %w", err)
	}
	modelStore, err := storage.NewStore(cfg.Collab.ModelDir)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("open model store: %w", err)
	}

	c.Ranker = recommend.NewRanker(db, cfg.Hybrid, cfg.Similarity)
	c.Audit = audit.NewRecorder(db.AuditStore(), cfg.Audit)

	deps := pipeline.Deps{
		DB:         db,
		Resolver:   resolver,
		Similarity: similarity.NewEngine(cfg.Similarity),
		Keys:       c.Keys,
		Source:     source,
		Trainer:    collab.NewTrainer(cfg.Collab),
		Models:     modelStore,
		Quality:    quality.NewChecker(db.Conn(), db, quality.StandardChecks()...),
		Publisher:  publisher,
		Cache:      c.Ranker,
	}
	c.Runner, err = pipeline.NewRunner(cfg, deps)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create pipeline runner: %w", err)
	}

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("import_dir", cfg.Pipeline.ImportDir).
		Strs("sources", cfg.Pipeline.Sources).
		Str("strategy", cfg.Dedupe.Strategy).
		Bool("collab", cfg.Collab.Enabled).
		Msg("Catalog components initialized")
	return c, nil
}

// Close flushes the audit recorder and closes the stores. It is safe on a
// partially initialized value.
func (c *CatalogComponents) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Audit != nil {
		if err := c.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit recorder: %w", err))
		}
	}
	if c.Keys != nil {
		if err := c.Keys.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close key index: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close warehouse: %w", err))
		}
	}
	return errors.Join(errs...)
}
