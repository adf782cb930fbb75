// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package main

import (
	"time"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/eventprocessor"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/supervisor"
	"github.com/tomtom215/animedex/internal/supervisor/services"
)

const httpShutdownTimeout = 10 * time.Second

// buildSupervisorTree places every long-running service in its layer:
//
//	data-layer       pipeline-scheduler, audit-retention
//	messaging-layer  catalog-ingest (NATS only)
//	api-layer        http-server
func buildSupervisorTree(cfg *config.Config, catalog *CatalogComponents, nats *NATSComponents,
	server services.HTTPServer) (*supervisor.SupervisorTree, error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	tree.AddDataService(services.NewPipelineService(catalog.Runner, cfg.Pipeline))
	tree.AddDataService(services.NewAuditRetentionService(catalog.Audit, cfg.Audit.CleanupInterval))
	logging.Info().
		Dur("interval", cfg.Pipeline.Interval).
		Bool("run_on_startup", cfg.Pipeline.RunOnStartup).
		Int("audit_retention_days", cfg.Audit.RetentionDays).
		Msg("Pipeline scheduler and audit retention added to supervisor tree")

	if nats != nil {
		tree.AddMessagingService(services.NewEventIngestService(nats.IngestFactory(eventprocessor.IngestDeps{
			Sources:      cfg.Pipeline.Sources,
			Normalizer:   catalog.Registry,
			Stager:       catalog.DB,
			Ratings:      catalog.DB,
			RatingPolicy: cfg.Collab.RatingPolicy,
			Audit:        catalog.Audit,
		})))
		logging.Info().Strs("sources", cfg.Pipeline.Sources).Msg("Catalog ingest added to supervisor tree")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, httpShutdownTimeout))
	return tree, nil
}
