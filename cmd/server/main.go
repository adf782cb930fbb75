// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package main

import (
	"context"
	"errors"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tomtom215/animedex/internal/api"
	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/eventprocessor"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const closeTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	metrics.SetAppInfo(version, runtime.Version())
	logging.Info().Str("version", version).Msg("Starting Animedex with supervisor tree")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Animedex stopped with an error")
	}
	logging.Info().Msg("Shutdown complete")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nats, err := InitNATS(ctx, cfg, eventprocessor.ServerConfigFrom(&cfg.NATS))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		nats.Shutdown(shutdownCtx)
	}()

	catalog, err := initCatalog(cfg, nats.ChangePublisher())
	if err != nil {
		return err
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing catalog components")
		}
	}()

	checks := []api.HealthCheck{{
		Name:  "keyindex",
		Check: func(context.Context) error { return catalog.Keys.Ping() },
	}}
	if nats != nil {
		checks = append(checks, nats.HealthCheck())
	}
	handler, err := api.NewHandler(api.HandlerDeps{
		Store:       catalog.DB,
		Audit:       catalog.Audit.Store(),
		Runner:      catalog.Runner,
		Checks:      checks,
		BaseContext: ctx,
		Version:     version,
	})
	if err != nil {
		return err
	}
	server := api.NewServer(cfg.Server, api.NewRouter(cfg.Server, handler))

	tree, err := buildSupervisorTree(cfg, catalog, nats, server)
	if err != nil {
		return err
	}

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for services to stop...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	return nil
}
