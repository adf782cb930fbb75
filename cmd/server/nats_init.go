// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/animedex/internal/api"
	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/eventprocessor"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/pipeline"
	"github.com/tomtom215/animedex/internal/supervisor/services"
)

const natsHealthTimeout = 2 * time.Second

// NATSComponents holds the bus side of the server: the optional embedded
// server, the catalog stream and the shared publisher.
type NATSComponents struct {
	cfg       config.NATSConfig
	server    *eventprocessor.EmbeddedServer
	url       string
	publisher *eventprocessor.Publisher
	logger    watermill.LoggerAdapter
}

// InitNATS starts the embedded server when configured, provisions the
// catalog stream and creates the publisher. It returns nil when NATS is
// disabled. serverCfg is only used for the embedded server.
func InitNATS(ctx context.Context, cfg *config.Config, serverCfg eventprocessor.ServerConfig) (*NATSComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS ingest disabled (NATS_ENABLED=false)")
		return nil, nil
	}

	c := &NATSComponents{
		cfg:    cfg.NATS,
		url:    cfg.NATS.URL,
		logger: logging.NewWatermillAdapter(logging.WithComponent("nats")),
	}

	if cfg.NATS.EmbeddedServer {
		server, err := eventprocessor.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		c.server = server
		c.url = server.ClientURL()
		logging.Info().Str("url", c.url).Msg("Embedded NATS server started")
	} else {
		logging.Info().Str("url", c.url).Msg("Using external NATS server")
	}

	stream := eventprocessor.StreamConfigFrom(&cfg.NATS)
	if err := eventprocessor.EnsureCatalogStream(ctx, c.url, &stream); err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("ensure catalog stream: %w", err)
	}

	publisher, err := eventprocessor.NewPublisher(eventprocessor.DefaultPublisherConfig(c.url), c.logger)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	publisher.SetCircuitBreaker(eventprocessor.NewCircuitBreaker(
		eventprocessor.DefaultCircuitBreakerConfig("catalog-publisher")))
	c.publisher = publisher

	logging.Info().
		Str("stream", stream.Name).
		Strs("subjects", stream.Subjects).
		Bool("publish_entity_changes", cfg.NATS.PublishEntityChanges).
		Msg("NATS components initialized")
	return c, nil
}

// URL returns the client URL of the server in use.
func (c *NATSComponents) URL() string {
	if c == nil {
		return ""
	}
	return c.url
}

// ChangePublisher returns the publisher announcing committed snapshots, or
// nil when NATS is disabled or entity change events are turned off.
func (c *NATSComponents) ChangePublisher() pipeline.ChangePublisher {
	if c == nil || c.publisher == nil || !c.cfg.PublishEntityChanges {
		return nil
	}
	return c.publisher
}

// IngestFactory returns a factory building a fresh ingest on every call,
// consuming from durable JetStream subscribers. deps supplies the sources
// and stores; the subscriber factory and the poison publisher are filled in.
func (c *NATSComponents) IngestFactory(deps eventprocessor.IngestDeps) services.EventIngestFactory {
	return func() (services.IngestRunner, error) {
		d := deps
		d.NewSubscriber = eventprocessor.NATSSubscriberFactory(&c.cfg, c.url, c.logger)
		if c.publisher != nil {
			d.PoisonPublisher = c.publisher.WatermillPublisher()
		}
		rcfg := eventprocessor.RouterConfigFrom(&c.cfg)
		in, err := eventprocessor.NewIngest(&rcfg, &d, c.logger)
		if err != nil {
			return nil, err
		}
		return in, nil
	}
}

// HealthCheck reports whether the server accepts connections and the
// catalog stream exists.
func (c *NATSComponents) HealthCheck() api.HealthCheck {
	return api.HealthCheck{
		Name: "nats",
		Check: func(ctx context.Context) error {
			if c.server != nil && !c.server.IsRunning() {
				return errors.New("embedded NATS server is not running")
			}
			nc, err := natsgo.Connect(c.url, natsgo.Timeout(natsHealthTimeout))
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("jetstream: %w", err)
			}
			if _, err := js.Stream(ctx, c.cfg.StreamName); err != nil {
				return fmt.Errorf("stream %s: %w", c.cfg.StreamName, err)
			}
			return nil
		},
	}
}

// Shutdown closes the publisher and stops the embedded server. Safe on nil.
func (c *NATSComponents) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing NATS publisher")
		}
		c.publisher = nil
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Error stopping embedded NATS server")
		}
		c.server = nil
	}
	logging.Info().Msg("NATS components stopped")
}
