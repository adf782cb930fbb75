// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/animedex/internal/config"
)

// SubscriberFactory creates the subscriber for one named consumer.
type SubscriberFactory func(name string) (message.Subscriber, error)

// NATSSubscriberFactory returns a factory creating one durable JetStream
// subscriber per consumer, bound to the catalog stream.
func NATSSubscriberFactory(cfg *config.NATSConfig, url string, logger watermill.LoggerAdapter) SubscriberFactory {
	return func(name string) (message.Subscriber, error) {
		sc := SubscriberConfigFrom(cfg, url, name)
		return NewSubscriber(&sc, logger)
	}
}

// IngestDeps are the collaborators of the ingest consumers.
type IngestDeps struct {
	// Sources lists the record sources to consume, one topic each.
	Sources      []string
	Normalizer   RecordNormalizer
	Stager       RecordStager
	Ratings      RatingStore
	RatingPolicy string

	// NewSubscriber creates each consumer's subscriber.
	NewSubscriber SubscriberFactory

	// PoisonPublisher receives permanently failing messages. Optional.
	PoisonPublisher message.Publisher

	// Audit records malformed records as rejects. Optional.
	Audit AuditRecorder
}

// Ingest owns the router consuming records and ratings from the bus.
type Ingest struct {
	router      *Router
	mu          sync.Mutex
	subscribers []message.Subscriber
	logger      watermill.LoggerAdapter
}

// NewIngest registers one record handler per source and, when a rating
// store is given, the rating handler.
func NewIngest(rcfg *RouterConfig, deps *IngestDeps, logger watermill.LoggerAdapter) (*Ingest, error) {
	if deps == nil || deps.NewSubscriber == nil {
		return nil, fmt.Errorf("%w: ingest needs a subscriber factory", ErrInvalidConfig)
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	router, err := NewRouter(rcfg, deps.PoisonPublisher, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	in := &Ingest{router: router, logger: logger}

	for _, source := range deps.Sources {
		h, err := NewRecordHandler(source, deps.Normalizer, deps.Stager)
		if err != nil {
			_ = in.closeSubscribers()
			return nil, err
		}
		if deps.Audit != nil {
			h.SetAuditRecorder(deps.Audit)
		}
		name := "records-" + source
		sub, err := deps.NewSubscriber(name)
		if err != nil {
			_ = in.closeSubscribers()
			return nil, fmt.Errorf("create subscriber %s: %w", name, err)
		}
		in.subscribers = append(in.subscribers, sub)
		router.AddConsumerHandler(name, RecordTopic(source), sub, h.Handle)
	}

	if deps.Ratings != nil {
		h, err := NewRatingHandler(deps.Ratings, deps.RatingPolicy)
		if err != nil {
			_ = in.closeSubscribers()
			return nil, err
		}
		sub, err := deps.NewSubscriber("ratings")
		if err != nil {
			_ = in.closeSubscribers()
			return nil, fmt.Errorf("create subscriber ratings: %w", err)
		}
		in.subscribers = append(in.subscribers, sub)
		router.AddConsumerHandler("ratings", SubjectRatings, sub, h.Handle)
	}

	if router.HandlerCount() == 0 {
		return nil, fmt.Errorf("%w: no sources or rating store to consume for", ErrInvalidConfig)
	}
	return in, nil
}

// Router returns the underlying router.
func (in *Ingest) Router() *Router { return in.router }

// Run consumes until ctx is canceled. It blocks.
func (in *Ingest) Run(ctx context.Context) error {
	in.logger.Info("Catalog ingest starting", watermill.LogFields{"handlers": in.router.HandlerCount()})
	err := in.router.Run(ctx)
	if closeErr := in.closeSubscribers(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Start runs the router in the background and returns once every handler
// is subscribed or ctx is done.
func (in *Ingest) Start(ctx context.Context) error {
	running := in.router.RunAsync(ctx)
	select {
	case <-running:
		in.logger.Info("Catalog ingest started", watermill.LogFields{"handlers": in.router.HandlerCount()})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the router and the subscribers.
func (in *Ingest) Stop() error {
	var errs []error
	if err := in.router.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close router: %w", err))
	}
	if err := in.closeSubscribers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (in *Ingest) closeSubscribers() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	var errs []error
	for _, sub := range in.subscribers {
		if err := sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	in.subscribers = nil
	return errors.Join(errs...)
}
