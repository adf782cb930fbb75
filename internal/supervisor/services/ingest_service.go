// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package services

import (
	"context"
	"errors"
	"fmt"
)

// IngestRunner is a started-and-stopped consumer. *eventprocessor.Ingest
// satisfies it.
type IngestRunner interface {
	Start(ctx context.Context) error
	Stop() error
}

// EventIngestFactory builds a fresh consumer. A watermill router cannot be run
// twice, so every (re)start of the service needs a new one.
type EventIngestFactory func() (IngestRunner, error)

// EventIngestService supervises the JetStream catalog consumers.
//
// Serve builds an ingest, starts it, waits for ctx and stops it. A build or
// start failure is returned so the messaging layer restarts the service
// with backoff.
type EventIngestService struct {
	factory EventIngestFactory
	name    string
}

// NewEventIngestService creates the ingest service.
func NewEventIngestService(factory EventIngestFactory) *EventIngestService {
	return &EventIngestService{
		factory: factory,
		name:    "catalog-ingest",
	}
}

// Serve implements suture.Service.
func (s *EventIngestService) Serve(ctx context.Context) error {
	in, err := s.factory()
	if err != nil {
		return fmt.Errorf("build catalog ingest: %w", err)
	}
	if err := in.Start(ctx); err != nil {
		stopErr := in.Stop()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Join(fmt.Errorf("start catalog ingest: %w", err), stopErr)
	}

	<-ctx.Done()

	if err := in.Stop(); err != nil {
		return errors.Join(ctx.Err(), fmt.Errorf("stop catalog ingest: %w", err))
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *EventIngestService) String() string {
	return s.name
}
