// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package services

import (
	"context"
	"time"

	"github.com/tomtom215/animedex/internal/logging"
)

// AuditCleaner deletes audit entries past their retention.
// *audit.Recorder satisfies it.
type AuditCleaner interface {
	Cleanup(ctx context.Context, now time.Time) (int64, error)
}

// AuditRetentionService runs audit cleanup on a fixed interval.
type AuditRetentionService struct {
	cleaner  AuditCleaner
	interval time.Duration
	now      func() time.Time
	name     string
}

// NewAuditRetentionService creates the retention service. It cleans once at
// start and then every interval; a non-positive interval means daily.
func NewAuditRetentionService(cleaner AuditCleaner, interval time.Duration) *AuditRetentionService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &AuditRetentionService{
		cleaner:  cleaner,
		interval: interval,
		now:      time.Now,
		name:     "audit-retention",
	}
}

// Serve implements suture.Service. Cleanup errors are logged only.
func (s *AuditRetentionService) Serve(ctx context.Context) error {
	s.cleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *AuditRetentionService) cleanup(ctx context.Context) {
	log := logging.WithComponent(s.name)
	n, err := s.cleaner.Cleanup(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Audit cleanup failed")
		}
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("Removed expired audit entries")
	}
}

// String implements fmt.Stringer.
func (s *AuditRetentionService) String() string {
	return s.name
}
