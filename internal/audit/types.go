// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/animedex/internal/models"
)

// ErrEntryNotFound is returned by Get when no entry has the requested id.
var ErrEntryNotFound = errors.New("audit entry not found")

// Store defines the interface for merge audit persistence.
type Store interface {
	// Save persists a batch of entries.
	Save(ctx context.Context, entries []models.AuditEntry) error

	// Get retrieves an entry by ID.
	Get(ctx context.Context, id string) (*models.AuditEntry, error)

	// Query retrieves entries matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]models.AuditEntry, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes entries older than the retention cutoff.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)

	// Stats summarizes the stored entries.
	Stats(ctx context.Context) (*Stats, error)
}

// QueryFilter defines filtering options for audit queries. Zero values do
// not filter.
type QueryFilter struct {
	Sources       []string          `json:"sources,omitempty"`
	Decisions     []models.Decision `json:"decisions,omitempty"`
	SourceID      string            `json:"source_id,omitempty"`
	CanonicalID   int64             `json:"canonical_id,omitempty"`
	RunID         string            `json:"run_id,omitempty"`
	AmbiguousOnly bool              `json:"ambiguous_only,omitempty"`
	StartTime     *time.Time        `json:"start_time,omitempty"`
	EndTime       *time.Time        `json:"end_time,omitempty"`

	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty"`

	// Offset for pagination.
	Offset int `json:"offset,omitempty"`

	// OrderDesc returns the newest entries first.
	OrderDesc bool `json:"order_desc,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{
		Limit:     100,
		OrderDesc: true,
	}
}

// Stats contains statistics about the audit log.
type Stats struct {
	TotalEntries int64            `json:"total_entries"`
	ByDecision   map[string]int64 `json:"by_decision"`
	BySource     map[string]int64 `json:"by_source"`
	Ambiguous    int64            `json:"ambiguous"`
	OldestEntry  *time.Time       `json:"oldest_entry,omitempty"`
	NewestEntry  *time.Time       `json:"newest_entry,omitempty"`
}

func newStats() *Stats {
	return &Stats{
		ByDecision: make(map[string]int64),
		BySource:   make(map[string]int64),
	}
}
