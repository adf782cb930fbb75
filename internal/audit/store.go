// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/models"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	entries []models.AuditEntry
	mu      sync.RWMutex
	maxLen  int
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		entries: make([]models.AuditEntry, 0, maxLen),
		maxLen:  maxLen,
	}
}

// Save persists a batch of entries.
func (s *MemoryStore) Save(ctx context.Context, entries []models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range entries {
		// Enforce max length by removing oldest entries
		if len(s.entries) >= s.maxLen {
			removeCount := max(s.maxLen/10, 1)
			s.entries = s.entries[removeCount:]
		}
		s.entries = append(s.entries, entries[i])
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			entry := s.entries[i]
			return &entry, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// Query retrieves entries matching the filter.
func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.AuditEntry
	skipped := 0
	n := len(s.entries)
	for k := 0; k < n; k++ {
		i := k
		if filter.OrderDesc {
			i = n - 1 - k
		}
		entry := s.entries[i]
		if !matchesFilter(&entry, &filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		results = append(results, entry)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// matchesFilter returns true if the entry matches all filter criteria.
func matchesFilter(entry *models.AuditEntry, filter *QueryFilter) bool {
	if len(filter.Sources) > 0 && !contains(filter.Sources, entry.Source) {
		return false
	}
	if len(filter.Decisions) > 0 && !contains(filter.Decisions, entry.Decision) {
		return false
	}
	if filter.SourceID != "" && entry.SourceID != filter.SourceID {
		return false
	}
	if filter.CanonicalID != 0 && entry.CanonicalID != filter.CanonicalID {
		return false
	}
	if filter.RunID != "" && entry.RunID != filter.RunID {
		return false
	}
	if filter.AmbiguousOnly && !entry.Ambiguous {
		return false
	}
	if filter.StartTime != nil && entry.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && entry.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// Count returns the number of entries matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.entries {
		if matchesFilter(&s.entries[i], &filter) {
			count++
		}
	}
	return count, nil
}

// Delete removes entries older than the given time.
func (s *MemoryStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for idx := range s.entries {
		if s.entries[idx].Timestamp.Before(olderThan) {
			deleted++
		} else {
			kept = append(kept, s.entries[idx])
		}
	}
	s.entries = kept
	return deleted, nil
}

// Stats summarizes the stored entries.
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := newStats()
	for i := range s.entries {
		e := &s.entries[i]
		stats.TotalEntries++
		stats.ByDecision[string(e.Decision)]++
		stats.BySource[e.Source]++
		if e.Ambiguous {
			stats.Ambiguous++
		}
		ts := e.Timestamp
		if stats.OldestEntry == nil || ts.Before(*stats.OldestEntry) {
			stats.OldestEntry = &ts
		}
		if stats.NewestEntry == nil || ts.After(*stats.NewestEntry) {
			stats.NewestEntry = &ts
		}
	}
	return stats, nil
}

// Clear removes all entries (for testing).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
}

// Len returns the number of entries in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ExportJSON renders entries as an indented JSON array.
func ExportJSON(entries []models.AuditEntry) ([]byte, error) {
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}
