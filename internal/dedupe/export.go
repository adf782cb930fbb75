// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package dedupe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/models"
)

// MappingRow is one line of the dedup map: a source record and the canonical
// entity it resolved to.
type MappingRow struct {
	SourceKey    string  `json:"source_key"`
	Source       string  `json:"source"`
	SourceID     string  `json:"source_id"`
	CanonicalID  int64   `json:"canonical_id"`
	CanonicalKey string  `json:"canonical_key"`
	Confidence   float64 `json:"confidence"`
}

// ExportMapping flattens the contributing sources of every entity into
// mapping rows ordered by source key.
func ExportMapping(entities []*models.CanonicalEntity) []MappingRow {
	var rows []MappingRow
	for _, e := range entities {
		for src, id := range e.ContributingSources {
			rows = append(rows, MappingRow{
				SourceKey:    models.SourceKey(src, id),
				Source:       src,
				SourceID:     id,
				CanonicalID:  e.CanonicalID,
				CanonicalKey: e.Key,
				Confidence:   e.Confidence,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SourceKey < rows[j].SourceKey })
	return rows
}

// MappingRowsFromKeys converts stored key mappings into mapping rows ordered
// by source key.
func MappingRowsFromKeys(mappings []models.KeyMapping) []MappingRow {
	rows := make([]MappingRow, 0, len(mappings))
	for i := range mappings {
		m := &mappings[i]
		rows = append(rows, MappingRow{
			SourceKey:    m.SourceKey(),
			Source:       m.Source,
			SourceID:     m.SourceID,
			CanonicalID:  m.CanonicalID,
			CanonicalKey: m.CanonicalKey,
			Confidence:   m.Confidence,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SourceKey < rows[j].SourceKey })
	return rows
}

// WriteMapping writes rows as an indented JSON array.
func WriteMapping(w io.Writer, rows []MappingRow) error {
	if rows == nil {
		rows = []MappingRow{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode dedup map: %w", err)
	}
	return nil
}

// WriteMappingFile writes the dedup map to path atomically.
func WriteMappingFile(path string, rows []MappingRow) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".dedup-map-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := WriteMapping(tmp, rows); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move dedup map into place: %w", err)
	}
	return nil
}
