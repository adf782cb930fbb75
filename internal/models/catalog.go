// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Source names understood by the adapter registry.
const (
	SourceAniList     = "anilist"
	SourceMyAnimeList = "myanimelist"
	SourceKitsu       = "kitsu"
)

// Tag is a descriptive tag with an optional relevance rank (0-100).
type Tag struct {
	Name string `json:"name" validate:"required"`
	Rank int    `json:"rank,omitempty" validate:"gte=0,lte=100"`
}

// StaffCredit is a single role-to-person credit.
type StaffCredit struct {
	Role string `json:"role"`
	Name string `json:"name" validate:"required"`
}

// SourceRecord is one item as extracted from one source, normalized into the
// shared shape by a source adapter. Records are immutable once built.
type SourceRecord struct {
	Source          string        `json:"source" validate:"required,animesource"`
	SourceID        string        `json:"source_id" validate:"required"`
	Title           string        `json:"title" validate:"required"`
	TitleAliases    []string      `json:"title_aliases,omitempty"`
	Tags            []Tag         `json:"tags,omitempty" validate:"dive"`
	Genres          []string      `json:"genres,omitempty"`
	Studios         []string      `json:"studios,omitempty"`
	Staff           []StaffCredit `json:"staff,omitempty" validate:"dive"`
	ReleaseYear     int           `json:"release_year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	Season          string        `json:"season,omitempty" validate:"omitempty,oneof=winter spring summer fall"`
	Format          string        `json:"format,omitempty" validate:"omitempty,oneof=TV TV_SHORT MOVIE OVA ONA SPECIAL MUSIC"`
	Episodes        int           `json:"episodes,omitempty" validate:"gte=0"`
	DurationMinutes int           `json:"duration_minutes,omitempty" validate:"gte=0"`
	SourceMaterial  string        `json:"source_material,omitempty"`
	Description     string        `json:"description,omitempty"`
	RawScore        float64       `json:"raw_score,omitempty" validate:"finite"`
	Score           float64       `json:"score,omitempty" validate:"finite,gte=0,lte=100"`
	Popularity      int64         `json:"popularity,omitempty" validate:"gte=0"`
	Relations       []string      `json:"relations,omitempty"`
	ExtractedAt     time.Time     `json:"extracted_at"`
}

// Key returns the natural key "source#id" used for idempotent ingestion.
func (r *SourceRecord) Key() string {
	return SourceKey(r.Source, r.SourceID)
}

// SourceKey builds the natural key for a source record.
func SourceKey(source, sourceID string) string {
	return source + "#" + sourceID
}

// TitleVariants returns the primary title followed by its aliases, without
// empty strings or exact duplicates.
func (r *SourceRecord) TitleVariants() []string {
	out := make([]string, 0, 1+len(r.TitleAliases))
	seen := make(map[string]struct{}, 1+len(r.TitleAliases))
	for _, t := range append([]string{r.Title}, r.TitleAliases...) {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ContentHash returns a stable digest of the record's content. ExtractedAt is
// excluded so that re-extracting unchanged data hashes identically.
func (r *SourceRecord) ContentHash() string {
	c := *r
	c.ExtractedAt = time.Time{}
	data, err := json.Marshal(&c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// CanonicalEntity is the deduplicated representation of one title across all
// sources. Each row is one version; superseded versions are retained.
type CanonicalEntity struct {
	CanonicalID         int64              `json:"canonical_id"`
	Key                 string             `json:"key"`
	Title               string             `json:"title"`
	Aliases             []string           `json:"aliases,omitempty"`
	Tags                []Tag              `json:"tags,omitempty"`
	Genres              []string           `json:"genres,omitempty"`
	Studios             []string           `json:"studios,omitempty"`
	Staff               []StaffCredit      `json:"staff,omitempty"`
	ReleaseYear         int                `json:"release_year,omitempty"`
	Season              string             `json:"season,omitempty"`
	Format              string             `json:"format,omitempty"`
	Episodes            int                `json:"episodes,omitempty"`
	SourceMaterial      string             `json:"source_material,omitempty"`
	Description         string             `json:"description,omitempty"`
	Score               float64            `json:"score,omitempty"`
	Popularity          int64              `json:"popularity,omitempty"`
	ContributingSources map[string]string  `json:"contributing_sources"`
	SourceScores        map[string]float64 `json:"source_scores,omitempty"`
	Confidence          float64            `json:"confidence"`
	MergeEvidence       MergeEvidence      `json:"merge_evidence"`
	Version             int                `json:"version"`
	SnapshotVersion     int64              `json:"snapshot_version"`
	IsCurrent           bool               `json:"is_current"`
	ValidFrom           time.Time          `json:"valid_from"`
	ValidTo             *time.Time         `json:"valid_to,omitempty"`
}

// MergeEvidence accumulates the pairwise merge scores that built a cluster.
type MergeEvidence struct {
	ScoreSum  float64 `json:"score_sum"`
	WeightSum float64 `json:"weight_sum"`
	Merges    int     `json:"merges"`
}

// TitleVariants returns the entity title followed by every known alias.
func (e *CanonicalEntity) TitleVariants() []string {
	out := make([]string, 0, 1+len(e.Aliases))
	out = append(out, e.Title)
	for _, a := range e.Aliases {
		if a != e.Title {
			out = append(out, a)
		}
	}
	return out
}

// SourceCount returns the number of contributing source records.
func (e *CanonicalEntity) SourceCount() int {
	return len(e.ContributingSources)
}

// SourceKeys returns the sorted natural keys of the contributing records.
func (e *CanonicalEntity) SourceKeys() []string {
	keys := make([]string, 0, len(e.ContributingSources))
	for src, id := range e.ContributingSources {
		keys = append(keys, SourceKey(src, id))
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy so that a new version can be built without
// mutating the previous one.
func (e *CanonicalEntity) Clone() *CanonicalEntity {
	c := *e
	c.Aliases = append([]string(nil), e.Aliases...)
	c.Tags = append([]Tag(nil), e.Tags...)
	c.Genres = append([]string(nil), e.Genres...)
	c.Studios = append([]string(nil), e.Studios...)
	c.Staff = append([]StaffCredit(nil), e.Staff...)
	c.ContributingSources = make(map[string]string, len(e.ContributingSources))
	for k, v := range e.ContributingSources {
		c.ContributingSources[k] = v
	}
	c.SourceScores = make(map[string]float64, len(e.SourceScores))
	for k, v := range e.SourceScores {
		c.SourceScores[k] = v
	}
	if e.ValidTo != nil {
		t := *e.ValidTo
		c.ValidTo = &t
	}
	return &c
}

// Snapshot is an immutable catalog version produced by one dedupe run.
type Snapshot struct {
	Version      int64     `json:"version"`
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
	EntityCount  int       `json:"entity_count"`
	ChangedCount int       `json:"changed_count"`
	Fingerprint  string    `json:"fingerprint"`
}

// KeyMapping records which canonical entity a source record resolved to and
// the content hash it had when last ingested.
type KeyMapping struct {
	Source       string    `json:"source"`
	SourceID     string    `json:"source_id"`
	CanonicalID  int64     `json:"canonical_id"`
	CanonicalKey string    `json:"canonical_key"`
	ContentHash  string    `json:"content_hash"`
	Confidence   float64   `json:"confidence"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SourceKey returns the natural key of the mapped record.
func (m *KeyMapping) SourceKey() string {
	return SourceKey(m.Source, m.SourceID)
}

// ContentFingerprint digests the merged content of an entity. Version and
// validity fields are excluded so two versions with the same content share a
// fingerprint.
func (e *CanonicalEntity) ContentFingerprint() string {
	c := *e
	c.Version = 0
	c.SnapshotVersion = 0
	c.IsCurrent = false
	c.ValidFrom = time.Time{}
	c.ValidTo = nil
	data, err := json.Marshal(&c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
