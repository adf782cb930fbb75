// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package recommend

import (
	"context"
	"time"

	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/models"
)

// FallbackPopularity marks results served from the popularity ranking.
const FallbackPopularity = "popularity"

// Stale reasons reported on a Result.
const (
	StaleSimilarity = "similarity_behind_catalog"
	StaleModel      = "model_behind_catalog"
)

// Query is a recommendation request.
type Query struct {
	// UserID is the requesting user. Empty for anonymous requests.
	UserID string `json:"user_id,omitempty"`

	// EntityID anchors "more like this" requests. Zero uses the user's
	// favorites as anchors instead.
	EntityID int64 `json:"entity_id,omitempty"`

	// Limit is the number of items to return. Zero uses the configured default.
	Limit int `json:"limit,omitempty"`

	// ExcludeSameSeries drops other entries of the anchor's franchise and
	// keeps one item per franchise. Nil uses the configured default.
	ExcludeSameSeries *bool `json:"exclude_same_series,omitempty"`
}

// Item is one ranked recommendation with its score breakdown.
type Item struct {
	CanonicalID  int64   `json:"canonical_id"`
	Title        string  `json:"title"`
	Score        float64 `json:"score"`
	ContentScore float64 `json:"content_score"`
	CollabScore  float64 `json:"collab_score"`
	Popularity   int64   `json:"popularity"`
	Reason       string  `json:"reason"`
}

// Result is the ranked list plus the state it was computed against.
type Result struct {
	Items  []Item `json:"items"`
	Cohort string `json:"cohort"`

	// ContentWeight and CollabWeight are the weights actually applied after
	// cold-start renormalization. They always sum to 1.
	ContentWeight float64 `json:"content_weight"`
	CollabWeight  float64 `json:"collab_weight"`
	ColdStart     bool    `json:"cold_start"`

	// Fallback names the ranking used when no personalized signal exists.
	Fallback string `json:"fallback,omitempty"`

	CatalogSnapshot int64    `json:"catalog_snapshot"`
	EdgeSnapshot    int64    `json:"edge_snapshot,omitempty"`
	ModelVersion    int      `json:"model_version,omitempty"`
	Stale           bool     `json:"stale"`
	StaleReasons    []string `json:"stale_reasons,omitempty"`

	CacheHit    bool      `json:"cache_hit"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DataSource is the read side of the warehouse the ranker needs. It is
// satisfied by *database.DB.
type DataSource interface {
	GetEntity(ctx context.Context, id int64) (*models.CanonicalEntity, error)
	ListEntities(ctx context.Context, f database.EntityFilter) ([]*models.CanonicalEntity, error)
	CurrentSnapshotVersion(ctx context.Context) (int64, error)
	SimilarityNeighbors(ctx context.Context, entity int64, method string, limit int) ([]models.SimilarityEdge, error)
	UserRatings(ctx context.Context, userID string) ([]models.InteractionRecord, error)
	ActiveModelVersion(ctx context.Context) (*models.ModelVersion, error)
	PredictedScores(ctx context.Context, userID string, version int) ([]models.PredictedScore, error)
}

var _ DataSource = (*database.DB)(nil)
