// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package models

import "time"

// Rating scale bounds for explicit interactions.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// InteractionRecord is a single user rating of a canonical entity. At most one
// rating exists per (user, entity); a later RatedAt overwrites an earlier one.
// Range enforcement is left to the rating policy; validation only rejects
// non-finite values.
type InteractionRecord struct {
	UserID   string    `json:"user_id" validate:"required"`
	EntityID int64     `json:"entity_id" validate:"required,gt=0"`
	Rating   float64   `json:"rating" validate:"finite"`
	RatedAt  time.Time `json:"rated_at"`
}

// SimilarityEdge links a source entity to one of its top-K neighbors.
// Rank is the 1-based position of Target in Source's neighbor list.
type SimilarityEdge struct {
	Source          int64   `json:"source"`
	Target          int64   `json:"target"`
	Score           float64 `json:"score"`
	Method          string  `json:"method"`
	Rank            int     `json:"rank"`
	SnapshotVersion int64   `json:"snapshot_version"`
}

// PredictedScore is one collaborative prediction for a user and entity.
type PredictedScore struct {
	UserID         string  `json:"user_id"`
	EntityID       int64   `json:"entity_id"`
	ModelVersion   int     `json:"model_version"`
	PredictedValue float64 `json:"predicted_value"`
	CohortID       string  `json:"cohort_id"`
	Rank           int     `json:"rank"`
}

// ModelStatus is the lifecycle state of a trained model version.
type ModelStatus string

const (
	ModelStatusActive   ModelStatus = "active"
	ModelStatusInactive ModelStatus = "inactive"
	ModelStatusFailed   ModelStatus = "failed"
)

// ModelMetrics are the global evaluation metrics attached to a model version.
type ModelMetrics struct {
	PrecisionAtK    float64 `json:"precision_at_k"`
	RecallAtK       float64 `json:"recall_at_k"`
	Cutoff          int     `json:"cutoff"`
	CatalogCoverage float64 `json:"catalog_coverage"`
	UserCoverage    float64 `json:"user_coverage"`
	EvaluatedUsers  int     `json:"evaluated_users"`
	FinalLoss       float64 `json:"final_loss"`
}

// ModelVersion describes one collaborative training run.
type ModelVersion struct {
	Version          int          `json:"version"`
	Algorithm        string       `json:"algorithm"`
	Status           ModelStatus  `json:"status"`
	IsActive         bool         `json:"is_active"`
	TrainedAt        time.Time    `json:"trained_at"`
	CatalogSnapshot  int64        `json:"catalog_snapshot"`
	InteractionCount int          `json:"interaction_count"`
	UserCount        int          `json:"user_count"`
	ItemCount        int          `json:"item_count"`
	Metrics          ModelMetrics `json:"metrics"`
	Error            string       `json:"error,omitempty"`
}
