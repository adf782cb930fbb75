// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package models

import "time"

// Decision is the outcome recorded for one record in the merge audit log.
type Decision string

const (
	DecisionCreate  Decision = "create"
	DecisionMerge   Decision = "merge"
	DecisionRefresh Decision = "refresh"
	DecisionReject  Decision = "reject"
)

// ScoreBreakdown holds the field-level contributions of a match score.
// A nil field pointer means the field was absent on one side and did not
// participate in the weighted total.
type ScoreBreakdown struct {
	Title  float64  `json:"title"`
	Year   *float64 `json:"year,omitempty"`
	Format *float64 `json:"format,omitempty"`
	Tags   *float64 `json:"tags,omitempty"`
	Total  float64  `json:"total"`
}

// AuditEntry is the provenance record of one merge decision.
type AuditEntry struct {
	ID            string          `json:"id"`
	RunID         string          `json:"run_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	SourceID      string          `json:"source_id"`
	Title         string          `json:"title"`
	Decision      Decision        `json:"decision"`
	CanonicalID   int64           `json:"canonical_id,omitempty"`
	Score         float64         `json:"score"`
	RunnerUpID    int64           `json:"runner_up_id,omitempty"`
	RunnerUpScore float64         `json:"runner_up_score,omitempty"`
	Candidates    int             `json:"candidates"`
	Ambiguous     bool            `json:"ambiguous"`
	Breakdown     *ScoreBreakdown `json:"breakdown,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}
