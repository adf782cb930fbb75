// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package validation

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/animedex/internal/models"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

func validRecord() models.SourceRecord {
	return models.SourceRecord{
		Source:      models.SourceAniList,
		SourceID:    "16498",
		Title:       "Shingeki no Kyojin",
		Tags:        []models.Tag{{Name: "Military", Rank: 90}},
		ReleaseYear: 2013,
		Season:      "spring",
		Format:      "TV",
		Score:       85,
		ExtractedAt: time.Now(),
	}
}

func TestValidateStruct_SourceRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*models.SourceRecord)
		wantField string
	}{
		{"valid", func(*models.SourceRecord) {}, ""},
		{"missing title", func(r *models.SourceRecord) { r.Title = "" }, "title"},
		{"missing id", func(r *models.SourceRecord) { r.SourceID = "" }, "source_id"},
		{"unknown source", func(r *models.SourceRecord) { r.Source = "anidb" }, "source"},
		{"bad season", func(r *models.SourceRecord) { r.Season = "monsoon" }, "season"},
		{"bad format", func(r *models.SourceRecord) { r.Format = "tv" }, "format"},
		{"tag rank too high", func(r *models.SourceRecord) { r.Tags[0].Rank = 101 }, "rank"},
		{"score too high", func(r *models.SourceRecord) { r.Score = 100.5 }, "score"},
		{"score NaN", func(r *models.SourceRecord) { r.Score = math.NaN() }, "score"},
		{"year out of range", func(r *models.SourceRecord) { r.ReleaseYear = 1850 }, "release_year"},
		{"unknown year allowed", func(r *models.SourceRecord) { r.ReleaseYear = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := validRecord()
			tt.mutate(&rec)
			err := ValidateStruct(&rec)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateStruct() = nil, want error on %s", tt.wantField)
			}
			found := false
			for _, f := range err.Fields() {
				if f == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Fields() = %v, want to contain %q", err.Fields(), tt.wantField)
			}
		})
	}
}

func TestValidateStruct_Interaction(t *testing.T) {
	t.Parallel()

	ok := models.InteractionRecord{UserID: "u1", EntityID: 1, Rating: 7}
	if err := ValidateStruct(&ok); err != nil {
		t.Errorf("out-of-range rating should be left to the rating policy, got %v", err)
	}

	nan := models.InteractionRecord{UserID: "u1", EntityID: 1, Rating: math.NaN()}
	if err := ValidateStruct(&nan); err == nil {
		t.Error("NaN rating should fail validation")
	}

	missing := models.InteractionRecord{Rating: 3}
	err := ValidateStruct(&missing)
	if err == nil {
		t.Fatal("missing user and entity should fail validation")
	}
	if got := len(err.Errors()); got != 2 {
		t.Errorf("len(Errors()) = %d, want 2", got)
	}
}

func TestRequestValidationError_Message(t *testing.T) {
	t.Parallel()

	rec := validRecord()
	rec.Title = ""
	rec.Source = "anidb"
	err := ValidateStruct(&rec)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "title is required") {
		t.Errorf("Error() = %q, want title message", msg)
	}
	if !strings.Contains(msg, "must be a known source") {
		t.Errorf("Error() = %q, want source message", msg)
	}
}

func TestRequestValidationError_Empty(t *testing.T) {
	t.Parallel()
	ve := &RequestValidationError{}
	if ve.Error() != "validation failed" {
		t.Errorf("Error() = %q, want %q", ve.Error(), "validation failed")
	}
}
