// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
)

var scanTime = time.Date(2026, 5, 3, 6, 0, 0, 0, time.UTC)

// idNormalizer accepts payloads of the form {"id": "...", "title": "..."}.
type idNormalizer struct{}

func (idNormalizer) Normalize(source string, raw []byte) (*models.SourceRecord, error) {
	var p struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, models.NewMalformedRecordError(source, p.ID, errors.New("missing id"), "source_id")
	}
	return &models.SourceRecord{Source: source, SourceID: p.ID, Title: p.Title}, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", name, err)
	}
}

func newTestSource(t *testing.T, dir, archive string) *FileSource {
	t.Helper()
	s, err := NewFileSource(dir, archive, []string{"anilist", "kitsu"}, idNormalizer{}, config.RatingPolicyClamp)
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}
	s.now = func() time.Time { return scanTime }
	return s
}

func TestFileSource_Classify(t *testing.T) {
	t.Parallel()

	s := newTestSource(t, t.TempDir(), "")
	tests := []struct {
		name        string
		wantSource  string
		wantRatings bool
		wantOK      bool
	}{
		{"anilist_2026-05-01.json", "anilist", false, true},
		{"Kitsu_batch.jsonl", "kitsu", false, true},
		{"ratings_2026-05-01.jsonl", "", true, true},
		{"ratings_2026-05-01.json", "", true, false},
		{"myanimelist_1.json", "", false, false},
		{"anilist.json", "", false, false},
		{"anilist_1.csv", "", false, false},
	}

	for _, tt := range tests {
		source, ratings, ok := s.classify(tt.name)
		if source != tt.wantSource || ratings != tt.wantRatings || ok != tt.wantOK {
			t.Errorf("classify(%q) = %q, %v, %v, want %q, %v, %v",
				tt.name, source, ratings, ok, tt.wantSource, tt.wantRatings, tt.wantOK)
		}
	}
}

func TestFileSource_Scan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "anilist_1.json", `[{"id":"16498","title":"Shingeki no Kyojin"},{"title":"no id"}]`)
	writeFile(t, dir, "kitsu_1.jsonl", "{\"id\":\"7442\",\"title\":\"Attack on Titan\"}\n\n{\"id\":\"1\",\"title\":\"Cowboy Bebop\"}\n")
	writeFile(t, dir, "kitsu_2.json", `{"not":"an array"}`)
	writeFile(t, dir, "ratings_1.jsonl", strings.Join([]string{
		`{"user_id":"u1","entity_id":1,"rating":4,"rated_at":"2026-05-01T00:00:00Z"}`,
		`{"user_id":"u1","entity_id":1,"rating":5,"rated_at":"2026-05-02T00:00:00Z"}`,
		`{"user_id":"u2","entity_id":1,"rating":8}`,
		`{"entity_id":1,"rating":3}`,
		`not json`,
	}, "\n"))
	writeFile(t, dir, "notes.txt", "ignored")

	batch, err := newTestSource(t, dir, "").Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := ImportStats{
		Files:           3,
		RejectedFiles:   1,
		Records:         4,
		Malformed:       1,
		Ratings:         2,
		RejectedRatings: 2,
	}
	if batch.Stats != want {
		t.Errorf("Stats = %+v, want %+v", batch.Stats, want)
	}

	if len(batch.Records) != 3 {
		t.Fatalf("Records = %d, want 3", len(batch.Records))
	}
	first := batch.Records[0]
	if first.Key() != "anilist#16498" || !first.ReceivedAt.Equal(scanTime) || first.ContentHash == "" {
		t.Errorf("first record = %s at %v hash %q", first.Key(), first.ReceivedAt, first.ContentHash)
	}
	if len(batch.Malformed) != 1 || batch.Malformed[0].Source != "anilist" {
		t.Errorf("Malformed = %+v, want one anilist payload", batch.Malformed)
	}

	// Ratings collapse to the latest per (user, entity) and are clamped.
	if batch.Ratings[0].UserID != "u1" || batch.Ratings[0].Rating != 5 {
		t.Errorf("u1 rating = %+v, want latest rating 5", batch.Ratings[0])
	}
	if batch.Ratings[1].UserID != "u2" || batch.Ratings[1].Rating != models.MaxRating {
		t.Errorf("u2 rating = %+v, want clamped to %v", batch.Ratings[1], models.MaxRating)
	}
	if !batch.Ratings[1].RatedAt.Equal(scanTime) {
		t.Errorf("u2 RatedAt = %v, want scan time", batch.Ratings[1].RatedAt)
	}
}

func TestFileSource_ScanMissingDirectory(t *testing.T) {
	t.Parallel()

	batch, err := newTestSource(t, filepath.Join(t.TempDir(), "missing"), "").Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !batch.Empty() {
		t.Errorf("Empty() = false, want true for a missing directory")
	}
}

func TestFileSource_ScanCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "anilist_1.json", `[]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestSource(t, dir, "").Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}

func TestFileSource_Archive(t *testing.T) {
	t.Parallel()

	dir, archive := t.TempDir(), filepath.Join(t.TempDir(), "archive")
	writeFile(t, dir, "anilist_1.json", `[{"id":"1","title":"Monster"}]`)
	writeFile(t, dir, "kitsu_1.json", `garbage`)

	s := newTestSource(t, dir, archive)
	batch, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if err := s.Archive(context.Background(), batch); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	left, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("import directory holds %d files after archive, want 0", len(left))
	}

	archived, err := os.ReadDir(archive)
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool, len(archived))
	for _, e := range archived {
		names[e.Name()] = true
	}
	for _, want := range []string{"20260503T060000_anilist_1.json", "20260503T060000_kitsu_1.json.rejected"} {
		if !names[want] {
			t.Errorf("archive is missing %s, has %v", want, names)
		}
	}
}

func TestFileSource_ArchiveDisabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "anilist_1.json", `[{"id":"1","title":"Monster"}]`)

	s := newTestSource(t, dir, "")
	batch, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if err := s.Archive(context.Background(), batch); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "anilist_1.json")); err != nil {
		t.Errorf("file moved without an archive directory: %v", err)
	}
}

func TestNewFileSource_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewFileSource("", "", nil, idNormalizer{}, config.RatingPolicyClamp); err == nil {
		t.Error("NewFileSource(empty dir) error = nil, want error")
	}
	if _, err := NewFileSource("/data/import", "", nil, nil, config.RatingPolicyClamp); err == nil {
		t.Error("NewFileSource(nil normalizer) error = nil, want error")
	}
}
