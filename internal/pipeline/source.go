// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/dedupe"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/recommend/collab"
	"github.com/tomtom215/animedex/internal/validation"
)

const (
	ratingsPrefix = "ratings"

	// maxLineBytes bounds one JSONL line.
	maxLineBytes = 4 << 20
)

// Normalizer maps a raw payload into a SourceRecord.
// adapters.Registry satisfies it.
type Normalizer interface {
	Normalize(source string, raw []byte) (*models.SourceRecord, error)
}

// ImportStats counts what one scan of the import directory produced.
type ImportStats struct {
	Files           int `json:"files"`
	RejectedFiles   int `json:"rejected_files"`
	Records         int `json:"records"`
	Malformed       int `json:"malformed"`
	Staged          int `json:"staged"`
	Ratings         int `json:"ratings"`
	RejectedRatings int `json:"rejected_ratings"`
}

// Batch is the content of one import directory scan.
type Batch struct {
	// Records are normalizable payloads ready for staging.
	Records []database.StagedRecord
	// Malformed are payloads the normalizer rejected. They are handed to the
	// resolver so the rejection lands in the audit log.
	Malformed []dedupe.Input
	// Ratings are validated, deduplicated and policy-checked.
	Ratings []models.InteractionRecord
	Stats   ImportStats

	files    []string
	rejected []string
}

// Empty reports whether the scan found nothing to do.
func (b *Batch) Empty() bool {
	return len(b.Records) == 0 && len(b.Malformed) == 0 && len(b.Ratings) == 0 &&
		len(b.files) == 0 && len(b.rejected) == 0
}

// FileSource reads source payloads and ratings from the import directory.
type FileSource struct {
	dir        string
	archiveDir string
	sources    map[string]struct{}
	normalizer Normalizer
	policy     string
	now        func() time.Time
}

// NewFileSource creates a file source. Only files named after one of sources
// (or "ratings") are read. An empty archiveDir leaves processed files in
// place; re-reading them is harmless since staging and rating upserts are
// idempotent.
func NewFileSource(dir, archiveDir string, sources []string, normalizer Normalizer, ratingPolicy string) (*FileSource, error) {
	if dir == "" {
		return nil, errors.New("import directory is required")
	}
	if normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		set[strings.ToLower(s)] = struct{}{}
	}
	return &FileSource{
		dir:        dir,
		archiveDir: archiveDir,
		sources:    set,
		normalizer: normalizer,
		policy:     ratingPolicy,
		now:        time.Now,
	}, nil
}

// Dir returns the import directory.
func (s *FileSource) Dir() string { return s.dir }

// classify returns the file kind and, for record files, the source.
func (s *FileSource) classify(name string) (source string, ratings, ok bool) {
	ext := filepath.Ext(name)
	if ext != ".json" && ext != ".jsonl" {
		return "", false, false
	}
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return "", false, false
	}
	prefix = strings.ToLower(prefix)
	if prefix == ratingsPrefix {
		return "", true, ext == ".jsonl"
	}
	if _, known := s.sources[prefix]; known {
		return prefix, false, true
	}
	return "", false, false
}

// Scan reads every recognized file in the import directory. A missing
// directory yields an empty batch. ctx is checked between files.
func (s *FileSource) Scan(ctx context.Context) (*Batch, error) {
	log := logging.Ctx(ctx)
	batch := &Batch{}

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return batch, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read import directory: %w", err)
	}

	var ratings []models.InteractionRecord
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		source, isRatings, ok := s.classify(name)
		if !ok {
			continue
		}
		path := filepath.Join(s.dir, name)

		var readErr error
		if isRatings {
			var rs []models.InteractionRecord
			rs, readErr = s.readRatings(path, &batch.Stats)
			ratings = append(ratings, rs...)
		} else {
			readErr = s.readRecords(ctx, path, source, batch)
		}
		if readErr != nil {
			log.Warn().Err(readErr).Str("file", name).Msg("Import file rejected")
			batch.rejected = append(batch.rejected, path)
			batch.Stats.RejectedFiles++
			continue
		}
		batch.files = append(batch.files, path)
		batch.Stats.Files++
	}

	prepared, rejected := collab.PrepareRatings(ratings, s.policy)
	batch.Ratings = prepared
	batch.Stats.Ratings = len(prepared)
	batch.Stats.RejectedRatings += rejected
	return batch, nil
}

// readRecords reads a JSON array or JSONL file of raw payloads.
func (s *FileSource) readRecords(ctx context.Context, path, source string, batch *Batch) error {
	var payloads [][]byte
	if filepath.Ext(path) == ".json" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the configured import directory
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		for _, item := range items {
			payloads = append(payloads, []byte(item))
		}
	} else {
		lines, err := readLines(path)
		if err != nil {
			return err
		}
		payloads = lines
	}

	receivedAt := s.now().UTC()
	for _, raw := range payloads {
		batch.Stats.Records++
		rec, err := s.normalizer.Normalize(source, raw)
		if err != nil {
			batch.Stats.Malformed++
			batch.Malformed = append(batch.Malformed, dedupe.Input{Source: source, Payload: raw})
			logging.Ctx(ctx).Debug().Err(err).Str("source", source).Msg("Malformed record in import file")
			continue
		}
		batch.Records = append(batch.Records, database.StagedRecord{
			Source:      source,
			SourceID:    rec.SourceID,
			ContentHash: database.PayloadHash(raw),
			Payload:     raw,
			ReceivedAt:  receivedAt,
		})
	}
	return nil
}

// readRatings reads a JSONL file of interaction records. Lines that fail to
// decode or validate are counted and skipped.
func (s *FileSource) readRatings(path string, stats *ImportStats) ([]models.InteractionRecord, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := make([]models.InteractionRecord, 0, len(lines))
	for _, line := range lines {
		var r models.InteractionRecord
		if err := json.Unmarshal(line, &r); err != nil {
			stats.RejectedRatings++
			metrics.RecordInteraction("rejected")
			continue
		}
		if verr := validation.ValidateStruct(&r); verr != nil {
			stats.RejectedRatings++
			metrics.RecordInteraction("rejected")
			continue
		}
		if r.RatedAt.IsZero() {
			r.RatedAt = now
		}
		out = append(out, r)
	}
	return out, nil
}

// readLines returns the non-blank lines of a file, each in its own slice.
func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the configured import directory
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// Archive moves the files of batch into the archive directory, prefixed with
// the archive time. Rejected files get a ".rejected" suffix.
func (s *FileSource) Archive(ctx context.Context, batch *Batch) error {
	if s.archiveDir == "" || (len(batch.files) == 0 && len(batch.rejected) == 0) {
		return nil
	}
	if err := os.MkdirAll(s.archiveDir, 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	stamp := s.now().UTC().Format("20060102T150405")
	var errs []error
	move := func(path, suffix string) {
		dst := filepath.Join(s.archiveDir, stamp+"_"+filepath.Base(path)+suffix)
		if err := os.Rename(path, dst); err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", filepath.Base(path), err))
		}
	}
	for _, path := range batch.files {
		move(path, "")
	}
	for _, path := range batch.rejected {
		move(path, ".rejected")
	}

	if len(errs) == 0 {
		logging.Ctx(ctx).Debug().
			Int("files", len(batch.files)).
			Int("rejected", len(batch.rejected)).
			Str("archive_dir", s.archiveDir).
			Msg("Import files archived")
	}
	return errors.Join(errs...)
}
