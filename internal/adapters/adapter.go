// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package adapters

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/validation"
)

// Adapter normalizes one source's raw payload into a SourceRecord.
type Adapter interface {
	// Source returns the source name, e.g. "anilist".
	Source() string
	// Normalize decodes raw and maps it into the shared shape.
	Normalize(raw []byte) (*models.SourceRecord, error)
}

// Clock returns the extraction timestamp stamped on records.
type Clock func() time.Time

// Registry maps source names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// NewDefaultRegistry returns a registry with the AniList, MyAnimeList and
// Kitsu adapters using the wall clock.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewAniList(nil), NewMyAnimeList(nil), NewKitsu(nil))
}

// Register adds or replaces the adapter for a.Source().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Source()] = a
}

// Get returns the adapter for source.
func (r *Registry) Get(source string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(source)]
	return a, ok
}

// Sources returns the registered source names in sorted order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Normalize dispatches raw to the adapter registered for source. An unknown
// source is reported as a malformed record.
func (r *Registry) Normalize(source string, raw []byte) (*models.SourceRecord, error) {
	a, ok := r.Get(source)
	if !ok {
		metrics.RecordNormalize(source, false)
		return nil, models.NewMalformedRecordError(source, "", fmt.Errorf("no adapter registered for source %q", source), "source")
	}
	rec, err := a.Normalize(raw)
	metrics.RecordNormalize(a.Source(), err == nil)
	return rec, err
}

// finish validates a mapped record and converts validation failures into a
// MalformedRecordError.
func finish(rec *models.SourceRecord) (*models.SourceRecord, error) {
	if verr := validation.ValidateStruct(rec); verr != nil {
		return nil, models.NewMalformedRecordError(rec.Source, rec.SourceID, verr, verr.Fields()...)
	}
	return rec, nil
}

// requireIdentity reports a missing id or title before field mapping.
func requireIdentity(source, id, title string) error {
	var missing []string
	if strings.TrimSpace(id) == "" {
		missing = append(missing, "source_id")
	}
	if strings.TrimSpace(title) == "" {
		missing = append(missing, "title")
	}
	if len(missing) == 0 {
		return nil
	}
	return models.NewMalformedRecordError(source, id, fmt.Errorf("missing %s", strings.Join(missing, ", ")), missing...)
}

func decodeError(source string, err error) error {
	return models.NewMalformedRecordError(source, "", fmt.Errorf("decode payload: %w", err))
}

// StandardizeScore maps a native score onto 0-100.
func StandardizeScore(score, maxScore float64) float64 {
	if maxScore <= 0 || maxScore == 100 {
		return score
	}
	return score / maxScore * 100
}

var lineBreak = regexp.MustCompile(`(?i)<br\s*/?>`)

// cleanDescription turns HTML line breaks into newlines and trims the result.
// Remaining markup is stripped by the similarity feature builder.
func cleanDescription(s string) string {
	return strings.TrimSpace(lineBreak.ReplaceAllString(s, "\n"))
}

// formats maps lower-cased native format names to the shared vocabulary.
var formats = map[string]string{
	"tv":         "TV",
	"tv_short":   "TV_SHORT",
	"movie":      "MOVIE",
	"ova":        "OVA",
	"ona":        "ONA",
	"special":    "SPECIAL",
	"tv_special": "SPECIAL",
	"music":      "MUSIC",
}

// normalizeFormat returns the shared format name, or "" when unknown.
func normalizeFormat(s string) string {
	return formats[strings.ToLower(strings.TrimSpace(s))]
}

// normalizeSeason returns winter/spring/summer/fall, or "" when unknown.
func normalizeSeason(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "winter":
		return "winter"
	case "spring":
		return "spring"
	case "summer":
		return "summer"
	case "fall", "autumn":
		return "fall"
	default:
		return ""
	}
}

// seasonFromMonth derives the broadcast season of a start month.
func seasonFromMonth(m int) string {
	switch {
	case m >= 1 && m <= 3:
		return "winter"
	case m >= 4 && m <= 6:
		return "spring"
	case m >= 7 && m <= 9:
		return "summer"
	case m >= 10 && m <= 12:
		return "fall"
	default:
		return ""
	}
}

// parseDate reads the year and month of a "YYYY", "YYYY-MM" or "YYYY-MM-DD" date.
func parseDate(s string) (year, month int) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == "2006" {
				return t.Year(), 0
			}
			return t.Year(), int(t.Month())
		}
	}
	return 0, 0
}

// appendNonEmpty appends trimmed non-empty values.
func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

func now(clock Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock()
}
