// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package adapters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/models"
)

// KitsuPopularityCeiling converts Kitsu's popularityRank (1 = most popular)
// into an ascending popularity value: ceiling - rank + 1, floored at 1.
const KitsuPopularityCeiling = 100000

// kitsuTitleKeys lists the localized title keys read as aliases, in order.
var kitsuTitleKeys = []string{"en", "en_us", "en_jp", "ja_jp"}

type kitsuDocument struct {
	Data     *kitsuResource  `json:"data"`
	Included []kitsuIncluded `json:"included"`
}

type kitsuResource struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		CanonicalTitle    string            `json:"canonicalTitle"`
		Titles            map[string]string `json:"titles"`
		AbbreviatedTitles []string          `json:"abbreviatedTitles"`
		Synopsis          string            `json:"synopsis"`
		AverageRating     *string           `json:"averageRating"`
		PopularityRank    *int64            `json:"popularityRank"`
		Subtype           string            `json:"subtype"`
		StartDate         string            `json:"startDate"`
		EpisodeCount      *int              `json:"episodeCount"`
		EpisodeLength     *int              `json:"episodeLength"`
	} `json:"attributes"`
	Relationships struct {
		Categories struct {
			Data []kitsuRef `json:"data"`
		} `json:"categories"`
	} `json:"relationships"`
}

type kitsuRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type kitsuIncluded struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes struct {
		Title string `json:"title"`
	} `json:"attributes"`
}

// Kitsu normalizes Kitsu JSON:API anime resources.
type Kitsu struct {
	clock Clock
}

// NewKitsu creates the Kitsu adapter. A nil clock uses time.Now in UTC.
func NewKitsu(clock Clock) *Kitsu {
	return &Kitsu{clock: clock}
}

// Source implements Adapter.
func (a *Kitsu) Source() string { return models.SourceKitsu }

// Normalize implements Adapter. Both a bare resource and a {"data": ...}
// document are accepted.
func (a *Kitsu) Normalize(raw []byte) (*models.SourceRecord, error) {
	var doc kitsuDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, decodeError(models.SourceKitsu, err)
	}
	res := doc.Data
	if res == nil {
		res = &kitsuResource{}
		if err := json.Unmarshal(raw, res); err != nil {
			return nil, decodeError(models.SourceKitsu, err)
		}
	}
	attrs := res.Attributes

	if err := requireIdentity(models.SourceKitsu, res.ID, attrs.CanonicalTitle); err != nil {
		return nil, err
	}

	rec := &models.SourceRecord{
		Source:      models.SourceKitsu,
		SourceID:    strings.TrimSpace(res.ID),
		Title:       attrs.CanonicalTitle,
		Format:      normalizeFormat(attrs.Subtype),
		Description: cleanDescription(attrs.Synopsis),
		ExtractedAt: now(a.clock),
	}
	for _, key := range kitsuTitleKeys {
		rec.TitleAliases = appendNonEmpty(rec.TitleAliases, attrs.Titles[key])
	}
	rec.TitleAliases = appendNonEmpty(rec.TitleAliases, attrs.AbbreviatedTitles...)

	year, month := parseDate(attrs.StartDate)
	rec.ReleaseYear = year
	rec.Season = seasonFromMonth(month)

	if attrs.EpisodeCount != nil {
		rec.Episodes = *attrs.EpisodeCount
	}
	if attrs.EpisodeLength != nil {
		rec.DurationMinutes = *attrs.EpisodeLength
	}
	if attrs.AverageRating != nil && strings.TrimSpace(*attrs.AverageRating) != "" {
		score, err := strconv.ParseFloat(strings.TrimSpace(*attrs.AverageRating), 64)
		if err != nil {
			return nil, models.NewMalformedRecordError(models.SourceKitsu, rec.SourceID,
				fmt.Errorf("averageRating %q: %w", *attrs.AverageRating, err), "raw_score")
		}
		rec.RawScore = score
		rec.Score = StandardizeScore(score, 100)
	}
	if attrs.PopularityRank != nil && *attrs.PopularityRank > 0 {
		rec.Popularity = KitsuPopularityCeiling - *attrs.PopularityRank + 1
		if rec.Popularity < 1 {
			rec.Popularity = 1
		}
	}

	categories := make(map[string]string, len(doc.Included))
	for _, inc := range doc.Included {
		if inc.Type == "categories" {
			categories[inc.ID] = inc.Attributes.Title
		}
	}
	for _, ref := range res.Relationships.Categories.Data {
		if title, ok := categories[ref.ID]; ok {
			rec.Genres = appendNonEmpty(rec.Genres, title)
		}
	}

	return finish(rec)
}
