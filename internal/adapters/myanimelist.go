// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package adapters

import (
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/models"
)

// malAnime is the subset of the MyAnimeList v2 anime node we read.
type malAnime struct {
	ID                int    `json:"id"`
	Title             string `json:"title"`
	AlternativeTitles struct {
		Synonyms []string `json:"synonyms"`
		En       string   `json:"en"`
		Ja       string   `json:"ja"`
	} `json:"alternative_titles"`
	Synopsis    string `json:"synopsis"`
	MediaType   string `json:"media_type"`
	NumEpisodes *int   `json:"num_episodes"`
	StartDate   string `json:"start_date"`
	StartSeason *struct {
		Year   int    `json:"year"`
		Season string `json:"season"`
	} `json:"start_season"`
	AverageEpisodeDuration *int     `json:"average_episode_duration"`
	Mean                   *float64 `json:"mean"`
	NumListUsers           *int64   `json:"num_list_users"`
	Source                 string   `json:"source"`
	Genres                 []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Studios []struct {
		Name string `json:"name"`
	} `json:"studios"`
	RelatedAnime []struct {
		RelationType string `json:"relation_type"`
		Node         struct {
			ID int `json:"id"`
		} `json:"node"`
	} `json:"related_anime"`
}

// malSourceMaterial maps MAL's snake_case source values to display names.
var malSourceMaterial = map[string]string{
	"original":      "ORIGINAL",
	"manga":         "MANGA",
	"4_koma_manga":  "MANGA",
	"web_manga":     "WEB_MANGA",
	"light_novel":   "LIGHT_NOVEL",
	"novel":         "NOVEL",
	"web_novel":     "WEB_NOVEL",
	"visual_novel":  "VISUAL_NOVEL",
	"game":          "VIDEO_GAME",
	"card_game":     "GAME",
	"book":          "NOVEL",
	"picture_book":  "PICTURE_BOOK",
	"music":         "MUSIC",
	"other":         "OTHER",
	"mixed_media":   "MULTIMEDIA_PROJECT",
	"radio":         "OTHER",
	"digital_manga": "MANGA",
}

// MyAnimeList normalizes MyAnimeList v2 API anime nodes.
type MyAnimeList struct {
	clock Clock
}

// NewMyAnimeList creates the MyAnimeList adapter. A nil clock uses time.Now in UTC.
func NewMyAnimeList(clock Clock) *MyAnimeList {
	return &MyAnimeList{clock: clock}
}

// Source implements Adapter.
func (a *MyAnimeList) Source() string { return models.SourceMyAnimeList }

// Normalize implements Adapter.
func (a *MyAnimeList) Normalize(raw []byte) (*models.SourceRecord, error) {
	var m malAnime
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, decodeError(models.SourceMyAnimeList, err)
	}

	id := ""
	if m.ID > 0 {
		id = strconv.Itoa(m.ID)
	}
	if err := requireIdentity(models.SourceMyAnimeList, id, m.Title); err != nil {
		return nil, err
	}

	rec := &models.SourceRecord{
		Source:      models.SourceMyAnimeList,
		SourceID:    id,
		Title:       m.Title,
		Format:      normalizeFormat(m.MediaType),
		Description: cleanDescription(m.Synopsis),
		ExtractedAt: now(a.clock),
	}
	rec.TitleAliases = appendNonEmpty(rec.TitleAliases, m.AlternativeTitles.En, m.AlternativeTitles.Ja)
	rec.TitleAliases = appendNonEmpty(rec.TitleAliases, m.AlternativeTitles.Synonyms...)

	if material, ok := malSourceMaterial[m.Source]; ok {
		rec.SourceMaterial = material
	}

	year, month := parseDate(m.StartDate)
	if m.StartSeason != nil {
		rec.Season = normalizeSeason(m.StartSeason.Season)
		if year == 0 {
			year = m.StartSeason.Year
		}
	}
	rec.ReleaseYear = year
	if rec.Season == "" {
		rec.Season = seasonFromMonth(month)
	}

	if m.NumEpisodes != nil {
		rec.Episodes = *m.NumEpisodes
	}
	if m.AverageEpisodeDuration != nil && *m.AverageEpisodeDuration > 0 {
		rec.DurationMinutes = (*m.AverageEpisodeDuration + 30) / 60
	}
	if m.Mean != nil {
		rec.RawScore = *m.Mean
		rec.Score = StandardizeScore(*m.Mean, 10)
	}
	if m.NumListUsers != nil {
		rec.Popularity = *m.NumListUsers
	}
	for _, g := range m.Genres {
		rec.Genres = appendNonEmpty(rec.Genres, g.Name)
	}
	for _, s := range m.Studios {
		rec.Studios = appendNonEmpty(rec.Studios, s.Name)
	}
	for _, r := range m.RelatedAnime {
		if r.Node.ID > 0 {
			rec.Relations = append(rec.Relations, r.RelationType+":"+models.SourceKey(models.SourceMyAnimeList, strconv.Itoa(r.Node.ID)))
		}
	}

	return finish(rec)
}
