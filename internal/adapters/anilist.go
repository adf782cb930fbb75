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

// aniListMedia is the subset of the AniList GraphQL Media object we read.
type aniListMedia struct {
	ID    int `json:"id"`
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	Synonyms    []string `json:"synonyms"`
	Description string   `json:"description"`
	Format      string   `json:"format"`
	Episodes    *int     `json:"episodes"`
	Duration    *int     `json:"duration"`
	Season      string   `json:"season"`
	SeasonYear  *int     `json:"seasonYear"`
	StartDate   struct {
		Year  *int `json:"year"`
		Month *int `json:"month"`
	} `json:"startDate"`
	AverageScore *float64     `json:"averageScore"`
	Popularity   *int64       `json:"popularity"`
	Genres       []string     `json:"genres"`
	Tags         []aniListTag `json:"tags"`
	Source       string       `json:"source"`
	Studios      struct {
		Nodes []struct {
			Name              string `json:"name"`
			IsAnimationStudio *bool  `json:"isAnimationStudio"`
		} `json:"nodes"`
	} `json:"studios"`
	Staff struct {
		Edges []struct {
			Role string `json:"role"`
			Node struct {
				Name struct {
					Full string `json:"full"`
				} `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"staff"`
	Relations struct {
		Edges []struct {
			RelationType string `json:"relationType"`
			Node         struct {
				ID int `json:"id"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"relations"`
}

type aniListTag struct {
	Name string `json:"name"`
	Rank *int   `json:"rank"`
}

// AniList normalizes AniList GraphQL Media payloads.
type AniList struct {
	clock Clock
}

// NewAniList creates the AniList adapter. A nil clock uses time.Now in UTC.
func NewAniList(clock Clock) *AniList {
	return &AniList{clock: clock}
}

// Source implements Adapter.
func (a *AniList) Source() string { return models.SourceAniList }

// Normalize implements Adapter.
func (a *AniList) Normalize(raw []byte) (*models.SourceRecord, error) {
	var m aniListMedia
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, decodeError(models.SourceAniList, err)
	}

	id := ""
	if m.ID > 0 {
		id = strconv.Itoa(m.ID)
	}
	primary := m.Title.Romaji
	if primary == "" {
		primary = m.Title.English
	}
	if primary == "" {
		primary = m.Title.Native
	}
	if err := requireIdentity(models.SourceAniList, id, primary); err != nil {
		return nil, err
	}

	rec := &models.SourceRecord{
		Source:         models.SourceAniList,
		SourceID:       id,
		Title:          primary,
		TitleAliases:   appendNonEmpty(nil, append([]string{m.Title.English, m.Title.Native}, m.Synonyms...)...),
		Genres:         appendNonEmpty(nil, m.Genres...),
		Format:         normalizeFormat(m.Format),
		Season:         normalizeSeason(m.Season),
		SourceMaterial: m.Source,
		Description:    cleanDescription(m.Description),
		ExtractedAt:    now(a.clock),
	}

	if m.SeasonYear != nil {
		rec.ReleaseYear = *m.SeasonYear
	} else if m.StartDate.Year != nil {
		rec.ReleaseYear = *m.StartDate.Year
	}
	if rec.Season == "" && m.StartDate.Month != nil {
		rec.Season = seasonFromMonth(*m.StartDate.Month)
	}
	if m.Episodes != nil {
		rec.Episodes = *m.Episodes
	}
	if m.Duration != nil {
		rec.DurationMinutes = *m.Duration
	}
	if m.AverageScore != nil {
		rec.RawScore = *m.AverageScore
		rec.Score = StandardizeScore(*m.AverageScore, 100)
	}
	if m.Popularity != nil {
		rec.Popularity = *m.Popularity
	}

	for _, t := range m.Tags {
		if t.Name == "" {
			continue
		}
		tag := models.Tag{Name: t.Name}
		if t.Rank != nil {
			tag.Rank = *t.Rank
		}
		rec.Tags = append(rec.Tags, tag)
	}
	for _, s := range m.Studios.Nodes {
		if s.IsAnimationStudio != nil && !*s.IsAnimationStudio {
			continue
		}
		rec.Studios = appendNonEmpty(rec.Studios, s.Name)
	}
	for _, e := range m.Staff.Edges {
		if e.Node.Name.Full == "" {
			continue
		}
		rec.Staff = append(rec.Staff, models.StaffCredit{Role: e.Role, Name: e.Node.Name.Full})
	}
	for _, e := range m.Relations.Edges {
		if e.Node.ID > 0 {
			rec.Relations = append(rec.Relations, e.RelationType+":"+models.SourceKey(models.SourceAniList, strconv.Itoa(e.Node.ID)))
		}
	}

	return finish(rec)
}
