// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package dedupe

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
)

// Outcome is the result of MergeEngine.Decide.
type Outcome struct {
	Decision   models.Decision
	Target     *Candidate
	RunnerUp   *Candidate
	Ambiguous  bool
	Candidates int
}

// MergeEngine decides whether a record joins an existing entity and folds
// record fields into entities.
type MergeEngine struct {
	threshold      float64
	ambiguityDelta float64
	mergeWeight    float64
}

// NewMergeEngine creates a merge engine from dedupe settings.
func NewMergeEngine(cfg config.DedupeConfig) *MergeEngine {
	w := cfg.MergeWeight
	if w <= 0 {
		w = 1
	}
	return &MergeEngine{
		threshold:      cfg.Threshold,
		ambiguityDelta: cfg.AmbiguityDelta,
		mergeWeight:    w,
	}
}

// RankCandidates sorts candidates by score desc, contributing-source count
// desc, then canonical id asc.
func RankCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score() != b.Score() {
			return a.Score() > b.Score()
		}
		if a.Entity.SourceCount() != b.Entity.SourceCount() {
			return a.Entity.SourceCount() > b.Entity.SourceCount()
		}
		return a.Entity.CanonicalID < b.Entity.CanonicalID
	})
}

// Decide ranks the candidates and picks a merge target when the best score
// reaches the threshold. Two qualifying candidates within the ambiguity delta
// mark the outcome ambiguous; the ranking still decides.
func (m *MergeEngine) Decide(cands []Candidate) Outcome {
	out := Outcome{Decision: models.DecisionCreate, Candidates: len(cands)}
	if len(cands) == 0 {
		return out
	}
	RankCandidates(cands)

	top := cands[0]
	if len(cands) > 1 {
		second := cands[1]
		out.RunnerUp = &second
	}
	if top.Score() < m.threshold {
		return out
	}
	out.Decision = models.DecisionMerge
	out.Target = &top
	if out.RunnerUp != nil && out.RunnerUp.Score() >= m.threshold &&
		top.Score()-out.RunnerUp.Score() <= m.ambiguityDelta+1e-9 {
		out.Ambiguous = true
	}
	return out
}

// NewEntity builds a fresh entity from its first record. AniList-born
// entities are keyed by their AniList id; others by source and canonical id.
func (m *MergeEngine) NewEntity(id int64, rec *models.SourceRecord) *models.CanonicalEntity {
	e := &models.CanonicalEntity{
		CanonicalID:         id,
		Key:                 CanonicalKey(rec.Source, rec.SourceID, id),
		Title:               strings.TrimSpace(rec.Title),
		ContributingSources: map[string]string{rec.Source: rec.SourceID},
		SourceScores:        make(map[string]float64),
		Confidence:          1,
		IsCurrent:           true,
	}
	m.mergeFields(e, rec)
	return e
}

// CanonicalKey returns the external key of a canonical entity.
func CanonicalKey(source, sourceID string, id int64) string {
	if source == models.SourceAniList {
		return "AL_" + sourceID
	}
	return strings.ToUpper(source) + "_" + strconv.FormatInt(id, 10)
}

// Merge folds rec into e, records the pairwise score as evidence, and adds
// rec as a contributing source. e is modified in place.
func (m *MergeEngine) Merge(e *models.CanonicalEntity, rec *models.SourceRecord, score float64) {
	m.mergeFields(e, rec)
	if e.ContributingSources == nil {
		e.ContributingSources = make(map[string]string)
	}
	e.ContributingSources[rec.Source] = rec.SourceID
	e.MergeEvidence.ScoreSum += score * m.mergeWeight
	e.MergeEvidence.WeightSum += m.mergeWeight
	e.MergeEvidence.Merges++
	e.Confidence = Confidence(e.MergeEvidence)
}

// Refresh re-applies a changed record to the entity it already belongs to.
// No evidence is added and contributing sources are unchanged.
func (m *MergeEngine) Refresh(e *models.CanonicalEntity, rec *models.SourceRecord) {
	m.mergeFields(e, rec)
}

// Confidence returns the weighted mean of merge scores, or 1 for an entity
// that has never been merged.
func Confidence(ev models.MergeEvidence) float64 {
	if ev.WeightSum <= 0 {
		return 1
	}
	return round6(ev.ScoreSum / ev.WeightSum)
}

func (m *MergeEngine) mergeFields(e *models.CanonicalEntity, rec *models.SourceRecord) {
	e.Tags = unionTags(e.Tags, rec.Tags)
	e.Genres = unionStrings(e.Genres, rec.Genres)

	if len(rec.Studios) > len(e.Studios) {
		e.Studios = append([]string(nil), rec.Studios...)
	}
	if len(rec.Staff) > len(e.Staff) {
		e.Staff = append([]models.StaffCredit(nil), rec.Staff...)
	}
	if len([]rune(rec.Description)) > len([]rune(e.Description)) {
		e.Description = rec.Description
	}

	for _, v := range rec.TitleVariants() {
		if v != e.Title {
			e.Aliases = appendUnique(e.Aliases, v)
		}
	}

	if e.Title == "" {
		e.Title = rec.Title
	}
	if e.ReleaseYear == 0 {
		e.ReleaseYear = rec.ReleaseYear
	}
	if e.Season == "" {
		e.Season = rec.Season
	}
	if e.Format == "" {
		e.Format = rec.Format
	}
	if e.Episodes == 0 {
		e.Episodes = rec.Episodes
	}
	if e.SourceMaterial == "" {
		e.SourceMaterial = rec.SourceMaterial
	}
	if rec.Popularity > e.Popularity {
		e.Popularity = rec.Popularity
	}

	if e.SourceScores == nil {
		e.SourceScores = make(map[string]float64)
	}
	if rec.Score > 0 {
		e.SourceScores[rec.Source] = rec.Score
	}
	e.Score = meanScore(e.SourceScores)
}

func meanScore(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sum := 0.0
	for _, k := range keys {
		sum += scores[k]
	}
	return math.Round(sum/float64(len(scores))*100) / 100
}

func unionTags(existing, incoming []models.Tag) []models.Tag {
	ranks := make(map[string]int, len(existing)+len(incoming))
	names := make(map[string]string, len(existing)+len(incoming))
	for _, list := range [][]models.Tag{existing, incoming} {
		for _, t := range list {
			key := strings.ToLower(strings.TrimSpace(t.Name))
			if key == "" {
				continue
			}
			if _, ok := names[key]; !ok {
				names[key] = strings.TrimSpace(t.Name)
			}
			if r, ok := ranks[key]; !ok || t.Rank > r {
				ranks[key] = t.Rank
			}
		}
	}
	out := make([]models.Tag, 0, len(ranks))
	for key, rank := range ranks {
		out = append(out, models.Tag{Name: names[key], Rank: rank})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func unionStrings(existing, incoming []string) []string {
	seen := make(map[string]string, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, s := range list {
			key := strings.ToLower(strings.TrimSpace(s))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; !ok {
				seen[key] = strings.TrimSpace(s)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
