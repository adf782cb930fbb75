// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package dedupe

import (
	"sort"
	"strconv"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/titles"
)

// Index is an in-memory blocking index over canonical entities. It maps
// prefix, token, and alias-group keys to entity ids so that matching only
// scores a bounded candidate set. Index is not safe for concurrent writes.
type Index struct {
	cfg   config.BlockingConfig
	hints *titles.AliasHints

	keys     map[string]map[int64]struct{}
	years    map[string]map[int64]struct{}
	entities map[int64]*indexed
}

type indexed struct {
	entity *models.CanonicalEntity
	comp   *Comparable
	keys   []string
	year   string
}

// NewIndex creates an empty blocking index.
func NewIndex(cfg config.BlockingConfig, hints *titles.AliasHints) *Index {
	if cfg.PrefixLength <= 0 {
		cfg.PrefixLength = 5
	}
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = 3
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 50
	}
	if cfg.YearBucket <= 0 {
		cfg.YearBucket = 1
	}
	return &Index{
		cfg:      cfg,
		hints:    hints,
		keys:     make(map[string]map[int64]struct{}),
		years:    make(map[string]map[int64]struct{}),
		entities: make(map[int64]*indexed),
	}
}

// Keys returns the blocking keys of a comparable in deterministic order.
func (ix *Index) Keys(c *Comparable) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, t := range c.Titles {
		if p := titles.Prefix(t, ix.cfg.PrefixLength); p != "" {
			add("p:" + p)
		}
		for _, tok := range titles.KeyTokens(t, ix.cfg.MinTokenLength) {
			add("t:" + tok)
		}
		if g, ok := ix.hints.Group(t); ok {
			add("a:" + g)
		}
	}
	sort.Strings(out)
	return out
}

func (ix *Index) yearKey(year int) string {
	if year <= 0 {
		return ""
	}
	return "y:" + strconv.Itoa(year/ix.cfg.YearBucket)
}

// Add indexes an entity, replacing any previous keys for its id.
func (ix *Index) Add(e *models.CanonicalEntity) {
	ix.Remove(e.CanonicalID)
	comp := EntityComparable(e)
	item := &indexed{entity: e, comp: comp, keys: ix.Keys(comp), year: ix.yearKey(e.ReleaseYear)}
	for _, k := range item.keys {
		addPosting(ix.keys, k, e.CanonicalID)
	}
	if item.year != "" {
		addPosting(ix.years, item.year, e.CanonicalID)
	}
	ix.entities[e.CanonicalID] = item
}

// Remove drops an entity from the index.
func (ix *Index) Remove(id int64) {
	item, ok := ix.entities[id]
	if !ok {
		return
	}
	for _, k := range item.keys {
		removePosting(ix.keys, k, id)
	}
	if item.year != "" {
		removePosting(ix.years, item.year, id)
	}
	delete(ix.entities, id)
}

// Get returns an indexed entity by id.
func (ix *Index) Get(id int64) (*models.CanonicalEntity, bool) {
	item, ok := ix.entities[id]
	if !ok {
		return nil, false
	}
	return item.entity, true
}

// Len returns the number of indexed entities.
func (ix *Index) Len() int { return len(ix.entities) }

// Entities returns every indexed entity ordered by canonical id.
func (ix *Index) Entities() []*models.CanonicalEntity {
	out := make([]*models.CanonicalEntity, 0, len(ix.entities))
	for _, item := range ix.entities {
		out = append(out, item.entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalID < out[j].CanonicalID })
	return out
}

// Candidates returns the ids of entities sharing at least one blocking key
// with c, ranked by shared-key count then id. When no title key matches and
// the year fallback is enabled, entities in the same year bucket are returned
// ranked by tag overlap. The result never exceeds MaxCandidates.
func (ix *Index) Candidates(c *Comparable) []int64 {
	return ix.CandidatesExcluding(c, "")
}

// CandidatesExcluding is Candidates without the entities that already hold a
// record from source. They are dropped before the MaxCandidates cap, so they
// cannot crowd out an eligible match. An empty source excludes nothing.
func (ix *Index) CandidatesExcluding(c *Comparable, source string) []int64 {
	eligible := func(id int64) bool {
		if source == "" {
			return true
		}
		_, taken := ix.entities[id].entity.ContributingSources[source]
		return !taken
	}

	counts := make(map[int64]int)
	for _, k := range ix.Keys(c) {
		for id := range ix.keys[k] {
			if eligible(id) {
				counts[id]++
			}
		}
	}
	if len(counts) > 0 {
		ids := make([]int64, 0, len(counts))
		for id := range counts {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if counts[ids[i]] != counts[ids[j]] {
				return counts[ids[i]] > counts[ids[j]]
			}
			return ids[i] < ids[j]
		})
		return capIDs(ids, ix.cfg.MaxCandidates)
	}

	if !ix.cfg.YearFallback {
		return nil
	}
	yk := ix.yearKey(c.Year)
	if yk == "" {
		return nil
	}
	bucket := ix.years[yk]
	ids := make([]int64, 0, len(bucket))
	overlap := make(map[int64]float64, len(bucket))
	for id := range bucket {
		if !eligible(id) {
			continue
		}
		ids = append(ids, id)
		overlap[id] = Jaccard(c.Tags, ix.entities[id].comp.Tags)
	}
	sort.Slice(ids, func(i, j int) bool {
		if overlap[ids[i]] != overlap[ids[j]] {
			return overlap[ids[i]] > overlap[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return capIDs(ids, ix.cfg.MaxCandidates)
}

func capIDs(ids []int64, n int) []int64 {
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}

func addPosting(m map[string]map[int64]struct{}, key string, id int64) {
	set, ok := m[key]
	if !ok {
		set = make(map[int64]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func removePosting(m map[string]map[int64]struct{}, key string, id int64) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

// Candidate is a scored match candidate.
type Candidate struct {
	Entity    *models.CanonicalEntity
	Breakdown models.ScoreBreakdown
}

// Score returns the candidate's total score.
func (c Candidate) Score() float64 { return c.Breakdown.Total }

// Matcher combines the blocking index with the scorer.
type Matcher struct {
	index  *Index
	scorer *Scorer
}

// NewMatcher creates a matcher.
func NewMatcher(index *Index, scorer *Scorer) *Matcher {
	return &Matcher{index: index, scorer: scorer}
}

// Match scores every blocked candidate for c. Entities that already hold a
// record from source are skipped, since an entity carries at most one record
// per source. The order of the result is unspecified; MergeEngine.Decide
// ranks it.
func (m *Matcher) Match(c *Comparable, source string) []Candidate {
	ids := m.index.CandidatesExcluding(c, source)
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		item := m.index.entities[id]
		out = append(out, Candidate{
			Entity:    item.entity,
			Breakdown: m.scorer.Score(c, item.comp),
		})
	}
	return out
}
