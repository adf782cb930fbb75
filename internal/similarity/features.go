// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package similarity

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// minDescriptionWord is the shortest description word kept as a feature.
const minDescriptionWord = 4

// stopWords are frequent English words of four or more letters that carry
// no content signal.
var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "been": {}, "before": {}, "being": {},
	"from": {}, "have": {}, "into": {}, "more": {}, "only": {}, "other": {},
	"over": {}, "some": {}, "such": {}, "than": {}, "that": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"very": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "will": {}, "with": {}, "would": {}, "your": {},
}

// Bag is a feature token to raw count mapping.
type Bag map[string]int

// FeatureBuilder turns entities into feature bags.
type FeatureBuilder struct {
	weights    config.FeatureWeights
	descPrefix int
}

// NewFeatureBuilder creates a builder from similarity settings. Tag tiers are
// evaluated from the highest minimum rank down.
func NewFeatureBuilder(cfg config.SimilarityConfig) *FeatureBuilder {
	w := cfg.Weights
	w.TagTiers = append([]config.TagTier(nil), w.TagTiers...)
	sort.SliceStable(w.TagTiers, func(i, j int) bool { return w.TagTiers[i].MinRank > w.TagTiers[j].MinRank })
	return &FeatureBuilder{weights: w, descPrefix: cfg.DescriptionPrefix}
}

// tagRepeat returns the repetition count of a tag with the given rank.
func (b *FeatureBuilder) tagRepeat(rank int) int {
	for _, tier := range b.weights.TagTiers {
		if rank >= tier.MinRank {
			return tier.Repeat
		}
	}
	return 0
}

// Build returns the feature bag of one entity.
func (b *FeatureBuilder) Build(e *models.CanonicalEntity) Bag {
	bag := make(Bag)
	for _, tag := range e.Tags {
		bag.add("tag:", tag.Name, b.tagRepeat(tag.Rank))
	}
	for _, g := range e.Genres {
		bag.add("genre:", g, b.weights.Genre)
	}
	for _, s := range e.Studios {
		bag.add("studio:", s, b.weights.Studio)
	}
	for _, s := range e.Staff {
		bag.add("staff:", s.Name, b.weights.Staff)
	}
	bag.add("source:", e.SourceMaterial, b.weights.Source)

	if e.ReleaseYear > 0 {
		decade := e.ReleaseYear / 10 * 10
		bag.add("era:", strconv.Itoa(decade)+"s", b.weights.Era)
		if e.Season != "" {
			bag.add("season:", strconv.Itoa(e.ReleaseYear)+"_"+e.Season, b.weights.Season)
		}
	}

	if b.weights.Description > 0 {
		for _, w := range DescriptionWords(e.Description, b.descPrefix) {
			bag["w:"+w] += b.weights.Description
		}
	}
	return bag
}

func (bag Bag) add(prefix, value string, n int) {
	if n <= 0 {
		return
	}
	token := tokenize(value)
	if token == "" {
		return
	}
	bag[prefix+token] += n
}

// tokenize lower-cases a name and joins its words with underscores so that
// multi-word names stay one token.
func tokenize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// DescriptionWords returns the lower-cased words of at least four letters
// found in the first prefix runes of an HTML-stripped description.
func DescriptionWords(description string, prefix int) []string {
	text := htmlTagPattern.ReplaceAllString(description, " ")
	if prefix > 0 {
		if r := []rune(text); len(r) > prefix {
			text = string(r[:prefix])
		}
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) < minDescriptionWord {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}
