// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package titles implements the title normalization rules shared by the
// candidate matcher, the match scorer and the hybrid ranker.
//
// Normalization is applied in this order:
//
//  1. Unicode compatibility decomposition, combining marks removed
//  2. lower-case
//  3. colon-introduced season/part subtitles dropped ("title: season 2 - x")
//  4. every rune that is not a letter or digit replaced with a space
//  5. whitespace collapsed
//  6. trailing season/part/cour markers stripped, repeatedly, together with
//     a bare number following one ("season 2 2")
//
// Scripts without case or spaces (Japanese, Korean) pass through steps 2-5
// unchanged apart from punctuation removal.
package titles

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	colonSuffix = regexp.MustCompile(`\s*:\s*(season|part)\s+\d+.*$`)

	// Applied to the already normalized form, so no punctuation remains.
	seasonSuffixes = []*regexp.Regexp{
		regexp.MustCompile(`\s+(season\s+\d+|\d+(st|nd|rd|th)\s+season|s\d+|part\s+\d+|cour\s+\d+)\s+\d+$`),
		regexp.MustCompile(`\s+\d+(st|nd|rd|th)\s+season$`),
		regexp.MustCompile(`\s+season\s+\d+$`),
		regexp.MustCompile(`\s+(the\s+)?final\s+season$`),
		regexp.MustCompile(`\s+s\d+$`),
		regexp.MustCompile(`\s+part\s+\d+$`),
		regexp.MustCompile(`\s+\d+(st|nd|rd|th)\s+cour$`),
		regexp.MustCompile(`\s+cour\s+\d+$`),
		regexp.MustCompile(`\s+(ii|iii|iv|v|vi|vii|viii|ix|x)$`),
	}
)

// Fold removes diacritics and applies compatibility decomposition, so that
// "Pokémon" and "Pokemon" or full-width and half-width forms compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Clean lower-cases s, replaces punctuation with spaces and collapses
// whitespace. It does not strip season markers.
func Clean(s string) string {
	s = strings.ToLower(Fold(s))
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Normalize returns the matching form of a title.
func Normalize(title string) string {
	lowered := strings.ToLower(Fold(title))
	if stripped := colonSuffix.ReplaceAllString(lowered, ""); strings.TrimSpace(stripped) != "" {
		lowered = stripped
	}
	return StripSeason(Clean(lowered))
}

// StripSeason removes trailing season, part and cour markers from an already
// cleaned title. A title made only of a marker is returned unchanged.
func StripSeason(cleaned string) string {
	for {
		before := cleaned
		for _, re := range seasonSuffixes {
			if out := re.ReplaceAllString(cleaned, ""); out != "" {
				cleaned = out
			}
		}
		if cleaned == before {
			return cleaned
		}
	}
}

var stopwords = map[string]struct{}{
	"the": {}, "no": {}, "of": {}, "to": {}, "and": {}, "wa": {}, "ga": {},
	"ni": {}, "de": {}, "season": {}, "part": {}, "a": {}, "an": {},
}

// Tokens splits a normalized title into words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// KeyTokens returns the tokens of a normalized title that are useful as
// blocking keys: at least minLen runes and not a stopword.
func KeyTokens(normalized string, minLen int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		if len([]rune(tok)) < minLen {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Prefix returns the first n runes of a normalized title with spaces removed.
func Prefix(normalized string, n int) string {
	compact := []rune(strings.ReplaceAll(normalized, " ", ""))
	if len(compact) <= n {
		return string(compact)
	}
	return string(compact[:n])
}
