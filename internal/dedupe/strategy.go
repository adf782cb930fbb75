// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package dedupe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/animedex/internal/config"
)

// Strategy scores the similarity of two normalized titles in [0,1].
// Implementations must be deterministic and symmetric.
type Strategy interface {
	Name() string
	Score(a, b string) float64
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc struct {
	name string
	fn   func(a, b string) float64
}

// Name implements Strategy.
func (s StrategyFunc) Name() string { return s.name }

// Score implements Strategy.
func (s StrategyFunc) Score(a, b string) float64 { return s.fn(a, b) }

// Strategy names.
const (
	StrategyTokenSortBlend = config.StrategyTokenSortBlend
	StrategyTokenSet       = config.StrategyTokenSet
	StrategyTokenSort      = config.StrategyTokenSort
	StrategyLevenshtein    = config.StrategyLevenshtein
)

// Strategies holds the built-in title strategies by name.
var Strategies = map[string]Strategy{
	StrategyTokenSortBlend: StrategyFunc{StrategyTokenSortBlend, TokenSortBlend},
	StrategyTokenSet:       StrategyFunc{StrategyTokenSet, TokenSetRatio},
	StrategyTokenSort:      StrategyFunc{StrategyTokenSort, TokenSortRatio},
	StrategyLevenshtein:    StrategyFunc{StrategyLevenshtein, LevenshteinSimilarity},
}

// NewStrategy returns the registered strategy for name.
func NewStrategy(name string) (Strategy, error) {
	s, ok := Strategies[name]
	if !ok {
		names := make([]string, 0, len(Strategies))
		for n := range Strategies {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown title strategy %q (have %s)", name, strings.Join(names, ", "))
	}
	return s, nil
}

// Ratio is the indel similarity 2*LCS/(|a|+|b|) over runes.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	return ratioRunes(ra, rb)
}

func ratioRunes(ra, rb []rune) float64 {
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(total)
}

// PartialRatio aligns the shorter string against every equal-length window of
// the longer one and returns the best Ratio.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		if len(rb) == 0 {
			return 1
		}
		return 0
	}
	if len(ra) == len(rb) {
		return ratioRunes(ra, rb)
	}
	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		if r := ratioRunes(ra, rb[i:i+len(ra)]); r > best {
			best = r
			if best == 1 {
				break
			}
		}
	}
	return best
}

// sortedTokens returns the whitespace tokens of s sorted and re-joined.
func sortedTokens(s string) string {
	toks := strings.Fields(s)
	sort.Strings(toks)
	return strings.Join(toks, " ")
}

// TokenSortRatio compares titles after sorting their words.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

// PartialTokenSortRatio is PartialRatio over word-sorted titles.
func PartialTokenSortRatio(a, b string) float64 {
	return PartialRatio(sortedTokens(a), sortedTokens(b))
}

// TokenSortBlend averages TokenSortRatio and PartialTokenSortRatio.
func TokenSortBlend(a, b string) float64 {
	return (TokenSortRatio(a, b) + PartialTokenSortRatio(a, b)) / 2
}

// TokenSetRatio compares the shared word set against each side's remainder
// and returns the best of the three pairings.
func TokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var common, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	combA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := Ratio(combA, combB)
	if base != "" {
		if r := Ratio(base, combA); r > best {
			best = r
		}
		if r := Ratio(base, combB); r > best {
			best = r
		}
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		out[t] = struct{}{}
	}
	return out
}

// LevenshteinSimilarity is 1 - edit distance / longer length, over runes.
func LevenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	denom := len(ra)
	if len(rb) > denom {
		denom = len(rb)
	}
	if denom == 0 {
		return 1
	}
	sim := 1 - float64(levenshtein(ra, rb))/float64(denom)
	if sim < 0 {
		return 0
	}
	return sim
}

func levenshtein(ra, rb []rune) int {
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			sub := prev[j]
			if ca != cb {
				sub++
			}
			curr[j+1] = min(curr[j]+1, prev[j+1]+1, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func lcsLength(ra, rb []rune) int {
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for _, ca := range ra {
		for j, cb := range rb {
			switch {
			case ca == cb:
				curr[j+1] = prev[j] + 1
			case prev[j+1] >= curr[j]:
				curr[j+1] = prev[j+1]
			default:
				curr[j+1] = curr[j]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
