// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package titles

import "sort"

// AliasHints maps normalized titles to a translation group. Two titles in the
// same group are treated as the same name regardless of lexical similarity
// ("shingeki no kyojin" and "attack on titan").
type AliasHints struct {
	groups map[string]string
}

// NewAliasHints builds hints from groups of raw titles. The group key is the
// lexically smallest normalized member so that it does not depend on input
// order. Groups that share a member are not merged; the later group wins for
// that member.
func NewAliasHints(groups [][]string) *AliasHints {
	h := &AliasHints{groups: make(map[string]string)}
	for _, group := range groups {
		normalized := make([]string, 0, len(group))
		for _, t := range group {
			if n := Normalize(t); n != "" {
				normalized = append(normalized, n)
			}
		}
		if len(normalized) < 2 {
			continue
		}
		sort.Strings(normalized)
		key := normalized[0]
		for _, n := range normalized {
			h.groups[n] = key
		}
	}
	return h
}

// Group returns the translation group of a normalized title.
func (h *AliasHints) Group(normalized string) (string, bool) {
	if h == nil {
		return "", false
	}
	g, ok := h.groups[normalized]
	return g, ok
}

// Same reports whether two normalized titles belong to the same group.
func (h *AliasHints) Same(a, b string) bool {
	ga, ok := h.Group(a)
	if !ok {
		return false
	}
	gb, ok := h.Group(b)
	return ok && ga == gb
}

// Len returns the number of hinted titles.
func (h *AliasHints) Len() int {
	if h == nil {
		return 0
	}
	return len(h.groups)
}
