// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package titles

import (
	"regexp"
	"strings"
)

var seriesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s+season\s+\d+`),
	regexp.MustCompile(`(?i)\s+s\d+\b`),
	regexp.MustCompile(`(?i)\s+part\s+\d+`),
	regexp.MustCompile(`(?i)\s+\(season\s+\d+\)`),
	regexp.MustCompile(`(?i)\s+the\s+final\s+season`),
	regexp.MustCompile(`(?i)\s+final\s+season`),
	regexp.MustCompile(`(?i)\s+\d+(st|nd|rd|th)\s+season`),
	regexp.MustCompile(`(?i)\s+ova\b.*`),
	regexp.MustCompile(`(?i)\s+movie\b.*`),
	regexp.MustCompile(`(?i)\s+specials?\b.*`),
	regexp.MustCompile(`(?i)\s+chronicle\b.*`),
}

// BaseSeries returns the normalized franchise name of a title, used to keep
// sequels, movies and specials of the same show out of each other's
// recommendations.
func BaseSeries(title string) string {
	base := strings.TrimSpace(title)
	for _, re := range seriesPatterns {
		base = re.ReplaceAllString(base, "")
	}
	base = strings.TrimSpace(base)

	if i := strings.Index(base, ":"); i >= 0 {
		if head := strings.TrimSpace(base[:i]); len([]rune(head)) >= 3 {
			base = head
		}
	}
	if base == "" {
		base = title
	}
	return Normalize(base)
}
