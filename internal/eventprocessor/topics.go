// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package eventprocessor

import "strings"

// Catalog subjects.
const (
	SubjectAll             = "catalog.>"
	SubjectRecordsPrefix   = "catalog.records."
	SubjectRatings         = "catalog.ratings"
	SubjectEntitiesChanged = "catalog.entities.changed"
)

// MetadataSource is the message metadata key naming a record's source.
const MetadataSource = "source"

// RecordTopic returns the subject carrying raw records from source.
func RecordTopic(source string) string {
	return SubjectRecordsPrefix + source
}

// SourceFromTopic extracts the source name from a record subject.
func SourceFromTopic(topic string) (string, bool) {
	source, ok := strings.CutPrefix(topic, SubjectRecordsPrefix)
	if !ok || source == "" || strings.ContainsAny(source, ".*>") {
		return "", false
	}
	return source, true
}
