// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds shared across the pipeline. Callers classify with errors.Is.
var (
	// ErrMalformedRecord marks a record missing identifying fields or failing
	// validation. The record is rejected; the batch continues.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrAmbiguousMatch marks a decision where the top candidates were within
	// the ambiguity delta. It is logged as a warning and never aborts.
	ErrAmbiguousMatch = errors.New("ambiguous match")

	// ErrStaleScore marks scores computed against an older catalog snapshot.
	ErrStaleScore = errors.New("stale score")

	// ErrColdStart marks a user or entity without interaction data.
	ErrColdStart = errors.New("cold start")

	// ErrTrainingFailure marks a collaborative training run that could not
	// produce a usable model. The previous active version stays active.
	ErrTrainingFailure = errors.New("training failure")

	// ErrInvalidRating marks a rating outside the 0-5 scale that the
	// configured policy refused.
	ErrInvalidRating = errors.New("invalid rating")

	// ErrNotFound is returned when a lookup finds nothing.
	ErrNotFound = errors.New("not found")
)

// MalformedRecordError describes why a record was rejected.
type MalformedRecordError struct {
	Source   string
	SourceID string
	Fields   []string
	Cause    error
}

// Error implements error.
func (e *MalformedRecordError) Error() string {
	var b strings.Builder
	b.WriteString("malformed record")
	if e.Source != "" || e.SourceID != "" {
		fmt.Fprintf(&b, " %s#%s", e.Source, e.SourceID)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, ": invalid fields [%s]", strings.Join(e.Fields, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Is reports ErrMalformedRecord so callers can match with errors.Is.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// Unwrap returns the underlying cause.
func (e *MalformedRecordError) Unwrap() error {
	return e.Cause
}

// NewMalformedRecordError builds a MalformedRecordError.
func NewMalformedRecordError(source, sourceID string, cause error, fields ...string) *MalformedRecordError {
	return &MalformedRecordError{Source: source, SourceID: sourceID, Fields: fields, Cause: cause}
}

// TrainingFailureError describes a failed collaborative training run.
type TrainingFailureError struct {
	Reason string
	Cause  error
}

// Error implements error.
func (e *TrainingFailureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("training failure: %s: %v", e.Reason, e.Cause)
	}
	return "training failure: " + e.Reason
}

// Is reports ErrTrainingFailure so callers can match with errors.Is.
func (e *TrainingFailureError) Is(target error) bool {
	return target == ErrTrainingFailure
}

// Unwrap returns the underlying cause.
func (e *TrainingFailureError) Unwrap() error {
	return e.Cause
}
