// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("len(GenerateCorrelationID()) = %d, want 8", len(a))
	}
	if a == b {
		t.Error("GenerateCorrelationID() returned the same ID twice")
	}
}

func TestContextValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if CorrelationIDFromContext(ctx) != "" || JobFromContext(ctx) != "" {
		t.Fatal("empty context should carry no values")
	}

	ctx = ContextWithCorrelationID(ctx, "run-1")
	ctx = ContextWithJob(ctx, "dedupe")
	if got := CorrelationIDFromContext(ctx); got != "run-1" {
		t.Errorf("CorrelationIDFromContext() = %q, want %q", got, "run-1")
	}
	if got := JobFromContext(ctx); got != "dedupe" {
		t.Errorf("JobFromContext() = %q, want %q", got, "dedupe")
	}
}

func TestCtx(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), NewTestLogger(&buf))
	ctx = ContextWithCorrelationID(ctx, "abc12345")
	ctx = ContextWithJob(ctx, "similarity")

	Ctx(ctx).Info().Msg("done")

	out := buf.String()
	for _, want := range []string{`"correlation_id":"abc12345"`, `"job":"similarity"`, `"message":"done"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}
