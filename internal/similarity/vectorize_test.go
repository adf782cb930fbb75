// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package similarity

import (
	"math"
	"testing"
)

func TestVectorizer_SmoothIDF(t *testing.T) {
	t.Parallel()

	m := Vectorizer{MaxDocFreq: 0.8, MinDocs: 10}.Fit([]Bag{
		{"a": 1, "b": 1},
		{"a": 1},
	})

	// df(a)=2 gives idf 1; df(b)=1 gives ln(3/2)+1.
	idfB := math.Log(1.5) + 1
	norm := math.Sqrt(1 + idfB*idfB)

	v0 := m.Vector(0)
	if math.Abs(v0["a"]-1/norm) > 1e-12 || math.Abs(v0["b"]-idfB/norm) > 1e-12 {
		t.Errorf("Vector(0) = %v", v0)
	}
	v1 := m.Vector(1)
	if math.Abs(v1["a"]-1) > 1e-12 || len(v1) != 1 {
		t.Errorf("Vector(1) = %v, want {a:1}", v1)
	}
}

func TestVectorizer_MaxDocFreq(t *testing.T) {
	t.Parallel()

	bags := []Bag{{"common": 1, "x": 1}, {"common": 1, "y": 1}, {"common": 1}}

	tests := []struct {
		name       string
		vectorizer Vectorizer
		wantVocab  int
	}{
		{"below min docs keeps common terms", Vectorizer{MaxDocFreq: 0.5, MinDocs: 10}, 3},
		{"applied at min docs", Vectorizer{MaxDocFreq: 0.5, MinDocs: 3}, 2},
		{"disabled", Vectorizer{}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := tt.vectorizer.Fit(bags)
			if m.VocabularySize() != tt.wantVocab {
				t.Errorf("VocabularySize() = %d, want %d", m.VocabularySize(), tt.wantVocab)
			}
		})
	}
}

func TestVectorizer_UnitLength(t *testing.T) {
	t.Parallel()

	m := Vectorizer{}.Fit([]Bag{{"a": 3, "b": 1, "c": 7}, {"a": 1}, {}})
	for i := 0; i < m.Len(); i++ {
		var sum float64
		for _, w := range m.Vector(i) {
			sum += w * w
		}
		if i < 2 && math.Abs(sum-1) > 1e-9 {
			t.Errorf("|Vector(%d)|^2 = %v, want 1", i, sum)
		}
		if i == 2 && sum != 0 {
			t.Errorf("empty bag vector = %v, want empty", m.Vector(i))
		}
	}
}
