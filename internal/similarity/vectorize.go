// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package similarity

import (
	"math"
	"sort"
)

// entry is one non-zero component of a sparse vector.
type entry struct {
	term   int
	weight float64
}

// Vector is a sparse TF-IDF vector as a token to weight mapping.
type Vector map[string]float64

// Matrix holds the fitted vectors of a document set. Rows are sorted by term
// id for deterministic dot products.
type Matrix struct {
	vocabulary []string
	rows       [][]entry
}

// Len returns the number of documents.
func (m *Matrix) Len() int { return len(m.rows) }

// VocabularySize returns the number of retained terms.
func (m *Matrix) VocabularySize() int { return len(m.vocabulary) }

// Vector returns the weights of document i by token.
func (m *Matrix) Vector(i int) Vector {
	v := make(Vector, len(m.rows[i]))
	for _, e := range m.rows[i] {
		v[m.vocabulary[e.term]] = e.weight
	}
	return v
}

// Vectorizer fits smooth TF-IDF weights.
type Vectorizer struct {
	// MaxDocFreq drops terms present in more than this share of documents.
	MaxDocFreq float64
	// MinDocs is the corpus size from which MaxDocFreq applies.
	MinDocs int
}

// Fit computes L2-normalized TF-IDF vectors for bags. TF is the raw count
// and idf = ln((1+n)/(1+df)) + 1.
func (v Vectorizer) Fit(bags []Bag) *Matrix {
	n := len(bags)
	df := make(map[string]int)
	for _, bag := range bags {
		for token := range bag {
			df[token]++
		}
	}

	tokens := make([]string, 0, len(df))
	for token, count := range df {
		if v.MaxDocFreq > 0 && n >= v.MinDocs && float64(count)/float64(n) > v.MaxDocFreq {
			continue
		}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	termID := make(map[string]int, len(tokens))
	idf := make([]float64, len(tokens))
	for i, token := range tokens {
		termID[token] = i
		idf[i] = math.Log(float64(1+n)/float64(1+df[token])) + 1
	}

	m := &Matrix{vocabulary: tokens, rows: make([][]entry, n)}
	for d, bag := range bags {
		row := make([]entry, 0, len(bag))
		var norm float64
		for token, tf := range bag {
			id, ok := termID[token]
			if !ok {
				continue
			}
			w := float64(tf) * idf[id]
			row = append(row, entry{term: id, weight: w})
			norm += w * w
		}
		sort.Slice(row, func(i, j int) bool { return row[i].term < row[j].term })
		if norm > 0 {
			norm = math.Sqrt(norm)
			for i := range row {
				row[i].weight /= norm
			}
		}
		m.rows[d] = row
	}
	return m
}

// posting is one document containing a term.
type posting struct {
	doc    int
	weight float64
}

// invertedIndex maps every term to the documents containing it, in document
// order.
func (m *Matrix) invertedIndex() [][]posting {
	index := make([][]posting, len(m.vocabulary))
	for d, row := range m.rows {
		for _, e := range row {
			index[e.term] = append(index[e.term], posting{doc: d, weight: e.weight})
		}
	}
	return index
}
