// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package collab

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
)

// Algorithm is the algorithm name stored on model versions.
const Algorithm = "bpr"

// Model is a trained BPR factorization. Its exported fields are the
// persisted state; call Index after decoding a stored model.
type Model struct {
	Factors     int
	Users       []string
	Items       []int64
	UserFactors [][]float64
	ItemFactors [][]float64
	// Seen holds the sorted item indices each user rated.
	Seen      [][]int
	FinalLoss float64

	userIndex map[string]int
	itemIndex map[int64]int
}

// Index rebuilds the id lookups of a decoded model.
func (m *Model) Index() {
	m.userIndex = make(map[string]int, len(m.Users))
	for i, u := range m.Users {
		m.userIndex[u] = i
	}
	m.itemIndex = make(map[int64]int, len(m.Items))
	for i, it := range m.Items {
		m.itemIndex[it] = i
	}
}

// HasUser reports whether the user was part of training.
func (m *Model) HasUser(userID string) bool {
	_, ok := m.userIndex[userID]
	return ok
}

// Predict returns 5*sigmoid(u.i) for a known user and item.
func (m *Model) Predict(userID string, entityID int64) (float64, bool) {
	u, ok := m.userIndex[userID]
	if !ok {
		return 0, false
	}
	i, ok := m.itemIndex[entityID]
	if !ok {
		return 0, false
	}
	return models.MaxRating * sigmoid(dot(m.UserFactors[u], m.ItemFactors[i])), true
}

// Recommend returns the top n unseen items for a user ordered by predicted
// value desc, then entity id asc. Unknown users get nil.
func (m *Model) Recommend(userID string, n int) []models.PredictedScore {
	u, ok := m.userIndex[userID]
	if !ok || n <= 0 {
		return nil
	}
	return m.topN(u, n)
}

func (m *Model) topN(u, n int) []models.PredictedScore {
	seen := m.Seen[u]
	uf := m.UserFactors[u]
	preds := make([]models.PredictedScore, 0, len(m.Items))
	for i, entity := range m.Items {
		if k := sort.SearchInts(seen, i); k < len(seen) && seen[k] == i {
			continue
		}
		preds = append(preds, models.PredictedScore{
			UserID:         m.Users[u],
			EntityID:       entity,
			PredictedValue: models.MaxRating * sigmoid(dot(uf, m.ItemFactors[i])),
		})
	}
	sort.Slice(preds, func(a, b int) bool {
		if preds[a].PredictedValue != preds[b].PredictedValue {
			return preds[a].PredictedValue > preds[b].PredictedValue
		}
		return preds[a].EntityID < preds[b].EntityID
	})
	if len(preds) > n {
		preds = preds[:n]
	}
	for r := range preds {
		preds[r].Rank = r + 1
	}
	return preds
}

// TopN returns the top n unseen items of every user, ordered by user. ctx is
// checked between users.
func (m *Model) TopN(ctx context.Context, n int) ([]models.PredictedScore, error) {
	var out []models.PredictedScore
	for u := range m.Users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, m.topN(u, n)...)
	}
	return out, nil
}

// Trainer fits BPR models.
type Trainer struct {
	cfg config.CollabConfig
}

// NewTrainer creates a trainer. Zero hyperparameters fall back to defaults.
func NewTrainer(cfg config.CollabConfig) *Trainer {
	if cfg.Factors <= 0 {
		cfg.Factors = 50
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.05
	}
	if cfg.Regularization <= 0 {
		cfg.Regularization = 0.01
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 10
	}
	if cfg.NegativeSamples <= 0 {
		cfg.NegativeSamples = 5
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if cfg.EvalCutoff <= 0 {
		cfg.EvalCutoff = 10
	}
	return &Trainer{cfg: cfg}
}

// Config returns the effective settings.
func (t *Trainer) Config() config.CollabConfig { return t.cfg }

type positive struct {
	user, item int
	weight     float64
}

// Train fits a model on ratings that already went through PrepareRatings.
// ctx is checked once per epoch.
//
//nolint:gocyclo // SGD training loop
func (t *Trainer) Train(ctx context.Context, ratings []models.InteractionRecord) (*Model, error) {
	if len(ratings) < t.cfg.MinInteractions {
		return nil, &models.TrainingFailureError{
			Reason: fmt.Sprintf("%d interactions, need at least %d", len(ratings), t.cfg.MinInteractions),
		}
	}

	m := &Model{Factors: t.cfg.Factors}
	users := make(map[string]struct{})
	items := make(map[int64]struct{})
	for _, r := range ratings {
		users[r.UserID] = struct{}{}
		items[r.EntityID] = struct{}{}
	}
	if len(users) < 2 || len(items) < 2 {
		return nil, &models.TrainingFailureError{
			Reason: fmt.Sprintf("%d users and %d items, need at least 2 of each", len(users), len(items)),
		}
	}
	for u := range users {
		m.Users = append(m.Users, u)
	}
	sort.Strings(m.Users)
	for it := range items {
		m.Items = append(m.Items, it)
	}
	sort.Slice(m.Items, func(i, j int) bool { return m.Items[i] < m.Items[j] })
	m.Index()

	m.Seen = make([][]int, len(m.Users))
	var positives []positive
	for _, r := range ratings {
		u, i := m.userIndex[r.UserID], m.itemIndex[r.EntityID]
		m.Seen[u] = append(m.Seen[u], i)
		if r.Rating > 0 {
			positives = append(positives, positive{user: u, item: i, weight: r.Rating / models.MaxRating})
		}
	}
	for u := range m.Seen {
		sort.Ints(m.Seen[u])
	}
	if len(positives) == 0 {
		return nil, &models.TrainingFailureError{Reason: "no positive ratings"}
	}

	//nolint:gosec // G404: math/rand is acceptable for ML initialization (not security)
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	m.UserFactors = initFactors(rng, len(m.Users), m.Factors)
	m.ItemFactors = initFactors(rng, len(m.Items), m.Factors)

	lr := t.cfg.LearningRate
	reg := t.cfg.Regularization
	numItems := len(m.Items)

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng.Shuffle(len(positives), func(a, b int) { positives[a], positives[b] = positives[b], positives[a] })

		var loss float64
		var steps int
		for _, p := range positives {
			seen := m.Seen[p.user]
			if len(seen) == numItems {
				continue
			}
			uf := m.UserFactors[p.user]
			pf := m.ItemFactors[p.item]

			for ns := 0; ns < t.cfg.NegativeSamples; ns++ {
				j := -1
				for tries := 0; tries < 100; tries++ {
					c := rng.Intn(numItems)
					if k := sort.SearchInts(seen, c); k >= len(seen) || seen[k] != c {
						j = c
						break
					}
				}
				if j < 0 {
					continue
				}
				nf := m.ItemFactors[j]

				x := dot(uf, pf) - dot(uf, nf)
				// d/dx ln(sigmoid(x)) = sigmoid(-x)
				g := sigmoid(-x) * p.weight
				loss -= math.Log(math.Max(sigmoid(x), 1e-12)) * p.weight
				steps++

				for f := range uf {
					wu, hi, hj := uf[f], pf[f], nf[f]
					uf[f] += lr * (g*(hi-hj) - reg*wu)
					pf[f] += lr * (g*wu - reg*hi)
					nf[f] += lr * (-g*wu - reg*hj)
				}
			}
		}

		if !finite(m.UserFactors) || !finite(m.ItemFactors) {
			return nil, &models.TrainingFailureError{
				Reason: fmt.Sprintf("factors diverged in epoch %d", epoch+1),
				Cause:  errors.New("NaN or Inf in latent factors"),
			}
		}
		if steps > 0 {
			m.FinalLoss = loss / float64(steps)
		}
	}
	return m, nil
}

func initFactors(rng *rand.Rand, rows, factors int) [][]float64 {
	out := make([][]float64, rows)
	for r := range out {
		out[r] = make([]float64, factors)
		for f := range out[r] {
			out[r][f] = (rng.Float64() - 0.5) * 0.1
		}
	}
	return out
}

func finite(m [][]float64) bool {
	for _, row := range m {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
