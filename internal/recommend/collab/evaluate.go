// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package collab

import (
	"context"
	"fmt"

	"github.com/tomtom215/animedex/internal/models"
)

// Evaluate scores the trainer's configuration with a leave-one-out holdout:
// for every user with at least two positive ratings the latest one is held
// out, a model is trained on the rest, and the holdout is looked up in the
// user's top-K list (K = EvalCutoff). Coverage is measured on the same
// lists: the share of trained items that appear in any list and the share of
// users that receive a non-empty list.
func (t *Trainer) Evaluate(ctx context.Context, ratings []models.InteractionRecord) (models.ModelMetrics, error) {
	k := t.cfg.EvalCutoff
	result := models.ModelMetrics{Cutoff: k}

	holdout := make(map[string]models.InteractionRecord)
	positives := make(map[string]int)
	for _, r := range ratings {
		if r.Rating <= 0 {
			continue
		}
		positives[r.UserID]++
		prev, ok := holdout[r.UserID]
		if !ok || r.RatedAt.After(prev.RatedAt) || (r.RatedAt.Equal(prev.RatedAt) && r.EntityID > prev.EntityID) {
			holdout[r.UserID] = r
		}
	}
	for user, n := range positives {
		if n < 2 {
			delete(holdout, user)
		}
	}
	if len(holdout) == 0 {
		return result, nil
	}

	train := make([]models.InteractionRecord, 0, len(ratings))
	for _, r := range ratings {
		if h, ok := holdout[r.UserID]; ok && h.EntityID == r.EntityID {
			continue
		}
		train = append(train, r)
	}

	evalCfg := t.cfg
	evalCfg.MinInteractions = 0
	model, err := NewTrainer(evalCfg).Train(ctx, train)
	if err != nil {
		return result, fmt.Errorf("evaluation model: %w", err)
	}

	var precision, recall float64
	for _, user := range model.Users {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		h, ok := holdout[user]
		if !ok {
			continue
		}
		for _, p := range model.Recommend(user, k) {
			if p.EntityID == h.EntityID {
				precision += 1 / float64(k)
				recall++
				break
			}
		}
	}
	result.EvaluatedUsers = len(holdout)
	result.PrecisionAtK = precision / float64(len(holdout))
	result.RecallAtK = recall / float64(len(holdout))

	covered := make(map[int64]struct{})
	served := 0
	for _, user := range model.Users {
		recs := model.Recommend(user, k)
		if len(recs) > 0 {
			served++
		}
		for _, p := range recs {
			covered[p.EntityID] = struct{}{}
		}
	}
	users := make(map[string]struct{})
	for _, r := range ratings {
		users[r.UserID] = struct{}{}
	}
	result.CatalogCoverage = float64(len(covered)) / float64(len(model.Items))
	result.UserCoverage = float64(served) / float64(len(users))
	result.FinalLoss = model.FinalLoss
	return result, nil
}
