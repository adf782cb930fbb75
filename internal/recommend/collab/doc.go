// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package collab trains the collaborative scoring model.
//
// The model is Bayesian Personalized Ranking (Rendle et al., 2009) over
// sparse explicit ratings: every rating above zero is a positive, weighted by
// rating/5, and negatives are drawn uniformly from the items a user never
// rated. Predictions are 5*sigmoid(u.i) so they share the 0-5 rating scale.
//
// Training refuses to produce a model from too little data (fewer than
// MinInteractions ratings, fewer than two users or items) and aborts if any
// factor becomes NaN or Inf. Both cases return a *models.TrainingFailureError
// so the caller can record a failed version while the previously active
// model keeps serving.
//
// Evaluate measures a configuration with a leave-one-out holdout of each
// user's latest positive rating.
package collab
