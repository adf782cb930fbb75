// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/animedex/internal/database/query"
	"github.com/tomtom215/animedex/internal/models"
)

// UpsertRatings stores interactions. At most one rating exists per (user,
// entity); an incoming rating replaces the stored one only when it is at
// least as recent. Ratings must already have passed the rating policy.
func (db *DB) UpsertRatings(ctx context.Context, ratings []models.InteractionRecord) error {
	if len(ratings) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	// Collapse the batch first so no row is written twice in one transaction.
	type ratingKey struct {
		user   string
		entity int64
	}
	latest := make(map[ratingKey]models.InteractionRecord, len(ratings))
	for _, r := range ratings {
		k := ratingKey{r.UserID, r.EntityID}
		if prev, ok := latest[k]; !ok || !r.RatedAt.Before(prev.RatedAt) {
			latest[k] = r
		}
	}
	batch := make([]models.InteractionRecord, 0, len(latest))
	for _, r := range latest {
		batch = append(batch, r)
	}
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].UserID != batch[j].UserID {
			return batch[i].UserID < batch[j].UserID
		}
		return batch[i].EntityID < batch[j].EntityID
	})

	return db.withTx(ctx, "upsert", "user_ratings", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO user_ratings (user_id, entity_id, rating, rated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, entity_id) DO UPDATE SET
				rating = EXCLUDED.rating,
				rated_at = EXCLUDED.rated_at
			WHERE EXCLUDED.rated_at >= user_ratings.rated_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare rating upsert: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		for i := range batch {
			r := &batch[i]
			if _, err := stmt.ExecContext(ctx, r.UserID, r.EntityID, r.Rating, r.RatedAt); err != nil {
				return fmt.Errorf("failed to upsert rating %s/%d: %w", r.UserID, r.EntityID, err)
			}
		}
		return nil
	})
}

// RatingFilter narrows LoadRatings. Zero values do not filter.
type RatingFilter struct {
	UserIDs []string
	Since   *time.Time
}

// LoadRatings returns ratings ordered by user, then entity.
func (db *DB) LoadRatings(ctx context.Context, f RatingFilter) ([]models.InteractionRecord, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	wb := query.NewWhereBuilder()
	wb.AddIn("user_id", f.UserIDs)
	wb.AddTimeRange("rated_at", f.Since, nil)
	where, args := wb.BuildWithPrefix()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, entity_id, rating, rated_at FROM user_ratings `+where+` ORDER BY user_id, entity_id`, args...)
	if err != nil {
		timed("select", "user_ratings", start, err)
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	var out []models.InteractionRecord
	for rows.Next() {
		var r models.InteractionRecord
		if err := rows.Scan(&r.UserID, &r.EntityID, &r.Rating, &r.RatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		out = append(out, r)
	}
	timed("select", "user_ratings", start, rows.Err())
	return out, rows.Err()
}

// UserRatings returns one user's ratings.
func (db *DB) UserRatings(ctx context.Context, userID string) ([]models.InteractionRecord, error) {
	return db.LoadRatings(ctx, RatingFilter{UserIDs: []string{userID}})
}
