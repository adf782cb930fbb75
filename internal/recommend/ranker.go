// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/animedex/internal/cache"
	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/similarity"
	"github.com/tomtom215/animedex/internal/titles"
)

const resultCache = "recommendations"

// Ranker blends content similarity and collaborative predictions into a
// ranked list per user. It is safe for concurrent use.
type Ranker struct {
	src          DataSource
	cfg          config.HybridConfig
	method       string
	neighborsPer int
	cache        *cache.Cache[Result]
	now          func() time.Time
}

// NewRanker creates a ranker reading from src. Edges are looked up under the
// similarity method configured in simCfg.
func NewRanker(src DataSource, cfg config.HybridConfig, simCfg config.SimilarityConfig) *Ranker {
	if len(cfg.Cohorts) == 0 {
		cfg.Cohorts = config.DefaultCohorts()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.MaxFavorites <= 0 {
		cfg.MaxFavorites = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	method := simCfg.Method
	if method == "" {
		method = similarity.MethodTFIDFCosine
	}
	topK := simCfg.TopK
	if topK <= 0 {
		topK = 10
	}

	return &Ranker{
		src:          src,
		cfg:          cfg,
		method:       method,
		neighborsPer: topK,
		cache:        cache.New[Result](cfg.CacheTTL),
		now:          time.Now,
	}
}

// Close stops the result cache.
func (r *Ranker) Close() {
	r.cache.Close()
}

// InvalidateCache drops every cached result. The pipeline calls it after a
// new snapshot or model version is committed.
func (r *Ranker) InvalidateCache() {
	r.cache.Clear()
}

// rankState is the per-request working set.
type rankState struct {
	q             Query
	limit         int
	excludeSeries bool
	cohort        *config.CohortConfig
	snapshot      int64
	model         *models.ModelVersion

	rated      map[int64]bool
	anchors    map[int64]*models.CanonicalEntity
	content    map[int64]float64
	bestAnchor map[int64]int64
	bestEdge   map[int64]float64
	edgeSnap   int64
	collab     map[int64]float64
}

// Recommend returns up to Query.Limit ranked items. An unknown anchor entity
// returns an error wrapping models.ErrNotFound.
func (r *Ranker) Recommend(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	st, err := r.prepare(ctx, q)
	if err != nil {
		return nil, err
	}

	key := r.cacheKey(st)
	if cached, ok := r.cache.Get(key); ok {
		metrics.RecordCacheHit(resultCache)
		res := cached
		res.Items = append([]Item(nil), cached.Items...)
		res.StaleReasons = append([]string(nil), cached.StaleReasons...)
		res.CacheHit = true
		return &res, nil
	}
	metrics.RecordCacheMiss(resultCache)

	res, err := r.rank(ctx, st)
	if err != nil {
		return nil, err
	}

	metrics.RecordRank(res.Cohort, time.Since(start), res.ColdStart)
	if res.Stale {
		logging.Ctx(ctx).Warn().
			Str("user_id", q.UserID).
			Int64("catalog_snapshot", res.CatalogSnapshot).
			Int64("edge_snapshot", res.EdgeSnapshot).
			Int("model_version", res.ModelVersion).
			Strs("reasons", res.StaleReasons).
			Msg("Serving recommendations computed against an older snapshot")
	}

	stored := *res
	stored.Items = append([]Item(nil), res.Items...)
	r.cache.Set(key, stored)
	return res, nil
}

func (r *Ranker) prepare(ctx context.Context, q Query) (*rankState, error) {
	st := &rankState{
		q:             q,
		limit:         q.Limit,
		excludeSeries: r.cfg.ExcludeSameSeries,
		cohort:        cohortFor(q.UserID, r.cfg.Cohorts),
	}
	if st.limit <= 0 {
		st.limit = r.cfg.DefaultLimit
	}
	if st.limit > r.cfg.MaxLimit {
		st.limit = r.cfg.MaxLimit
	}
	if q.ExcludeSameSeries != nil {
		st.excludeSeries = *q.ExcludeSameSeries
	}

	snapshot, err := r.src.CurrentSnapshotVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog snapshot: %w", err)
	}
	st.snapshot = snapshot

	model, err := r.src.ActiveModelVersion(ctx)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to read active model: %w", err)
	default:
		st.model = model
	}
	return st, nil
}

func (r *Ranker) cacheKey(st *rankState) string {
	modelVersion := 0
	if st.model != nil {
		modelVersion = st.model.Version
	}
	return fmt.Sprintf("%s|%d|%d|%t|%s|%d|%d",
		st.q.UserID, st.q.EntityID, st.limit, st.excludeSeries, st.cohort.Name, st.snapshot, modelVersion)
}

func (r *Ranker) rank(ctx context.Context, st *rankState) (*Result, error) {
	if err := r.loadRatings(ctx, st); err != nil {
		return nil, err
	}
	if err := r.loadAnchors(ctx, st); err != nil {
		return nil, err
	}
	if err := r.loadContent(ctx, st); err != nil {
		return nil, err
	}
	if err := r.loadCollab(ctx, st); err != nil {
		return nil, err
	}

	wc, wf, coldStart := blendWeights(st.cohort, len(st.collab) > 0)
	res := &Result{
		Cohort:          st.cohort.Name,
		ContentWeight:   wc,
		CollabWeight:    wf,
		ColdStart:       coldStart,
		CatalogSnapshot: st.snapshot,
		EdgeSnapshot:    st.edgeSnap,
		GeneratedAt:     r.now().UTC(),
	}
	if st.model != nil && len(st.collab) > 0 {
		res.ModelVersion = st.model.Version
	}
	r.markStale(st, res)

	if st.q.EntityID == 0 && len(st.anchors) == 0 && len(st.collab) == 0 {
		items, err := r.popular(ctx, st)
		if err != nil {
			return nil, err
		}
		res.Items = items
		res.Fallback = FallbackPopularity
		return res, nil
	}

	items, err := r.blend(ctx, st, wc, wf)
	if err != nil {
		return nil, err
	}
	res.Items = items
	return res, nil
}

func (r *Ranker) loadRatings(ctx context.Context, st *rankState) error {
	st.rated = make(map[int64]bool)
	if st.q.UserID == "" {
		return nil
	}
	ratings, err := r.src.UserRatings(ctx, st.q.UserID)
	if err != nil {
		return fmt.Errorf("failed to load ratings for %s: %w", st.q.UserID, err)
	}
	for _, rt := range ratings {
		st.rated[rt.EntityID] = true
	}
	st.anchors = make(map[int64]*models.CanonicalEntity)
	if st.q.EntityID != 0 {
		return nil
	}

	favorites := make([]models.InteractionRecord, 0, len(ratings))
	for _, rt := range ratings {
		if rt.Rating >= r.cfg.FavoriteMinRating && rt.Rating > 0 {
			favorites = append(favorites, rt)
		}
	}
	sort.Slice(favorites, func(i, j int) bool {
		a, b := favorites[i], favorites[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if !a.RatedAt.Equal(b.RatedAt) {
			return a.RatedAt.After(b.RatedAt)
		}
		return a.EntityID < b.EntityID
	})
	if len(favorites) > r.cfg.MaxFavorites {
		favorites = favorites[:r.cfg.MaxFavorites]
	}
	for _, f := range favorites {
		st.anchors[f.EntityID] = nil
	}
	return nil
}

// loadAnchors resolves the anchor entities. An explicit anchor must exist;
// favorites that left the catalog are dropped.
func (r *Ranker) loadAnchors(ctx context.Context, st *rankState) error {
	if st.q.EntityID != 0 {
		e, err := r.src.GetEntity(ctx, st.q.EntityID)
		if err != nil {
			return fmt.Errorf("failed to load anchor entity: %w", err)
		}
		st.anchors = map[int64]*models.CanonicalEntity{e.CanonicalID: e}
		return nil
	}
	if len(st.anchors) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(st.anchors))
	for id := range st.anchors {
		ids = append(ids, id)
	}
	entities, err := r.src.ListEntities(ctx, database.EntityFilter{IDs: ids})
	if err != nil {
		return fmt.Errorf("failed to load favorite entities: %w", err)
	}
	st.anchors = make(map[int64]*models.CanonicalEntity, len(entities))
	for _, e := range entities {
		st.anchors[e.CanonicalID] = e
	}
	return nil
}

// loadContent averages neighbor scores across anchors.
func (r *Ranker) loadContent(ctx context.Context, st *rankState) error {
	st.content = make(map[int64]float64)
	st.bestAnchor = make(map[int64]int64)
	st.bestEdge = make(map[int64]float64)
	if len(st.anchors) == 0 {
		return nil
	}

	for anchor := range st.anchors {
		edges, err := r.src.SimilarityNeighbors(ctx, anchor, r.method, r.neighborsPer)
		if err != nil {
			return fmt.Errorf("failed to load neighbors of %d: %w", anchor, err)
		}
		for _, e := range edges {
			st.content[e.Target] += e.Score
			if e.Score > st.bestEdge[e.Target] ||
				(e.Score == st.bestEdge[e.Target] && (st.bestAnchor[e.Target] == 0 || anchor < st.bestAnchor[e.Target])) {
				st.bestEdge[e.Target] = e.Score
				st.bestAnchor[e.Target] = anchor
			}
			if e.SnapshotVersion > st.edgeSnap {
				st.edgeSnap = e.SnapshotVersion
			}
		}
	}
	n := float64(len(st.anchors))
	for id := range st.content {
		st.content[id] /= n
	}
	return nil
}

func (r *Ranker) loadCollab(ctx context.Context, st *rankState) error {
	st.collab = make(map[int64]float64)
	if st.q.UserID == "" || st.model == nil || st.cohort.CollabWeight <= 0 {
		return nil
	}
	preds, err := r.src.PredictedScores(ctx, st.q.UserID, st.model.Version)
	if err != nil {
		return fmt.Errorf("failed to load predictions for %s: %w", st.q.UserID, err)
	}
	for _, p := range preds {
		st.collab[p.EntityID] = p.PredictedValue
	}
	return nil
}

func (r *Ranker) markStale(st *rankState, res *Result) {
	if st.edgeSnap > 0 && st.snapshot > st.edgeSnap {
		res.StaleReasons = append(res.StaleReasons, StaleSimilarity)
	}
	if res.ModelVersion > 0 && st.model.CatalogSnapshot < st.snapshot {
		res.StaleReasons = append(res.StaleReasons, StaleModel)
	}
	res.Stale = len(res.StaleReasons) > 0
}

func (r *Ranker) excluded(st *rankState, id int64) bool {
	if st.rated[id] || id == st.q.EntityID {
		return true
	}
	_, isAnchor := st.anchors[id]
	return isAnchor
}

func (r *Ranker) blend(ctx context.Context, st *rankState, wc, wf float64) ([]Item, error) {
	content := make(map[int64]float64)
	collab := make(map[int64]float64)
	ids := make([]int64, 0, len(st.content)+len(st.collab))
	for id, v := range st.content {
		if !r.excluded(st, id) {
			content[id] = v
			ids = append(ids, id)
		}
	}
	if wf > 0 {
		for id, v := range st.collab {
			if r.excluded(st, id) {
				continue
			}
			collab[id] = v
			if _, ok := content[id]; !ok {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return []Item{}, nil
	}

	entities, err := r.src.ListEntities(ctx, database.EntityFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate entities: %w", err)
	}

	normContent, normCollab := normalizers(r.cfg.Normalization, content, collab)
	items := make([]Item, 0, len(entities))
	for _, e := range entities {
		c, hasContent := content[e.CanonicalID]
		f, hasCollab := collab[e.CanonicalID]
		item := Item{
			CanonicalID: e.CanonicalID,
			Title:       e.Title,
			Popularity:  e.Popularity,
		}
		if hasContent {
			item.ContentScore = normContent(c)
		}
		if hasCollab {
			item.CollabScore = normCollab(f)
		}
		item.Score = wc*item.ContentScore + wf*item.CollabScore
		item.Reason = r.reason(st, e.CanonicalID, hasContent, hasCollab, f)
		items = append(items, item)
	}
	sortItems(items)

	return r.finish(st, items), nil
}

// finish applies the series filter and the limit.
func (r *Ranker) finish(st *rankState, items []Item) []Item {
	if st.excludeSeries {
		anchorSeries := make([]string, 0, len(st.anchors))
		for _, a := range st.anchors {
			if a == nil {
				continue
			}
			if s := titles.BaseSeries(a.Title); s != "" {
				anchorSeries = append(anchorSeries, s)
			}
		}
		seen := make(map[string]bool, len(items))
		kept := items[:0]
		for _, it := range items {
			series := titles.BaseSeries(it.Title)
			if sameSeries(series, anchorSeries) || seen[series] {
				continue
			}
			seen[series] = true
			kept = append(kept, it)
		}
		items = kept
	}
	if len(items) > st.limit {
		items = items[:st.limit]
	}
	return items
}

// sameSeries reports whether series belongs to one of the anchor series. A
// base name that is a prefix of the other either way counts as the same
// franchise.
func sameSeries(series string, anchors []string) bool {
	for _, a := range anchors {
		if strings.HasPrefix(series, a) || strings.HasPrefix(a, series) {
			return true
		}
	}
	return false
}

func (r *Ranker) reason(st *rankState, id int64, hasContent, hasCollab bool, predicted float64) string {
	var similarTo string
	if hasContent {
		if a := st.anchors[st.bestAnchor[id]]; a != nil {
			similarTo = a.Title
		}
	}
	switch {
	case similarTo != "" && hasCollab:
		return fmt.Sprintf("Similar to %s; predicted rating %.1f", similarTo, predicted)
	case similarTo != "":
		return "Similar to " + similarTo
	case hasCollab:
		return fmt.Sprintf("Predicted rating %.1f", predicted)
	}
	return "Similar to titles you rated highly"
}

// popular ranks the catalog by popularity for users with no signal.
func (r *Ranker) popular(ctx context.Context, st *rankState) ([]Item, error) {
	fetch := st.limit + len(st.rated)
	if st.excludeSeries {
		fetch *= 4
	}
	entities, err := r.src.ListEntities(ctx, database.EntityFilter{Limit: fetch})
	if err != nil {
		return nil, fmt.Errorf("failed to load popular entities: %w", err)
	}

	var top int64
	for _, e := range entities {
		if e.Popularity > top {
			top = e.Popularity
		}
	}
	items := make([]Item, 0, len(entities))
	for _, e := range entities {
		if st.rated[e.CanonicalID] {
			continue
		}
		item := Item{
			CanonicalID: e.CanonicalID,
			Title:       e.Title,
			Popularity:  e.Popularity,
			Reason:      "Popular in the catalog",
		}
		if top > 0 {
			item.Score = float64(e.Popularity) / float64(top)
		}
		items = append(items, item)
	}
	sortItems(items)
	return r.finish(st, items), nil
}

// sortItems orders by score, then popularity, then canonical id.
func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		return a.CanonicalID < b.CanonicalID
	})
}
