// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package dedupe

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/titles"
)

// Normalizer turns a raw source payload into a SourceRecord.
// adapters.Registry satisfies it.
type Normalizer interface {
	Normalize(source string, raw []byte) (*models.SourceRecord, error)
}

// KeyLookup resolves a natural key "source#id" to its last known mapping.
// keyindex.Store satisfies it.
type KeyLookup interface {
	Lookup(sourceKey string) (models.KeyMapping, bool, error)
}

// Input is one record to resolve: either a raw payload to normalize or an
// already normalized record.
type Input struct {
	Source  string
	Payload []byte
	Record  *models.SourceRecord
}

// Stats summarizes one resolve run.
type Stats struct {
	TotalRecords           int     `json:"total_records"`
	Created                int     `json:"created"`
	Merged                 int     `json:"merged"`
	Refreshed              int     `json:"refreshed"`
	Unchanged              int     `json:"unchanged"`
	Rejected               int     `json:"rejected"`
	Ambiguous              int     `json:"ambiguous"`
	CanonicalCount         int     `json:"canonical_count"`
	AvgSourcesPerCanonical float64 `json:"avg_sources_per_canonical"`
}

// Result is the output of Resolver.Resolve. Changed holds the new version of
// every entity touched by the run, ordered by canonical id.
type Result struct {
	RunID    string
	Changed  []*models.CanonicalEntity
	Audit    []models.AuditEntry
	Mappings []models.KeyMapping
	Stats    Stats
}

// Resolver runs entity resolution for a batch of records against the
// current canonical set.
type Resolver struct {
	cfg        config.DedupeConfig
	engine     *MergeEngine
	scorer     *Scorer
	hints      *titles.AliasHints
	normalizer Normalizer
	keys       KeyLookup
	now        func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithKeyLookup sets the natural-key index consulted before matching.
func WithKeyLookup(k KeyLookup) ResolverOption {
	return func(r *Resolver) { r.keys = k }
}

// WithNormalizer sets the normalizer used for raw payload inputs.
func WithNormalizer(n Normalizer) ResolverOption {
	return func(r *Resolver) { r.normalizer = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver from dedupe settings.
func NewResolver(cfg config.DedupeConfig, opts ...ResolverOption) (*Resolver, error) {
	strategy, err := NewStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	hints := titles.NewAliasHints(cfg.AliasHints)
	r := &Resolver{
		cfg:    cfg,
		engine: NewMergeEngine(cfg),
		scorer: NewScorer(cfg.Weights, strategy, hints),
		hints:  hints,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Scorer returns the resolver's scorer.
func (r *Resolver) Scorer() *Scorer { return r.scorer }

type prepared struct {
	pos    int
	rec    *models.SourceRecord
	comp   *Comparable
	hash   string
	source string
	err    error
}

// Resolve deduplicates inputs against entities, the current canonical set.
// entities is not modified; changed entities are returned as new versions.
// The run is deterministic for a given input set regardless of input order.
func (r *Resolver) Resolve(ctx context.Context, runID string, entities []*models.CanonicalEntity, inputs []Input) (*Result, error) {
	start := r.now()
	if runID == "" {
		runID = uuid.NewString()
	}
	log := logging.Ctx(ctx).With().Str("component", "dedupe").Str("run_id", runID).Logger()

	items, err := r.prepare(ctx, inputs)
	if err != nil {
		return nil, err
	}
	sortPrepared(items)

	index := NewIndex(r.cfg.Blocking, r.hints)
	owners := make(map[string]int64)
	var nextID int64 = 1
	for _, e := range entities {
		index.Add(e)
		for src, id := range e.ContributingSources {
			owners[models.SourceKey(src, id)] = e.CanonicalID
		}
		if e.CanonicalID >= nextID {
			nextID = e.CanonicalID + 1
		}
	}
	matcher := NewMatcher(index, r.scorer)

	res := &Result{RunID: runID}
	res.Stats.TotalRecords = len(items)
	changed := make(map[int64]*models.CanonicalEntity)

	// touch returns the run-local version of an entity, cloning the stored
	// version the first time it is modified in this run.
	touch := func(e *models.CanonicalEntity) *models.CanonicalEntity {
		if c, ok := changed[e.CanonicalID]; ok {
			return c
		}
		c := e.Clone()
		c.Version = e.Version + 1
		c.IsCurrent = true
		c.ValidTo = nil
		changed[c.CanonicalID] = c
		index.Add(c)
		return c
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolve cancelled: %w", err)
		}
		ts := r.now()

		if it.err != nil {
			res.Stats.Rejected++
			entry := models.AuditEntry{
				ID:        uuid.NewString(),
				RunID:     runID,
				Timestamp: ts,
				Source:    it.source,
				Decision:  models.DecisionReject,
				Reason:    it.err.Error(),
			}
			var mre *models.MalformedRecordError
			if errors.As(it.err, &mre) {
				entry.SourceID = mre.SourceID
			}
			res.Audit = append(res.Audit, entry)
			metrics.RecordDedupeDecision(string(models.DecisionReject))
			log.Warn().Err(it.err).Str("source", it.source).Msg("Rejected malformed record")
			continue
		}

		rec := it.rec
		key := rec.Key()

		ownerID, known, err := r.lookupOwner(key, owners)
		if err != nil {
			return nil, err
		}
		if known {
			if owner, ok := index.Get(ownerID); ok {
				if prev, found := r.lookupHash(key); found && prev == it.hash {
					res.Stats.Unchanged++
					continue
				}
				trial := owner.Clone()
				r.engine.Refresh(trial, rec)
				if trial.ContentFingerprint() == owner.ContentFingerprint() {
					res.Stats.Unchanged++
					res.Mappings = append(res.Mappings, mappingFor(owner, rec, it.hash, ts))
					continue
				}
				e := touch(owner)
				r.engine.Refresh(e, rec)
				index.Add(e)
				res.Stats.Refreshed++
				res.Audit = append(res.Audit, models.AuditEntry{
					ID:          uuid.NewString(),
					RunID:       runID,
					Timestamp:   ts,
					Source:      rec.Source,
					SourceID:    rec.SourceID,
					Title:       rec.Title,
					Decision:    models.DecisionRefresh,
					CanonicalID: e.CanonicalID,
					Score:       1,
				})
				res.Mappings = append(res.Mappings, mappingFor(e, rec, it.hash, ts))
				metrics.RecordDedupeDecision(string(models.DecisionRefresh))
				continue
			}
		}

		outcome := r.engine.Decide(matcher.Match(it.comp, rec.Source))
		entry := models.AuditEntry{
			ID:         uuid.NewString(),
			RunID:      runID,
			Timestamp:  ts,
			Source:     rec.Source,
			SourceID:   rec.SourceID,
			Title:      rec.Title,
			Decision:   outcome.Decision,
			Candidates: outcome.Candidates,
			Ambiguous:  outcome.Ambiguous,
		}
		if outcome.RunnerUp != nil {
			entry.RunnerUpID = outcome.RunnerUp.Entity.CanonicalID
			entry.RunnerUpScore = outcome.RunnerUp.Score()
		}

		var target *models.CanonicalEntity
		if outcome.Decision == models.DecisionMerge {
			target = touch(outcome.Target.Entity)
			bd := outcome.Target.Breakdown
			r.engine.Merge(target, rec, bd.Total)
			index.Add(target)
			entry.CanonicalID = target.CanonicalID
			entry.Score = bd.Total
			entry.Breakdown = &bd
			res.Stats.Merged++
			if outcome.Ambiguous {
				res.Stats.Ambiguous++
				metrics.DedupeAmbiguousTotal.Inc()
				log.Warn().
					Str("source_key", key).
					Int64("chosen", target.CanonicalID).
					Float64("score", bd.Total).
					Int64("runner_up", entry.RunnerUpID).
					Float64("runner_up_score", entry.RunnerUpScore).
					Msg("Ambiguous match resolved by tie-break")
			}
		} else {
			target = r.engine.NewEntity(nextID, rec)
			target.Version = 1
			nextID++
			changed[target.CanonicalID] = target
			index.Add(target)
			entry.CanonicalID = target.CanonicalID
			entry.Score = 1
			if outcome.Candidates > 0 {
				entry.Reason = "best candidate below threshold"
			}
			res.Stats.Created++
		}
		owners[key] = target.CanonicalID
		res.Audit = append(res.Audit, entry)
		res.Mappings = append(res.Mappings, mappingFor(target, rec, it.hash, ts))
		metrics.RecordDedupeDecision(string(outcome.Decision))
	}

	res.Changed = make([]*models.CanonicalEntity, 0, len(changed))
	for _, e := range changed {
		e.ValidFrom = start
		res.Changed = append(res.Changed, e)
	}
	sort.Slice(res.Changed, func(i, j int) bool { return res.Changed[i].CanonicalID < res.Changed[j].CanonicalID })

	res.Stats.CanonicalCount = index.Len()
	if n := index.Len(); n > 0 {
		total := 0
		for _, e := range index.Entities() {
			total += e.SourceCount()
		}
		res.Stats.AvgSourcesPerCanonical = round6(float64(total) / float64(n))
	}

	metrics.RecordDedupeRun(r.now().Sub(start), res.Stats.TotalRecords, res.Stats.CanonicalCount)
	log.Info().
		Int("records", res.Stats.TotalRecords).
		Int("created", res.Stats.Created).
		Int("merged", res.Stats.Merged).
		Int("refreshed", res.Stats.Refreshed).
		Int("unchanged", res.Stats.Unchanged).
		Int("rejected", res.Stats.Rejected).
		Int("ambiguous", res.Stats.Ambiguous).
		Int("canonical_count", res.Stats.CanonicalCount).
		Msg("Resolve complete")
	return res, nil
}

func (r *Resolver) lookupOwner(key string, owners map[string]int64) (int64, bool, error) {
	if id, ok := owners[key]; ok {
		return id, true, nil
	}
	if r.keys == nil {
		return 0, false, nil
	}
	m, ok, err := r.keys.Lookup(key)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up key %s: %w", key, err)
	}
	if !ok {
		return 0, false, nil
	}
	return m.CanonicalID, true, nil
}

// lookupHash returns the stored content hash for key. Keys without an index
// entry have no hash and are always refreshed.
func (r *Resolver) lookupHash(key string) (string, bool) {
	if r.keys == nil {
		return "", false
	}
	m, ok, err := r.keys.Lookup(key)
	if err != nil || !ok {
		return "", false
	}
	return m.ContentHash, true
}

func (r *Resolver) prepare(ctx context.Context, inputs []Input) ([]*prepared, error) {
	items := make([]*prepared, len(inputs))
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = r.prepareOne(i, inputs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to prepare records: %w", err)
	}
	return items, nil
}

func (r *Resolver) prepareOne(pos int, in Input) *prepared {
	p := &prepared{pos: pos, source: in.Source}
	rec := in.Record
	if rec == nil {
		if r.normalizer == nil {
			p.err = models.NewMalformedRecordError(in.Source, "", errors.New("no normalizer for raw payload"))
			return p
		}
		var err error
		rec, err = r.normalizer.Normalize(in.Source, in.Payload)
		if err != nil {
			p.err = err
			return p
		}
	}
	if rec.Source == "" || rec.SourceID == "" || rec.Title == "" {
		p.err = models.NewMalformedRecordError(rec.Source, rec.SourceID, nil, "source", "source_id", "title")
		return p
	}
	p.source = rec.Source
	p.rec = rec
	p.comp = RecordComparable(rec)
	if len(p.comp.Titles) == 0 {
		p.rec = nil
		p.err = models.NewMalformedRecordError(rec.Source, rec.SourceID, errors.New("title normalizes to empty"), "title")
		return p
	}
	p.hash = rec.ContentHash()
	return p
}

// sortPrepared orders records by popularity desc, source, then source id.
// Rejected records sort last in input order.
func sortPrepared(items []*prepared) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if (a.err == nil) != (b.err == nil) {
			return a.err == nil
		}
		if a.err != nil {
			return a.pos < b.pos
		}
		if a.rec.Popularity != b.rec.Popularity {
			return a.rec.Popularity > b.rec.Popularity
		}
		if a.rec.Source != b.rec.Source {
			return a.rec.Source < b.rec.Source
		}
		return a.rec.SourceID < b.rec.SourceID
	})
}

func mappingFor(e *models.CanonicalEntity, rec *models.SourceRecord, hash string, ts time.Time) models.KeyMapping {
	return models.KeyMapping{
		Source:       rec.Source,
		SourceID:     rec.SourceID,
		CanonicalID:  e.CanonicalID,
		CanonicalKey: e.Key,
		ContentHash:  hash,
		Confidence:   e.Confidence,
		UpdatedAt:    ts,
	}
}
