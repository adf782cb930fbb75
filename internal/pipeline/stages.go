// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/dedupe"
	"github.com/tomtom215/animedex/internal/eventprocessor"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/recommend"
	"github.com/tomtom215/animedex/internal/recommend/collab"
	"github.com/tomtom215/animedex/internal/recommend/storage"
)

// computed holds the outputs of the parallel compute stage until they are
// materialized. Each goroutine writes only its own fields.
type computed struct {
	edges      []models.SimilarityEdge
	similarity *SimilarityStats

	model     *collab.Model
	preds     []models.PredictedScore
	training  *TrainingStats
	failure   *models.TrainingFailureError
	trainedAt time.Time
}

// ingest stages the import directory content.
func (r *Runner) ingest(ctx context.Context, res *Result) (*Batch, error) {
	if r.deps.Source == nil {
		return &Batch{}, nil
	}
	batch, err := r.deps.Source.Scan(ctx)
	if err != nil {
		return nil, err
	}
	res.Ingest = &batch.Stats
	if batch.Empty() {
		return batch, nil
	}

	staged, err := r.deps.DB.StageSourceRecords(ctx, batch.Records)
	if err != nil {
		return nil, fmt.Errorf("stage records: %w", err)
	}
	batch.Stats.Staged = staged
	if len(batch.Ratings) > 0 {
		if err := r.deps.DB.UpsertRatings(ctx, batch.Ratings); err != nil {
			return nil, fmt.Errorf("store ratings: %w", err)
		}
	}

	logging.Ctx(ctx).Info().
		Int("files", batch.Stats.Files).
		Int("records", batch.Stats.Records).
		Int("staged", staged).
		Int("malformed", batch.Stats.Malformed).
		Int("ratings", batch.Stats.Ratings).
		Int("rejected_ratings", batch.Stats.RejectedRatings).
		Msg("Import files ingested")
	return batch, nil
}

// dedupe resolves every pending staged record plus the malformed payloads of
// the batch, and commits the outcome as one snapshot.
func (r *Runner) dedupe(ctx context.Context, res *Result, batch *Batch) error {
	pending, err := r.deps.DB.PendingSourceRecords(ctx, 0)
	if err != nil {
		return err
	}

	inputs := make([]dedupe.Input, 0, len(pending)+len(batch.Malformed))
	consumed := make([]database.StagedKey, 0, len(pending))
	for i := range pending {
		p := &pending[i]
		inputs = append(inputs, dedupe.Input{Source: p.Source, Payload: p.Payload})
		consumed = append(consumed, database.StagedKey{Source: p.Source, SourceID: p.SourceID, ContentHash: p.ContentHash})
	}
	inputs = append(inputs, batch.Malformed...)
	if len(inputs) == 0 {
		logging.Ctx(ctx).Debug().Msg("No pending records")
		return nil
	}

	entities, err := r.deps.DB.LoadCurrentEntities(ctx)
	if err != nil {
		return err
	}
	out, err := r.deps.Resolver.Resolve(ctx, res.RunID, entities, inputs)
	if err != nil {
		return err
	}
	res.Dedupe = &out.Stats

	snap, err := r.deps.DB.CommitRun(ctx, database.RunCommit{
		RunID:    res.RunID,
		Changed:  out.Changed,
		Mappings: out.Mappings,
		Audit:    out.Audit,
		Consumed: consumed,
		At:       r.now().UTC(),
	})
	if err != nil {
		return err
	}

	// The warehouse is the source of truth; a stale key index only costs
	// extra matching work on the next run.
	if r.deps.Keys != nil && len(out.Mappings) > 0 {
		if err := r.deps.Keys.Put(out.Mappings); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to update key index")
		}
	}

	if snap == nil {
		return nil
	}
	res.NewSnapshot = true
	r.publishChanges(ctx, snap, out.Changed)
	return nil
}

func (r *Runner) publishChanges(ctx context.Context, snap *models.Snapshot, changed []*models.CanonicalEntity) {
	if r.deps.Publisher == nil {
		return
	}
	ev := &eventprocessor.EntitiesChangedEvent{
		SnapshotVersion: snap.Version,
		RunID:           snap.RunID,
		EntityCount:     snap.EntityCount,
		CommittedAt:     snap.CreatedAt,
	}
	for _, e := range changed {
		if e.Version == 1 {
			ev.Created = append(ev.Created, e.CanonicalID)
		} else {
			ev.Updated = append(ev.Updated, e.CanonicalID)
		}
	}
	if err := r.deps.Publisher.PublishEntitiesChanged(ctx, ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("snapshot_version", snap.Version).
			Msg("Failed to publish entity changes")
	}
}

// compute runs similarity and training in parallel against snapshot.
// Similarity is skipped when edges for snapshot already exist.
func (r *Runner) compute(ctx context.Context, snapshot int64, out *computed) error {
	method := r.deps.Similarity.Method()
	out.similarity = &SimilarityStats{Method: method, Snapshot: snapshot}

	edgeSnapshot, err := r.deps.DB.LatestEdgeSnapshot(ctx, method)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if edgeSnapshot >= snapshot {
		out.similarity.Skipped = true
	} else {
		g.Go(func() error {
			start := time.Now()
			entities, err := r.deps.DB.EntitiesAsOf(gctx, snapshot)
			if err != nil {
				return fmt.Errorf("load snapshot %d: %w", snapshot, err)
			}
			edges, err := r.deps.Similarity.Compute(gctx, entities, snapshot)
			if err != nil {
				return fmt.Errorf("similarity: %w", err)
			}
			out.edges = edges
			out.similarity.Edges = len(edges)
			out.similarity.DurationMS = time.Since(start).Milliseconds()
			return nil
		})
	}
	if r.deps.Trainer != nil {
		g.Go(func() error { return r.train(gctx, out) })
	}
	return g.Wait()
}

// train fits a model over all stored ratings. A TrainingFailureError is kept
// in out rather than returned so the rest of the run proceeds.
func (r *Runner) train(ctx context.Context, out *computed) error {
	start := time.Now()
	ts := &TrainingStats{}
	out.training = ts
	out.trainedAt = r.now().UTC()

	ratings, err := r.deps.DB.LoadRatings(ctx, database.RatingFilter{})
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}
	ts.Interactions = len(ratings)

	model, err := r.deps.Trainer.Train(ctx, ratings)
	var failure *models.TrainingFailureError
	if errors.As(err, &failure) {
		out.failure = failure
		ts.Status = string(models.ModelStatusFailed)
		ts.Reason = failure.Error()
		ts.DurationMS = time.Since(start).Milliseconds()
		return nil
	}
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	ts.Users, ts.Items = len(model.Users), len(model.Items)
	ts.Metrics = models.ModelMetrics{FinalLoss: model.FinalLoss}

	if r.collab.Evaluate {
		m, err := r.deps.Trainer.Evaluate(ctx, ratings)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			logging.Ctx(ctx).Warn().Err(err).Msg("Model evaluation failed")
		default:
			m.FinalLoss = model.FinalLoss
			ts.Metrics = m
		}
	}

	topN := r.cfg.MaterializeTop
	if topN <= 0 {
		topN = r.deps.Trainer.Config().TopN
	}
	preds, err := model.TopN(ctx, topN)
	if err != nil {
		return fmt.Errorf("materialize predictions: %w", err)
	}
	out.model, out.preds = model, preds
	ts.Predictions = len(preds)
	ts.DurationMS = time.Since(start).Milliseconds()
	return nil
}

// materialize persists the compute outputs, each tagged with its version.
func (r *Runner) materialize(ctx context.Context, res *Result, snapshot int64, out *computed) error {
	log := logging.Ctx(ctx)
	res.Similarity = out.similarity

	if !out.similarity.Skipped {
		method := out.similarity.Method
		if err := r.deps.DB.ReplaceSimilarityEdges(ctx, snapshot, method, out.edges); err != nil {
			return err
		}
		pruned, err := r.deps.DB.PruneSimilarityEdges(ctx, method, snapshot)
		if err != nil {
			return err
		}
		log.Info().Int("edges", len(out.edges)).Int64("pruned", pruned).Int64("snapshot", snapshot).
			Msg("Similarity edges materialized")
	}

	if out.training != nil {
		res.Training = out.training
		var err error
		switch {
		case out.failure != nil:
			err = r.recordFailedTraining(ctx, snapshot, out)
		case out.model != nil:
			err = r.activateModel(ctx, snapshot, out)
		}
		if err != nil {
			return err
		}
	}

	if active, err := r.deps.DB.ActiveModelVersion(ctx); err == nil {
		res.ModelVersion = active.Version
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return nil
}

func (r *Runner) activateModel(ctx context.Context, snapshot int64, out *computed) error {
	ts := out.training
	version, err := r.deps.DB.NextModelVersion(ctx)
	if err != nil {
		return err
	}
	for i := range out.preds {
		out.preds[i].ModelVersion = version
		out.preds[i].CohortID = recommend.AssignCohort(out.preds[i].UserID, r.cohorts)
	}

	if r.deps.Models != nil {
		meta := storage.ModelMetadata{
			Name:               collab.Algorithm,
			Version:            version,
			TrainedAt:          out.trainedAt,
			CatalogSnapshot:    snapshot,
			InteractionCount:   ts.Interactions,
			ItemCount:          ts.Items,
			UserCount:          ts.Users,
			TrainingDurationMS: ts.DurationMS,
		}
		if err := r.deps.Models.Save(ctx, collab.Algorithm, version, out.model, meta); err != nil {
			return fmt.Errorf("save model: %w", err)
		}
	}

	mv := models.ModelVersion{
		Version:          version,
		Algorithm:        collab.Algorithm,
		TrainedAt:        out.trainedAt,
		CatalogSnapshot:  snapshot,
		InteractionCount: ts.Interactions,
		UserCount:        ts.Users,
		ItemCount:        ts.Items,
		Metrics:          ts.Metrics,
	}
	if err := r.deps.DB.CommitModelVersion(ctx, mv, out.preds); err != nil {
		return err
	}
	ts.ModelVersion = version
	ts.Status = string(models.ModelStatusActive)
	metrics.RecordTraining(time.Duration(ts.DurationMS)*time.Millisecond, "success", version,
		ts.Metrics.FinalLoss, ts.Metrics.PrecisionAtK)

	r.pruneModels(ctx, version)
	return nil
}

func (r *Runner) recordFailedTraining(ctx context.Context, snapshot int64, out *computed) error {
	ts := out.training
	version, err := r.deps.DB.NextModelVersion(ctx)
	if err != nil {
		return err
	}
	mv := models.ModelVersion{
		Version:          version,
		Algorithm:        collab.Algorithm,
		Status:           models.ModelStatusFailed,
		TrainedAt:        out.trainedAt,
		CatalogSnapshot:  snapshot,
		InteractionCount: ts.Interactions,
		Error:            out.failure.Error(),
	}
	if err := r.deps.DB.RecordFailedModelVersion(ctx, mv); err != nil {
		return err
	}
	ts.ModelVersion = version
	metrics.RecordTraining(time.Duration(ts.DurationMS)*time.Millisecond, "failed", version, 0, 0)
	logging.Ctx(ctx).Warn().Int("model_version", version).Str("reason", out.failure.Reason).
		Msg("Training failed; the active model is kept")
	return nil
}

// pruneModels keeps the newest KeepVersions usable model versions, their
// files and their predictions. Pruning failures are logged only.
func (r *Runner) pruneModels(ctx context.Context, active int) {
	keepN := r.collab.KeepVersions
	if keepN <= 0 {
		return
	}
	log := logging.Ctx(ctx)

	versions, err := r.deps.DB.ListModelVersions(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list model versions for pruning")
		return
	}
	var usable []int
	for i := range versions {
		if versions[i].Status != models.ModelStatusFailed {
			usable = append(usable, versions[i].Version)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(usable)))
	keep := []int{active}
	for _, v := range usable {
		if len(keep) >= keepN {
			break
		}
		if v != active {
			keep = append(keep, v)
		}
	}

	if n, err := r.deps.DB.PrunePredictions(ctx, keep); err != nil {
		log.Warn().Err(err).Msg("Failed to prune predictions")
	} else if n > 0 {
		log.Debug().Int64("rows", n).Ints("kept_versions", keep).Msg("Pruned old predictions")
	}
	if r.deps.Models != nil {
		removed, err := r.deps.Models.Prune(ctx, collab.Algorithm, keepN, active)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune model files")
		} else if len(removed) > 0 {
			log.Debug().Ints("removed_versions", removed).Msg("Pruned old model files")
		}
	}
}

func (r *Runner) quality(ctx context.Context, res *Result) error {
	report, err := r.deps.Quality.Run(ctx, res.RunID)
	if report != nil {
		res.Quality = &QualityStats{
			Total:            report.Total,
			Passed:           report.Passed,
			Failed:           report.Failed,
			CriticalFailures: report.CriticalFailures,
			PassRate:         report.PassRate,
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("Quality results not saved")
	}
	return nil
}

// export invalidates query caches after a change and rewrites the dedup map
// when the catalog changed or the file is missing.
func (r *Runner) export(ctx context.Context, res *Result) error {
	modelChanged := res.Training != nil && res.Training.Status == string(models.ModelStatusActive)
	if r.deps.Cache != nil && (res.NewSnapshot || modelChanged) {
		r.deps.Cache.InvalidateCache()
	}

	if r.exportPath == "" || res.SnapshotVersion == 0 {
		return nil
	}
	if !res.NewSnapshot {
		if _, err := os.Stat(r.exportPath); err == nil {
			return nil
		}
	}
	n, err := r.deps.DB.ExportDedupMap(ctx, r.exportPath)
	if err != nil {
		return err
	}
	res.ExportedMappings = n
	return nil
}
