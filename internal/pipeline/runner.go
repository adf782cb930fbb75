// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/dedupe"
	"github.com/tomtom215/animedex/internal/eventprocessor"
	"github.com/tomtom215/animedex/internal/keyindex"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/quality"
	"github.com/tomtom215/animedex/internal/recommend/collab"
	"github.com/tomtom215/animedex/internal/recommend/storage"
	"github.com/tomtom215/animedex/internal/similarity"
)

// ErrRunInProgress is returned when a run is triggered while another one is
// still executing.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Run statuses as stored in pipeline_runs.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Stage names used for metrics and the per-stage timings.
const (
	StageIngest      = "ingest"
	StageDedupe      = "dedupe"
	StageCompute     = "compute"
	StageMaterialize = "materialize"
	StageQuality     = "quality"
	StageExport      = "export"
)

const finishTimeout = 30 * time.Second

// ChangePublisher announces committed catalog snapshots.
// *eventprocessor.Publisher satisfies it.
type ChangePublisher interface {
	PublishEntitiesChanged(ctx context.Context, ev *eventprocessor.EntitiesChangedEvent) error
}

// CacheInvalidator drops cached query results after the catalog or the
// active model changed. *recommend.Ranker satisfies it.
type CacheInvalidator interface {
	InvalidateCache()
}

// Deps are the collaborators of a Runner. DB, Resolver and Similarity are
// required; everything else is optional and its stage is skipped when nil.
type Deps struct {
	DB         *database.DB
	Resolver   *dedupe.Resolver
	Similarity *similarity.Engine
	Keys       *keyindex.Store
	Source     *FileSource
	Trainer    *collab.Trainer
	Models     *storage.Store
	Quality    *quality.Checker
	Publisher  ChangePublisher
	Cache      CacheInvalidator
}

// SimilarityStats describes the similarity part of a run.
type SimilarityStats struct {
	Method     string `json:"method"`
	Snapshot   int64  `json:"snapshot"`
	Edges      int    `json:"edges"`
	Skipped    bool   `json:"skipped,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// TrainingStats describes the training part of a run.
type TrainingStats struct {
	ModelVersion int                 `json:"model_version,omitempty"`
	Status       string              `json:"status"`
	Reason       string              `json:"reason,omitempty"`
	Interactions int                 `json:"interactions"`
	Users        int                 `json:"users"`
	Items        int                 `json:"items"`
	Predictions  int                 `json:"predictions"`
	Metrics      models.ModelMetrics `json:"metrics"`
	DurationMS   int64               `json:"duration_ms"`
}

// QualityStats summarizes the quality report of a run.
type QualityStats struct {
	Total            int     `json:"total"`
	Passed           int     `json:"passed"`
	Failed           int     `json:"failed"`
	CriticalFailures int     `json:"critical_failures"`
	PassRate         float64 `json:"pass_rate"`
}

// Result is the outcome of one run. It is stored as the run's stats.
type Result struct {
	RunID            string           `json:"run_id"`
	Status           string           `json:"status"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
	SnapshotVersion  int64            `json:"snapshot_version"`
	NewSnapshot      bool             `json:"new_snapshot"`
	ModelVersion     int              `json:"model_version,omitempty"`
	Ingest           *ImportStats     `json:"ingest,omitempty"`
	Dedupe           *dedupe.Stats    `json:"dedupe,omitempty"`
	Similarity       *SimilarityStats `json:"similarity,omitempty"`
	Training         *TrainingStats   `json:"training,omitempty"`
	Quality          *QualityStats    `json:"quality,omitempty"`
	ExportedMappings int              `json:"exported_mappings,omitempty"`
	StageMS          map[string]int64 `json:"stage_ms"`
	Error            string           `json:"error,omitempty"`
}

// Runner executes pipeline runs, one at a time.
type Runner struct {
	cfg        config.PipelineConfig
	collab     config.CollabConfig
	cohorts    []config.CohortConfig
	exportPath string
	deps       Deps

	mu  sync.Mutex
	now func() time.Time
}

// NewRunner creates a runner from the pipeline, collab, dedupe and hybrid
// settings. Predictions are stamped with the user's cohort from the hybrid
// cohort list.
func NewRunner(cfg *config.Config, deps Deps) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.DB == nil || deps.Resolver == nil || deps.Similarity == nil {
		return nil, errors.New("database, resolver and similarity engine are required")
	}
	cohorts := cfg.Hybrid.Cohorts
	if len(cohorts) == 0 {
		cohorts = config.DefaultCohorts()
	}
	return &Runner{
		cfg:        cfg.Pipeline,
		collab:     cfg.Collab,
		cohorts:    cohorts,
		exportPath: cfg.Dedupe.ExportPath,
		deps:       deps,
		now:        time.Now,
	}, nil
}

// Busy reports whether a run is executing.
func (r *Runner) Busy() bool {
	if r.mu.TryLock() {
		r.mu.Unlock()
		return false
	}
	return true
}

// Run executes one full cycle. It returns ErrRunInProgress without doing
// anything when another run holds the lock. The returned Result is non-nil
// whenever the run was recorded, including failed runs.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	res := &Result{
		RunID:     uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: r.now().UTC(),
		StageMS:   make(map[string]int64),
	}
	ctx = logging.ContextWithCorrelationID(ctx, res.RunID)
	ctx = logging.ContextWithJob(ctx, "pipeline")
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}
	log := logging.Ctx(ctx)

	if err := r.deps.DB.StartPipelineRun(ctx, res.RunID, res.StartedAt); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}
	log.Info().Msg("Pipeline run starting")

	runErr := r.execute(ctx, res)
	res.FinishedAt = r.now().UTC()
	res.Status = StatusSuccess
	if runErr != nil {
		res.Status = StatusFailed
		res.Error = runErr.Error()
	}
	metrics.RecordPipelineRun(res.Status)

	// The run is recorded even when ctx is done.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := r.finish(finishCtx, res); err != nil {
		log.Error().Err(err).Msg("Failed to record pipeline run")
		if runErr == nil {
			runErr = err
		}
	}

	event := log.Info()
	if runErr != nil {
		event = log.Error().Err(runErr)
	}
	event.
		Str("status", res.Status).
		Int64("snapshot_version", res.SnapshotVersion).
		Bool("new_snapshot", res.NewSnapshot).
		Int("model_version", res.ModelVersion).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Pipeline run finished")
	return res, runErr
}

func (r *Runner) finish(ctx context.Context, res *Result) error {
	stats, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}
	finished := res.FinishedAt
	return r.deps.DB.FinishPipelineRun(ctx, database.PipelineRun{
		RunID:           res.RunID,
		StartedAt:       res.StartedAt,
		FinishedAt:      &finished,
		Status:          res.Status,
		SnapshotVersion: res.SnapshotVersion,
		ModelVersion:    res.ModelVersion,
		Stats:           stats,
		Error:           res.Error,
	})
}

// stage runs fn as one named, timed stage.
func (r *Runner) stage(ctx context.Context, res *Result, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(logging.ContextWithJob(ctx, name))
	d := time.Since(start)
	res.StageMS[name] = d.Milliseconds()
	metrics.RecordPipelineStage(name, d)
	if err != nil {
		return fmt.Errorf("%s stage: %w", name, err)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, res *Result) error {
	batch := &Batch{}
	if err := r.stage(ctx, res, StageIngest, func(ctx context.Context) error {
		var err error
		batch, err = r.ingest(ctx, res)
		return err
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, res, StageDedupe, func(ctx context.Context) error {
		return r.dedupe(ctx, res, batch)
	}); err != nil {
		return err
	}
	if r.deps.Source != nil {
		if err := r.deps.Source.Archive(ctx, batch); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to archive import files")
		}
	}

	snapshot, err := r.deps.DB.CurrentSnapshotVersion(ctx)
	if err != nil {
		return fmt.Errorf("current snapshot: %w", err)
	}
	res.SnapshotVersion = snapshot

	if snapshot > 0 {
		out := &computed{}
		if err := r.stage(ctx, res, StageCompute, func(ctx context.Context) error {
			return r.compute(ctx, snapshot, out)
		}); err != nil {
			return err
		}
		if err := r.stage(ctx, res, StageMaterialize, func(ctx context.Context) error {
			return r.materialize(ctx, res, snapshot, out)
		}); err != nil {
			return err
		}
	} else {
		logging.Ctx(ctx).Info().Msg("Catalog is empty; skipping similarity and training")
	}

	if r.cfg.QualityChecks && r.deps.Quality != nil {
		if err := r.stage(ctx, res, StageQuality, func(ctx context.Context) error {
			return r.quality(ctx, res)
		}); err != nil {
			return err
		}
	}

	return r.stage(ctx, res, StageExport, func(ctx context.Context) error {
		return r.export(ctx, res)
	})
}
