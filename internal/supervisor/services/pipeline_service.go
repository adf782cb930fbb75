// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/pipeline"
)

const defaultPipelineInterval = time.Hour

// PipelineRunner runs one pipeline cycle. *pipeline.Runner satisfies it.
type PipelineRunner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// PipelineService schedules pipeline runs.
type PipelineService struct {
	runner       PipelineRunner
	interval     time.Duration
	runOnStartup bool
	name         string
}

// NewPipelineService creates the scheduler. A non-positive interval falls
// back to one hour.
func NewPipelineService(runner PipelineRunner, cfg config.PipelineConfig) *PipelineService {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPipelineInterval
	}
	return &PipelineService{
		runner:       runner,
		interval:     interval,
		runOnStartup: cfg.RunOnStartup,
		name:         "pipeline-scheduler",
	}
}

// Serve implements suture.Service. A failed run is logged and retried on
// the next tick; it never terminates the service.
func (s *PipelineService) Serve(ctx context.Context) error {
	log := logging.WithComponent(s.name)
	log.Info().
		Bool("run_on_startup", s.runOnStartup).
		Dur("interval", s.interval).
		Msg("Pipeline scheduler starting")

	if s.runOnStartup {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Pipeline scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *PipelineService) run(ctx context.Context) {
	log := logging.WithComponent(s.name)
	res, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		log.Debug().Msg("Skipping scheduled run; previous run still in progress")
	case err != nil && ctx.Err() != nil:
		log.Debug().Err(err).Msg("Pipeline run interrupted by shutdown")
	case err != nil:
		ev := log.Warn().Err(err)
		if res != nil {
			ev = ev.Str("run_id", res.RunID)
		}
		ev.Msg("Scheduled pipeline run failed")
	}
}

// String implements fmt.Stringer.
func (s *PipelineService) String() string {
	return s.name
}
