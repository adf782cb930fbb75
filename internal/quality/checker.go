// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
)

// Status values of a check result.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// ResultStore persists check results per pipeline run.
type ResultStore interface {
	SaveQualityResults(ctx context.Context, runID string, results []database.QualityResult) error
}

// Result is the outcome of one check within a report.
type Result struct {
	Name       string   `json:"name"`
	Severity   Severity `json:"severity"`
	Status     string   `json:"status"`
	Checked    int64    `json:"checked"`
	Violations int64    `json:"violations"`
	Message    string   `json:"message"`
}

// Report summarizes a full check pass.
type Report struct {
	RunID            string    `json:"run_id"`
	Total            int       `json:"total_checks"`
	Passed           int       `json:"passed"`
	Failed           int       `json:"failed"`
	CriticalFailures int       `json:"critical_failures"`
	PassRate         float64   `json:"pass_rate"`
	Checks           []Result  `json:"checks"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Healthy reports whether no critical check failed.
func (r *Report) Healthy() bool { return r.CriticalFailures == 0 }

// Checker runs a list of checks against the warehouse.
type Checker struct {
	q      Querier
	store  ResultStore
	checks []Check
	now    func() time.Time
}

// NewChecker creates a checker. A nil store skips persistence.
func NewChecker(q Querier, store ResultStore, checks ...Check) *Checker {
	return &Checker{q: q, store: store, checks: checks, now: time.Now}
}

// Add appends checks.
func (c *Checker) Add(checks ...Check) {
	c.checks = append(c.checks, checks...)
}

// Checks returns the configured checks.
func (c *Checker) Checks() []Check { return c.checks }

// Run executes every check. A check that errors counts as failed; the pass
// continues with the next check. Results are saved under runID.
func (c *Checker) Run(ctx context.Context, runID string) (*Report, error) {
	log := logging.Ctx(ctx).With().Str("component", "quality").Str("run_id", runID).Logger()
	report := &Report{
		RunID:     runID,
		Total:     len(c.checks),
		Checks:    make([]Result, 0, len(c.checks)),
		CheckedAt: c.now().UTC(),
	}

	for _, check := range c.checks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("quality checks canceled: %w", err)
		}

		res := Result{Name: check.Name(), Severity: check.Severity()}
		out, err := check.Run(ctx, c.q)
		switch {
		case err != nil:
			res.Status = StatusError
			res.Message = "check failed: " + err.Error()
		case out.Violations > 0:
			res.Status = StatusFailed
			res.Checked, res.Violations, res.Message = out.Checked, out.Violations, out.Details
		default:
			res.Status = StatusPassed
			res.Checked, res.Message = out.Checked, out.Details
		}
		metrics.RecordQualityCheck(res.Name, res.Violations)

		if res.Status == StatusPassed {
			report.Passed++
		} else {
			report.Failed++
			event := log.Warn()
			if res.Severity == SeverityCritical {
				report.CriticalFailures++
				event = log.Error()
			}
			event.Str("check", res.Name).Str("severity", string(res.Severity)).
				Int64("violations", res.Violations).Msg("Quality check failed: " + res.Message)
		}
		report.Checks = append(report.Checks, res)
	}

	if report.Total > 0 {
		report.PassRate = 100 * float64(report.Passed) / float64(report.Total)
	}
	log.Info().
		Int("passed", report.Passed).
		Int("total", report.Total).
		Float64("pass_rate", report.PassRate).
		Msg("Quality checks complete")

	if c.store != nil {
		if err := c.store.SaveQualityResults(ctx, runID, report.rows()); err != nil {
			return report, fmt.Errorf("failed to save quality results: %w", err)
		}
	}
	return report, nil
}

func (r *Report) rows() []database.QualityResult {
	out := make([]database.QualityResult, len(r.Checks))
	for i, c := range r.Checks {
		out[i] = database.QualityResult{
			RunID:      r.RunID,
			Check:      c.Name,
			Severity:   string(c.Severity),
			Passed:     c.Status == StatusPassed,
			Checked:    c.Checked,
			Violations: c.Violations,
			Details:    c.Message,
			CheckedAt:  r.CheckedAt,
		}
	}
	return out
}
