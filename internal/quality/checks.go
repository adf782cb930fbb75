// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package quality

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Severity ranks the impact of a failed check.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Querier is the subset of *sql.DB the checks need.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Outcome is the raw result of one check.
type Outcome struct {
	Checked    int64
	Violations int64
	Details    string
}

// Check is a single warehouse assertion. A check passes when it reports no
// violations.
type Check interface {
	Name() string
	Severity() Severity
	Run(ctx context.Context, q Querier) (Outcome, error)
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validIdent(names ...string) error {
	for _, n := range names {
		if !identPattern.MatchString(n) {
			return fmt.Errorf("invalid identifier %q", n)
		}
	}
	return nil
}

func where(clauses ...string) string {
	var parts []string
	for _, c := range clauses {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, "("+c+")")
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func count(ctx context.Context, q Querier, query string) (int64, error) {
	var n sql.NullInt64
	if err := q.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n.Int64, nil
}

// NotNull asserts a column has no NULL values.
type NotNull struct {
	Table  string
	Column string
	Filter string
	Level  Severity
}

func (c NotNull) Name() string       { return c.Table + "." + c.Column + "_not_null" }
func (c NotNull) Severity() Severity { return levelOr(c.Level, SeverityCritical) }

func (c NotNull) Run(ctx context.Context, q Querier) (Outcome, error) {
	if err := validIdent(c.Table, c.Column); err != nil {
		return Outcome{}, err
	}
	checked, err := count(ctx, q, "SELECT COUNT(*) FROM "+c.Table+where(c.Filter))
	if err != nil {
		return Outcome{}, err
	}
	nulls, err := count(ctx, q, "SELECT COUNT(*) FROM "+c.Table+where(c.Filter, c.Column+" IS NULL"))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Checked: checked, Violations: nulls, Details: fmt.Sprintf("%d null values", nulls)}, nil
}

// Range asserts non-NULL values of a column lie within [Min, Max].
type Range struct {
	Table  string
	Column string
	Min    float64
	Max    float64
	Filter string
	Level  Severity
}

func (c Range) Name() string       { return c.Table + "." + c.Column + "_range" }
func (c Range) Severity() Severity { return levelOr(c.Level, SeverityCritical) }

func (c Range) Run(ctx context.Context, q Querier) (Outcome, error) {
	if err := validIdent(c.Table, c.Column); err != nil {
		return Outcome{}, err
	}
	checked, err := count(ctx, q, "SELECT COUNT(*) FROM "+c.Table+where(c.Filter, c.Column+" IS NOT NULL"))
	if err != nil {
		return Outcome{}, err
	}
	outside := fmt.Sprintf("%s < %v OR %s > %v", c.Column, c.Min, c.Column, c.Max)
	bad, err := count(ctx, q, "SELECT COUNT(*) FROM "+c.Table+where(c.Filter, c.Column+" IS NOT NULL", outside))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Checked:    checked,
		Violations: bad,
		Details:    fmt.Sprintf("%d values out of range [%v, %v]", bad, c.Min, c.Max),
	}, nil
}

// Unique asserts a column combination has no duplicate rows.
type Unique struct {
	Table   string
	Columns []string
	Filter  string
	Level   Severity
}

func (c Unique) Name() string       { return c.Table + "." + strings.Join(c.Columns, "_") + "_unique" }
func (c Unique) Severity() Severity { return levelOr(c.Level, SeverityCritical) }

func (c Unique) Run(ctx context.Context, q Querier) (Outcome, error) {
	if len(c.Columns) == 0 {
		return Outcome{}, fmt.Errorf("unique check on %s has no columns", c.Table)
	}
	if err := validIdent(append([]string{c.Table}, c.Columns...)...); err != nil {
		return Outcome{}, err
	}
	cols := strings.Join(c.Columns, ", ")
	checked, err := count(ctx, q, "SELECT COUNT(*) FROM "+c.Table+where(c.Filter))
	if err != nil {
		return Outcome{}, err
	}
	dups, err := count(ctx, q, "SELECT CAST(COALESCE(SUM(n - 1), 0) AS BIGINT) FROM (SELECT COUNT(*) AS n FROM "+
		c.Table+where(c.Filter)+" GROUP BY "+cols+" HAVING COUNT(*) > 1)")
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Checked: checked, Violations: dups, Details: fmt.Sprintf("%d duplicate rows", dups)}, nil
}

// Referential asserts every child foreign key has a parent row.
type Referential struct {
	Child        string
	ForeignKey   string
	Parent       string
	PrimaryKey   string
	ParentFilter string
	Level        Severity
}

func (c Referential) Name() string       { return c.Child + "." + c.ForeignKey + "_ref_integrity" }
func (c Referential) Severity() Severity { return levelOr(c.Level, SeverityCritical) }

func (c Referential) Run(ctx context.Context, q Querier) (Outcome, error) {
	if err := validIdent(c.Child, c.ForeignKey, c.Parent, c.PrimaryKey); err != nil {
		return Outcome{}, err
	}
	checked, err := count(ctx, q, "SELECT COUNT(*) FROM "+c.Child+" WHERE "+c.ForeignKey+" IS NOT NULL")
	if err != nil {
		return Outcome{}, err
	}
	parent := "SELECT " + c.PrimaryKey + " FROM " + c.Parent + where(c.ParentFilter)
	orphans, err := count(ctx, q, "SELECT COUNT(*) FROM "+c.Child+" ch WHERE ch."+c.ForeignKey+
		" IS NOT NULL AND ch."+c.ForeignKey+" NOT IN ("+parent+")")
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Checked: checked, Violations: orphans, Details: fmt.Sprintf("%d orphan records", orphans)}, nil
}

// Custom runs an arbitrary query; every row it returns is one violation.
type Custom struct {
	CheckName string
	Query     string
	Level     Severity
}

func (c Custom) Name() string       { return c.CheckName }
func (c Custom) Severity() Severity { return levelOr(c.Level, SeverityWarning) }

func (c Custom) Run(ctx context.Context, q Querier) (Outcome, error) {
	n, err := count(ctx, q, "SELECT COUNT(*) FROM ("+c.Query+")")
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Violations: n, Details: fmt.Sprintf("%d violations", n)}, nil
}

func levelOr(s, def Severity) Severity {
	if s == "" {
		return def
	}
	return s
}
