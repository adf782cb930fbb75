// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package api

import (
	"net/http"
	"strconv"

	"github.com/tomtom215/animedex/internal/audit"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/validation"
)

// auditParams are the query parameters of GET /api/v1/audit.
type auditParams struct {
	Source      string `json:"source" validate:"omitempty,animesource"`
	Decision    string `json:"decision" validate:"omitempty,oneof=create merge refresh reject"`
	RunID       string `json:"run_id" validate:"omitempty,max=64"`
	CanonicalID int64  `json:"canonical_id" validate:"gte=0"`
	Ambiguous   bool   `json:"ambiguous"`
	Limit       int    `json:"limit" validate:"gte=1,lte=500"`
	Offset      int    `json:"offset" validate:"gte=0"`
}

func parseAuditParams(r *http.Request) (auditParams, error) {
	q := r.URL.Query()
	p := auditParams{
		Source:   q.Get("source"),
		Decision: q.Get("decision"),
		RunID:    q.Get("run_id"),
		Limit:    defaultListLimit,
	}

	var err error
	if v := q.Get("canonical_id"); v != "" {
		if p.CanonicalID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return p, err
		}
	}
	if v := q.Get("ambiguous"); v != "" {
		if p.Ambiguous, err = strconv.ParseBool(v); err != nil {
			return p, err
		}
	}
	if v := q.Get("limit"); v != "" {
		if p.Limit, err = strconv.Atoi(v); err != nil {
			return p, err
		}
	}
	if v := q.Get("offset"); v != "" {
		if p.Offset, err = strconv.Atoi(v); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (p *auditParams) filter() audit.QueryFilter {
	f := audit.QueryFilter{
		CanonicalID:   p.CanonicalID,
		RunID:         p.RunID,
		AmbiguousOnly: p.Ambiguous,
		Limit:         p.Limit,
		Offset:        p.Offset,
		OrderDesc:     true,
	}
	if p.Source != "" {
		f.Sources = []string{p.Source}
	}
	if p.Decision != "" {
		f.Decisions = []models.Decision{models.Decision(p.Decision)}
	}
	return f
}

// Audit queries the merge audit log, newest first.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Audit == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "audit store is not configured")
		return
	}

	p, err := parseAuditParams(r)
	if err != nil {
		rw.BadRequest("malformed query parameter: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&p); verr != nil {
		rw.ValidationError(verr.Error(), verr.Fields())
		return
	}

	filter := p.filter()
	ctx := r.Context()
	entries, err := h.deps.Audit.Query(ctx, filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	total, err := h.deps.Audit.Count(ctx, filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.SuccessWithPagination(entries, &PaginationMeta{
		Total:   total,
		Count:   len(entries),
		Offset:  p.Offset,
		Limit:   p.Limit,
		HasMore: int64(p.Offset+len(entries)) < total,
	})
}
