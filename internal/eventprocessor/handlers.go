// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/animedex/internal/database"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/metrics"
	"github.com/tomtom215/animedex/internal/models"
	"github.com/tomtom215/animedex/internal/recommend/collab"
	"github.com/tomtom215/animedex/internal/validation"
)

// Consume results reported to metrics.
const (
	resultSuccess  = "success"
	resultRejected = "rejected"
	resultError    = "error"
)

// RecordNormalizer maps a raw payload to a source record.
type RecordNormalizer interface {
	Normalize(source string, raw []byte) (*models.SourceRecord, error)
}

// RecordStager stages raw source records for the next dedupe run.
type RecordStager interface {
	StageSourceRecords(ctx context.Context, recs []database.StagedRecord) (int, error)
}

// RatingStore upserts user ratings.
type RatingStore interface {
	UpsertRatings(ctx context.Context, ratings []models.InteractionRecord) error
}

// AuditRecorder receives audit entries for records rejected at the bus
// boundary. *audit.Recorder satisfies it.
type AuditRecorder interface {
	Record(entries []models.AuditEntry)
}

// RecordHandler stages raw source records received on one source topic.
// Payloads are normalized up front so malformed records are rejected at the
// boundary; the raw bytes are what gets staged.
type RecordHandler struct {
	source     string
	normalizer RecordNormalizer
	stager     RecordStager
	audit      AuditRecorder
	now        func() time.Time
}

// NewRecordHandler creates a handler for records from source.
func NewRecordHandler(source string, normalizer RecordNormalizer, stager RecordStager) (*RecordHandler, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: record handler needs a source", ErrInvalidConfig)
	}
	if normalizer == nil || stager == nil {
		return nil, fmt.Errorf("%w: record handler needs a normalizer and a stager", ErrInvalidConfig)
	}
	return &RecordHandler{source: source, normalizer: normalizer, stager: stager, now: time.Now}, nil
}

// SetAuditRecorder makes the handler record a reject decision for every
// malformed payload. A nil recorder disables it.
func (h *RecordHandler) SetAuditRecorder(r AuditRecorder) { h.audit = r }

// Source returns the source this handler stages records for.
func (h *RecordHandler) Source() string { return h.source }

// Handle implements message.NoPublishHandlerFunc.
func (h *RecordHandler) Handle(msg *message.Message) error {
	start := time.Now()
	topic := RecordTopic(h.source)
	ctx := msg.Context()

	if src := msg.Metadata.Get(MetadataSource); src != "" && src != h.source {
		metrics.RecordNATSConsume(topic, resultRejected, time.Since(start))
		return Permanent("source mismatch", fmt.Errorf("message for %q on %s", src, topic))
	}

	rec, err := h.normalizer.Normalize(h.source, msg.Payload)
	if err != nil {
		metrics.RecordNATSConsume(topic, resultRejected, time.Since(start))
		logging.Ctx(ctx).Warn().Err(err).
			Str("source", h.source).
			Str("message_uuid", msg.UUID).
			Msg("Rejected malformed source record")
		h.recordReject(err)
		return Permanent("malformed record", err)
	}

	staged, err := h.stager.StageSourceRecords(ctx, []database.StagedRecord{{
		Source:      h.source,
		SourceID:    rec.SourceID,
		ContentHash: database.PayloadHash(msg.Payload),
		Payload:     msg.Payload,
		ReceivedAt:  h.now().UTC(),
	}})
	if err != nil {
		metrics.RecordNATSConsume(topic, resultError, time.Since(start))
		return fmt.Errorf("stage %s#%s: %w", h.source, rec.SourceID, err)
	}

	metrics.RecordNATSConsume(topic, resultSuccess, time.Since(start))
	logging.Ctx(ctx).Debug().
		Str("source", h.source).
		Str("source_id", rec.SourceID).
		Bool("new_content", staged > 0).
		Msg("Staged source record")
	return nil
}

func (h *RecordHandler) recordReject(err error) {
	if h.audit == nil {
		return
	}
	entry := models.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: h.now().UTC(),
		Source:    h.source,
		Decision:  models.DecisionReject,
		Reason:    err.Error(),
	}
	var mre *models.MalformedRecordError
	if errors.As(err, &mre) {
		entry.SourceID = mre.SourceID
	}
	h.audit.Record([]models.AuditEntry{entry})
}

// RatingHandler validates and stores user ratings.
type RatingHandler struct {
	store  RatingStore
	policy string
	now    func() time.Time
}

// NewRatingHandler creates a rating handler applying policy (clamp or
// reject) to out-of-range ratings.
func NewRatingHandler(store RatingStore, policy string) (*RatingHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: rating handler needs a store", ErrInvalidConfig)
	}
	return &RatingHandler{store: store, policy: policy, now: time.Now}, nil
}

// Handle implements message.NoPublishHandlerFunc. A rating without a
// timestamp is stamped with the time it was received.
func (h *RatingHandler) Handle(msg *message.Message) error {
	start := time.Now()
	ctx := msg.Context()

	var r models.InteractionRecord
	if err := json.Unmarshal(msg.Payload, &r); err != nil {
		metrics.RecordNATSConsume(SubjectRatings, resultRejected, time.Since(start))
		return Permanent("undecodable rating", err)
	}
	if verr := validation.ValidateStruct(&r); verr != nil {
		metrics.RecordNATSConsume(SubjectRatings, resultRejected, time.Since(start))
		return Permanent("invalid rating", verr)
	}
	rating, err := collab.NormalizeRating(r.Rating, h.policy)
	if err != nil {
		metrics.RecordNATSConsume(SubjectRatings, resultRejected, time.Since(start))
		logging.Ctx(ctx).Warn().Err(err).
			Str("user_id", r.UserID).
			Int64("entity_id", r.EntityID).
			Msg("Rejected rating")
		return Permanent("rating out of range", err)
	}
	r.Rating = rating
	if r.RatedAt.IsZero() {
		r.RatedAt = h.now().UTC()
	}

	if err := h.store.UpsertRatings(ctx, []models.InteractionRecord{r}); err != nil {
		metrics.RecordNATSConsume(SubjectRatings, resultError, time.Since(start))
		return fmt.Errorf("store rating for %s: %w", r.UserID, err)
	}
	metrics.RecordNATSConsume(SubjectRatings, resultSuccess, time.Since(start))
	return nil
}
