// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/models"
)

// Recorder writes audit batches to a Store asynchronously and enforces
// retention. Pipelines that need audit rows in the same transaction as their
// entity writes use SaveTx instead.
type Recorder struct {
	cfg       config.AuditConfig
	store     Store
	batchChan chan []models.AuditEntry
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewRecorder creates a recorder and starts its writer goroutine.
func NewRecorder(store Store, cfg config.AuditConfig) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	r := &Recorder{
		cfg:       cfg,
		store:     store,
		batchChan: make(chan []models.AuditEntry, cfg.BufferSize),
		stopChan:  make(chan struct{}),
	}

	r.wg.Add(1)
	go r.asyncWriter()
	return r
}

// Store returns the underlying store for queries.
func (r *Recorder) Store() Store { return r.store }

// asyncWriter processes batches from the buffer.
func (r *Recorder) asyncWriter() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			// Drain remaining batches
			for {
				select {
				case batch := <-r.batchChan:
					r.write(batch)
				default:
					return
				}
			}
		case batch := <-r.batchChan:
			r.write(batch)
		}
	}
}

func (r *Recorder) write(batch []models.AuditEntry) {
	if r.cfg.LogToStdout {
		for i := range batch {
			if data, err := json.Marshal(&batch[i]); err == nil {
				logging.Info().RawJSON("entry", data).Msg("Merge audit entry")
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, batch); err != nil {
		logging.Error().Err(err).Int("entries", len(batch)).Msg("Failed to save audit entries")
	}
}

// Record queues a batch. It never blocks; a full buffer drops the batch with
// an error log.
func (r *Recorder) Record(entries []models.AuditEntry) {
	if len(entries) == 0 {
		return
	}
	batch := append([]models.AuditEntry(nil), entries...)
	select {
	case r.batchChan <- batch:
	default:
		logging.Error().Int("entries", len(batch)).Msg("Audit buffer full, dropping entries")
	}
}

// Close drains pending batches and stops the writer.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
	return nil
}

// Cleanup deletes entries older than the retention period. A zero retention
// keeps everything.
func (r *Recorder) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	if r.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	return r.store.Delete(ctx, now.AddDate(0, 0, -r.cfg.RetentionDays))
}
