// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package eventprocessor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
)

// EntitiesChangedEvent announces a committed catalog snapshot.
type EntitiesChangedEvent struct {
	SnapshotVersion int64     `json:"snapshot_version"`
	RunID           string    `json:"run_id"`
	Created         []int64   `json:"created"`
	Updated         []int64   `json:"updated"`
	EntityCount     int       `json:"entity_count"`
	CommittedAt     time.Time `json:"committed_at"`
}

// ChangedCount returns the number of created and updated entities.
func (e *EntitiesChangedEvent) ChangedCount() int {
	return len(e.Created) + len(e.Updated)
}

// MessageID is stable per snapshot so a republished event is dropped by
// JetStream's duplicate window.
func (e *EntitiesChangedEvent) MessageID() string {
	return "snapshot-" + strconv.FormatInt(e.SnapshotVersion, 10)
}

// PublishEntitiesChanged publishes ev on the entity change subject.
func (p *Publisher) PublishEntitiesChanged(ctx context.Context, ev *EntitiesChangedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal entities changed event: %w", err)
	}
	msg := message.NewMessage(ev.MessageID(), data)
	msg.Metadata.Set(natsgo.MsgIdHdr, ev.MessageID())
	msg.Metadata.Set("snapshot_version", strconv.FormatInt(ev.SnapshotVersion, 10))
	msg.Metadata.Set("run_id", ev.RunID)
	return p.Publish(ctx, SubjectEntitiesChanged, msg)
}

// DecodeEntitiesChanged parses an entity change payload.
func DecodeEntitiesChanged(payload []byte) (*EntitiesChangedEvent, error) {
	var ev EntitiesChangedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode entities changed event: %w", err)
	}
	return &ev, nil
}
