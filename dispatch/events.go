// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	metrics "github.com/hashicorp/go-metrics"

	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/lib/ids"
)

// buildLogEntry encodes an event payload into its durable log form. The
// entry id doubles as the idempotency key for consumers.
func buildLogEntry(eventID, eventType string, payload any, channels []string, now time.Time) (*structs.EventLogEntry, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("event payload encode failed: %w", err)
	}
	return &structs.EventLogEntry{
		ID:          eventID,
		Type:        eventType,
		Payload:     encoded,
		PublishedAt: now,
		Channels:    channels,
	}, nil
}

// publishLogged appends the event to the durable log and then fans it out to
// in-process subscribers. The log write strictly precedes subscriber
// delivery; a re-published event id is a no-op. Subscriber delivery is
// best-effort and never fails the caller.
func (s *Server) publishLogged(topic structs.Topic, key string, eventType string, payload any, channels []string) error {
	eventID := ids.NewULID()
	entry, err := buildLogEntry(eventID, eventType, payload, channels, time.Now().UTC())
	if err != nil {
		return err
	}

	appended, err := s.store.AppendEventLog(entry)
	if err != nil {
		return err
	}
	if !appended {
		return nil
	}

	s.publishAfterCommit(entry.ID, topic, key, payload)
	return nil
}

// publishAfterCommit fans out an event whose log record is already durable,
// which is how the assignment transaction publishes once its unit of work
// commits. The stored entry carries the log index the broker stream exposes.
func (s *Server) publishAfterCommit(entryID string, topic structs.Topic, key string, payload any) {
	stored, err := s.store.EventLogEntryByID(entryID)
	if err != nil || stored == nil {
		s.logger.Error("published event missing from log", "event_id", entryID, "error", err)
		return
	}
	s.publishCommitted(stored, topic, key, payload)
}

func (s *Server) publishCommitted(entry *structs.EventLogEntry, topic structs.Topic, key string, payload any) {
	metrics.IncrCounter([]string{"dispatch", "events", "published"}, 1)
	s.broker.Publish(&structs.Events{
		Index: entry.Index,
		Events: []structs.Event{{
			ID:       entry.ID,
			Topic:    topic,
			Type:     entry.Type,
			Key:      key,
			Channels: entry.Channels,
			Index:    entry.Index,
			Payload:  payload,
		}},
	})
}
