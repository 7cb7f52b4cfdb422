// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"time"

	"github.com/hashicorp/dispatch/helper"
)

// Topic groups events for subscription filtering.
type Topic string

const (
	TopicRecommendation Topic = "Recommendation"
	TopicAssignment     Topic = "Assignment"
	TopicJob            Topic = "Job"
	TopicAll            Topic = "*"
)

// Event types. Payload fields are stable across versions; additions are
// allowed, removals are not.
const (
	TypeRecommendationReady = "RecommendationReady"
	TypeJobAssigned         = "JobAssigned"
	TypeJobRescheduled      = "JobRescheduled"
	TypeJobCancelled        = "JobCancelled"
)

// Event is a single domain event. ID is the idempotency key: re-publishing an
// already-logged event id is a no-op. Channels are the logical labels the
// transport binds to connections.
type Event struct {
	ID         string
	Topic      Topic
	Type       string
	Key        string
	FilterKeys []string
	Channels   []string
	Index      uint64
	Payload    any
}

func (e Event) Copy() Event {
	ne := e
	ne.FilterKeys = helper.CopySlice(e.FilterKeys)
	ne.Channels = helper.CopySlice(e.Channels)
	return ne
}

// Events is a batch published under a single index.
type Events struct {
	Index  uint64
	Events []Event
}

// EventJson is a single JSON frame on a streaming connection, either an
// encoded Events batch or a heartbeat.
type EventJson struct {
	Data []byte
}

func (j *EventJson) Copy() *EventJson {
	n := new(EventJson)
	*n = *j
	n.Data = make([]byte, len(j.Data))
	copy(n.Data, j.Data)
	return n
}

// EventLogEntry is the durable, append-only record of a published event,
// written before any subscriber is invoked.
type EventLogEntry struct {
	ID          string
	Type        string
	Payload     []byte
	PublishedAt time.Time
	Channels    []string
	Index       uint64
}

func (e *EventLogEntry) Copy() *EventLogEntry {
	if e == nil {
		return nil
	}
	ne := *e
	ne.Payload = helper.CopySlice(e.Payload)
	ne.Channels = helper.CopySlice(e.Channels)
	return &ne
}

// DispatchChannel names the per-region dispatcher channel.
func DispatchChannel(region string) string {
	return "dispatch/" + region
}

// ContractorChannel names the per-contractor channel.
func ContractorChannel(contractorID string) string {
	return "contractor/" + contractorID
}

// RecommendationReadyEvent is emitted after the audit record is durable.
type RecommendationReadyEvent struct {
	RequestID     string
	JobID         string
	ConfigVersion uint64
}

// JobAssignedEvent is emitted after the assignment row is durable.
type JobAssignedEvent struct {
	JobID        string
	ContractorID string
	StartUTC     time.Time
	EndUTC       time.Time
	Source       AssignmentSource
}

// JobRescheduledEvent is the single event emitted by an atomic reschedule.
type JobRescheduledEvent struct {
	JobID        string
	OldStartUTC  time.Time
	NewStartUTC  time.Time
	ContractorID string
}

// JobCancelledEvent is emitted when an assignment is cancelled.
type JobCancelledEvent struct {
	JobID  string
	Reason string
}
