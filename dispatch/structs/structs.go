// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"time"
)

const (
	// DefaultMaxResults caps the ranked list returned by a recommendation
	// when the request does not say otherwise.
	DefaultMaxResults = 10

	// DefaultRating is assigned to contractors that have not accumulated
	// any rating signal yet.
	DefaultRating = 50
)

// Location is a geocoded point plus the IANA zone derived from it. Region is
// the first administrative subdivision of the address, resolved at ingest,
// and names the dispatch channel events for this location fan out on.
type Location struct {
	Lat    float64
	Lon    float64
	Zone   string
	Region string
}

// Zero is true when the location carries no coordinates at all.
func (l Location) Zero() bool {
	return l.Lat == 0 && l.Lon == 0 && l.Zone == ""
}

// Priority of a job. Priority never changes the score formula; Rush may
// change the earliest-slot tie-break when the rush tie-break tunable is on,
// and is always recorded on the audit.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityRush   Priority = "rush"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityHigh, PriorityRush:
		return true
	}
	return false
}

// ETASource tags where a distance/ETA figure came from.
type ETASource string

const (
	ETASourceHaversine ETASource = "haversine"
	ETASourceRouted    ETASource = "routed"
)

// SlotKind labels one of the up-to-three suggested slots per contractor.
type SlotKind string

const (
	SlotEarliest          SlotKind = "earliest"
	SlotLowestTravel      SlotKind = "lowest-travel"
	SlotHighestConfidence SlotKind = "highest-confidence"
)

// Slot is a concrete bookable interval suggested for a contractor.
type Slot struct {
	Start      time.Time
	End        time.Time
	Kind       SlotKind
	Confidence int
}

func (s *Slot) Copy() *Slot {
	if s == nil {
		return nil
	}
	ns := *s
	return &ns
}

// ScoreBreakdown carries the four factor scores, each in [0, 100].
type ScoreBreakdown struct {
	Availability int
	Rating       int
	Distance     int
	Rotation     int
}

// RankedContractor is one entry of a recommendation response. Slots may be
// empty; the contractor is then displayed but not bookable.
type RankedContractor struct {
	ContractorID   string
	ContractorName string
	Score          int
	Breakdown      ScoreBreakdown
	Rationale      string
	Slots          []*Slot
	DistanceMeters float64
	ETA            time.Duration
	ETASource      ETASource

	// DropReason is only set on audit candidates that were excluded from
	// the ranked list, naming the prefilter that removed them.
	DropReason string
}

func (r *RankedContractor) Copy() *RankedContractor {
	if r == nil {
		return nil
	}
	nr := *r
	nr.Slots = make([]*Slot, len(r.Slots))
	for i, s := range r.Slots {
		nr.Slots[i] = s.Copy()
	}
	return &nr
}

// RecommendRequest asks for a ranked contractor list for a job.
type RecommendRequest struct {
	JobID      string
	MaxResults int

	// ServiceWindow optionally narrows the job's own service window for
	// this request only.
	ServiceWindow *Interval

	// Actor is the dispatcher id, or "system" for requeued runs.
	Actor string
}

func (r *RecommendRequest) Copy() *RecommendRequest {
	if r == nil {
		return nil
	}
	nr := *r
	if r.ServiceWindow != nil {
		w := *r.ServiceWindow
		nr.ServiceWindow = &w
	}
	return &nr
}

// RecommendResponse is the ranked result of one recommendation run.
type RecommendResponse struct {
	RequestID     string
	JobID         string
	Ranked        []*RankedContractor
	ConfigVersion uint64
	GeneratedAt   time.Time

	// Degraded is set when any pipeline stage missed its deadline or fell
	// back to cheap estimates. The response is still usable.
	Degraded bool
}

// AssignmentSource records whether a booking came from a recommendation or
// was entered by hand.
type AssignmentSource string

const (
	SourceAuto   AssignmentSource = "auto"
	SourceManual AssignmentSource = "manual"
)

// AssignRequest books a contractor onto a job for an exact interval.
type AssignRequest struct {
	JobID        string
	ContractorID string
	StartUTC     time.Time
	EndUTC       time.Time
	Actor        string
}

// Interval returns the proposed booking interval.
func (r *AssignRequest) Interval() Interval {
	return NewInterval(r.StartUTC, r.EndUTC)
}

// AssignResponse carries the confirmed assignment.
type AssignResponse struct {
	Assignment *Assignment
}

// RescheduleRequest atomically moves an existing assignment to a new start.
// The duration is taken from the job and cannot change.
type RescheduleRequest struct {
	AssignmentID string
	NewStartUTC  time.Time
	Actor        string
}

// CancelRequest cancels an assignment, freeing the contractor's window.
type CancelRequest struct {
	AssignmentID string
	Reason       string
	Actor        string
}
