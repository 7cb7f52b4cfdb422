// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package mock provides canonical fixtures for tests. Every constructor
// returns a valid, canonicalized object that tests mutate as needed.
package mock

import (
	"time"

	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/lib/ids"
)

// BaseTime is a Tuesday morning UTC, well clear of any DST transition in the
// fixture zones.
var BaseTime = time.Date(2024, time.June, 4, 8, 0, 0, 0, time.UTC)

// Contractor returns a plumber in Chicago working weekdays nine to five.
func Contractor() *structs.Contractor {
	c := &structs.Contractor{
		ID:   ids.NewULID(),
		Name: "R. Vasquez",
		Location: structs.Location{
			Lat:    41.8781,
			Lon:    -87.6298,
			Zone:   "America/Chicago",
			Region: "illinois",
		},
		Rating: 72,
		Skills: []string{"plumbing", "pipefitting"},
		Weekly: structs.WeeklyHours{
			time.Monday:    {{Start: "09:00", End: "17:00"}},
			time.Tuesday:   {{Start: "09:00", End: "17:00"}},
			time.Wednesday: {{Start: "09:00", End: "17:00"}},
			time.Thursday:  {{Start: "09:00", End: "17:00"}},
			time.Friday:    {{Start: "09:00", End: "17:00"}},
		},
	}
	c.Canonicalize()
	return c
}

// Job returns a two hour plumbing job near the Contractor fixture with a
// same-day service window.
func Job() *structs.Job {
	j := &structs.Job{
		ID:              ids.NewULID(),
		Type:            "plumbing-repair",
		DurationMinutes: 120,
		Location: structs.Location{
			Lat:    41.8900,
			Lon:    -87.6200,
			Zone:   "America/Chicago",
			Region: "illinois",
		},
		RequiredSkills: []string{"plumbing"},
		ServiceWindow: structs.NewInterval(
			BaseTime,
			BaseTime.Add(10*time.Hour),
		),
	}
	j.Canonicalize()
	return j
}

// Assignment returns a pending booking joining fresh Job and Contractor
// fixtures. Callers that need referential integrity should overwrite JobID
// and ContractorID with objects already in state.
func Assignment() *structs.Assignment {
	return &structs.Assignment{
		ID:           ids.NewULID(),
		JobID:        ids.NewULID(),
		ContractorID: ids.NewULID(),
		StartUTC:     BaseTime.Add(time.Hour),
		EndUTC:       BaseTime.Add(3 * time.Hour),
		Source:       structs.SourceAuto,
		Status:       structs.AssignmentPending,
	}
}

// Audit returns a recommendation audit with a single surviving candidate.
func Audit() *structs.AuditRecommendation {
	jobID := ids.NewULID()
	return &structs.AuditRecommendation{
		ID:    ids.NewULID(),
		JobID: jobID,
		Request: &structs.RecommendRequest{
			JobID:      jobID,
			MaxResults: structs.DefaultMaxResults,
			Actor:      "dispatcher-7",
		},
		Candidates: []*structs.RankedContractor{{
			ContractorID:   ids.NewULID(),
			ContractorName: "R. Vasquez",
			Score:          81,
			Breakdown: structs.ScoreBreakdown{
				Availability: 90,
				Rating:       72,
				Distance:     88,
				Rotation:     70,
			},
			Rationale:      "strong availability, 1.4km away, lightly rotated",
			DistanceMeters: 1400,
			ETA:            4 * time.Minute,
			ETASource:      structs.ETASourceHaversine,
		}},
		Actor:         "dispatcher-7",
		Priority:      structs.PriorityNormal,
		ConfigVersion: 1,
		CreatedAt:     BaseTime,
	}
}

// WeightsConfig returns the default configuration bumped to a fresh mutable
// version.
func WeightsConfig() *structs.WeightsConfig {
	w := structs.DefaultWeightsConfig()
	w.Version = 2
	return w
}

// EventLogEntry returns a durable log row for a job-assigned event.
func EventLogEntry() *structs.EventLogEntry {
	return &structs.EventLogEntry{
		ID:          ids.NewULID(),
		Type:        structs.TypeJobAssigned,
		Payload:     []byte(`{"job_id":"j1","contractor_id":"c1"}`),
		PublishedAt: BaseTime,
		Channels:    []string{structs.DispatchChannel("illinois")},
	}
}
