// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package scheduler turns contractor calendars into feasible windows,
// suggested slots, and a deterministic ranking. The recommendation
// coordinator fans EvaluateContractor out across candidates; the assignment
// transaction reuses the same window and limit checks to re-validate a
// proposed booking.
package scheduler

import (
	"time"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// EvalInput bundles the per-candidate facts the coordinator resolves before
// fanning out: travel figures from the estimator and neighbor stops from the
// job index.
type EvalInput struct {
	Job     *structs.Job
	SW      structs.Interval
	Travel  TravelInfo
	Stops   []Stop
	Weights *structs.WeightsConfig
}

// EvaluateContractor runs the per-candidate pipeline: feasible windows, slot
// generation, rotation lookup, and scoring. A contractor with no feasible
// window is still returned, slotless and at zero availability, so the
// surface can show it as unbookable.
func EvaluateContractor(ctx Context, c *structs.Contractor, in EvalInput) (*Candidate, error) {
	tun := in.Weights.Tunables

	windows, err := FeasibleWindows(ctx, c, in.Job, in.SW, in.Travel, tun)
	if err != nil {
		return nil, err
	}

	var earliest time.Time
	var slots []*structs.Slot
	if len(windows) > 0 {
		earliest = windows[0].Start
		slots = GenerateSlots(ctx, c, in.Job, windows, in.Stops, in.Travel)
	}

	since := ctx.Now().AddDate(0, 0, -tun.RotationWindowDays)
	rotation, err := ctx.State().RotationCount(c.ID, since)
	if err != nil {
		return nil, err
	}

	score, breakdown := Score(c, ScoreInputs{
		SW:             in.SW,
		Earliest:       earliest,
		DistanceMeters: in.Travel.DistanceMeters,
		RotationCount:  rotation,
		Weights:        in.Weights,
	})

	source := structs.ETASourceHaversine
	if in.Travel.Routed {
		source = structs.ETASourceRouted
	}

	return &Candidate{
		Contractor: c,
		Earliest:   earliest,
		Ranked: &structs.RankedContractor{
			ContractorID:   c.ID,
			ContractorName: c.Name,
			Score:          score,
			Breakdown:      breakdown,
			Rationale:      Rationale(c, breakdown, in.Weights, in.Travel.ETA, ""),
			Slots:          slots,
			DistanceMeters: in.Travel.DistanceMeters,
			ETA:            in.Travel.ETA,
			ETASource:      source,
		},
	}, nil
}

// ValidateBooking re-runs the windows and limits checks for an exact
// proposed interval, as the assignment transaction requires. The interval
// must lie inside a single feasible window: a booking may not straddle a
// break, a buffered neighbor, or a DST transition.
func ValidateBooking(ctx Context, c *structs.Contractor, job *structs.Job, iv structs.Interval, travel TravelInfo, tun structs.Tunables) error {
	return validateBooking(ctx, c, job, iv, travel, tun, "")
}

// ValidateReschedule is ValidateBooking with the assignment being replaced
// taken out of the occupied set, so moving a booking a few minutes does not
// conflict with itself.
func ValidateReschedule(ctx Context, c *structs.Contractor, job *structs.Job, iv structs.Interval, travel TravelInfo, tun structs.Tunables, oldAssignmentID string) error {
	return validateBooking(ctx, c, job, iv, travel, tun, oldAssignmentID)
}

func validateBooking(ctx Context, c *structs.Contractor, job *structs.Job, iv structs.Interval, travel TravelInfo, tun structs.Tunables, exclude string) error {
	windows, err := feasibleWindows(ctx, c, job, job.ServiceWindow, travel, tun, exclude)
	if err != nil {
		return err
	}
	inside := false
	for _, w := range windows {
		if w.Contains(iv) {
			inside = true
			break
		}
	}
	if !inside {
		return structs.NewConflictError("interval %s is not inside any feasible window", iv)
	}
	return checkLimits(ctx, c, iv, exclude)
}
