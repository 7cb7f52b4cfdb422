// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"sort"
	"time"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// lookaround is how far beyond the service window working hours and
// assignments are gathered, so buffers and midnight-spanning shifts at the
// edges are seen.
const lookaround = 24 * time.Hour

// TravelInfo describes how the contractor reaches the job site.
type TravelInfo struct {
	DistanceMeters float64
	ETA            time.Duration

	// Routed is false when the figures are haversine fallbacks.
	Routed bool
}

// TravelBuffer returns the buffer applied around occupied intervals:
// max(buffer floor, eta + padding).
func TravelBuffer(eta time.Duration, tun structs.Tunables) time.Duration {
	floor := time.Duration(tun.BufferMinMinutes) * time.Minute
	b := eta + time.Duration(tun.BufferPaddingMinutes)*time.Minute
	if b < floor {
		return floor
	}
	return b
}

// FeasibleWindows computes the bookable windows for a contractor against a
// service window. Open hours are clipped to the window, existing assignments
// expanded by their travel buffers are subtracted, and the survivors are
// quantized to quarter hours (starts up, ends down). Windows narrower than
// the job duration are dropped.
//
// Each assignment's buffer is sized from the drive between that assignment's
// own site and the job site; an assignment whose job is no longer in state
// falls back to the contractor-base figure. When the travel ETA exceeds the
// buffer floor, the start of each working stretch is pushed out by
// eta + padding: the contractor cannot be on site at the moment their day
// opens.
func FeasibleWindows(ctx Context, c *structs.Contractor, job *structs.Job, sw structs.Interval, travel TravelInfo, tun structs.Tunables) ([]structs.Interval, error) {
	return feasibleWindows(ctx, c, job, sw, travel, tun, "")
}

// feasibleWindows additionally ignores one assignment by id, which reschedule
// re-validation needs: the row being replaced must not block its successor.
func feasibleWindows(ctx Context, c *structs.Contractor, job *structs.Job, sw structs.Interval, travel TravelInfo, tun structs.Tunables, exclude string) ([]structs.Interval, error) {
	d := job.Duration()
	open := OpenHours(c, sw.Start.Add(-lookaround), sw.End.Add(lookaround))
	if len(open) == 0 {
		return nil, nil
	}

	baseBuffer := TravelBuffer(travel.ETA, tun)
	assignments, err := ctx.State().AssignmentsByContractorInWindow(c.ID, sw.Expand(baseBuffer+lookaround, baseBuffer+lookaround))
	if err != nil {
		return nil, err
	}
	busy := make([]structs.Interval, 0, len(assignments))
	for _, a := range assignments {
		if a.ID == exclude {
			continue
		}
		buf := baseBuffer
		neighbor, err := ctx.State().JobByID(a.JobID)
		if err != nil {
			return nil, err
		}
		if neighbor != nil {
			buf = TravelBuffer(cheapETA(neighbor.Location, job.Location), tun)
		}
		busy = append(busy, a.Interval().Expand(buf, buf))
	}

	var lead time.Duration
	if travel.ETA > time.Duration(tun.BufferMinMinutes)*time.Minute {
		lead = travel.ETA + time.Duration(tun.BufferPaddingMinutes)*time.Minute
	}

	// Subtraction runs one open interval at a time: merging first would
	// coalesce the two halves of a DST-split shift back together.
	var out []structs.Interval
	for _, iv := range open {
		w := iv.Clip(sw)
		if w.Empty() {
			continue
		}
		w.Start = w.Start.Add(lead)

		for _, free := range structs.SubtractIntervals([]structs.Interval{w}, busy) {
			q, ok := free.Quantize(structs.Quarter)
			if !ok || q.Width() < d {
				continue
			}
			out = append(out, q)
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Start.Before(out[b].Start) })
	return out, nil
}
