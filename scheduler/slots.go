// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"time"

	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/routing"
)

// Confidence scoring constants for the highest-confidence slot label.
const (
	confidenceBase     = 50
	slackBonusMax      = 30
	slackMinutesPerPt  = 4
	routedBonus        = 20
	dstTransitionRisk  = 20
	confidenceScoreMax = 100
)

// Stop is an existing booking adjacent to the job, resolved to its site
// location so enter/leave travel can be estimated.
type Stop struct {
	Window structs.Interval
	Loc    structs.Location
}

// GenerateSlots picks up to three suggested slots from the feasible windows:
// the earliest start, the start minimizing combined enter and leave travel,
// and the start maximizing the confidence score. Every emitted slot has
// passed the fatigue limits; labels that cannot be filled are omitted, and a
// label whose start duplicates an earlier slot is dropped rather than shown
// twice.
func GenerateSlots(ctx Context, c *structs.Contractor, job *structs.Job, windows []structs.Interval, stops []Stop, travel TravelInfo) []*structs.Slot {
	if len(windows) == 0 {
		return nil
	}
	d := job.Duration()

	starts := enumerateStarts(windows, d)
	if len(starts) == 0 {
		return nil
	}

	fits := func(s time.Time) bool {
		return CheckLimits(ctx, c, structs.NewInterval(s, s.Add(d))) == nil
	}

	var slots []*structs.Slot
	emit := func(kind structs.SlotKind, s time.Time) {
		for _, prev := range slots {
			if prev.Start.Equal(s) {
				return
			}
		}
		slots = append(slots, &structs.Slot{
			Start:      s,
			End:        s.Add(d),
			Kind:       kind,
			Confidence: confidence(c, s, d, windows, travel),
		})
	}

	// Earliest: the first start that survives the fatigue caps.
	for _, s := range starts {
		if fits(s) {
			emit(structs.SlotEarliest, s)
			break
		}
	}

	// Lowest travel: minimize ETA in from the previous stop (or base) plus
	// ETA out to the next stop. Ties break toward the earlier start.
	bestCost := time.Duration(-1)
	var bestStart time.Time
	for _, s := range starts {
		if !fits(s) {
			continue
		}
		cost := enterETA(c, job, stops, s) + leaveETA(job, stops, s.Add(d))
		if bestCost < 0 || cost < bestCost {
			bestCost = cost
			bestStart = s
		}
	}
	if bestCost >= 0 {
		emit(structs.SlotLowestTravel, bestStart)
	}

	// Highest confidence. Ties break toward the earlier start.
	bestConf := -1
	for _, s := range starts {
		if !fits(s) {
			continue
		}
		if conf := confidence(c, s, d, windows, travel); conf > bestConf {
			bestConf = conf
			bestStart = s
		}
	}
	if bestConf >= 0 {
		emit(structs.SlotHighestConfidence, bestStart)
	}

	return slots
}

// enumerateStarts lists candidate slot starts at quarter-hour steps inside
// the windows, keeping only starts whose full duration fits the window.
func enumerateStarts(windows []structs.Interval, d time.Duration) []time.Time {
	var out []time.Time
	for _, w := range windows {
		for s := w.Start; !s.Add(d).After(w.End); s = s.Add(structs.Quarter) {
			out = append(out, s)
		}
	}
	return out
}

// enterETA estimates travel into the job site for a slot starting at s: from
// the latest stop ending at or before s, or from the contractor's base when
// the slot opens the day.
func enterETA(c *structs.Contractor, job *structs.Job, stops []Stop, s time.Time) time.Duration {
	from := c.Location
	var latest time.Time
	for _, stop := range stops {
		if !stop.Window.End.After(s) && stop.Window.End.After(latest) {
			latest = stop.Window.End
			from = stop.Loc
		}
	}
	return cheapETA(from, job.Location)
}

// leaveETA estimates travel out of the job site after a slot ending at e: to
// the earliest stop starting at or after e, or zero when none follows.
func leaveETA(job *structs.Job, stops []Stop, e time.Time) time.Duration {
	var next *Stop
	for i, stop := range stops {
		if stop.Window.Start.Before(e) {
			continue
		}
		if next == nil || stop.Window.Start.Before(next.Window.Start) {
			next = &stops[i]
		}
	}
	if next == nil {
		return 0
	}
	return cheapETA(job.Location, next.Loc)
}

func cheapETA(from, to structs.Location) time.Duration {
	meters := routing.HaversineMeters(from.Lat, from.Lon, to.Lat, to.Lon)
	return routing.DriveETA(meters, routing.DefaultSpeedKPH)
}

// confidence scores a candidate start: base 50, up to 30 for slack between
// the slot and its window edges, 20 when the ETA came from the routing
// provider, minus 20 when the slot's local day crosses a DST transition.
// Clamped to [0, 100].
func confidence(c *structs.Contractor, s time.Time, d time.Duration, windows []structs.Interval, travel TravelInfo) int {
	conf := confidenceBase

	slot := structs.NewInterval(s, s.Add(d))
	for _, w := range windows {
		if !w.Contains(slot) {
			continue
		}
		before := s.Sub(w.Start)
		after := w.End.Sub(slot.End)
		slack := before
		if after < slack {
			slack = after
		}
		bonus := int(slack.Minutes()) / slackMinutesPerPt
		if bonus > slackBonusMax {
			bonus = slackBonusMax
		}
		conf += bonus
		break
	}

	if travel.Routed {
		conf += routedBonus
	}
	if dstDay(c, s) {
		conf -= dstTransitionRisk
	}

	if conf < 0 {
		return 0
	}
	if conf > confidenceScoreMax {
		return confidenceScoreMax
	}
	return conf
}

// dstDay reports whether the contractor-local day containing s changes zone
// offset.
func dstDay(c *structs.Contractor, s time.Time) bool {
	loc, err := time.LoadLocation(c.Location.Zone)
	if err != nil {
		return false
	}
	y, m, d := s.In(loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	_, o1 := day.Zone()
	_, o2 := day.AddDate(0, 0, 1).Add(-time.Second).Zone()
	return o1 != o2
}
