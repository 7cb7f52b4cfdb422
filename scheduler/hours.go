// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"fmt"
	"time"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// OpenHours resolves a contractor's working hours over [from, to) into a
// sorted list of UTC intervals. Per local date, a holiday exception emits
// nothing, an override exception substitutes its shifts, and otherwise the
// weekly-hours entry for the weekday applies. The daily break is subtracted
// symmetrically around each shift's wall-clock midpoint before conversion to
// UTC.
//
// Intervals never span a zone-offset transition: a shift covering a DST
// change is split at the transition instant, so the forward-jump gap cannot
// be hidden inside a single window. Ambiguous fall-back wall times resolve
// to the earlier UTC instant.
func OpenHours(c *structs.Contractor, from, to time.Time) []structs.Interval {
	home, err := time.LoadLocation(c.Location.Zone)
	if err != nil {
		// Zone validity is enforced when the contractor is written.
		return nil
	}

	bound := structs.NewInterval(from, to)
	if bound.Empty() {
		return nil
	}

	var out []structs.Interval

	// Walk local dates one day beyond the bound on each side so shifts
	// converting across midnight are not missed. The noon anchor keeps
	// AddDate stable across DST days without 00:00 wall time.
	first := from.In(home).AddDate(0, 0, -1)
	days := int(to.Sub(from).Hours()/24) + 3
	for i := 0; i < days; i++ {
		y, m, d := first.AddDate(0, 0, i).Date()
		anchor := time.Date(y, m, d, 12, 0, 0, 0, home)

		shifts := c.Weekly[anchor.Weekday()]
		localDate := fmt.Sprintf("%04d-%02d-%02d", y, m, d)
		if e := c.Exception(localDate); e != nil {
			switch e.Kind {
			case structs.ExceptionHoliday:
				continue
			case structs.ExceptionOverride:
				shifts = e.Shifts
			}
		}

		for _, shift := range shifts {
			for _, iv := range shiftIntervals(shift, c.DailyBreakMinutes, y, m, d, home) {
				if clipped := iv.Clip(bound); !clipped.Empty() {
					out = append(out, clipped)
				}
			}
		}
	}
	return out
}

// shiftIntervals converts one local shift on a given date to UTC intervals,
// subtracting the daily break and splitting at zone transitions.
func shiftIntervals(shift structs.Shift, breakMinutes, y int, m time.Month, d int, home *time.Location) []structs.Interval {
	loc := home
	if shift.Zone != "" {
		l, err := time.LoadLocation(shift.Zone)
		if err != nil {
			return nil
		}
		loc = l
	}

	start, err := structs.ParseClock(shift.Start)
	if err != nil {
		return nil
	}
	end, err := structs.ParseClock(shift.End)
	if err != nil || end <= start {
		return nil
	}

	// Break subtraction happens in wall minutes; a break at least as wide
	// as the shift swallows it entirely.
	segments := [][2]int{{start, end}}
	if breakMinutes > 0 {
		if end-start <= breakMinutes {
			return nil
		}
		mid := (start + end) / 2
		b0 := mid - breakMinutes/2
		b1 := b0 + breakMinutes
		segments = [][2]int{{start, b0}, {b1, end}}
	}

	var out []structs.Interval
	for _, seg := range segments {
		open := wallInstant(y, m, d, seg[0], loc)
		close := wallInstant(y, m, d, seg[1], loc)
		if !close.After(open) {
			// A forward jump can swallow a short segment whole.
			continue
		}
		out = append(out, splitAtTransition(open, close, loc)...)
	}
	return out
}

// wallInstant maps a local wall-clock minute on a date to a UTC instant.
// Nonexistent wall times inside a forward jump normalize past the gap;
// ambiguous fall-back times resolve to the earlier instant.
func wallInstant(y int, m time.Month, d, minutes int, loc *time.Location) time.Time {
	t := time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc)

	// If the same wall reading also exists one hour earlier the time is
	// ambiguous and the earlier UTC instant wins.
	earlier := t.Add(-time.Hour).In(loc)
	ey, em, ed := earlier.Date()
	if ey == y && em == m && ed == d && earlier.Hour()*60+earlier.Minute() == minutes {
		return earlier.UTC()
	}
	return t.UTC()
}

// splitAtTransition breaks [start, end) at every zone-offset change so no
// emitted interval straddles a DST transition.
func splitAtTransition(start, end time.Time, loc *time.Location) []structs.Interval {
	var out []structs.Interval
	for {
		_, so := start.In(loc).Zone()
		_, eo := end.In(loc).Zone()
		if so == eo {
			return append(out, structs.NewInterval(start, end))
		}

		// Binary search for the first minute on the new offset.
		// Transitions land on minute boundaries.
		lo, hi := start, end
		for hi.Sub(lo) > time.Minute {
			mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Minute)
			if !mid.After(lo) {
				mid = lo.Add(time.Minute)
			}
			if _, o := mid.In(loc).Zone(); o == so {
				lo = mid
			} else {
				hi = mid
			}
		}
		out = append(out, structs.NewInterval(start, hi))
		start = hi
	}
}
