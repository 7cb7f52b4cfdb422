// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"sort"
	"time"
)

// Quarter is the slot quantization step. All feasible window endpoints are
// rounded to it, starts up and ends down.
const Quarter = 15 * time.Minute

// An Interval is a half-open [Start, End) span of UTC instants.
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start.UTC(), End: end.UTC()}
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Width returns the duration covered by the interval, never negative.
func (i Interval) Width() time.Duration {
	if !i.End.After(i.Start) {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Empty is true when the interval covers no time at all.
func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

// Overlaps is true when both intervals share at least one instant.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains is true when other lies fully inside the interval.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// ContainsInstant is true for any t in [Start, End).
func (i Interval) ContainsInstant(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Clip returns the portion of the interval inside bound. The result may be
// empty.
func (i Interval) Clip(bound Interval) Interval {
	out := i
	if out.Start.Before(bound.Start) {
		out.Start = bound.Start
	}
	if out.End.After(bound.End) {
		out.End = bound.End
	}
	if out.Empty() {
		return Interval{}
	}
	return out
}

// Expand widens the interval by before and after on the respective ends.
func (i Interval) Expand(before, after time.Duration) Interval {
	return Interval{Start: i.Start.Add(-before), End: i.End.Add(after)}
}

// Quantize rounds the interval endpoints to the quantization step, start up
// and end down. The second return is false when nothing remains.
func (i Interval) Quantize(step time.Duration) (Interval, bool) {
	out := Interval{
		Start: i.Start.Truncate(step),
		End:   i.End.Truncate(step),
	}
	if out.Start.Before(i.Start) {
		out.Start = out.Start.Add(step)
	}
	if out.Empty() {
		return Interval{}, false
	}
	return out, true
}

// MergeIntervals sorts the given intervals and coalesces any that touch or
// overlap, dropping empty entries. The input slice is not modified.
func MergeIntervals(in []Interval) []Interval {
	work := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			work = append(work, iv)
		}
	}
	if len(work) == 0 {
		return nil
	}

	sort.Slice(work, func(a, b int) bool { return work[a].Start.Before(work[b].Start) })

	out := work[:1]
	for _, iv := range work[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// SubtractIntervals removes the busy set from the open set and returns the
// remaining free intervals, sorted and non-overlapping. Both inputs may be
// unsorted and overlapping.
func SubtractIntervals(open, busy []Interval) []Interval {
	free := MergeIntervals(open)
	occupied := MergeIntervals(busy)

	var out []Interval
	for _, f := range free {
		cursor := f.Start
		for _, b := range occupied {
			if !f.Overlaps(b) {
				continue
			}
			if b.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: b.Start})
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
		}
		if cursor.Before(f.End) {
			out = append(out, Interval{Start: cursor, End: f.End})
		}
	}
	return out
}
