// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"pgregory.net/rapid"

	"github.com/hashicorp/dispatch/ci"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	out, err := time.Parse(time.RFC3339, s)
	must.NoError(t, err)
	return out.UTC()
}

func iv(t *testing.T, start, end string) Interval {
	t.Helper()
	return NewInterval(ts(t, start), ts(t, end))
}

func TestInterval_Clip(t *testing.T) {
	ci.Parallel(t)

	bound := iv(t, "2025-11-12T09:00:00Z", "2025-11-12T17:00:00Z")

	cases := []struct {
		name     string
		in       Interval
		expected Interval
	}{
		{"inside", iv(t, "2025-11-12T10:00:00Z", "2025-11-12T12:00:00Z"),
			iv(t, "2025-11-12T10:00:00Z", "2025-11-12T12:00:00Z")},
		{"overhangs both ends", iv(t, "2025-11-12T08:00:00Z", "2025-11-12T18:00:00Z"), bound},
		{"disjoint", iv(t, "2025-11-12T18:00:00Z", "2025-11-12T19:00:00Z"), Interval{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			must.Eq(t, tc.expected, tc.in.Clip(bound))
		})
	}
}

func TestInterval_Quantize(t *testing.T) {
	ci.Parallel(t)

	in := iv(t, "2025-11-12T09:07:00Z", "2025-11-12T10:52:00Z")
	out, ok := in.Quantize(Quarter)
	must.True(t, ok)
	must.Eq(t, iv(t, "2025-11-12T09:15:00Z", "2025-11-12T10:45:00Z"), out)

	// Already aligned endpoints do not move.
	aligned := iv(t, "2025-11-12T09:00:00Z", "2025-11-12T10:00:00Z")
	out, ok = aligned.Quantize(Quarter)
	must.True(t, ok)
	must.Eq(t, aligned, out)

	// Quantization can consume a narrow interval entirely.
	narrow := iv(t, "2025-11-12T09:01:00Z", "2025-11-12T09:14:00Z")
	_, ok = narrow.Quantize(Quarter)
	must.False(t, ok)
}

func TestSubtractIntervals(t *testing.T) {
	ci.Parallel(t)

	open := []Interval{iv(t, "2025-11-12T09:00:00Z", "2025-11-12T17:00:00Z")}
	busy := []Interval{
		iv(t, "2025-11-12T11:00:00Z", "2025-11-12T12:00:00Z"),
		iv(t, "2025-11-12T14:00:00Z", "2025-11-12T15:30:00Z"),
	}

	free := SubtractIntervals(open, busy)
	must.Eq(t, []Interval{
		iv(t, "2025-11-12T09:00:00Z", "2025-11-12T11:00:00Z"),
		iv(t, "2025-11-12T12:00:00Z", "2025-11-12T14:00:00Z"),
		iv(t, "2025-11-12T15:30:00Z", "2025-11-12T17:00:00Z"),
	}, free)

	// Busy spans overhanging the open interval clip cleanly.
	free = SubtractIntervals(open, []Interval{iv(t, "2025-11-12T08:00:00Z", "2025-11-12T09:30:00Z")})
	must.Eq(t, []Interval{iv(t, "2025-11-12T09:30:00Z", "2025-11-12T17:00:00Z")}, free)

	// Fully occupied leaves nothing.
	free = SubtractIntervals(open, open)
	must.SliceEmpty(t, free)
}

// TestSubtractIntervals_Properties checks the algebra of subtraction on
// randomly generated interval sets: results never overlap busy time, stay
// inside the open set, and cover exactly the open time not occupied.
func TestSubtractIntervals_Properties(t *testing.T) {
	ci.Parallel(t)

	base := time.Date(2025, 11, 12, 0, 0, 0, 0, time.UTC)

	genIntervals := func(r *rapid.T, label string) []Interval {
		n := rapid.IntRange(0, 8).Draw(r, label+"-count")
		out := make([]Interval, 0, n)
		for i := 0; i < n; i++ {
			startMin := rapid.IntRange(0, 24*60).Draw(r, label+"-start")
			width := rapid.IntRange(1, 6*60).Draw(r, label+"-width")
			start := base.Add(time.Duration(startMin) * time.Minute)
			out = append(out, NewInterval(start, start.Add(time.Duration(width)*time.Minute)))
		}
		return out
	}

	rapid.Check(t, func(r *rapid.T) {
		open := genIntervals(r, "open")
		busy := genIntervals(r, "busy")

		free := SubtractIntervals(open, busy)

		mergedOpen := MergeIntervals(open)
		for i, f := range free {
			if f.Empty() {
				r.Fatalf("empty interval %s in result", f)
			}
			if i > 0 && !free[i-1].End.Before(f.Start) {
				// Adjacent intervals only occur across busy gaps, so
				// strictly increasing disjoint spans are required.
				if free[i-1].End.After(f.Start) {
					r.Fatalf("overlapping result intervals %s and %s", free[i-1], f)
				}
			}
			inOpen := false
			for _, o := range mergedOpen {
				if o.Contains(f) {
					inOpen = true
					break
				}
			}
			if !inOpen {
				r.Fatalf("result %s escapes the open set", f)
			}
			for _, b := range busy {
				if f.Overlaps(b) {
					r.Fatalf("result %s overlaps busy %s", f, b)
				}
			}
		}

		// Conservation: free width plus occupied-open width equals open
		// width.
		var openWidth, freeWidth, occupiedWidth time.Duration
		for _, o := range mergedOpen {
			openWidth += o.Width()
		}
		for _, f := range free {
			freeWidth += f.Width()
		}
		for _, o := range mergedOpen {
			for _, b := range MergeIntervals(busy) {
				occupiedWidth += b.Clip(o).Width()
			}
		}
		if freeWidth+occupiedWidth != openWidth {
			r.Fatalf("width not conserved: free %s + occupied %s != open %s",
				freeWidth, occupiedWidth, openWidth)
		}
	})
}
