// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// maxRationaleLen caps the rationale string on every ranked candidate.
const maxRationaleLen = 200

// Candidate is one contractor flowing through the ranking stage.
type Candidate struct {
	Contractor *structs.Contractor
	Ranked     *structs.RankedContractor

	// Earliest is the start of the first feasible window, zero when the
	// contractor has none inside the service window.
	Earliest time.Time
}

// ScoreInputs are the per-candidate figures the scorer consumes.
type ScoreInputs struct {
	SW             structs.Interval
	Earliest       time.Time
	DistanceMeters float64
	RotationCount  int
	Weights        *structs.WeightsConfig
}

// Score computes the four factor scores and the weighted final score, each
// in [0, 100], rounding half-up.
func Score(c *structs.Contractor, in ScoreInputs) (int, structs.ScoreBreakdown) {
	tun := in.Weights.Tunables

	horizon := in.SW.Width().Minutes()
	if floor := float64(tun.HorizonFloorMinutes); horizon < floor {
		horizon = floor
	}
	// A candidate with no feasible window at all has nothing to offer the
	// dispatcher soon; it still ranks, at zero availability.
	availability := 0.0
	if !in.Earliest.IsZero() {
		until := in.Earliest.Sub(in.SW.Start).Minutes()
		availability = 100 - clamp(until/horizon*100, 0, 100)
	}

	rating := float64(c.Rating)

	distance := 100 * math.Max(0, 1-in.DistanceMeters/tun.DistanceMaxMeters)

	rotation := 100 * (1 - float64(in.RotationCount)/float64(tun.RotationCap))
	if rotation < 0 {
		rotation = 0
	}

	w := in.Weights
	final := (w.Availability*availability + w.Rating*rating + w.Distance*distance + w.Rotation*rotation) / w.WeightSum()

	return roundHalfUp(final), structs.ScoreBreakdown{
		Availability: roundHalfUp(availability),
		Rating:       roundHalfUp(rating),
		Distance:     roundHalfUp(distance),
		Rotation:     roundHalfUp(rotation),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// SortCandidates orders candidates best first. Score ties break on rating,
// then shorter ETA, then earlier first start, then lexical contractor id.
// With the rush tie-break enabled a score tie prefers the earlier start
// before rating.
func SortCandidates(cands []*Candidate, rush bool) {
	sort.SliceStable(cands, func(a, b int) bool {
		ra, rb := cands[a].Ranked, cands[b].Ranked
		if ra.Score != rb.Score {
			return ra.Score > rb.Score
		}
		if rush && !cands[a].Earliest.Equal(cands[b].Earliest) {
			return earlierStart(cands[a], cands[b])
		}
		if ra.Breakdown.Rating != rb.Breakdown.Rating {
			return ra.Breakdown.Rating > rb.Breakdown.Rating
		}
		if ra.ETA != rb.ETA {
			return ra.ETA < rb.ETA
		}
		if !cands[a].Earliest.Equal(cands[b].Earliest) {
			return earlierStart(cands[a], cands[b])
		}
		return ra.ContractorID < rb.ContractorID
	})
}

// earlierStart prefers the candidate with the earlier nonzero first start;
// a candidate without any window sorts after one with a window.
func earlierStart(a, b *Candidate) bool {
	switch {
	case a.Earliest.IsZero():
		return false
	case b.Earliest.IsZero():
		return true
	default:
		return a.Earliest.Before(b.Earliest)
	}
}

// Rationale renders the deterministic explanation for a ranked candidate,
// naming the two highest-contributing factors and the tie-breaker when one
// decided the position. Never longer than maxRationaleLen.
func Rationale(c *structs.Contractor, breakdown structs.ScoreBreakdown, weights *structs.WeightsConfig, eta time.Duration, tieBreak string) string {
	type contribution struct {
		phrase string
		value  float64
	}
	contribs := []contribution{
		{"high availability", weights.Availability * float64(breakdown.Availability)},
		{fmt.Sprintf("rating %d", c.Rating), weights.Rating * float64(breakdown.Rating)},
		{fmt.Sprintf("short travel (%d min)", int(eta.Minutes())), weights.Distance * float64(breakdown.Distance)},
		{"rotation fairness", weights.Rotation * float64(breakdown.Rotation)},
	}
	// Stable on equal contributions: availability, rating, distance,
	// rotation.
	sort.SliceStable(contribs, func(a, b int) bool { return contribs[a].value > contribs[b].value })

	s := fmt.Sprintf("%s and %s", contribs[0].phrase, contribs[1].phrase)
	s = strings.ToUpper(s[:1]) + s[1:]
	if tieBreak != "" {
		s += fmt.Sprintf("; tie-break: %s", tieBreak)
	}
	s += "."
	if len(s) > maxRationaleLen {
		s = s[:maxRationaleLen]
	}
	return s
}
