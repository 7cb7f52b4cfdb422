// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/hashicorp/dispatch/ci"
	"github.com/hashicorp/dispatch/dispatch/structs"
)

func scoreSW() structs.Interval {
	return structs.NewInterval(
		time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC))
}

func TestScore_Factors(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	c.Rating = 80
	weights := structs.DefaultWeightsConfig()
	sw := scoreSW()

	final, breakdown := Score(c, ScoreInputs{
		SW:             sw,
		Earliest:       sw.Start,
		DistanceMeters: 40000,
		RotationCount:  0,
		Weights:        weights,
	})

	must.Eq(t, 100, breakdown.Availability)
	must.Eq(t, 80, breakdown.Rating)
	must.Eq(t, 50, breakdown.Distance)
	must.Eq(t, 100, breakdown.Rotation)
	// 0.3*100 + 0.3*80 + 0.3*50 + 0.1*100 = 79.
	must.Eq(t, 79, final)
}

func TestScore_AvailabilityHorizon(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	weights := structs.DefaultWeightsConfig()
	sw := scoreSW()

	// Four hours into an eight hour window: half the horizon gone.
	_, breakdown := Score(c, ScoreInputs{
		SW:       sw,
		Earliest: sw.Start.Add(4 * time.Hour),
		Weights:  weights,
	})
	must.Eq(t, 50, breakdown.Availability)

	// A narrow service window is floored at one hour, so a start 30
	// minutes in still scores 50 rather than 0.
	narrow := structs.NewInterval(sw.Start, sw.Start.Add(30*time.Minute))
	_, breakdown = Score(c, ScoreInputs{
		SW:       narrow,
		Earliest: sw.Start.Add(30 * time.Minute),
		Weights:  weights,
	})
	must.Eq(t, 50, breakdown.Availability)

	// No feasible window at all.
	_, breakdown = Score(c, ScoreInputs{SW: sw, Weights: weights})
	must.Eq(t, 0, breakdown.Availability)
}

func TestScore_DistanceCap(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	weights := structs.DefaultWeightsConfig()
	sw := scoreSW()

	_, breakdown := Score(c, ScoreInputs{SW: sw, Earliest: sw.Start, DistanceMeters: 0, Weights: weights})
	must.Eq(t, 100, breakdown.Distance)

	_, breakdown = Score(c, ScoreInputs{SW: sw, Earliest: sw.Start, DistanceMeters: 120000, Weights: weights})
	must.Eq(t, 0, breakdown.Distance)
}

func TestScore_RotationSaturation(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	weights := structs.DefaultWeightsConfig()
	sw := scoreSW()

	_, breakdown := Score(c, ScoreInputs{SW: sw, Earliest: sw.Start, RotationCount: 14, Weights: weights})
	must.Eq(t, 30, breakdown.Rotation)

	_, breakdown = Score(c, ScoreInputs{SW: sw, Earliest: sw.Start, RotationCount: 25, Weights: weights})
	must.Eq(t, 0, breakdown.Rotation)
}

func TestScore_RoundsHalfUp(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	c.Rating = 75
	weights := structs.DefaultWeightsConfig()
	sw := scoreSW()

	// 0.3*100 + 0.3*75 + 0.3*50 + 0.1*100 = 77.5, rounded half-up.
	final, _ := Score(c, ScoreInputs{
		SW:             sw,
		Earliest:       sw.Start,
		DistanceMeters: 40000,
		Weights:        weights,
	})
	must.Eq(t, 78, final)
}

// rotationBeatsBusy is the fairness property: identical contractors except
// for recent load rank the fresh one first, and zeroing the rotation weight
// restores the lexical tie.
func TestScore_RotationFairness(t *testing.T) {
	ci.Parallel(t)

	busy := utcContractor(0)
	busy.ID = "c-aaa"
	fresh := utcContractor(0)
	fresh.ID = "c-bbb"
	weights := structs.DefaultWeightsConfig()
	sw := scoreSW()

	mk := func(c *structs.Contractor, rotation int, w *structs.WeightsConfig) *Candidate {
		score, breakdown := Score(c, ScoreInputs{
			SW: sw, Earliest: sw.Start, RotationCount: rotation, Weights: w,
		})
		return &Candidate{
			Contractor: c,
			Earliest:   sw.Start,
			Ranked: &structs.RankedContractor{
				ContractorID: c.ID,
				Score:        score,
				Breakdown:    breakdown,
			},
		}
	}

	cands := []*Candidate{mk(busy, 14, weights), mk(fresh, 2, weights)}
	SortCandidates(cands, false)
	must.Eq(t, "c-bbb", cands[0].Ranked.ContractorID)

	noRotation := weights.Copy()
	noRotation.Rotation = 0
	cands = []*Candidate{mk(busy, 14, noRotation), mk(fresh, 2, noRotation)}
	SortCandidates(cands, false)
	must.Eq(t, cands[0].Ranked.Score, cands[1].Ranked.Score)
	must.Eq(t, "c-aaa", cands[0].Ranked.ContractorID)
}

func TestSortCandidates_TieBreakers(t *testing.T) {
	ci.Parallel(t)

	sw := scoreSW()
	mk := func(id string, score, rating int, eta time.Duration, earliest time.Time) *Candidate {
		return &Candidate{
			Earliest: earliest,
			Ranked: &structs.RankedContractor{
				ContractorID: id,
				Score:        score,
				Breakdown:    structs.ScoreBreakdown{Rating: rating},
				ETA:          eta,
			},
		}
	}

	// Rating breaks the score tie.
	cands := []*Candidate{
		mk("c-b", 80, 70, 10*time.Minute, sw.Start),
		mk("c-a", 80, 90, 20*time.Minute, sw.Start),
	}
	SortCandidates(cands, false)
	must.Eq(t, "c-a", cands[0].Ranked.ContractorID)

	// Then shorter ETA.
	cands = []*Candidate{
		mk("c-b", 80, 70, 10*time.Minute, sw.Start),
		mk("c-a", 80, 70, 20*time.Minute, sw.Start),
	}
	SortCandidates(cands, false)
	must.Eq(t, "c-b", cands[0].Ranked.ContractorID)

	// Then the earlier first start.
	cands = []*Candidate{
		mk("c-b", 80, 70, 10*time.Minute, sw.Start),
		mk("c-a", 80, 70, 10*time.Minute, sw.Start.Add(time.Hour)),
	}
	SortCandidates(cands, false)
	must.Eq(t, "c-b", cands[0].Ranked.ContractorID)

	// Finally lexical id.
	cands = []*Candidate{
		mk("c-b", 80, 70, 10*time.Minute, sw.Start),
		mk("c-a", 80, 70, 10*time.Minute, sw.Start),
	}
	SortCandidates(cands, false)
	must.Eq(t, "c-a", cands[0].Ranked.ContractorID)
}

func TestSortCandidates_RushPrefersEarlierStart(t *testing.T) {
	ci.Parallel(t)

	sw := scoreSW()
	later := &Candidate{
		Earliest: sw.Start.Add(2 * time.Hour),
		Ranked: &structs.RankedContractor{
			ContractorID: "c-a",
			Score:        80,
			Breakdown:    structs.ScoreBreakdown{Rating: 95},
		},
	}
	sooner := &Candidate{
		Earliest: sw.Start,
		Ranked: &structs.RankedContractor{
			ContractorID: "c-b",
			Score:        80,
			Breakdown:    structs.ScoreBreakdown{Rating: 60},
		},
	}

	cands := []*Candidate{later, sooner}
	SortCandidates(cands, false)
	must.Eq(t, "c-a", cands[0].Ranked.ContractorID)

	cands = []*Candidate{later, sooner}
	SortCandidates(cands, true)
	must.Eq(t, "c-b", cands[0].Ranked.ContractorID)
}

func TestRationale(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	c.Rating = 92
	weights := structs.DefaultWeightsConfig()

	breakdown := structs.ScoreBreakdown{
		Availability: 100,
		Rating:       92,
		Distance:     80,
		Rotation:     40,
	}
	s := Rationale(c, breakdown, weights, 17*time.Minute, "")
	must.Eq(t, "High availability and rating 92.", s)
	must.Less(t, 201, len(s))

	s = Rationale(c, breakdown, weights, 17*time.Minute, "rating")
	must.Eq(t, "High availability and rating 92; tie-break: rating.", s)

	// Distance leading.
	breakdown.Availability = 20
	s = Rationale(c, breakdown, weights, 17*time.Minute, "")
	must.Eq(t, "Rating 92 and short travel (17 min).", s)
}

func TestScore_Deterministic(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	weights := structs.DefaultWeightsConfig()
	sw := scoreSW()
	in := ScoreInputs{
		SW:             sw,
		Earliest:       sw.Start.Add(90 * time.Minute),
		DistanceMeters: 23456,
		RotationCount:  7,
		Weights:        weights,
	}

	first, firstBD := Score(c, in)
	for i := 0; i < 10; i++ {
		again, againBD := Score(c, in)
		must.Eq(t, first, again)
		must.Eq(t, firstBD, againBD)
	}
}
