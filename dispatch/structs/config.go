// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// Tunables are the scheduling knobs pinned alongside the scoring weights.
// Defaults mirror the recognized configuration options.
type Tunables struct {
	// BufferMinMinutes floors the travel buffer around assignments.
	BufferMinMinutes int

	// BufferPaddingMinutes is added on top of the travel ETA.
	BufferPaddingMinutes int

	// FatigueDailyHours caps working hours per contractor-local day.
	FatigueDailyHours int

	// FatigueDailyJobs caps distinct assignments per contractor-local day.
	FatigueDailyJobs int

	// DistanceMaxMeters is the distance beyond which the distance factor
	// scores zero and candidates are prefiltered out.
	DistanceMaxMeters float64

	// HorizonFloorMinutes floors the availability-score horizon.
	HorizonFloorMinutes int

	// RotationWindowDays is the fairness look-back.
	RotationWindowDays int

	// RotationCap is the assignment count that saturates the rotation
	// factor to zero.
	RotationCap int

	// RushTieBreak makes Rush jobs prefer the earlier start on a final
	// score tie instead of the rating tie-break.
	RushTieBreak bool
}

// WeightsConfig is the versioned scoring configuration. Versions increase
// monotonically and become immutable once any audit references them.
type WeightsConfig struct {
	Version uint64

	// The four factor weights, non-negative, summing to a positive value.
	Availability float64
	Rating       float64
	Distance     float64
	Rotation     float64

	Tunables Tunables

	CreateIndex uint64
	ModifyIndex uint64
}

// DefaultWeightsConfig is version 1 with the documented defaults.
func DefaultWeightsConfig() *WeightsConfig {
	return &WeightsConfig{
		Version:      1,
		Availability: 0.3,
		Rating:       0.3,
		Distance:     0.3,
		Rotation:     0.1,
		Tunables: Tunables{
			BufferMinMinutes:     15,
			BufferPaddingMinutes: 5,
			FatigueDailyHours:    10,
			FatigueDailyJobs:     4,
			DistanceMaxMeters:    80000,
			HorizonFloorMinutes:  60,
			RotationWindowDays:   14,
			RotationCap:          20,
		},
	}
}

func (w *WeightsConfig) Copy() *WeightsConfig {
	if w == nil {
		return nil
	}
	nw := *w
	return &nw
}

// WeightSum returns the normalization denominator.
func (w *WeightsConfig) WeightSum() float64 {
	return w.Availability + w.Rating + w.Distance + w.Rotation
}

func (w *WeightsConfig) Validate() error {
	var mErr multierror.Error
	if w.Version == 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("weights version must be positive"))
	}
	for name, v := range map[string]float64{
		"availability": w.Availability,
		"rating":       w.Rating,
		"distance":     w.Distance,
		"rotation":     w.Rotation,
	} {
		if v < 0 {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("%s weight must not be negative", name))
		}
	}
	if w.WeightSum() <= 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("weights must sum to a positive value"))
	}
	t := w.Tunables
	if t.BufferMinMinutes < 0 || t.BufferPaddingMinutes < 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("buffer minutes must not be negative"))
	}
	if t.FatigueDailyHours <= 0 || t.FatigueDailyJobs <= 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("fatigue caps must be positive"))
	}
	if t.DistanceMaxMeters <= 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("distance cap must be positive"))
	}
	if t.HorizonFloorMinutes <= 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("horizon floor must be positive"))
	}
	if t.RotationWindowDays <= 0 || t.RotationCap <= 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("rotation window and cap must be positive"))
	}
	return mErr.ErrorOrNil()
}
