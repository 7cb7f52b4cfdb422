// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"math"
	"time"
)

// metersPerDegreeLat is close enough for cell bucketing; congestion varies
// far more than the few meters this approximation loses.
const metersPerDegreeLat = 111320.0

// cell is a quantized coordinate bucket. Two points in the same cell share
// cached estimates.
type cell struct {
	X int64
	Y int64
}

// cellOf buckets a coordinate into a square grid of the given side length.
func cellOf(lat, lon, sideMeters float64) cell {
	metersPerDegreeLon := metersPerDegreeLat * math.Cos(lat*math.Pi/180)
	return cell{
		X: int64(math.Floor(lon * metersPerDegreeLon / sideMeters)),
		Y: int64(math.Floor(lat * metersPerDegreeLat / sideMeters)),
	}
}

// cacheKey identifies a cached routed estimate: origin cell, destination
// cell, and hour-of-week so congestion patterns bucket cheaply.
type cacheKey struct {
	From       cell
	To         cell
	HourOfWeek int
}

// hourOfWeek buckets an instant into one of 168 hours.
func hourOfWeek(t time.Time) int {
	t = t.UTC()
	return int(t.Weekday())*24 + t.Hour()
}
