// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"math"
	"time"
)

const (
	earthRadiusMeters = 6371000.0

	// DefaultSpeedKPH is the fixed average speed behind haversine ETAs.
	DefaultSpeedKPH = 50.0
)

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// DriveETA converts a distance to travel time at a fixed average speed.
func DriveETA(meters, speedKPH float64) time.Duration {
	if speedKPH <= 0 {
		speedKPH = DefaultSpeedKPH
	}
	hours := (meters / 1000.0) / speedKPH
	return time.Duration(hours * float64(time.Hour))
}
