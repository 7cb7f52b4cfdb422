// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"time"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// CheckLimits enforces the fatigue caps for a candidate booking interval.
// Accounting runs per contractor-local date; an interval spanning local
// midnight is split and charged to each date it touches. The returned error
// wraps ErrConflict and names the violated rule.
func CheckLimits(ctx Context, c *structs.Contractor, candidate structs.Interval) error {
	return checkLimits(ctx, c, candidate, "")
}

func checkLimits(ctx Context, c *structs.Contractor, candidate structs.Interval, exclude string) error {
	loc, err := time.LoadLocation(c.Location.Zone)
	if err != nil {
		return err
	}

	hourCap := c.DailyHourCap
	if hourCap <= 0 {
		hourCap = structs.DefaultDailyHourCap
	}
	jobCap := c.DailyJobCap
	if jobCap <= 0 {
		jobCap = structs.DefaultDailyJobCap
	}

	assignments, err := ctx.State().AssignmentsByContractorInWindow(c.ID, candidate.Expand(lookaround, lookaround))
	if err != nil {
		return err
	}

	for _, day := range localDays(candidate, loc) {
		worked := candidate.Clip(day).Width()
		jobs := 0
		for _, a := range assignments {
			if a.ID == exclude {
				continue
			}
			overlap := a.Interval().Clip(day)
			if overlap.Empty() {
				continue
			}
			worked += overlap.Width()
			jobs++
		}

		if worked > time.Duration(hourCap)*time.Hour {
			return structs.NewConflictError(
				"booking %s would exceed the %dh daily hour cap on %s",
				candidate, hourCap, day.Start.In(loc).Format("2006-01-02"))
		}
		if jobs >= jobCap {
			return structs.NewConflictError(
				"contractor already has %d assignments on %s, the daily job cap",
				jobs, day.Start.In(loc).Format("2006-01-02"))
		}
	}
	return nil
}

// localDays returns the contractor-local calendar days the interval touches,
// as UTC intervals. DST days are naturally 23 or 25 hours wide.
func localDays(iv structs.Interval, loc *time.Location) []structs.Interval {
	var out []structs.Interval
	y, m, d := iv.Start.In(loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	for day.Before(iv.End) {
		next := day.AddDate(0, 0, 1)
		out = append(out, structs.NewInterval(day, next))
		day = next
	}
	return out
}
