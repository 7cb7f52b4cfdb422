// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"errors"
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/hashicorp/dispatch/ci"
)

func testJob(t *testing.T) *Job {
	j := &Job{
		ID:              "j1",
		Type:            "tile",
		DurationMinutes: 120,
		Location:        Location{Lat: 40.7, Lon: -74.0, Zone: "America/New_York", Region: "ny"},
		RequiredSkills:  []string{"tile"},
		ServiceWindow:   iv(t, "2025-11-12T14:00:00Z", "2025-11-12T22:00:00Z"),
	}
	j.Canonicalize()
	return j
}

func TestJob_Validate(t *testing.T) {
	ci.Parallel(t)

	j := testJob(t)
	must.NoError(t, j.Validate(nil))

	// Inverted window.
	bad := j.Copy()
	bad.ServiceWindow = Interval{Start: bad.ServiceWindow.End, End: bad.ServiceWindow.Start}
	must.Error(t, bad.Validate(nil))

	// Duration wider than window.
	long := j.Copy()
	long.DurationMinutes = 9 * 60
	must.Error(t, long.Validate(nil))

	// Ungeocoded location.
	nowhere := j.Copy()
	nowhere.Location = Location{}
	must.True(t, nowhere.Location.Zero())
	err := nowhere.Validate(nil)
	must.Error(t, err)
	must.StrContains(t, err.Error(), "missing job location")
}

func TestValidateAssignRequest(t *testing.T) {
	ci.Parallel(t)

	job := testJob(t)

	good := &AssignRequest{
		JobID:        job.ID,
		ContractorID: "c1",
		StartUTC:     ts(t, "2025-11-12T14:00:00Z"),
		EndUTC:       ts(t, "2025-11-12T16:00:00Z"),
	}
	must.NoError(t, ValidateAssignRequest(good, job))

	// One minute of drift is tolerated.
	drift := *good
	drift.EndUTC = drift.EndUTC.Add(time.Minute)
	must.NoError(t, ValidateAssignRequest(&drift, job))

	// Two minutes is not.
	toolong := *good
	toolong.EndUTC = toolong.EndUTC.Add(2 * time.Minute)
	err := ValidateAssignRequest(&toolong, job)
	must.ErrorIs(t, err, ErrInvalidRequest)

	// Outside the service window.
	outside := *good
	outside.StartUTC = ts(t, "2025-11-12T21:00:00Z")
	outside.EndUTC = ts(t, "2025-11-12T23:00:00Z")
	err = ValidateAssignRequest(&outside, job)
	must.ErrorIs(t, err, ErrInvalidRequest)
}

func TestErrCode(t *testing.T) {
	ci.Parallel(t)

	must.Eq(t, CodeNotFound, ErrCode(ErrJobNotFound))
	must.Eq(t, CodeConflict, ErrCode(NewConflictError("interval already assigned")))
	must.Eq(t, CodeConflict, ErrCode(ErrLockTimeout))
	must.Eq(t, CodeInvalidRequest, ErrCode(NewInvalidRequestError("bad window")))
	must.Eq(t, CodeFatal, ErrCode(errors.New("disk on fire")))
	must.Eq(t, "", ErrCode(nil))
}
