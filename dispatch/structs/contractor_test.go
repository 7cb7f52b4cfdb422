// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"testing"
	"time"

	"github.com/hashicorp/go-set/v3"
	"github.com/shoenig/test/must"

	"github.com/hashicorp/dispatch/ci"
)

func TestParseClock(t *testing.T) {
	ci.Parallel(t)

	cases := []struct {
		in       string
		expected int
		bad      bool
	}{
		{in: "09:00", expected: 540},
		{in: "00:00", expected: 0},
		{in: "24:00", expected: 1440},
		{in: "17:45", expected: 1065},
		{in: "24:30", bad: true},
		{in: "9", bad: true},
		{in: "nine:thirty", bad: true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseClock(tc.in)
			if tc.bad {
				must.Error(t, err)
				return
			}
			must.NoError(t, err)
			must.Eq(t, tc.expected, got)
		})
	}
}

func TestWeeklyHours_Validate(t *testing.T) {
	ci.Parallel(t)

	good := WeeklyHours{
		time.Monday: {{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "17:00"}},
	}
	must.NoError(t, good.Validate())

	overlapping := WeeklyHours{
		time.Monday: {{Start: "09:00", End: "13:00"}, {Start: "12:00", End: "17:00"}},
	}
	must.Error(t, overlapping.Validate())

	inverted := WeeklyHours{
		time.Tuesday: {{Start: "17:00", End: "09:00"}},
	}
	must.Error(t, inverted.Validate())
}

func TestContractor_Validate(t *testing.T) {
	ci.Parallel(t)

	catalogue := set.From([]string{"tile", "carpet", "hvac"})

	c := &Contractor{
		ID:       "c1",
		Name:     "Dana Field",
		Location: Location{Lat: 40.7, Lon: -74.0, Zone: "America/New_York"},
		Rating:   90,
		Skills:   []string{"tile"},
		Weekly: WeeklyHours{
			time.Wednesday: {{Start: "09:00", End: "17:00"}},
		},
	}
	c.Canonicalize()
	must.NoError(t, c.Validate(catalogue))
	must.Eq(t, DefaultDailyBreakMinutes, c.DailyBreakMinutes)
	must.Eq(t, DefaultDailyHourCap, c.DailyHourCap)
	must.Eq(t, DefaultDailyJobCap, c.DailyJobCap)

	// Skill tags outside the catalogue are rejected.
	c2 := c.Copy()
	c2.Skills = []string{"basket-weaving"}
	err := c2.Validate(catalogue)
	must.ErrorIs(t, err, ErrUnknownSkill)

	// Bad zone is rejected.
	c3 := c.Copy()
	c3.Location.Zone = "Mars/Olympus"
	must.Error(t, c3.Validate(catalogue))

	// Ungeocoded base is rejected.
	c4 := c.Copy()
	c4.Location = Location{}
	err = c4.Validate(catalogue)
	must.Error(t, err)
	must.StrContains(t, err.Error(), "missing base location")
}

func TestContractor_HasSkills(t *testing.T) {
	ci.Parallel(t)

	c := &Contractor{Skills: []string{"tile", "carpet"}}
	must.True(t, c.HasSkills([]string{"tile"}))
	must.True(t, c.HasSkills([]string{"tile", "carpet"}))
	must.True(t, c.HasSkills(nil))
	must.False(t, c.HasSkills([]string{"hvac"}))
}

func TestDeriveAssignmentStatus(t *testing.T) {
	ci.Parallel(t)

	job := &Job{ID: "j1", RequiredSkills: []string{"tile", "carpet"}}
	tiler := &Contractor{ID: "c1", Skills: []string{"tile"}}
	both := &Contractor{ID: "c2", Skills: []string{"tile", "carpet"}}
	contractors := map[string]*Contractor{"c1": tiler, "c2": both}

	must.Eq(t, JobUnassigned, DeriveAssignmentStatus(job, nil, contractors))

	partial := []*Assignment{{ContractorID: "c1", Status: AssignmentConfirmed}}
	must.Eq(t, JobPartiallyAssigned, DeriveAssignmentStatus(job, partial, contractors))

	full := []*Assignment{{ContractorID: "c2", Status: AssignmentConfirmed}}
	must.Eq(t, JobFullyAssigned, DeriveAssignmentStatus(job, full, contractors))

	// Two partial roles together cover the job.
	combined := []*Assignment{
		{ContractorID: "c1", Status: AssignmentConfirmed},
		{ContractorID: "c2", Status: AssignmentConfirmed},
	}
	must.Eq(t, JobFullyAssigned, DeriveAssignmentStatus(job, combined, contractors))
}
