// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-set/v3"

	"github.com/hashicorp/dispatch/helper"
)

const (
	// DefaultDailyBreakMinutes is subtracted symmetrically around the
	// midpoint of each working interval.
	DefaultDailyBreakMinutes = 30

	// DefaultDailyHourCap limits working minutes per contractor-local day.
	DefaultDailyHourCap = 10

	// DefaultDailyJobCap limits distinct assignments per contractor-local
	// day.
	DefaultDailyJobCap = 4
)

// Shift is one local working interval within a weekday. Times are wall-clock
// "HH:MM" strings interpreted in Zone, or in the contractor's home zone when
// Zone is empty. Zone normally matches the home zone but may differ for field
// assignments.
type Shift struct {
	Start string
	End   string
	Zone  string
}

func (s Shift) Validate() error {
	var mErr multierror.Error
	start, err := ParseClock(s.Start)
	if err != nil {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("shift start: %v", err))
	}
	end, err := ParseClock(s.End)
	if err != nil {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("shift end: %v", err))
	}
	if mErr.Len() == 0 && end <= start {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("shift %s-%s must end after it starts", s.Start, s.End))
	}
	if s.Zone != "" {
		if _, err := time.LoadLocation(s.Zone); err != nil {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("shift zone: %v", err))
		}
	}
	return mErr.ErrorOrNil()
}

// ParseClock converts an "HH:MM" wall-clock string to minutes past midnight.
// 24:00 is accepted as an end-of-day sentinel.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock time %q is not HH:MM", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 24 {
		return 0, fmt.Errorf("clock time %q has a bad hour", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("clock time %q has a bad minute", s)
	}
	return hh*60 + mm, nil
}

// WeeklyHours maps weekdays to ordered, non-overlapping shifts.
type WeeklyHours map[time.Weekday][]Shift

func (w WeeklyHours) Copy() WeeklyHours {
	if w == nil {
		return nil
	}
	out := make(WeeklyHours, len(w))
	for day, shifts := range w {
		out[day] = helper.CopySlice(shifts)
	}
	return out
}

func (w WeeklyHours) Validate() error {
	var mErr multierror.Error
	for day, shifts := range w {
		for _, s := range shifts {
			if err := s.Validate(); err != nil {
				mErr.Errors = append(mErr.Errors, fmt.Errorf("%s: %v", day, err))
			}
		}
		if err := shiftsOverlap(shifts); err != nil {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("%s: %v", day, err))
		}
	}
	return mErr.ErrorOrNil()
}

func shiftsOverlap(shifts []Shift) error {
	type span struct{ start, end int }
	spans := make([]span, 0, len(shifts))
	for _, s := range shifts {
		start, err1 := ParseClock(s.Start)
		end, err2 := ParseClock(s.End)
		if err1 != nil || err2 != nil {
			// Reported by Shift.Validate already.
			continue
		}
		spans = append(spans, span{start, end})
	}
	sort.Slice(spans, func(a, b int) bool { return spans[a].start < spans[b].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return fmt.Errorf("shifts overlap within the weekday")
		}
	}
	return nil
}

// CalendarExceptionKind distinguishes full blackout dates from per-date hour
// overrides.
type CalendarExceptionKind string

const (
	ExceptionHoliday  CalendarExceptionKind = "holiday"
	ExceptionOverride CalendarExceptionKind = "override"
)

// CalendarException replaces the weekly hours shape for a single local date.
// Holiday exceptions suppress all hours; override exceptions substitute the
// given shifts.
type CalendarException struct {
	// Date is the contractor-local date, "2006-01-02".
	Date string

	Kind   CalendarExceptionKind
	Shifts []Shift
}

func (c *CalendarException) Copy() *CalendarException {
	if c == nil {
		return nil
	}
	nc := *c
	nc.Shifts = helper.CopySlice(c.Shifts)
	return &nc
}

func (c *CalendarException) Validate() error {
	var mErr multierror.Error
	if _, err := time.Parse("2006-01-02", c.Date); err != nil {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("exception date: %v", err))
	}
	switch c.Kind {
	case ExceptionHoliday:
		if len(c.Shifts) != 0 {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("holiday exception must not carry shifts"))
		}
	case ExceptionOverride:
		for _, s := range c.Shifts {
			if err := s.Validate(); err != nil {
				mErr.Errors = append(mErr.Errors, err)
			}
		}
		if err := shiftsOverlap(c.Shifts); err != nil {
			mErr.Errors = append(mErr.Errors, err)
		}
	default:
		mErr.Errors = append(mErr.Errors, fmt.Errorf("unknown exception kind %q", c.Kind))
	}
	return mErr.ErrorOrNil()
}

// Contractor is a bookable field worker. Contractors are created by the
// external CRUD surface; the engine only reads them plus writes assignments
// against them.
type Contractor struct {
	ID   string
	Name string

	// Location is the contractor's base; its Zone is the home zone used
	// for local-date accounting.
	Location Location

	// Rating in [0, 100]. New contractors start at DefaultRating.
	Rating int

	Skills []string

	Weekly   WeeklyHours
	Calendar []*CalendarException

	DailyBreakMinutes int
	DailyHourCap      int
	DailyJobCap       int

	CreateIndex uint64
	ModifyIndex uint64
}

func (c *Contractor) Copy() *Contractor {
	if c == nil {
		return nil
	}
	nc := *c
	nc.Skills = helper.CopySlice(c.Skills)
	nc.Weekly = c.Weekly.Copy()
	nc.Calendar = make([]*CalendarException, len(c.Calendar))
	for i, e := range c.Calendar {
		nc.Calendar[i] = e.Copy()
	}
	return &nc
}

// Canonicalize fills derived defaults on a contractor written to state.
func (c *Contractor) Canonicalize() {
	if c.Rating == 0 {
		c.Rating = DefaultRating
	}
	if c.DailyBreakMinutes == 0 {
		c.DailyBreakMinutes = DefaultDailyBreakMinutes
	}
	if c.DailyHourCap == 0 {
		c.DailyHourCap = DefaultDailyHourCap
	}
	if c.DailyJobCap == 0 {
		c.DailyJobCap = DefaultDailyJobCap
	}
	for i, s := range c.Skills {
		c.Skills[i] = NormalizeSkill(s)
	}
	sort.Strings(c.Skills)
}

// Validate checks contractor shape. catalogue is the system-wide skill
// catalogue; every skill tag must come from it.
func (c *Contractor) Validate(catalogue *set.Set[string]) error {
	var mErr multierror.Error
	if c.ID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing contractor ID"))
	}
	if c.Name == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing contractor name"))
	}
	if c.Rating < 0 || c.Rating > 100 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("rating %d outside [0, 100]", c.Rating))
	}
	if c.Location.Zero() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing base location"))
	} else if _, err := time.LoadLocation(c.Location.Zone); err != nil {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("base zone: %v", err))
	}
	if err := c.Weekly.Validate(); err != nil {
		mErr.Errors = append(mErr.Errors, err)
	}
	for _, e := range c.Calendar {
		if err := e.Validate(); err != nil {
			mErr.Errors = append(mErr.Errors, err)
		}
	}
	for _, skill := range c.Skills {
		if catalogue != nil && !catalogue.Contains(skill) {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("%w: %q", ErrUnknownSkill, skill))
		}
	}
	return mErr.ErrorOrNil()
}

// HasSkills reports whether the contractor's skill set covers every required
// tag.
func (c *Contractor) HasSkills(required []string) bool {
	return set.From(c.Skills).Subset(set.From(required))
}

// Exception returns the calendar exception for the given contractor-local
// date, or nil.
func (c *Contractor) Exception(localDate string) *CalendarException {
	for _, e := range c.Calendar {
		if e.Date == localDate {
			return e
		}
	}
	return nil
}

// NormalizeSkill lowercases and trims a skill tag so lookups are stable.
func NormalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SkillTag is one entry of the system-wide skill catalogue. Contractor and
// job skill tags must come from the catalogue.
type SkillTag struct {
	Name string

	CreateIndex uint64
	ModifyIndex uint64
}
