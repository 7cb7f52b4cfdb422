// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"sort"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-set/v3"

	"github.com/hashicorp/dispatch/helper"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusCreated    JobStatus = "created"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusCreated, JobStatusAssigned, JobStatusInProgress,
		JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

// JobAssignmentStatus is derived from the set of active assignments, never
// stored.
type JobAssignmentStatus string

const (
	JobUnassigned        JobAssignmentStatus = "unassigned"
	JobPartiallyAssigned JobAssignmentStatus = "partially-assigned"
	JobFullyAssigned     JobAssignmentStatus = "assigned"
)

// Job is a typed task at a geocoded address with a service window.
type Job struct {
	ID   string
	Type string

	// DurationMinutes is the working time the job needs, always > 0 and
	// never wider than the service window.
	DurationMinutes int

	Location       Location
	RequiredSkills []string

	// ServiceWindow is the UTC interval the job must start and finish in.
	ServiceWindow Interval

	Priority Priority
	Status   JobStatus

	CreateIndex uint64
	ModifyIndex uint64
}

func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	nj := *j
	nj.RequiredSkills = helper.CopySlice(j.RequiredSkills)
	return &nj
}

// Duration returns the job's working time.
func (j *Job) Duration() time.Duration {
	return time.Duration(j.DurationMinutes) * time.Minute
}

// Canonicalize fills derived defaults on a job written to state.
func (j *Job) Canonicalize() {
	if j.Priority == "" {
		j.Priority = PriorityNormal
	}
	if j.Status == "" {
		j.Status = JobStatusCreated
	}
	for i, s := range j.RequiredSkills {
		j.RequiredSkills[i] = NormalizeSkill(s)
	}
	sort.Strings(j.RequiredSkills)
}

// Validate checks job shape against the skill catalogue.
func (j *Job) Validate(catalogue *set.Set[string]) error {
	var mErr multierror.Error
	if j.ID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing job ID"))
	}
	if j.Type == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing job type"))
	}
	if j.DurationMinutes <= 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("duration must be positive, got %d", j.DurationMinutes))
	}
	if j.ServiceWindow.Empty() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("service window start must precede end"))
	} else if j.Duration() > j.ServiceWindow.Width() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf(
			"duration %dm exceeds service window width %s", j.DurationMinutes, j.ServiceWindow.Width()))
	}
	if !j.Priority.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("unknown priority %q", j.Priority))
	}
	if j.Location.Zero() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing job location"))
	} else if _, err := time.LoadLocation(j.Location.Zone); err != nil {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("job zone: %v", err))
	}
	for _, skill := range j.RequiredSkills {
		if catalogue != nil && !catalogue.Contains(skill) {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("%w: %q", ErrUnknownSkill, skill))
		}
	}
	return mErr.ErrorOrNil()
}

// Region names the dispatch channel for events about this job.
func (j *Job) Region() string {
	if j.Location.Region != "" {
		return j.Location.Region
	}
	return "global"
}

// DeriveAssignmentStatus computes the job's assignment status from its active
// assignments. A job is fully assigned once the union of its active
// contractors' skills covers every required tag; anything less with at least
// one active assignment is partially assigned.
func DeriveAssignmentStatus(job *Job, active []*Assignment, contractors map[string]*Contractor) JobAssignmentStatus {
	if len(active) == 0 {
		return JobUnassigned
	}
	covered := set.New[string](len(job.RequiredSkills))
	for _, a := range active {
		if c, ok := contractors[a.ContractorID]; ok {
			covered.InsertSlice(c.Skills)
		}
	}
	if covered.Subset(set.From(job.RequiredSkills)) {
		return JobFullyAssigned
	}
	return JobPartiallyAssigned
}
