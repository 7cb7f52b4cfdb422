// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// AssignmentStatus is the lifecycle state of a booking.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentConfirmed  AssignmentStatus = "confirmed"
	AssignmentInProgress AssignmentStatus = "in-progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

// Assignment binds a contractor to a job for an exact interval. Assignments
// are only ever created by the assignment transaction.
type Assignment struct {
	ID           string
	JobID        string
	ContractorID string

	// StartUTC/EndUTC with EndUTC == StartUTC + job duration.
	StartUTC time.Time
	EndUTC   time.Time

	Source AssignmentSource

	// AuditID links to the recommendation audit that produced this
	// booking, empty for manual bookings.
	AuditID string

	Status AssignmentStatus

	CreateIndex uint64
	ModifyIndex uint64
}

func (a *Assignment) Copy() *Assignment {
	if a == nil {
		return nil
	}
	na := *a
	return &na
}

// Interval returns the booked span.
func (a *Assignment) Interval() Interval {
	return NewInterval(a.StartUTC, a.EndUTC)
}

// Active is true while the assignment occupies the contractor's calendar.
// Cancelled and completed assignments free their window.
func (a *Assignment) Active() bool {
	switch a.Status {
	case AssignmentPending, AssignmentConfirmed, AssignmentInProgress:
		return true
	}
	return false
}

// TerminalStatus is true once the assignment can no longer transition.
func (a *Assignment) TerminalStatus() bool {
	switch a.Status {
	case AssignmentCompleted, AssignmentCancelled:
		return true
	}
	return false
}

func (a *Assignment) Validate() error {
	var mErr multierror.Error
	if a.ID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing assignment ID"))
	}
	if a.JobID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing job ID"))
	}
	if a.ContractorID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing contractor ID"))
	}
	if !a.EndUTC.After(a.StartUTC) {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("assignment must end after it starts"))
	}
	switch a.Source {
	case SourceAuto, SourceManual:
	default:
		mErr.Errors = append(mErr.Errors, fmt.Errorf("unknown assignment source %q", a.Source))
	}
	return mErr.ErrorOrNil()
}
