// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// State is the subset of the state store the scheduling pipeline reads.
// Implementations must be safe for concurrent reads.
type State interface {
	// ContractorsBySkills returns contractors whose skill set covers every
	// required tag.
	ContractorsBySkills(required []string) ([]*structs.Contractor, error)

	// AssignmentsByContractorInWindow returns the active assignments for a
	// contractor that overlap the window.
	AssignmentsByContractorInWindow(contractorID string, window structs.Interval) ([]*structs.Assignment, error)

	// RotationCount returns the number of active assignments created for
	// the contractor since the given instant.
	RotationCount(contractorID string, since time.Time) (int, error)

	// JobByID returns the job, or nil when unknown.
	JobByID(id string) (*structs.Job, error)
}

// Context is used to track shared scheduling state between the pipeline
// stages of a single recommendation or booking evaluation.
type Context interface {
	State() State
	Logger() hclog.Logger

	// Now is the instant the evaluation started; every stage of one
	// evaluation sees the same clock reading.
	Now() time.Time
}

// EvalContext is a Context used during a single evaluation.
type EvalContext struct {
	state  State
	logger hclog.Logger
	now    time.Time
}

// NewEvalContext constructs a new EvalContext.
func NewEvalContext(state State, logger hclog.Logger, now time.Time) *EvalContext {
	return &EvalContext{
		state:  state,
		logger: logger,
		now:    now.UTC(),
	}
}

func (e *EvalContext) State() State {
	return e.state
}

func (e *EvalContext) Logger() hclog.Logger {
	return e.logger
}

func (e *EvalContext) Now() time.Time {
	return e.now
}

// SetState is used to replace the state store, mostly for tests.
func (e *EvalContext) SetState(s State) {
	e.state = s
}
