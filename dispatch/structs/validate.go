// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

// Request validation is a small set of pure functions invoked by the
// coordinator and the assignment transaction before any I/O happens.

// ValidateRecommendRequest checks request shape; job existence is checked
// against state by the coordinator.
func ValidateRecommendRequest(req *RecommendRequest) error {
	if req == nil {
		return NewInvalidRequestError("empty request")
	}
	if req.JobID == "" {
		return NewInvalidRequestError("missing job ID")
	}
	if req.MaxResults < 0 {
		return NewInvalidRequestError("max results must not be negative")
	}
	if req.ServiceWindow != nil && req.ServiceWindow.Empty() {
		return NewInvalidRequestError("service window start must precede end")
	}
	return nil
}

// ValidateAssignRequest checks request shape against the job it books,
// including the exact-duration rule with its one minute tolerance.
func ValidateAssignRequest(req *AssignRequest, job *Job) error {
	if req == nil {
		return NewInvalidRequestError("empty request")
	}
	if req.JobID == "" || req.ContractorID == "" {
		return NewInvalidRequestError("missing job or contractor ID")
	}
	iv := req.Interval()
	if iv.Empty() {
		return NewInvalidRequestError("interval start must precede end")
	}
	if job != nil {
		if err := ValidateBookingInterval(iv, job); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBookingInterval enforces that the interval matches the job
// duration (tolerance one minute either way) and lies inside the service
// window (same tolerance).
func ValidateBookingInterval(iv Interval, job *Job) error {
	tolerance := Quarter / 15 // one minute

	drift := iv.Width() - job.Duration()
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return NewInvalidRequestError(
			"interval width %s does not match job duration %s", iv.Width(), job.Duration())
	}

	sw := job.ServiceWindow.Expand(tolerance, tolerance)
	if !sw.Contains(iv) {
		return NewInvalidRequestError(
			"interval %s lies outside service window %s", iv, job.ServiceWindow)
	}
	return nil
}

// ValidateRescheduleRequest checks request shape.
func ValidateRescheduleRequest(req *RescheduleRequest) error {
	if req == nil {
		return NewInvalidRequestError("empty request")
	}
	if req.AssignmentID == "" {
		return NewInvalidRequestError("missing assignment ID")
	}
	if req.NewStartUTC.IsZero() {
		return NewInvalidRequestError("missing new start")
	}
	return nil
}

// ValidateCancelRequest checks request shape.
func ValidateCancelRequest(req *CancelRequest) error {
	if req == nil {
		return NewInvalidRequestError("empty request")
	}
	if req.AssignmentID == "" {
		return NewInvalidRequestError("missing assignment ID")
	}
	return nil
}
