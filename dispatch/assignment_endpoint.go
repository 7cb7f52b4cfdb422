// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/lib/ids"
	"github.com/hashicorp/dispatch/scheduler"
)

// Assignment is the booking endpoint. Every mutation takes the contractor's
// lock, re-validates the full rule set against current state, and commits
// the row together with its event-log record in one store transaction.
type Assignment struct {
	srv    *Server
	logger hclog.Logger
}

// Create books a contractor onto a job for an exact interval. Two identical
// concurrent requests serialize on the contractor lock; the second one fails
// validation against the row the first just committed.
func (a *Assignment) Create(ctx context.Context, req *structs.AssignRequest, reply *structs.AssignResponse) error {
	defer metrics.MeasureSince([]string{"dispatch", "assignment", "create"}, time.Now())

	job, contractor, err := a.loadPair(req.JobID, req.ContractorID)
	if err != nil {
		return err
	}
	if err := structs.ValidateAssignRequest(req, job); err != nil {
		return err
	}
	iv := req.Interval()

	if err := a.srv.locks.acquire(req.ContractorID, a.srv.config.LockWait); err != nil {
		return err
	}
	defer a.srv.locks.release(req.ContractorID)

	weights, err := a.srv.store.ActiveWeightsConfig()
	if err != nil {
		return err
	}

	travel := a.resolveTravel(ctx, job, contractor, iv.Start)
	evalCtx := scheduler.NewEvalContext(a.srv.store, a.logger, time.Now().UTC())
	if err := scheduler.ValidateBooking(evalCtx, contractor, job, iv, travel, weights.Tunables); err != nil {
		return err
	}

	// A booking against a job with an audited run is a recommendation
	// acceptance; the audit gets the selected contractor stamped on it.
	source := structs.SourceManual
	auditID := ""
	audit, err := a.srv.store.LatestAuditByJob(job.ID)
	if err != nil {
		return err
	}
	if audit != nil {
		source = structs.SourceAuto
		auditID = audit.ID
	}

	assignment := &structs.Assignment{
		ID:           ids.NewULID(),
		JobID:        job.ID,
		ContractorID: contractor.ID,
		StartUTC:     iv.Start,
		EndUTC:       iv.End,
		Source:       source,
		AuditID:      auditID,
		Status:       structs.AssignmentConfirmed,
	}

	entry, err := buildLogEntry(ids.NewULID(), structs.TypeJobAssigned,
		&structs.JobAssignedEvent{
			JobID:        job.ID,
			ContractorID: contractor.ID,
			StartUTC:     iv.Start,
			EndUTC:       iv.End,
			Source:       source,
		},
		assignmentChannels(job, contractor.ID), time.Now().UTC())
	if err != nil {
		return err
	}

	if err := a.srv.store.CommitAssignment(assignment, entry); err != nil {
		return err
	}
	a.markAssigned(job)
	a.srv.publishAfterCommit(entry.ID, structs.TopicAssignment, job.ID,
		&structs.JobAssignedEvent{
			JobID:        job.ID,
			ContractorID: contractor.ID,
			StartUTC:     iv.Start,
			EndUTC:       iv.End,
			Source:       source,
		})

	reply.Assignment = assignment
	return nil
}

// Reschedule atomically moves an assignment to a new start. The old interval
// is freed and the new one validated in the same pass, with the moving
// assignment excluded from its own occupied set, and exactly one rescheduled
// event comes out.
func (a *Assignment) Reschedule(ctx context.Context, req *structs.RescheduleRequest, reply *structs.AssignResponse) error {
	defer metrics.MeasureSince([]string{"dispatch", "assignment", "reschedule"}, time.Now())

	if err := structs.ValidateRescheduleRequest(req); err != nil {
		return err
	}

	old, err := a.srv.store.AssignmentByID(req.AssignmentID)
	if err != nil {
		return err
	}
	if old == nil {
		return structs.ErrAssignmentNotFound
	}
	job, contractor, err := a.loadPair(old.JobID, old.ContractorID)
	if err != nil {
		return err
	}

	iv := structs.NewInterval(req.NewStartUTC, req.NewStartUTC.Add(job.Duration()))
	if err := structs.ValidateBookingInterval(iv, job); err != nil {
		return err
	}

	if err := a.srv.locks.acquire(contractor.ID, a.srv.config.LockWait); err != nil {
		return err
	}
	defer a.srv.locks.release(contractor.ID)

	weights, err := a.srv.store.ActiveWeightsConfig()
	if err != nil {
		return err
	}

	travel := a.resolveTravel(ctx, job, contractor, iv.Start)
	evalCtx := scheduler.NewEvalContext(a.srv.store, a.logger, time.Now().UTC())
	if err := scheduler.ValidateReschedule(evalCtx, contractor, job, iv, travel, weights.Tunables, old.ID); err != nil {
		return err
	}

	replacement := old.Copy()
	replacement.ID = ids.NewULID()
	replacement.StartUTC = iv.Start
	replacement.EndUTC = iv.End

	payload := &structs.JobRescheduledEvent{
		JobID:        job.ID,
		OldStartUTC:  old.StartUTC,
		NewStartUTC:  iv.Start,
		ContractorID: contractor.ID,
	}
	entry, err := buildLogEntry(ids.NewULID(), structs.TypeJobRescheduled,
		payload, assignmentChannels(job, contractor.ID), time.Now().UTC())
	if err != nil {
		return err
	}

	committed, err := a.srv.store.RescheduleAssignment(old.ID, replacement, entry)
	if err != nil {
		return err
	}
	a.srv.publishAfterCommit(entry.ID, structs.TopicAssignment, job.ID, payload)

	reply.Assignment = committed
	return nil
}

// Cancel cancels an assignment, freeing the contractor's window.
func (a *Assignment) Cancel(req *structs.CancelRequest, reply *structs.AssignResponse) error {
	defer metrics.MeasureSince([]string{"dispatch", "assignment", "cancel"}, time.Now())

	if err := structs.ValidateCancelRequest(req); err != nil {
		return err
	}

	existing, err := a.srv.store.AssignmentByID(req.AssignmentID)
	if err != nil {
		return err
	}
	if existing == nil {
		return structs.ErrAssignmentNotFound
	}
	job, contractor, err := a.loadPair(existing.JobID, existing.ContractorID)
	if err != nil {
		return err
	}

	if err := a.srv.locks.acquire(contractor.ID, a.srv.config.LockWait); err != nil {
		return err
	}
	defer a.srv.locks.release(contractor.ID)

	payload := &structs.JobCancelledEvent{
		JobID:  job.ID,
		Reason: req.Reason,
	}
	entry, err := buildLogEntry(ids.NewULID(), structs.TypeJobCancelled,
		payload, assignmentChannels(job, contractor.ID), time.Now().UTC())
	if err != nil {
		return err
	}

	cancelled, err := a.srv.store.CancelAssignment(existing.ID, entry)
	if err != nil {
		return err
	}
	a.srv.publishAfterCommit(entry.ID, structs.TopicAssignment, job.ID, payload)

	reply.Assignment = cancelled
	return nil
}

// loadPair resolves the job and contractor a mutation targets.
func (a *Assignment) loadPair(jobID, contractorID string) (*structs.Job, *structs.Contractor, error) {
	job, err := a.srv.store.JobByID(jobID)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, structs.ErrJobNotFound
	}
	contractor, err := a.srv.store.ContractorByID(contractorID)
	if err != nil {
		return nil, nil, err
	}
	if contractor == nil {
		return nil, nil, structs.ErrContractorNotFound
	}
	return job, contractor, nil
}

// resolveTravel fetches a refined estimate for the single contractor-job
// pair. Routing degradation is acceptable here: the buffer floor covers the
// cheap estimate's error.
func (a *Assignment) resolveTravel(ctx context.Context, job *structs.Job, c *structs.Contractor, at time.Time) scheduler.TravelInfo {
	ests, _ := a.srv.estimator.RefinedMatrix(ctx, job.Location, []structs.Location{c.Location}, at)
	return scheduler.TravelInfo{
		DistanceMeters: ests[0].DistanceMeters,
		ETA:            ests[0].ETA,
		Routed:         ests[0].Source == structs.ETASourceRouted,
	}
}

// markAssigned advances a freshly booked job out of created. Failures only
// log; the assignment row is already durable.
func (a *Assignment) markAssigned(job *structs.Job) {
	if job.Status != structs.JobStatusCreated {
		return
	}
	if err := a.srv.store.UpdateJobStatus(job.ID, structs.JobStatusAssigned); err != nil {
		a.logger.Warn("job status update failed", "job_id", job.ID, "error", err)
	}
}

func assignmentChannels(job *structs.Job, contractorID string) []string {
	return []string{
		structs.DispatchChannel(job.Region()),
		structs.ContractorChannel(contractorID),
	}
}
