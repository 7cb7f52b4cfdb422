// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"

	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/lib/ids"
)

// JobsRequest upserts a job or lists all jobs.
func (s *HTTPServer) JobsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		return s.jobList()
	case http.MethodPost, http.MethodPut:
		return s.jobUpsert(resp, req)
	default:
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
}

func (s *HTTPServer) jobList() (interface{}, error) {
	iter, err := s.agent.server.State().Jobs()
	if err != nil {
		return nil, err
	}
	out := make([]*structs.Job, 0)
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.Job))
	}
	return out, nil
}

func (s *HTTPServer) jobUpsert(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var job structs.Job
	if err := decodeBody(req, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = ids.NewULID()
	}
	job.Canonicalize()

	catalogue, err := s.agent.server.SkillCatalogue()
	if err != nil {
		return nil, err
	}
	if err := job.Validate(catalogue); err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}

	if err := s.agent.server.State().UpsertJob(&job); err != nil {
		return nil, err
	}
	setIndex(resp, s.agent.server.State().LatestIndex())
	return &job, nil
}

// JobSpecificRequest routes /v1/job/<id> and its assign, reschedule, and
// cancel verbs.
func (s *HTTPServer) JobSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	jobID, verb := pathSuffix(req.URL.Path, "/v1/job/")
	if jobID == "" {
		return nil, CodedError(http.StatusBadRequest, "missing job ID")
	}

	switch verb {
	case "":
		return s.jobQuery(req, jobID)
	case "assign":
		return s.jobAssign(req, jobID)
	case "reschedule":
		return s.jobReschedule(req, jobID)
	case "cancel":
		return s.jobCancel(req, jobID)
	default:
		return nil, CodedError(http.StatusNotFound, "unknown job endpoint")
	}
}

func (s *HTTPServer) jobQuery(req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	job, err := s.agent.server.State().JobByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, structs.ErrJobNotFound
	}
	return job, nil
}

func (s *HTTPServer) jobAssign(req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	var args structs.AssignRequest
	if err := decodeBody(req, &args); err != nil {
		return nil, err
	}
	args.JobID = jobID
	if args.Actor == "" {
		args.Actor = "api"
	}

	var out structs.AssignResponse
	if err := s.agent.server.Assignment().Create(req.Context(), &args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *HTTPServer) jobReschedule(req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	var args structs.RescheduleRequest
	if err := decodeBody(req, &args); err != nil {
		return nil, err
	}
	if args.Actor == "" {
		args.Actor = "api"
	}
	if err := s.checkAssignmentJob(args.AssignmentID, jobID); err != nil {
		return nil, err
	}

	var out structs.AssignResponse
	if err := s.agent.server.Assignment().Reschedule(req.Context(), &args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *HTTPServer) jobCancel(req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	var args structs.CancelRequest
	if err := decodeBody(req, &args); err != nil {
		return nil, err
	}
	if args.Actor == "" {
		args.Actor = "api"
	}
	if err := s.checkAssignmentJob(args.AssignmentID, jobID); err != nil {
		return nil, err
	}

	var out structs.AssignResponse
	if err := s.agent.server.Assignment().Cancel(&args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// checkAssignmentJob rejects verbs whose assignment belongs to a different
// job than the path names.
func (s *HTTPServer) checkAssignmentJob(assignmentID, jobID string) error {
	if assignmentID == "" {
		return CodedError(http.StatusBadRequest, "missing assignment ID")
	}
	a, err := s.agent.server.State().AssignmentByID(assignmentID)
	if err != nil {
		return err
	}
	if a == nil {
		return structs.ErrAssignmentNotFound
	}
	if a.JobID != jobID {
		return CodedError(http.StatusBadRequest, "assignment does not belong to this job")
	}
	return nil
}
