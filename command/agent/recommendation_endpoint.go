// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// RecommendationsRequest runs the recommendation pipeline for a job.
func (s *HTTPServer) RecommendationsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	var args structs.RecommendRequest
	if err := decodeBody(req, &args); err != nil {
		return nil, err
	}
	if args.Actor == "" {
		args.Actor = "api"
	}

	var out structs.RecommendResponse
	if err := s.agent.server.Recommend().Run(req.Context(), &args, &out); err != nil {
		return nil, err
	}
	setIndex(resp, s.agent.server.State().LatestIndex())
	return &out, nil
}

// RecommendationsLatestRequest replays the most recent audited run.
func (s *HTTPServer) RecommendationsLatestRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	jobID := req.URL.Query().Get("job_id")
	var out structs.RecommendResponse
	if err := s.agent.server.Recommend().Latest(jobID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecommendationsRecalculateRequest enqueues a fresh system-actor run and
// returns 202; the result surfaces through the event stream.
func (s *HTTPServer) RecommendationsRecalculateRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	var args struct {
		JobID string
	}
	if err := decodeBody(req, &args); err != nil {
		return nil, err
	}
	if args.JobID == "" {
		return nil, CodedError(http.StatusBadRequest, "missing job ID")
	}

	if err := s.agent.server.EnqueueRecalculate(args.JobID); err != nil {
		return nil, err
	}
	resp.WriteHeader(http.StatusAccepted)
	return nil, nil
}
