// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"

	"github.com/hashicorp/dispatch/version"
)

type healthResponse struct {
	Status  string
	Version string
	Index   uint64
}

// HealthRequest reports aliveness along with the latest state index so
// load balancers and operators can tell a live agent from a wedged one.
func (s *HTTPServer) HealthRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	return &healthResponse{
		Status:  "ok",
		Version: version.GetVersion().VersionNumber(),
		Index:   s.agent.server.State().LatestIndex(),
	}, nil
}
