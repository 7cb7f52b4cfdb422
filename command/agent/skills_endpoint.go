// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
	"sort"
)

// SkillsRequest reads or extends the skill catalogue.
func (s *HTTPServer) SkillsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		catalogue, err := s.agent.server.SkillCatalogue()
		if err != nil {
			return nil, err
		}
		tags := catalogue.Slice()
		sort.Strings(tags)
		return tags, nil

	case http.MethodPost, http.MethodPut:
		var args struct {
			Skills []string
		}
		if err := decodeBody(req, &args); err != nil {
			return nil, err
		}
		if len(args.Skills) == 0 {
			return nil, CodedError(http.StatusBadRequest, "missing skills")
		}
		if err := s.agent.server.State().UpsertSkills(args.Skills); err != nil {
			return nil, err
		}
		setIndex(resp, s.agent.server.State().LatestIndex())
		return nil, nil

	default:
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
}

// SkillSpecificRequest removes a single tag from the catalogue.
func (s *HTTPServer) SkillSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodDelete {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	tag, verb := pathSuffix(req.URL.Path, "/v1/skill/")
	if tag == "" || verb != "" {
		return nil, CodedError(http.StatusBadRequest, "missing skill tag")
	}
	if err := s.agent.server.State().DeleteSkill(tag); err != nil {
		return nil, err
	}
	setIndex(resp, s.agent.server.State().LatestIndex())
	return nil, nil
}
