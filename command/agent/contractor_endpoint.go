// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"

	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/lib/ids"
)

// ContractorsRequest upserts a contractor or lists all contractors.
func (s *HTTPServer) ContractorsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		return s.contractorList()
	case http.MethodPost, http.MethodPut:
		return s.contractorUpsert(resp, req)
	default:
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
}

func (s *HTTPServer) contractorList() (interface{}, error) {
	iter, err := s.agent.server.State().Contractors()
	if err != nil {
		return nil, err
	}
	out := make([]*structs.Contractor, 0)
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.Contractor))
	}
	return out, nil
}

func (s *HTTPServer) contractorUpsert(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var c structs.Contractor
	if err := decodeBody(req, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = ids.NewULID()
	}
	c.Canonicalize()

	catalogue, err := s.agent.server.SkillCatalogue()
	if err != nil {
		return nil, err
	}
	if err := c.Validate(catalogue); err != nil {
		return nil, CodedError(http.StatusBadRequest, err.Error())
	}

	if err := s.agent.server.State().UpsertContractor(&c); err != nil {
		return nil, err
	}
	setIndex(resp, s.agent.server.State().LatestIndex())
	return &c, nil
}

// ContractorSpecificRequest serves reads and deletes of one contractor.
func (s *HTTPServer) ContractorSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, verb := pathSuffix(req.URL.Path, "/v1/contractor/")
	if id == "" || verb != "" {
		return nil, CodedError(http.StatusBadRequest, "missing contractor ID")
	}

	switch req.Method {
	case http.MethodGet:
		c, err := s.agent.server.State().ContractorByID(id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, structs.ErrContractorNotFound
		}
		return c, nil
	case http.MethodDelete:
		if err := s.agent.server.State().DeleteContractor(id); err != nil {
			return nil, err
		}
		setIndex(resp, s.agent.server.State().LatestIndex())
		return nil, nil
	default:
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
}
