// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"time"
)

// AuditRecommendation is the append-only snapshot of one recommendation run:
// the request, every candidate considered (including dropped ones), and the
// config version the scores were computed under. Audits are retained at least
// twelve months and never mutated after write.
type AuditRecommendation struct {
	ID    string
	JobID string

	// Request is the payload snapshot the run was invoked with.
	Request *RecommendRequest

	// Candidates holds every contractor considered. Dropped candidates
	// carry a DropReason and no slots.
	Candidates []*RankedContractor

	// SelectedContractorID is filled in by the assignment transaction when
	// a booking against this audit commits, empty until then.
	SelectedContractorID string

	// Actor is "system" or the dispatcher's user id.
	Actor string

	// Priority records the job priority at run time. Rush never changes
	// scoring but is kept for dispute resolution.
	Priority Priority

	ConfigVersion uint64
	Degraded      bool
	CreatedAt     time.Time

	CreateIndex uint64
	ModifyIndex uint64
}

func (a *AuditRecommendation) Copy() *AuditRecommendation {
	if a == nil {
		return nil
	}
	na := *a
	na.Request = a.Request.Copy()
	na.Candidates = make([]*RankedContractor, len(a.Candidates))
	for i, c := range a.Candidates {
		na.Candidates[i] = c.Copy()
	}
	return &na
}
