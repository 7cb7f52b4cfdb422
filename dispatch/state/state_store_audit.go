// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// AppendAudit writes a recommendation audit record. Audits are append-only:
// writing an id that already exists is an error, and nothing but the
// SelectedContractorID link ever changes after the fact.
func (s *StateStore) AppendAudit(audit *structs.AuditRecommendation) error {
	txn := s.WriteTxn()
	defer txn.Abort()

	existing, err := txn.First(TableAudits, indexID, audit.ID)
	if err != nil {
		return fmt.Errorf("audit lookup failed: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("audit %s already written", audit.ID)
	}

	audit = audit.Copy()
	audit.CreateIndex = txn.Index
	audit.ModifyIndex = txn.Index

	if err := txn.Insert(TableAudits, audit); err != nil {
		return fmt.Errorf("audit insert failed: %v", err)
	}
	if err := txn.insertIndex(TableAudits); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// selectAuditCandidateTxn records which contractor a committed booking chose.
// Part of the assignment unit-of-work.
func (s *StateStore) selectAuditCandidateTxn(txn *txn, auditID, contractorID string) error {
	existing, err := txn.First(TableAudits, indexID, auditID)
	if err != nil {
		return fmt.Errorf("audit lookup failed: %v", err)
	}
	if existing == nil {
		// Manual bookings may reference a pruned audit; the link is
		// best-effort.
		return nil
	}

	audit := existing.(*structs.AuditRecommendation).Copy()
	audit.SelectedContractorID = contractorID
	audit.ModifyIndex = txn.Index

	if err := txn.Insert(TableAudits, audit); err != nil {
		return fmt.Errorf("audit insert failed: %v", err)
	}
	return nil
}

// AuditByID returns the audit record, or nil when unknown.
func (s *StateStore) AuditByID(id string) (*structs.AuditRecommendation, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	existing, err := txn.First(TableAudits, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("audit lookup failed: %v", err)
	}
	if existing == nil {
		return nil, nil
	}
	return existing.(*structs.AuditRecommendation), nil
}

// LatestAuditByJob returns the most recent audit for a job, or nil when the
// job was never run through a recommendation.
func (s *StateStore) LatestAuditByJob(jobID string) (*structs.AuditRecommendation, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(TableAudits, indexJob, jobID)
	if err != nil {
		return nil, fmt.Errorf("audit lookup failed: %v", err)
	}

	var latest *structs.AuditRecommendation
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		audit := raw.(*structs.AuditRecommendation)
		if latest == nil || audit.CreateIndex > latest.CreateIndex {
			latest = audit
		}
	}
	return latest, nil
}

// WeightsVersionReferenced reports whether any audit pins the given config
// version, which freezes it forever.
func (s *StateStore) WeightsVersionReferenced(version uint64) (bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	existing, err := txn.First(TableAudits, indexConfigVersion, version)
	if err != nil {
		return false, fmt.Errorf("audit lookup failed: %v", err)
	}
	return existing != nil, nil
}
