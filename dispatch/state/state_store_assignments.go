// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"time"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// CommitAssignment writes a new assignment, its event-log record, and the
// audit selection link in a single write transaction. The final non-overlap
// check runs inside the transaction so a booking that lost the race is
// rejected with Conflict even if the caller's re-validation went stale.
func (s *StateStore) CommitAssignment(a *structs.Assignment, logEntry *structs.EventLogEntry) error {
	txn := s.WriteTxn()
	defer txn.Abort()

	if err := s.checkAssignmentOverlapTxn(txn, a); err != nil {
		return err
	}
	if err := s.insertAssignmentTxn(txn, a); err != nil {
		return err
	}
	if a.AuditID != "" {
		if err := s.selectAuditCandidateTxn(txn, a.AuditID, a.ContractorID); err != nil {
			return err
		}
	}
	if logEntry != nil {
		if err := s.appendEventLogTxn(txn, logEntry); err != nil {
			return err
		}
	}
	if err := txn.insertIndex(TableAssignments); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// CancelAssignment marks an assignment cancelled and appends the event-log
// record in the same transaction.
func (s *StateStore) CancelAssignment(id string, logEntry *structs.EventLogEntry) (*structs.Assignment, error) {
	txn := s.WriteTxn()
	defer txn.Abort()

	existing, err := txn.First(TableAssignments, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("assignment lookup failed: %v", err)
	}
	if existing == nil {
		return nil, structs.ErrAssignmentNotFound
	}

	a := existing.(*structs.Assignment)
	if a.TerminalStatus() {
		return nil, structs.NewConflictError("assignment %s is already %s", a.ID, a.Status)
	}

	a = a.Copy()
	a.Status = structs.AssignmentCancelled
	a.ModifyIndex = txn.Index

	if err := txn.Insert(TableAssignments, a); err != nil {
		return nil, fmt.Errorf("assignment insert failed: %v", err)
	}
	if logEntry != nil {
		if err := s.appendEventLogTxn(txn, logEntry); err != nil {
			return nil, err
		}
	}
	if err := txn.insertIndex(TableAssignments); err != nil {
		return nil, err
	}

	txn.Commit()
	return a, nil
}

// RescheduleAssignment atomically replaces an assignment's interval: the old
// row is cancelled, the replacement inserted, and a single event-log record
// appended, all in one transaction.
func (s *StateStore) RescheduleAssignment(
	id string, replacement *structs.Assignment, logEntry *structs.EventLogEntry) (*structs.Assignment, error) {

	txn := s.WriteTxn()
	defer txn.Abort()

	existing, err := txn.First(TableAssignments, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("assignment lookup failed: %v", err)
	}
	if existing == nil {
		return nil, structs.ErrAssignmentNotFound
	}

	old := existing.(*structs.Assignment)
	if old.TerminalStatus() {
		return nil, structs.NewConflictError("assignment %s is already %s", old.ID, old.Status)
	}

	cancelled := old.Copy()
	cancelled.Status = structs.AssignmentCancelled
	cancelled.ModifyIndex = txn.Index
	if err := txn.Insert(TableAssignments, cancelled); err != nil {
		return nil, fmt.Errorf("assignment insert failed: %v", err)
	}

	if err := s.checkAssignmentOverlapTxn(txn, replacement); err != nil {
		return nil, err
	}
	if err := s.insertAssignmentTxn(txn, replacement); err != nil {
		return nil, err
	}
	if logEntry != nil {
		if err := s.appendEventLogTxn(txn, logEntry); err != nil {
			return nil, err
		}
	}
	if err := txn.insertIndex(TableAssignments); err != nil {
		return nil, err
	}

	txn.Commit()
	return replacement, nil
}

// UpdateAssignmentStatus transitions an assignment through the work flow.
func (s *StateStore) UpdateAssignmentStatus(id string, status structs.AssignmentStatus) (*structs.Assignment, error) {
	txn := s.WriteTxn()
	defer txn.Abort()

	existing, err := txn.First(TableAssignments, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("assignment lookup failed: %v", err)
	}
	if existing == nil {
		return nil, structs.ErrAssignmentNotFound
	}

	a := existing.(*structs.Assignment)
	if a.TerminalStatus() {
		return nil, structs.NewConflictError("assignment %s is already %s", a.ID, a.Status)
	}

	a = a.Copy()
	a.Status = status
	a.ModifyIndex = txn.Index

	if err := txn.Insert(TableAssignments, a); err != nil {
		return nil, fmt.Errorf("assignment insert failed: %v", err)
	}
	if err := txn.insertIndex(TableAssignments); err != nil {
		return nil, err
	}

	txn.Commit()
	return a, nil
}

func (s *StateStore) insertAssignmentTxn(txn *txn, a *structs.Assignment) error {
	a.CreateIndex = txn.Index
	a.ModifyIndex = txn.Index
	if err := txn.Insert(TableAssignments, a); err != nil {
		return fmt.Errorf("assignment insert failed: %v", err)
	}
	return nil
}

// checkAssignmentOverlapTxn enforces the bare non-overlap invariant inside
// the write path. Travel buffers are the availability engine's concern; this
// is the last line against exact double-booking.
func (s *StateStore) checkAssignmentOverlapTxn(txn *txn, a *structs.Assignment) error {
	iter, err := txn.Get(TableAssignments, indexContractor, a.ContractorID)
	if err != nil {
		return fmt.Errorf("assignment lookup failed: %v", err)
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		other := raw.(*structs.Assignment)
		if other.ID == a.ID || other.Status == structs.AssignmentCancelled {
			continue
		}
		if other.Interval().Overlaps(a.Interval()) {
			return structs.NewConflictError("interval already assigned: contractor %s has assignment %s–%s that conflicts with %s–%s interval",
				a.ContractorID,
				other.StartUTC.Format("15:04"), other.EndUTC.Format("15:04"),
				a.StartUTC.Format("15:04"), a.EndUTC.Format("15:04"))
		}
	}
	return nil
}

// AssignmentByID returns the assignment, or nil when unknown.
func (s *StateStore) AssignmentByID(id string) (*structs.Assignment, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	existing, err := txn.First(TableAssignments, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("assignment lookup failed: %v", err)
	}
	if existing == nil {
		return nil, nil
	}
	return existing.(*structs.Assignment), nil
}

// AssignmentsByJob returns all assignments on a job, any status.
func (s *StateStore) AssignmentsByJob(jobID string) ([]*structs.Assignment, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	return collectAssignments(txn, indexJob, jobID, func(*structs.Assignment) bool { return true })
}

// AssignmentsByContractor returns all assignments on a contractor, any
// status.
func (s *StateStore) AssignmentsByContractor(contractorID string) ([]*structs.Assignment, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	return collectAssignments(txn, indexContractor, contractorID, func(*structs.Assignment) bool { return true })
}

// AssignmentsByContractorInWindow returns the contractor's non-cancelled
// assignments overlapping the window. This is the occupied set the
// availability engine subtracts.
func (s *StateStore) AssignmentsByContractorInWindow(contractorID string, window structs.Interval) ([]*structs.Assignment, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	return collectAssignments(txn, indexContractor, contractorID, func(a *structs.Assignment) bool {
		return a.Status != structs.AssignmentCancelled && a.Interval().Overlaps(window)
	})
}

// RotationCount counts the contractor's non-cancelled assignments starting at
// or after since. Pending assignments count so concurrent recommendations do
// not all steer at the same contractor.
func (s *StateStore) RotationCount(contractorID string, since time.Time) (int, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	list, err := collectAssignments(txn, indexContractor, contractorID, func(a *structs.Assignment) bool {
		return a.Status != structs.AssignmentCancelled && !a.StartUTC.Before(since)
	})
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func collectAssignments(txn *memdb.Txn, index, value string, keep func(*structs.Assignment) bool) ([]*structs.Assignment, error) {
	iter, err := txn.Get(TableAssignments, index, value)
	if err != nil {
		return nil, fmt.Errorf("assignment lookup failed: %v", err)
	}

	var out []*structs.Assignment
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		a := raw.(*structs.Assignment)
		if keep(a) {
			out = append(out, a)
		}
	}
	return out, nil
}
