// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// UpsertJob writes a job to state.
func (s *StateStore) UpsertJob(j *structs.Job) error {
	txn := s.WriteTxn()
	defer txn.Abort()

	existingRaw, err := txn.First(TableJobs, indexID, j.ID)
	if err != nil {
		return fmt.Errorf("job lookup failed: %v", err)
	}

	j = j.Copy()
	if existingRaw != nil {
		existing := existingRaw.(*structs.Job)
		j.CreateIndex = existing.CreateIndex
		j.ModifyIndex = txn.Index
	} else {
		j.CreateIndex = txn.Index
		j.ModifyIndex = txn.Index
	}

	if err := txn.Insert(TableJobs, j); err != nil {
		return fmt.Errorf("job insert failed: %v", err)
	}
	if err := txn.insertIndex(TableJobs); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// JobByID returns the job, or nil when unknown.
func (s *StateStore) JobByID(id string) (*structs.Job, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	return s.jobByIDTxn(txn, id)
}

func (s *StateStore) jobByIDTxn(txn *memdb.Txn, id string) (*structs.Job, error) {
	existing, err := txn.First(TableJobs, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("job lookup failed: %v", err)
	}
	if existing == nil {
		return nil, nil
	}
	return existing.(*structs.Job), nil
}

// Jobs returns an iterator over every job.
func (s *StateStore) Jobs() (memdb.ResultIterator, error) {
	txn := s.db.Txn(false)

	iter, err := txn.Get(TableJobs, indexID)
	if err != nil {
		return nil, fmt.Errorf("job lookup failed: %v", err)
	}
	return iter, nil
}

// UpdateJobStatus transitions a job's lifecycle status.
func (s *StateStore) UpdateJobStatus(id string, status structs.JobStatus) error {
	txn := s.WriteTxn()
	defer txn.Abort()

	existing, err := txn.First(TableJobs, indexID, id)
	if err != nil {
		return fmt.Errorf("job lookup failed: %v", err)
	}
	if existing == nil {
		return structs.ErrJobNotFound
	}

	j := existing.(*structs.Job).Copy()
	j.Status = status
	j.ModifyIndex = txn.Index

	if err := txn.Insert(TableJobs, j); err != nil {
		return fmt.Errorf("job insert failed: %v", err)
	}
	if err := txn.insertIndex(TableJobs); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// JobAssignmentStatus derives the job's assignment status from its active
// assignments and their contractors' skills.
func (s *StateStore) JobAssignmentStatus(id string) (structs.JobAssignmentStatus, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	job, err := s.jobByIDTxn(txn, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", structs.ErrJobNotFound
	}

	iter, err := txn.Get(TableAssignments, indexJob, id)
	if err != nil {
		return "", fmt.Errorf("assignment lookup failed: %v", err)
	}

	var active []*structs.Assignment
	contractors := make(map[string]*structs.Contractor)
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		a := raw.(*structs.Assignment)
		if !a.Active() {
			continue
		}
		active = append(active, a)

		craw, err := txn.First(TableContractors, indexID, a.ContractorID)
		if err != nil {
			return "", fmt.Errorf("contractor lookup failed: %v", err)
		}
		if craw != nil {
			contractors[a.ContractorID] = craw.(*structs.Contractor)
		}
	}

	return structs.DeriveAssignmentStatus(job, active, contractors), nil
}
