// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// UpsertContractor writes a contractor to state. The caller is expected to
// have validated the contractor against the skill catalogue.
func (s *StateStore) UpsertContractor(c *structs.Contractor) error {
	txn := s.WriteTxn()
	defer txn.Abort()

	if err := s.upsertContractorTxn(txn, c); err != nil {
		return err
	}
	if err := txn.insertIndex(TableContractors); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

func (s *StateStore) upsertContractorTxn(txn *txn, c *structs.Contractor) error {
	existingRaw, err := txn.First(TableContractors, indexID, c.ID)
	if err != nil {
		return fmt.Errorf("contractor lookup failed: %v", err)
	}

	c = c.Copy()
	if existingRaw != nil {
		existing := existingRaw.(*structs.Contractor)
		c.CreateIndex = existing.CreateIndex
		c.ModifyIndex = txn.Index
	} else {
		c.CreateIndex = txn.Index
		c.ModifyIndex = txn.Index
	}

	if err := txn.Insert(TableContractors, c); err != nil {
		return fmt.Errorf("contractor insert failed: %v", err)
	}
	return nil
}

// DeleteContractor removes a contractor from state.
func (s *StateStore) DeleteContractor(id string) error {
	txn := s.WriteTxn()
	defer txn.Abort()

	existing, err := txn.First(TableContractors, indexID, id)
	if err != nil {
		return fmt.Errorf("contractor lookup failed: %v", err)
	}
	if existing == nil {
		return structs.ErrContractorNotFound
	}
	if err := txn.Delete(TableContractors, existing); err != nil {
		return fmt.Errorf("contractor delete failed: %v", err)
	}
	if err := txn.insertIndex(TableContractors); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// ContractorByID returns the contractor, or nil when unknown.
func (s *StateStore) ContractorByID(id string) (*structs.Contractor, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	existing, err := txn.First(TableContractors, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("contractor lookup failed: %v", err)
	}
	if existing == nil {
		return nil, nil
	}
	return existing.(*structs.Contractor), nil
}

// Contractors returns an iterator over every contractor.
func (s *StateStore) Contractors() (memdb.ResultIterator, error) {
	txn := s.db.Txn(false)

	iter, err := txn.Get(TableContractors, indexID)
	if err != nil {
		return nil, fmt.Errorf("contractor lookup failed: %v", err)
	}
	return iter, nil
}

// ContractorsBySkills returns every contractor whose skill set covers the
// required tags, in stable id order.
func (s *StateStore) ContractorsBySkills(required []string) ([]*structs.Contractor, error) {
	iter, err := s.Contractors()
	if err != nil {
		return nil, err
	}

	var out []*structs.Contractor
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		c := raw.(*structs.Contractor)
		if c.HasSkills(required) {
			out = append(out, c)
		}
	}
	return out, nil
}
