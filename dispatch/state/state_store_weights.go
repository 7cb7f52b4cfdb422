// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

const activeWeightsKey = "weights_active_version"

// UpsertWeightsConfig writes a scoring configuration version. A version that
// any audit already references is immutable and the write is rejected.
func (s *StateStore) UpsertWeightsConfig(w *structs.WeightsConfig) error {
	referenced, err := s.WeightsVersionReferenced(w.Version)
	if err != nil {
		return err
	}

	txn := s.WriteTxn()
	defer txn.Abort()

	existingRaw, err := txn.First(TableWeights, indexID, w.Version)
	if err != nil {
		return fmt.Errorf("weights lookup failed: %v", err)
	}
	if existingRaw != nil && referenced {
		return structs.ErrWeightsImmutable
	}

	w = w.Copy()
	if existingRaw != nil {
		existing := existingRaw.(*structs.WeightsConfig)
		w.CreateIndex = existing.CreateIndex
		w.ModifyIndex = txn.Index
	} else {
		w.CreateIndex = txn.Index
		w.ModifyIndex = txn.Index
	}

	if err := txn.Insert(TableWeights, w); err != nil {
		return fmt.Errorf("weights insert failed: %v", err)
	}
	if err := txn.insertIndex(TableWeights); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// SetActiveWeightsVersion points scoring at an existing config version.
func (s *StateStore) SetActiveWeightsVersion(version uint64) error {
	txn := s.WriteTxn()
	defer txn.Abort()

	existing, err := txn.First(TableWeights, indexID, version)
	if err != nil {
		return fmt.Errorf("weights lookup failed: %v", err)
	}
	if existing == nil {
		return fmt.Errorf("weights version %d does not exist", version)
	}

	if err := txn.Insert(tableIndex, &IndexEntry{activeWeightsKey, version}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}

	txn.Commit()
	return nil
}

// WeightsConfigByVersion returns a specific config version, or nil.
func (s *StateStore) WeightsConfigByVersion(version uint64) (*structs.WeightsConfig, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	existing, err := txn.First(TableWeights, indexID, version)
	if err != nil {
		return nil, fmt.Errorf("weights lookup failed: %v", err)
	}
	if existing == nil {
		return nil, nil
	}
	return existing.(*structs.WeightsConfig), nil
}

// ActiveWeightsConfig returns the pinned active configuration. When no pin is
// set the highest version wins; when the store is empty the documented
// defaults are seeded so a fresh engine can score.
func (s *StateStore) ActiveWeightsConfig() (*structs.WeightsConfig, error) {
	txn := s.db.Txn(false)

	pinned, err := txn.First(tableIndex, indexID, activeWeightsKey)
	if err != nil {
		txn.Abort()
		return nil, fmt.Errorf("weights lookup failed: %v", err)
	}
	if pinned != nil {
		version := pinned.(*IndexEntry).Value
		txn.Abort()
		w, err := s.WeightsConfigByVersion(version)
		if err != nil {
			return nil, err
		}
		if w != nil {
			return w, nil
		}
		// Dangling pin; fall through to highest version.
		txn = s.db.Txn(false)
	}

	iter, err := txn.Get(TableWeights, indexID)
	if err != nil {
		txn.Abort()
		return nil, fmt.Errorf("weights lookup failed: %v", err)
	}

	var highest *structs.WeightsConfig
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		w := raw.(*structs.WeightsConfig)
		if highest == nil || w.Version > highest.Version {
			highest = w
		}
	}
	txn.Abort()

	if highest != nil {
		return highest, nil
	}

	seed := structs.DefaultWeightsConfig()
	if err := s.UpsertWeightsConfig(seed); err != nil {
		return nil, err
	}
	return seed, nil
}
