// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// UpsertSkills adds tags to the skill catalogue. Tags are normalized before
// insert; existing tags keep their create index.
func (s *StateStore) UpsertSkills(tags []string) error {
	txn := s.WriteTxn()
	defer txn.Abort()

	for _, tag := range tags {
		name := structs.NormalizeSkill(tag)
		if name == "" {
			continue
		}

		existingRaw, err := txn.First(TableSkills, indexID, name)
		if err != nil {
			return fmt.Errorf("skill lookup failed: %v", err)
		}
		if existingRaw != nil {
			continue
		}

		entry := &structs.SkillTag{
			Name:        name,
			CreateIndex: txn.Index,
			ModifyIndex: txn.Index,
		}
		if err := txn.Insert(TableSkills, entry); err != nil {
			return fmt.Errorf("skill insert failed: %v", err)
		}
	}

	if err := txn.insertIndex(TableSkills); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// DeleteSkill removes a tag from the catalogue. Contractors and jobs already
// carrying the tag are unaffected; only future validation sees the removal.
func (s *StateStore) DeleteSkill(tag string) error {
	txn := s.WriteTxn()
	defer txn.Abort()

	name := structs.NormalizeSkill(tag)
	existingRaw, err := txn.First(TableSkills, indexID, name)
	if err != nil {
		return fmt.Errorf("skill lookup failed: %v", err)
	}
	if existingRaw == nil {
		return fmt.Errorf("%w: %q", structs.ErrUnknownSkill, name)
	}
	if err := txn.Delete(TableSkills, existingRaw); err != nil {
		return fmt.Errorf("skill delete failed: %v", err)
	}

	if err := txn.insertIndex(TableSkills); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// SkillCatalogue returns the full catalogue as a set for validation.
func (s *StateStore) SkillCatalogue() (*set.Set[string], error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(TableSkills, indexID)
	if err != nil {
		return nil, fmt.Errorf("skill lookup failed: %v", err)
	}

	out := set.New[string](8)
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out.Insert(raw.(*structs.SkillTag).Name)
	}
	return out, nil
}
