// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// AppendEventLog durably records a published event before any subscriber is
// invoked. Re-appending an id that is already logged is a no-op: consumers
// are idempotent keyed by event id and so is the log.
func (s *StateStore) AppendEventLog(entry *structs.EventLogEntry) (bool, error) {
	txn := s.WriteTxn()
	defer txn.Abort()

	existing, err := txn.First(TableEventLog, indexID, entry.ID)
	if err != nil {
		return false, fmt.Errorf("event log lookup failed: %v", err)
	}
	if existing != nil {
		return false, nil
	}

	if err := s.appendEventLogTxn(txn, entry); err != nil {
		return false, err
	}
	if err := txn.insertIndex(TableEventLog); err != nil {
		return false, err
	}

	txn.Commit()
	return true, nil
}

func (s *StateStore) appendEventLogTxn(txn *txn, entry *structs.EventLogEntry) error {
	existing, err := txn.First(TableEventLog, indexID, entry.ID)
	if err != nil {
		return fmt.Errorf("event log lookup failed: %v", err)
	}
	if existing != nil {
		return nil
	}

	entry = entry.Copy()
	entry.Index = txn.Index
	if err := txn.Insert(TableEventLog, entry); err != nil {
		return fmt.Errorf("event log insert failed: %v", err)
	}
	return nil
}

// EventLogEntryByID returns a logged event, or nil.
func (s *StateStore) EventLogEntryByID(id string) (*structs.EventLogEntry, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	existing, err := txn.First(TableEventLog, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("event log lookup failed: %v", err)
	}
	if existing == nil {
		return nil, nil
	}
	return existing.(*structs.EventLogEntry), nil
}

// EventLog returns logged events with Index > afterIndex in publish order.
func (s *StateStore) EventLog(afterIndex uint64) ([]*structs.EventLogEntry, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.LowerBound(TableEventLog, indexPublish, afterIndex+1)
	if err != nil {
		return nil, fmt.Errorf("event log lookup failed: %v", err)
	}

	var out []*structs.EventLogEntry
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.EventLogEntry))
	}
	return out, nil
}
