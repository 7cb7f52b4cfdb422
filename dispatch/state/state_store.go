// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	memdb "github.com/hashicorp/go-memdb"
)

// IndexEntry tracks the latest write index per table, plus named pointers
// such as the active weights version.
type IndexEntry struct {
	Key   string
	Value uint64
}

// StateStoreConfig is used to configure a new state store
type StateStoreConfig struct {
	Logger hclog.Logger
}

// StateStore provides typed access to contractors, jobs, assignments, audit
// records, the event log, and scoring configuration. It is safe for
// concurrent access: reads run against immutable radix snapshots, writes are
// serialized by memdb's single-writer transaction.
type StateStore struct {
	logger hclog.Logger
	db     *memdb.MemDB

	// nextIndex is the write index handed to the next committed
	// transaction. Guarded by indexLock together with the commit itself so
	// index order matches commit order.
	nextIndex uint64
	indexLock sync.Mutex
}

// NewStateStore creates a state store with the schema registered by the table
// files.
func NewStateStore(config *StateStoreConfig) (*StateStore, error) {
	db, err := memdb.NewMemDB(stateStoreSchema())
	if err != nil {
		return nil, fmt.Errorf("state store setup failed: %v", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &StateStore{
		logger:    logger.Named("state"),
		db:        db,
		nextIndex: 1,
	}, nil
}

// txn wraps a memdb write transaction with the index it will commit under.
type txn struct {
	*memdb.Txn
	Index uint64

	s    *StateStore
	done bool
}

// WriteTxn starts a write transaction. The caller must either Commit or
// Abort; the usual shape is an immediate `defer txn.Abort()` with a final
// Commit. Only one write transaction runs at a time, which is the unit-of-work
// boundary the assignment transaction relies on.
func (s *StateStore) WriteTxn() *txn {
	s.indexLock.Lock()
	return &txn{
		Txn:   s.db.Txn(true),
		Index: s.nextIndex,
		s:     s,
	}
}

// Commit commits the wrapped transaction and advances the store index.
func (t *txn) Commit() {
	if t.done {
		return
	}
	t.done = true
	t.Txn.Commit()
	t.s.nextIndex++
	t.s.indexLock.Unlock()
}

// Abort releases the transaction without advancing the index. Calling Abort
// after Commit is a no-op so it is safe to defer.
func (t *txn) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.Txn.Abort()
	t.s.indexLock.Unlock()
}

// ReadTxn starts a read-only snapshot transaction.
func (s *StateStore) ReadTxn() *memdb.Txn {
	return s.db.Txn(false)
}

// Index returns the latest index written to the named table, zero when the
// table has never been written.
func (s *StateStore) Index(name string) (uint64, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	out, err := txn.First(tableIndex, indexID, name)
	if err != nil {
		return 0, err
	}
	if out == nil {
		return 0, nil
	}
	return out.(*IndexEntry).Value, nil
}

// LatestIndex returns the highest index committed so far.
func (s *StateStore) LatestIndex() uint64 {
	s.indexLock.Lock()
	defer s.indexLock.Unlock()
	return s.nextIndex - 1
}

func (t *txn) insertIndex(table string) error {
	if err := t.Insert(tableIndex, &IndexEntry{table, t.Index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return nil
}
