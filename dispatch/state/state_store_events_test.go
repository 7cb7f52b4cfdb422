// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"testing"

	"github.com/shoenig/test/must"

	"github.com/hashicorp/dispatch/ci"
	"github.com/hashicorp/dispatch/dispatch/mock"
)

func TestStateStore_AppendEventLog(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)

	entry := mock.EventLogEntry()
	appended, err := store.AppendEventLog(entry)
	must.NoError(t, err)
	must.True(t, appended)

	out, err := store.EventLogEntryByID(entry.ID)
	must.NoError(t, err)
	must.NotNil(t, out)
	must.Eq(t, entry.Type, out.Type)
	must.Eq(t, uint64(1), out.Index)

	// Re-appending the same event id is a no-op.
	appended, err = store.AppendEventLog(entry)
	must.NoError(t, err)
	must.False(t, appended)
	must.Eq(t, uint64(1), store.LatestIndex())
}

func TestStateStore_EventLog_order(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		entry := mock.EventLogEntry()
		appended, err := store.AppendEventLog(entry)
		must.NoError(t, err)
		must.True(t, appended)
		ids = append(ids, entry.ID)
	}

	out, err := store.EventLog(0)
	must.NoError(t, err)
	must.Len(t, 3, out)
	for i, entry := range out {
		must.Eq(t, ids[i], entry.ID)
		must.Eq(t, uint64(i+1), entry.Index)
	}

	// afterIndex is exclusive.
	out, err = store.EventLog(2)
	must.NoError(t, err)
	must.Len(t, 1, out)
	must.Eq(t, ids[2], out[0].ID)
}
