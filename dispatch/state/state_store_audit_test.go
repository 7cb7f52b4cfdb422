// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"testing"

	"github.com/shoenig/test/must"

	"github.com/hashicorp/dispatch/ci"
	"github.com/hashicorp/dispatch/dispatch/mock"
)

func TestStateStore_AppendAudit(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)

	audit := mock.Audit()
	must.NoError(t, store.AppendAudit(audit))

	out, err := store.AuditByID(audit.ID)
	must.NoError(t, err)
	must.NotNil(t, out)
	must.Eq(t, audit.JobID, out.JobID)
	must.Eq(t, audit.ConfigVersion, out.ConfigVersion)
	must.Len(t, 1, out.Candidates)

	// Audits are append only.
	err = store.AppendAudit(audit)
	must.Error(t, err)
	must.StrContains(t, err.Error(), "already written")
}

func TestStateStore_LatestAuditByJob(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)

	first := mock.Audit()
	must.NoError(t, store.AppendAudit(first))

	second := mock.Audit()
	second.JobID = first.JobID
	must.NoError(t, store.AppendAudit(second))

	out, err := store.LatestAuditByJob(first.JobID)
	must.NoError(t, err)
	must.NotNil(t, out)
	must.Eq(t, second.ID, out.ID)

	out, err = store.LatestAuditByJob("nope")
	must.NoError(t, err)
	must.Nil(t, out)
}

func TestStateStore_WeightsVersionReferenced(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)

	referenced, err := store.WeightsVersionReferenced(1)
	must.NoError(t, err)
	must.False(t, referenced)

	audit := mock.Audit()
	audit.ConfigVersion = 1
	must.NoError(t, store.AppendAudit(audit))

	referenced, err = store.WeightsVersionReferenced(1)
	must.NoError(t, err)
	must.True(t, referenced)

	referenced, err = store.WeightsVersionReferenced(2)
	must.NoError(t, err)
	must.False(t, referenced)
}
