// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"testing"

	"github.com/shoenig/test/must"

	"github.com/hashicorp/dispatch/ci"
	"github.com/hashicorp/dispatch/dispatch/mock"
	"github.com/hashicorp/dispatch/dispatch/structs"
)

func TestStateStore_ActiveWeightsConfig_seedsDefaults(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)

	out, err := store.ActiveWeightsConfig()
	must.NoError(t, err)
	must.NotNil(t, out)
	must.Eq(t, uint64(1), out.Version)
	must.Eq(t, 0.3, out.Availability)
	must.Eq(t, 0.1, out.Rotation)

	// The seed is durable, not recomputed per call.
	stored, err := store.WeightsConfigByVersion(1)
	must.NoError(t, err)
	must.NotNil(t, stored)
}

func TestStateStore_ActiveWeightsConfig_highestVersionWins(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)

	must.NoError(t, store.UpsertWeightsConfig(structs.DefaultWeightsConfig()))

	v2 := mock.WeightsConfig()
	v2.Rating = 0.5
	must.NoError(t, store.UpsertWeightsConfig(v2))

	out, err := store.ActiveWeightsConfig()
	must.NoError(t, err)
	must.Eq(t, uint64(2), out.Version)
	must.Eq(t, 0.5, out.Rating)
}

func TestStateStore_SetActiveWeightsVersion(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)

	must.NoError(t, store.UpsertWeightsConfig(structs.DefaultWeightsConfig()))
	must.NoError(t, store.UpsertWeightsConfig(mock.WeightsConfig()))

	// Pin back to version 1 despite version 2 being newer.
	must.NoError(t, store.SetActiveWeightsVersion(1))

	out, err := store.ActiveWeightsConfig()
	must.NoError(t, err)
	must.Eq(t, uint64(1), out.Version)

	err = store.SetActiveWeightsVersion(9)
	must.Error(t, err)
	must.StrContains(t, err.Error(), "does not exist")
}

func TestStateStore_UpsertWeightsConfig_immutableOnceReferenced(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)

	w := structs.DefaultWeightsConfig()
	must.NoError(t, store.UpsertWeightsConfig(w))

	// Unreferenced versions may still be corrected in place.
	w.Rating = 0.4
	must.NoError(t, store.UpsertWeightsConfig(w))

	audit := mock.Audit()
	audit.ConfigVersion = w.Version
	must.NoError(t, store.AppendAudit(audit))

	w.Rating = 0.6
	err := store.UpsertWeightsConfig(w)
	must.ErrorIs(t, err, structs.ErrWeightsImmutable)

	// The referenced version is unchanged.
	out, err := store.WeightsConfigByVersion(w.Version)
	must.NoError(t, err)
	must.Eq(t, 0.4, out.Rating)
}
