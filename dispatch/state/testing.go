// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"testing"

	"github.com/hashicorp/dispatch/helper/testlog"
)

func TestStateStore(t testing.TB) *StateStore {
	config := &StateStoreConfig{
		Logger: testlog.HCLogger(t),
	}
	store, err := NewStateStore(config)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if store == nil {
		t.Fatalf("missing state")
	}
	return store
}
