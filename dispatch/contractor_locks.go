// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"sync"
	"time"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// contractorLocks serializes bookings per contractor. A lock is a one-slot
// channel; acquire waits up to the configured bound and then reports a
// conflict, so a stuck dispatcher cannot wedge another one indefinitely.
type contractorLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newContractorLocks() *contractorLocks {
	return &contractorLocks{
		locks: make(map[string]chan struct{}),
	}
}

func (c *contractorLocks) lockFor(id string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		c.locks[id] = l
	}
	return l
}

// acquire takes the contractor's lock, waiting at most wait. The returned
// error wraps ErrLockTimeout.
func (c *contractorLocks) acquire(id string, wait time.Duration) error {
	l := c.lockFor(id)
	select {
	case l <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case l <- struct{}{}:
		return nil
	case <-timer.C:
		return structs.ErrLockTimeout
	}
}

func (c *contractorLocks) release(id string) {
	select {
	case <-c.lockFor(id):
	default:
		// Releasing an unheld lock is a programming error; make it
		// harmless rather than blocking.
	}
}
