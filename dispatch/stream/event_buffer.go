// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// eventBuffer is a single-writer, multiple-reader append-only linked buffer
// of event batches. The writer appends under the state store's commit order;
// readers chase the chain at their own pace without locks. Items older than
// maxItemTTL or beyond maxSize are dropped from the head, and a reader that
// fell behind a drop gets an error from Next and must resubscribe.
type eventBuffer struct {
	size *int64

	head atomic.Value
	tail atomic.Value

	maxSize    int64
	maxItemTTL time.Duration
}

// newEventBuffer creates an eventBuffer holding up to size events for at most
// maxItemTTL.
func newEventBuffer(size int64, maxItemTTL time.Duration) *eventBuffer {
	zero := int64(0)
	b := &eventBuffer{
		maxSize:    size,
		size:       &zero,
		maxItemTTL: maxItemTTL,
	}

	item := newBufferItem(&structs.Events{})

	b.head.Store(item)
	b.tail.Store(item)

	return b
}

// Append a batch of events to the buffer. Must only be called from a single
// goroutine; the publish loop in EventBroker is that goroutine.
func (b *eventBuffer) Append(events *structs.Events) {
	b.appendItem(newBufferItem(events))
}

func (b *eventBuffer) appendItem(item *bufferItem) {
	oldTail := b.Tail()
	oldTail.link.next.Store(item)
	b.tail.Store(item)

	atomic.AddInt64(b.size, int64(len(item.Events.Events)))

	for atomic.LoadInt64(b.size) > b.maxSize {
		b.advanceHead()
	}

	// Wake blocked readers only after the item is reachable.
	close(oldTail.link.nextCh)
}

// newSentinelItem is an empty item the head advances onto when the buffer
// drains completely. It keeps the last published index visible so late
// subscribers still land at the right spot, and gives readers something to
// block on.
func newSentinelItem(index uint64) *bufferItem {
	return newBufferItem(&structs.Events{Index: index})
}

// advanceHead drops the oldest item. Readers still holding it observe the
// closed droppedCh on their next read and error out.
func (b *eventBuffer) advanceHead() {
	old := b.Head()

	next := old.link.next.Load()
	if next == nil {
		next = newSentinelItem(old.Events.Index)
		old.link.next.Store(next)
		close(old.link.nextCh)
	}

	close(old.link.droppedCh)
	b.head.Store(next)

	if old == b.Tail() {
		b.tail.Store(next)
	}

	atomic.AddInt64(b.size, -int64(len(old.Events.Events)))
}

// Head returns the oldest item still in the buffer.
func (b *eventBuffer) Head() *bufferItem {
	return b.head.Load().(*bufferItem)
}

// Tail returns the most recently appended item.
func (b *eventBuffer) Tail() *bufferItem {
	return b.tail.Load().(*bufferItem)
}

// StartAtClosest returns the item closest to the requested index plus the
// distance between the requested index and the returned one. Offset zero
// means an exact match.
func (b *eventBuffer) StartAtClosest(index uint64) (*bufferItem, int) {
	item := b.Head()
	if index < item.Events.Index {
		return item, int(item.Events.Index) - int(index)
	}
	if item.Events.Index == index {
		return item, 0
	}

	for {
		prev := item
		item = item.NextNoBlock()
		if item == nil {
			return prev, int(index) - int(prev.Events.Index)
		}
		if index < item.Events.Index {
			return item, int(item.Events.Index) - int(index)
		}
		if index == item.Events.Index {
			return item, 0
		}
	}
}

// Len returns the number of events currently held.
func (b *eventBuffer) Len() int {
	return int(atomic.LoadInt64(b.size))
}

// prune drops items that have outlived maxItemTTL. The published index of the
// last dropped item remains visible on the sentinel head.
func (b *eventBuffer) prune() {
	now := time.Now()
	for {
		if b.Len() == 0 {
			return
		}
		if now.Sub(b.Head().createdAt) <= b.maxItemTTL {
			return
		}
		b.advanceHead()
	}
}

// bufferItem is one link of the buffer chain, holding the batch published
// under a single state store index.
type bufferItem struct {
	Events *structs.Events

	link *bufferLink

	createdAt time.Time
}

type bufferLink struct {
	// next is written once by the buffer's single writer; nextCh is closed
	// at the same point so blocked readers wake.
	next   atomic.Value
	nextCh chan struct{}

	// droppedCh is closed when the item is evicted.
	droppedCh chan struct{}
}

func newBufferItem(events *structs.Events) *bufferItem {
	return &bufferItem{
		Events: events,
		link: &bufferLink{
			nextCh:    make(chan struct{}),
			droppedCh: make(chan struct{}),
		},
		createdAt: time.Now(),
	}
}

// Next blocks until the following item is published, the context ends, or
// forceClose is closed. A dropped item returns an error; the subscriber is
// too far behind and must resubscribe.
func (i *bufferItem) Next(ctx context.Context, forceClose <-chan struct{}) (*bufferItem, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-forceClose:
		return nil, fmt.Errorf("subscription closed")
	case <-i.link.nextCh:
	}

	select {
	case <-i.link.droppedCh:
		return nil, fmt.Errorf("event dropped from buffer")
	default:
	}

	nextRaw := i.link.next.Load()
	if nextRaw == nil {
		return nil, errors.New("invalid next item")
	}
	return nextRaw.(*bufferItem), nil
}

// NextNoBlock returns the following item, or nil at the tail.
func (i *bufferItem) NextNoBlock() *bufferItem {
	nextRaw := i.link.next.Load()
	if nextRaw == nil {
		return nil
	}
	return nextRaw.(*bufferItem)
}
