// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package stream

import (
	"context"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

const (
	// DefaultTTL is how long an event stays in the buffer before prune may
	// drop it.
	DefaultTTL = 1 * time.Hour

	// DefaultEventBufferSize caps buffered events when the config does not
	// say otherwise.
	DefaultEventBufferSize = 100
)

// EventBrokerCfg configures a new broker.
type EventBrokerCfg struct {
	EventBufferSize int64
	Logger          hclog.Logger
}

// EventBroker fans published events out to any number of subscribers. It is
// the in-process transport behind the event sink: the durable log write
// happens in the state store before Publish, the broker only handles
// delivery. Delivery is best effort; a reader that falls too far behind is
// closed and must resubscribe.
type EventBroker struct {
	// mu protects subscriptions and pairs Subscribe with the buffer head.
	mu sync.Mutex

	// publishCh decouples publishers from buffer writes so Publish never
	// blocks the commit path.
	publishCh chan *structs.Events

	eventBuf *eventBuffer

	subscriptions map[*SubscribeRequest]*Subscription

	logger hclog.Logger
}

// NewEventBroker starts a broker whose publish loop runs until ctx ends, at
// which point every subscription is closed.
func NewEventBroker(ctx context.Context, cfg EventBrokerCfg) *EventBroker {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.EventBufferSize == 0 {
		cfg.EventBufferSize = DefaultEventBufferSize
	}

	e := &EventBroker{
		logger:        cfg.Logger.Named("event_broker"),
		eventBuf:      newEventBuffer(cfg.EventBufferSize, DefaultTTL),
		publishCh:     make(chan *structs.Events, 64),
		subscriptions: make(map[*SubscribeRequest]*Subscription),
	}

	go e.handleUpdates(ctx)

	return e
}

// Len returns the number of events currently buffered.
func (e *EventBroker) Len() int {
	return e.eventBuf.Len()
}

// Publish hands a batch to the broker. Empty batches are dropped.
func (e *EventBroker) Publish(events *structs.Events) {
	if len(events.Events) == 0 {
		return
	}
	metrics.IncrCounter([]string{"dispatch", "broker", "published"}, float32(len(events.Events)))
	e.publishCh <- events
}

// Subscribe returns a subscription positioned at the requested index, or at
// the closest buffered item when the index has already been pruned.
func (e *EventBroker) Subscribe(req *SubscribeRequest) (*Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var head *bufferItem
	var offset int
	if req.Index != 0 {
		head, offset = e.eventBuf.StartAtClosest(req.Index)
	} else {
		head = e.eventBuf.Head()
	}
	if offset > 0 {
		e.logger.Warn("requested index no longer in buffer", "requested", int(req.Index), "closest", int(head.Events.Index))
	}

	// A zero-length start item lets Next deliver the head batch itself
	// instead of skipping past it.
	start := newBufferItem(&structs.Events{Index: head.Events.Index})
	start.link.next.Store(head)
	close(start.link.nextCh)

	sub := newSubscription(req, start, e.unsubscribeFn(req))
	e.subscriptions[req] = sub
	return sub, nil
}

// CloseAll force-closes every subscription.
func (e *EventBroker) CloseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.subscriptions {
		sub.forceClose()
	}
	e.subscriptions = make(map[*SubscribeRequest]*Subscription)
}

func (e *EventBroker) handleUpdates(ctx context.Context) {
	ticker := time.NewTicker(DefaultTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.CloseAll()
			return
		case update := <-e.publishCh:
			e.eventBuf.Append(update)
		case <-ticker.C:
			e.eventBuf.prune()
		}
	}
}

// unsubscribeFn returns an idempotent function that removes the subscription
// from the broker.
func (e *EventBroker) unsubscribeFn(req *SubscribeRequest) func() {
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		sub, ok := e.subscriptions[req]
		if !ok {
			return
		}
		sub.forceClose()
		delete(e.subscriptions, req)
	}
}
