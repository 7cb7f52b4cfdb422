// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package stream

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

const (
	// subscriptionStateOpen is the default state of a subscription. An open
	// subscription may receive new events.
	subscriptionStateOpen uint32 = 0

	// subscriptionStateClosed indicates that the subscription was closed by
	// the broker and will not receive new events. The subscriber must issue
	// a new Subscribe request.
	subscriptionStateClosed uint32 = 1
)

// ErrSubscriptionClosed is returned when the broker closed the subscription
// out from under the reader. The client should Unsubscribe, then
// re-Subscribe.
var ErrSubscriptionClosed = errors.New("subscription closed by server, client should resubscribe")

type Subscription struct {
	// state must be accessed atomically, 0 means open, 1 means closed
	state uint32

	req *SubscribeRequest

	// currentItem stores the current buffer item we are on. It
	// is mutated by calls to Next.
	currentItem *bufferItem

	// forceClosed is closed when forceClose is called. It is used by
	// EventBroker to cancel Next().
	forceClosed chan struct{}

	// unsub is called to free broker resources when the subscription is no
	// longer needed. Idempotent and safe from any goroutine.
	unsub func()
}

// SubscribeRequest filters the event stream down to what one consumer wants.
type SubscribeRequest struct {
	// Index is the state store index to start from. Zero means "from now".
	Index uint64

	// Topics maps a topic to the event keys wanted from it. The wildcard
	// key "*" accepts every key on the topic.
	Topics map[structs.Topic][]string

	// Channels restricts delivery to events tagged with at least one of
	// the named channels, such as dispatch/{region} or contractor/{id}.
	// Empty means no channel restriction.
	Channels []string
}

func newSubscription(req *SubscribeRequest, item *bufferItem, unsub func()) *Subscription {
	return &Subscription{
		forceClosed: make(chan struct{}),
		req:         req,
		currentItem: item,
		unsub:       unsub,
	}
}

// Next blocks until a batch with at least one matching event is published,
// then returns the matching subset.
func (s *Subscription) Next(ctx context.Context) (structs.Events, error) {
	if atomic.LoadUint32(&s.state) == subscriptionStateClosed {
		return structs.Events{}, ErrSubscriptionClosed
	}

	for {
		next, err := s.currentItem.Next(ctx, s.forceClosed)
		switch {
		case err != nil && atomic.LoadUint32(&s.state) == subscriptionStateClosed:
			return structs.Events{}, ErrSubscriptionClosed
		case err != nil:
			return structs.Events{}, err
		}
		s.currentItem = next

		events := filter(s.req, next.Events.Events)
		if len(events) == 0 {
			continue
		}
		return structs.Events{Index: next.Events.Index, Events: events}, nil
	}
}

// NextNoBlock returns matching events already in the buffer, nil when caught
// up.
func (s *Subscription) NextNoBlock() ([]structs.Event, error) {
	if atomic.LoadUint32(&s.state) == subscriptionStateClosed {
		return nil, ErrSubscriptionClosed
	}

	for {
		next := s.currentItem.NextNoBlock()
		if next == nil {
			return nil, nil
		}
		s.currentItem = next

		events := filter(s.req, next.Events.Events)
		if len(events) == 0 {
			continue
		}
		return events, nil
	}
}

func (s *Subscription) Unsubscribe() {
	s.unsub()
}

func (s *Subscription) forceClose() {
	if atomic.CompareAndSwapUint32(&s.state, subscriptionStateOpen, subscriptionStateClosed) {
		close(s.forceClosed)
	}
}

// filter events down to those matching the subscription's topics, keys, and
// channels.
func filter(req *SubscribeRequest, events []structs.Event) []structs.Event {
	if len(events) == 0 {
		return nil
	}

	allTopicKeys := req.Topics[structs.TopicAll]
	wildcard := len(allTopicKeys) == 1 && allTopicKeys[0] == string(structs.TopicAll)

	var result []structs.Event
	for _, event := range events {
		if !eventMatchesChannels(event, req.Channels) {
			continue
		}

		if wildcard {
			result = append(result, event)
			continue
		}

		// Never append onto allTopicKeys: its backing array belongs to
		// the caller's request and is shared across iterations.
		keys := allTopicKeys
		if topicKeys, ok := req.Topics[event.Topic]; ok {
			merged := make([]string, 0, len(allTopicKeys)+len(topicKeys))
			merged = append(merged, allTopicKeys...)
			merged = append(merged, topicKeys...)
			keys = merged
		}

		for _, key := range keys {
			if key == string(structs.TopicAll) || eventMatchesKey(event, key) {
				result = append(result, event)
				break
			}
		}
	}

	return result
}

func eventMatchesKey(event structs.Event, key string) bool {
	if event.Key == key {
		return true
	}
	for _, fk := range event.FilterKeys {
		if fk == key {
			return true
		}
	}
	return false
}

func eventMatchesChannels(event structs.Event, channels []string) bool {
	if len(channels) == 0 {
		return true
	}
	for _, want := range channels {
		for _, have := range event.Channels {
			if want == have {
				return true
			}
		}
	}
	return false
}
