// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/helper"
)

// SinkWriter is the pluggable half of the event sink: anything that can
// forward a batch of events off-process. The in-process broker is the only
// transport the engine requires; sinks are additive.
type SinkWriter interface {
	Send(ctx context.Context, e *structs.Events) error
}

// WriterSink forwards events as newline delimited JSON to an io.Writer, one
// object per event. Used for the agent's event dump file.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Send(_ context.Context, e *structs.Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for _, event := range e.Events {
		if err := enc.Encode(event); err != nil {
			return err
		}
	}
	return nil
}

// ManagedSink pumps a broker subscription into a SinkWriter, retrying sends
// with backoff. Falling off the buffer resubscribes from the current head,
// so a slow sink loses events rather than stalling the broker.
type ManagedSink struct {
	broker *EventBroker
	writer SinkWriter
	logger hclog.Logger
}

func NewManagedSink(broker *EventBroker, writer SinkWriter, logger hclog.Logger) *ManagedSink {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ManagedSink{
		broker: broker,
		writer: writer,
		logger: logger.Named("managed_sink"),
	}
}

// Run blocks until ctx ends, forwarding every published event.
func (m *ManagedSink) Run(ctx context.Context) {
	for {
		sub, err := m.broker.Subscribe(&SubscribeRequest{
			Topics: map[structs.Topic][]string{
				structs.TopicAll: {string(structs.TopicAll)},
			},
		})
		if err != nil {
			m.logger.Error("sink subscription failed", "error", err)
			return
		}

		err = m.pump(ctx, sub)
		sub.Unsubscribe()

		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrSubscriptionClosed):
			m.logger.Warn("sink fell behind, resubscribing from head")
		default:
			m.logger.Warn("sink stream interrupted, resubscribing", "error", err)
		}
	}
}

func (m *ManagedSink) pump(ctx context.Context, sub *Subscription) error {
	for {
		events, err := sub.Next(ctx)
		if err != nil {
			return err
		}

		for attempt := uint64(0); ; attempt++ {
			err := m.writer.Send(ctx, &events)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := helper.Backoff(250*time.Millisecond, 5*time.Second, attempt)
			m.logger.Warn("sink send failed, retrying", "error", err, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
