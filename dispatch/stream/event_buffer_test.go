// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package stream

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/dispatch/ci"
	"github.com/hashicorp/dispatch/dispatch/structs"
)

func TestEventBufferFuzz(t *testing.T) {
	ci.Parallel(t)

	nReaders := 100
	nMessages := 500

	b := newEventBuffer(int64(nMessages), DefaultTTL)

	// Single writer publishing sequential indexes with some jitter so
	// readers alternately catch up and block.
	go func() {
		seed := time.Now().UnixNano()
		t.Logf("Using seed %d", seed)
		z := rand.NewZipf(rand.New(rand.NewSource(seed)), 1.5, 1.5, 30)

		for i := 0; i < nMessages; i++ {
			b.Append(&structs.Events{
				Index:  uint64(i),
				Events: []structs.Event{{Index: uint64(i)}},
			})
			wait := time.Duration(z.Uint64()) * time.Millisecond
			time.Sleep(wait)
		}
	}()

	errCh := make(chan error, nReaders)

	// Load head before spawning so every reader starts at the same point.
	head := b.Head()

	for i := 0; i < nReaders; i++ {
		go func(i int) {
			expect := uint64(0)
			item := head
			var err error
			for {
				item, err = item.Next(context.Background(), nil)
				if err != nil {
					errCh <- fmt.Errorf("reader %03d failed getting next %d: %s", i, expect, err)
					return
				}
				if item.Events.Events[0].Index != expect {
					errCh <- fmt.Errorf("reader %03d got bad event want=%d, got=%d", i,
						expect, item.Events.Events[0].Index)
					return
				}
				expect++
				if expect == uint64(nMessages) {
					errCh <- nil
					return
				}
			}
		}(i)
	}

	for i := 0; i < nReaders; i++ {
		err := <-errCh
		assert.NoError(t, err)
	}
}

func TestEventBuffer_SlowReader(t *testing.T) {
	ci.Parallel(t)

	b := newEventBuffer(10, DefaultTTL)

	for i := 0; i < 10; i++ {
		b.Append(&structs.Events{
			Index:  uint64(i),
			Events: []structs.Event{{Index: uint64(i)}},
		})
	}

	head := b.Head()

	for i := 10; i < 15; i++ {
		b.Append(&structs.Events{
			Index:  uint64(i),
			Events: []structs.Event{{Index: uint64(i)}},
		})
	}

	// The reader's held item was evicted; it must error so the caller can
	// resubscribe at the new head.
	ev, err := head.Next(context.Background(), nil)
	require.Error(t, err)
	require.Nil(t, ev)

	newHead := b.Head()
	require.Equal(t, 5, int(newHead.Events.Index))
}

func TestEventBuffer_Size(t *testing.T) {
	ci.Parallel(t)

	b := newEventBuffer(100, DefaultTTL)

	for i := 0; i < 10; i++ {
		b.Append(&structs.Events{
			Index:  uint64(i),
			Events: []structs.Event{{Index: uint64(i)}},
		})
	}

	require.Equal(t, 10, b.Len())
}

// All items past their TTL prune down to an empty buffer whose sentinel still
// carries the last published index.
func TestEventBuffer_Prune_AllOld(t *testing.T) {
	ci.Parallel(t)

	b := newEventBuffer(100, 1*time.Second)

	for i := 0; i < 10; i++ {
		b.Append(&structs.Events{
			Index:  uint64(i),
			Events: []structs.Event{{Index: uint64(i)}},
		})
	}

	require.Equal(t, 10, b.Len())

	time.Sleep(1100 * time.Millisecond)

	b.prune()

	require.Equal(t, 9, int(b.Head().Events.Index))
	require.Equal(t, 0, b.Len())
}

func TestEventBuffer_StartAtClosest(t *testing.T) {
	ci.Parallel(t)

	cases := []struct {
		desc     string
		req      uint64
		expected uint64
		offset   int
	}{
		{
			desc:     "requested index less than head receives head",
			req:      10,
			expected: 11,
			offset:   1,
		},
		{
			desc:     "requested exact match head",
			req:      11,
			expected: 11,
			offset:   0,
		},
		{
			desc:     "requested exact match",
			req:      42,
			expected: 42,
			offset:   0,
		},
		{
			desc:     "requested index greater than tail receives tail",
			req:      500,
			expected: 100,
			offset:   400,
		},
	}

	// buffer starts at index 11 goes to 100
	b := newEventBuffer(100, 1*time.Hour)

	for i := 11; i <= 100; i++ {
		b.Append(&structs.Events{
			Index:  uint64(i),
			Events: []structs.Event{{Index: uint64(i)}},
		})
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, offset := b.StartAtClosest(tc.req)
			require.Equal(t, int(tc.expected), int(got.Events.Index))
			require.Equal(t, tc.offset, offset)
		})
	}
}
