// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp/dispatch/ci"
	"github.com/hashicorp/dispatch/dispatch/structs"
)

func TestFilter_MergesDefaultAndTopicKeys(t *testing.T) {
	ci.Parallel(t)

	req := &SubscribeRequest{
		Topics: map[structs.Topic][]string{
			structs.TopicAll: {"shared-key"},
			structs.TopicJob: {"job-key"},
		},
	}

	events := []structs.Event{
		{Topic: structs.TopicJob, Key: "job-key"},
		{Topic: structs.TopicAssignment, Key: "shared-key"},
		{Topic: structs.TopicAssignment, Key: "other"},
	}

	out := filter(req, events)
	require.Len(t, out, 2)
	require.Equal(t, "job-key", out[0].Key)
	require.Equal(t, "shared-key", out[1].Key)
}

func TestFilter_DoesNotMutateRequest(t *testing.T) {
	ci.Parallel(t)

	// Give the default-key slice spare capacity, as a slice built up from a
	// parsed query string would have. Filtering must never append into it:
	// the request is shared across every batch the subscription sees.
	defaults := make([]string, 1, 8)
	defaults[0] = "shared-key"
	req := &SubscribeRequest{
		Topics: map[structs.Topic][]string{
			structs.TopicAll:        defaults,
			structs.TopicJob:        {"job-key"},
			structs.TopicAssignment: {"assignment-key"},
		},
	}

	out := filter(req, []structs.Event{
		{Topic: structs.TopicJob, Key: "job-key"},
		{Topic: structs.TopicAssignment, Key: "assignment-key"},
	})
	require.Len(t, out, 2)

	require.Equal(t, []string{"shared-key"}, req.Topics[structs.TopicAll])
	spare := defaults[:cap(defaults)]
	require.Equal(t, "", spare[1])
}
