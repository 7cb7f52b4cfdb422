// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/hashicorp/dispatch/ci"
	"github.com/hashicorp/dispatch/dispatch/mock"
	"github.com/hashicorp/dispatch/dispatch/stream"
	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/helper/testlog"
	"github.com/hashicorp/dispatch/routing"
	"github.com/hashicorp/dispatch/testutil"
)

// fakeProvider answers matrix calls with routed haversine figures, after an
// optional delay and with an optional forced error.
type fakeProvider struct {
	delay time.Duration
	err   error
}

func (p *fakeProvider) Matrix(ctx context.Context, origin structs.Location, dests []structs.Location, at time.Time) ([]routing.Estimate, error) {
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	out := make([]routing.Estimate, len(dests))
	for i, d := range dests {
		m := routing.HaversineMeters(origin.Lat, origin.Lon, d.Lat, d.Lon)
		out[i] = routing.Estimate{
			DistanceMeters: m,
			ETA:            routing.DriveETA(m, routing.DefaultSpeedKPH),
			Source:         structs.ETASourceRouted,
		}
	}
	return out, nil
}

func testServer(t *testing.T, provider routing.Provider) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = testlog.HCLogger(t)
	cfg.RoutingProvider = provider
	// Keep routing retries well inside the recommendation deadline so a
	// dead provider degrades instead of consuming the whole budget.
	cfg.Routing.RoutingDeadline = 250 * time.Millisecond
	srv, err := NewServer(cfg)
	must.NoError(t, err)
	t.Cleanup(srv.Shutdown)
	return srv
}

// seedPair stores the canonical job and contractor fixtures.
func seedPair(t *testing.T, srv *Server) (*structs.Job, *structs.Contractor) {
	t.Helper()
	job := mock.Job()
	c := mock.Contractor()
	must.NoError(t, srv.store.UpsertJob(job))
	must.NoError(t, srv.store.UpsertContractor(c))
	return job, c
}

func TestServer_StartShutdown(t *testing.T) {
	ci.Parallel(t)

	srv := testServer(t, nil)

	catalogue, err := srv.SkillCatalogue()
	must.NoError(t, err)
	must.True(t, catalogue.Contains("plumbing"))

	weights, err := srv.store.ActiveWeightsConfig()
	must.NoError(t, err)
	must.Eq(t, uint64(1), weights.Version)
}

func TestServer_EnqueueRecalculate(t *testing.T) {
	ci.Parallel(t)

	srv := testServer(t, &fakeProvider{})
	job, _ := seedPair(t, srv)

	err := srv.EnqueueRecalculate("nope")
	must.ErrorIs(t, err, structs.ErrJobNotFound)

	must.NoError(t, srv.EnqueueRecalculate(job.ID))

	// The worker runs the full pipeline as the system actor.
	testutil.WaitForResult(func() (bool, error) {
		audit, err := srv.store.LatestAuditByJob(job.ID)
		if err != nil {
			return false, err
		}
		if audit == nil {
			return false, fmt.Errorf("no audit yet for job %s", job.ID)
		}
		if audit.Actor != "system" {
			return false, fmt.Errorf("audit actor %q", audit.Actor)
		}
		return true, nil
	}, func(err error) {
		t.Fatal(err)
	})
}

func TestServer_PublishLogged(t *testing.T) {
	ci.Parallel(t)

	srv := testServer(t, nil)

	sub, err := srv.broker.Subscribe(&stream.SubscribeRequest{
		Topics: map[structs.Topic][]string{structs.TopicJob: {"*"}},
	})
	must.NoError(t, err)
	defer sub.Unsubscribe()

	err = srv.publishLogged(structs.TopicJob, "j-1", structs.TypeJobCancelled,
		&structs.JobCancelledEvent{JobID: "j-1", Reason: "customer no-show"},
		[]string{structs.DispatchChannel("illinois")})
	must.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, err := sub.Next(ctx)
	must.NoError(t, err)
	must.Len(t, 1, events.Events)
	must.Eq(t, structs.TypeJobCancelled, events.Events[0].Type)
	must.Eq(t, "j-1", events.Events[0].Key)

	// The log record is durable and carries the index the stream exposed.
	log, err := srv.store.EventLog(0)
	must.NoError(t, err)
	must.Len(t, 1, log)
	must.Eq(t, log[0].Index, events.Events[0].Index)
	must.Eq(t, log[0].ID, events.Events[0].ID)

	var payload structs.JobCancelledEvent
	must.NoError(t, json.Unmarshal(log[0].Payload, &payload))
	must.Eq(t, "customer no-show", payload.Reason)
}

func TestServer_EventLogIdempotent(t *testing.T) {
	ci.Parallel(t)

	srv := testServer(t, nil)

	entry := mock.EventLogEntry()
	appended, err := srv.store.AppendEventLog(entry)
	must.NoError(t, err)
	must.True(t, appended)

	// Replaying the same event id is a no-op for the log and produces no
	// second fan-out.
	appended, err = srv.store.AppendEventLog(entry)
	must.NoError(t, err)
	must.False(t, appended)

	log, err := srv.store.EventLog(0)
	must.NoError(t, err)
	must.Len(t, 1, log)
}
