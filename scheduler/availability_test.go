// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/hashicorp/dispatch/ci"
	"github.com/hashicorp/dispatch/dispatch/state"
	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/helper/testlog"
	"github.com/hashicorp/dispatch/lib/ids"
)

func testContext(t *testing.T, now time.Time) (*EvalContext, *state.StateStore) {
	store := state.TestStateStore(t)
	return NewEvalContext(store, testlog.HCLogger(t), now), store
}

func seedAssignment(t *testing.T, store *state.StateStore, contractorID string, start, end time.Time) {
	t.Helper()
	err := store.CommitAssignment(&structs.Assignment{
		ID:           ids.NewULID(),
		JobID:        ids.NewULID(),
		ContractorID: contractorID,
		StartUTC:     start,
		EndUTC:       end,
		Source:       structs.SourceManual,
		Status:       structs.AssignmentConfirmed,
	}, &structs.EventLogEntry{
		ID:   ids.NewULID(),
		Type: structs.TypeJobAssigned,
	})
	must.NoError(t, err)
}

// seedAssignmentAtSite commits an assignment whose job is in state, so the
// subtraction buffers it by the drive from its own site.
func seedAssignmentAtSite(t *testing.T, store *state.StateStore, contractorID string, site structs.Location, start, end time.Time) {
	t.Helper()
	neighbor := &structs.Job{
		ID:              ids.NewULID(),
		Type:            "tile-install",
		DurationMinutes: int(end.Sub(start) / time.Minute),
		Location:        site,
		ServiceWindow:   structs.NewInterval(start, end),
		Priority:        structs.PriorityNormal,
		Status:          structs.JobStatusAssigned,
	}
	must.NoError(t, store.UpsertJob(neighbor))
	err := store.CommitAssignment(&structs.Assignment{
		ID:           ids.NewULID(),
		JobID:        neighbor.ID,
		ContractorID: contractorID,
		StartUTC:     start,
		EndUTC:       end,
		Source:       structs.SourceManual,
		Status:       structs.AssignmentConfirmed,
	}, &structs.EventLogEntry{
		ID:   ids.NewULID(),
		Type: structs.TypeJobAssigned,
	})
	must.NoError(t, err)
}

func defaultTunables() structs.Tunables {
	return structs.DefaultWeightsConfig().Tunables
}

func TestFeasibleWindows_NoAssignments(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	ctx, store := testContext(t, now)
	must.NoError(t, store.UpsertContractor(c))

	sw := structs.NewInterval(
		time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC))

	travel := TravelInfo{DistanceMeters: 10000, ETA: 12 * time.Minute}
	out, err := FeasibleWindows(ctx, c, slotJob(sw, 120), sw, travel, defaultTunables())
	must.NoError(t, err)

	// ETA under the buffer floor: no lead-in, the full day is open.
	must.Len(t, 1, out)
	must.Eq(t, sw, out[0])
}

func TestFeasibleWindows_SubtractsBufferedAssignment(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	ctx, store := testContext(t, now)
	must.NoError(t, store.UpsertContractor(c))

	seedAssignment(t, store, c.ID,
		time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC))

	sw := structs.NewInterval(
		time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC))

	// 10 minute ETA keeps the buffer at its 15 minute floor.
	travel := TravelInfo{ETA: 10 * time.Minute}
	out, err := FeasibleWindows(ctx, c, slotJob(sw, 60), sw, travel, defaultTunables())
	must.NoError(t, err)

	must.Len(t, 2, out)
	must.Eq(t, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), out[0].Start)
	must.Eq(t, time.Date(2024, 6, 3, 11, 45, 0, 0, time.UTC), out[0].End)
	must.Eq(t, time.Date(2024, 6, 3, 14, 15, 0, 0, time.UTC), out[1].Start)
	must.Eq(t, time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC), out[1].End)
}

func TestFeasibleWindows_QuantizesAfterSubtraction(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	ctx, store := testContext(t, now)
	must.NoError(t, store.UpsertContractor(c))

	// An unaligned assignment leaves ragged edges that quantization must
	// trim: starts round up, ends round down.
	seedAssignment(t, store, c.ID,
		time.Date(2024, 6, 3, 11, 50, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 13, 40, 0, 0, time.UTC))

	sw := structs.NewInterval(
		time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC))

	travel := TravelInfo{ETA: 10 * time.Minute}
	out, err := FeasibleWindows(ctx, c, slotJob(sw, 60), sw, travel, defaultTunables())
	must.NoError(t, err)

	// Occupied after buffer: 11:35-13:55. Free 09:00-11:35 rounds the end
	// down to 11:30; free 13:55-17:00 rounds the start up to 14:00.
	must.Len(t, 2, out)
	must.Eq(t, time.Date(2024, 6, 3, 11, 30, 0, 0, time.UTC), out[0].End)
	must.Eq(t, time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC), out[1].Start)
}

func TestFeasibleWindows_TravelLeadIn(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	ctx, store := testContext(t, now)
	must.NoError(t, store.UpsertContractor(c))

	sw := structs.NewInterval(
		time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC))

	// A 30 minute drive exceeds the buffer floor, so the day opens 35
	// minutes late, quantized up to 09:45.
	travel := TravelInfo{DistanceMeters: 40000, ETA: 30 * time.Minute}
	out, err := FeasibleWindows(ctx, c, slotJob(sw, 120), sw, travel, defaultTunables())
	must.NoError(t, err)

	must.Len(t, 1, out)
	must.Eq(t, time.Date(2024, 6, 3, 9, 45, 0, 0, time.UTC), out[0].Start)
	must.Eq(t, time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC), out[0].End)
}

func TestFeasibleWindows_DropsNarrow(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	ctx, store := testContext(t, now)
	must.NoError(t, store.UpsertContractor(c))

	seedAssignment(t, store, c.ID,
		time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC))

	sw := structs.NewInterval(
		time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC))

	// The morning fragment 09:00-10:45 cannot hold three hours.
	travel := TravelInfo{ETA: 10 * time.Minute}
	out, err := FeasibleWindows(ctx, c, slotJob(sw, 180), sw, travel, defaultTunables())
	must.NoError(t, err)

	must.Len(t, 1, out)
	must.Eq(t, time.Date(2024, 6, 3, 13, 15, 0, 0, time.UTC), out[0].Start)
}

func TestFeasibleWindows_DSTSplitSurvives(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	c.Location.Zone = "America/New_York"
	c.Weekly = structs.WeeklyHours{
		time.Sunday: {{Start: "01:00", End: "09:00"}},
	}
	now := time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC)
	ctx, store := testContext(t, now)
	must.NoError(t, store.UpsertContractor(c))

	sw := structs.NewInterval(
		time.Date(2025, 3, 9, 6, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 9, 13, 0, 0, 0, time.UTC))

	travel := TravelInfo{ETA: 10 * time.Minute}
	out, err := FeasibleWindows(ctx, c, slotJob(sw, 30), sw, travel, defaultTunables())
	must.NoError(t, err)

	// The two halves of the split shift stay separate windows even though
	// they touch in UTC, so nothing bookable straddles the jump.
	must.Len(t, 2, out)
	must.Eq(t, time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC), out[0].End)
	must.Eq(t, time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC), out[1].Start)
}

func TestFeasibleWindows_CancelledAssignmentIgnored(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	ctx, store := testContext(t, now)
	must.NoError(t, store.UpsertContractor(c))

	seedAssignment(t, store, c.ID,
		time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC))
	list, err := store.AssignmentsByContractor(c.ID)
	must.NoError(t, err)
	must.Len(t, 1, list)
	_, err = store.CancelAssignment(list[0].ID, &structs.EventLogEntry{
		ID:   ids.NewULID(),
		Type: structs.TypeJobCancelled,
	})
	must.NoError(t, err)

	sw := structs.NewInterval(
		time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC))

	travel := TravelInfo{ETA: 10 * time.Minute}
	out, err := FeasibleWindows(ctx, c, slotJob(sw, 60), sw, travel, defaultTunables())
	must.NoError(t, err)
	must.Len(t, 1, out)
	must.Eq(t, sw, out[0])
}

func TestFeasibleWindows_NeighborSiteBuffer(t *testing.T) {
	ci.Parallel(t)

	c := utcContractor(0)
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	ctx, store := testContext(t, now)
	must.NoError(t, store.UpsertContractor(c))

	sw := structs.NewInterval(
		time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC))

	// The job sits a short hop from the contractor's base, but the existing
	// booking is at a site roughly fifty kilometers north of it. The gap
	// around that booking must cover the hour-long drive between the two
	// sites, not the two-minute base-to-job figure.
	job := slotJob(sw, 60)
	far := structs.Location{Lat: job.Location.Lat + 0.45, Lon: job.Location.Lon, Zone: "UTC", Region: "illinois"}
	seedAssignmentAtSite(t, store, c.ID, far,
		time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC))

	travel := TravelInfo{DistanceMeters: 1100, ETA: 2 * time.Minute}
	out, err := FeasibleWindows(ctx, c, job, sw, travel, defaultTunables())
	must.NoError(t, err)

	// ~60 minute drive plus padding blocks about 65 minutes on each side of
	// the booking: the morning ends at 10:45 and the afternoon cannot
	// resume before 15:15.
	must.Len(t, 2, out)
	must.Eq(t, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), out[0].Start)
	must.Eq(t, time.Date(2024, 6, 3, 10, 45, 0, 0, time.UTC), out[0].End)
	must.Eq(t, time.Date(2024, 6, 3, 15, 15, 0, 0, time.UTC), out[1].Start)
	must.Eq(t, time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC), out[1].End)

	// A booking at the floor-buffer boundary right after the distant job is
	// unreachable and must be rejected.
	early := structs.NewInterval(
		time.Date(2024, 6, 3, 14, 15, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 15, 15, 0, 0, time.UTC))
	err = ValidateBooking(ctx, c, job, early, travel, defaultTunables())
	must.ErrorIs(t, err, structs.ErrConflict)

	ok := structs.NewInterval(
		time.Date(2024, 6, 3, 15, 15, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 16, 15, 0, 0, time.UTC))
	must.NoError(t, ValidateBooking(ctx, c, job, ok, travel, defaultTunables()))
}
