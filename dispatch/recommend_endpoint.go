// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/lib/ids"
	"github.com/hashicorp/dispatch/scheduler"
)

// stopLookaround bounds the neighbor-stop query around the service window.
// Assignments further out than a day cannot influence slot travel.
const stopLookaround = 24 * time.Hour

// Recommend is the recommendation coordinator endpoint. One Run is one
// audited pipeline pass: skill filter, distance prefilter, refined routing
// for the closest candidates, parallel per-contractor evaluation, and a
// deterministic sort.
type Recommend struct {
	srv    *Server
	logger hclog.Logger
}

// recommendCandidate carries a contractor through the prefilter stages.
type recommendCandidate struct {
	contractor *structs.Contractor
	travel     scheduler.TravelInfo
	cheapETA   time.Duration
}

// Run produces a ranked contractor list for a job. Degraded inputs (routing
// fallback, evaluations cut off by the deadline, store read failures after
// the job is resolved) never fail the request; they shrink the list and set
// the degraded flag. The audit record is written before the ready event is
// published.
func (r *Recommend) Run(ctx context.Context, req *structs.RecommendRequest, reply *structs.RecommendResponse) error {
	defer metrics.MeasureSince([]string{"dispatch", "recommend", "run"}, time.Now())

	if err := structs.ValidateRecommendRequest(req); err != nil {
		return err
	}

	job, err := r.srv.store.JobByID(req.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		return structs.ErrJobNotFound
	}

	now := time.Now().UTC()
	requestID := ids.NewULID()

	reply.RequestID = requestID
	reply.JobID = job.ID
	reply.GeneratedAt = now

	weights, err := r.srv.store.ActiveWeightsConfig()
	if err != nil {
		r.logger.Error("weights config unavailable", "job_id", job.ID, "error", err)
		reply.Degraded = true
		return nil
	}
	reply.ConfigVersion = weights.Version
	tun := weights.Tunables

	sw := job.ServiceWindow
	if req.ServiceWindow != nil {
		sw = *req.ServiceWindow
	}
	maxResults := req.MaxResults
	if maxResults == 0 {
		maxResults = structs.DefaultMaxResults
	}

	ctx, cancel := context.WithTimeout(ctx, r.srv.config.RecommendDeadline)
	defer cancel()

	// Skill coverage is the only hard filter; everything after it is
	// scored or recorded as dropped.
	contractors, err := r.srv.store.ContractorsBySkills(job.RequiredSkills)
	if err != nil {
		r.logger.Error("contractor lookup failed", "job_id", job.ID, "error", err)
		reply.Degraded = true
		return nil
	}

	bases := make([]structs.Location, len(contractors))
	for i, c := range contractors {
		bases[i] = c.Location
	}
	cheap := r.srv.estimator.CheapMatrix(job.Location, bases)

	var pool []*recommendCandidate
	var dropped []*structs.RankedContractor
	for i, c := range contractors {
		if cheap[i].DistanceMeters > tun.DistanceMaxMeters {
			dropped = append(dropped, &structs.RankedContractor{
				ContractorID:   c.ID,
				ContractorName: c.Name,
				DistanceMeters: cheap[i].DistanceMeters,
				ETA:            cheap[i].ETA,
				ETASource:      cheap[i].Source,
				DropReason: fmt.Sprintf("%.1f km from job exceeds the %.0f km distance cap",
					cheap[i].DistanceMeters/1000, tun.DistanceMaxMeters/1000),
			})
			continue
		}
		pool = append(pool, &recommendCandidate{
			contractor: c,
			travel: scheduler.TravelInfo{
				DistanceMeters: cheap[i].DistanceMeters,
				ETA:            cheap[i].ETA,
			},
			cheapETA: cheap[i].ETA,
		})
	}

	// Only the closest candidates by cheap ETA get a refined matrix call;
	// the rest keep haversine figures.
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].cheapETA < pool[j].cheapETA })
	topK := r.srv.config.TopK
	if topK > len(pool) {
		topK = len(pool)
	}
	if topK > 0 {
		dests := make([]structs.Location, topK)
		for i := 0; i < topK; i++ {
			dests[i] = pool[i].contractor.Location
		}
		refined, fellBack := r.srv.estimator.RefinedMatrix(ctx, job.Location, dests, sw.Start)
		if fellBack {
			reply.Degraded = true
		}
		for i := 0; i < topK; i++ {
			pool[i].travel = scheduler.TravelInfo{
				DistanceMeters: refined[i].DistanceMeters,
				ETA:            refined[i].ETA,
				Routed:         refined[i].Source == structs.ETASourceRouted,
			}
		}
	}

	evalCtx := scheduler.NewEvalContext(r.srv.store, r.logger, now)
	results := make([]*scheduler.Candidate, len(pool))

	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range pool {
		g.Go(func() error {
			// The deadline abandons remaining candidates, it never
			// aborts the run.
			if gctx.Err() != nil {
				return nil
			}
			out, err := scheduler.EvaluateContractor(evalCtx, cand.contractor, scheduler.EvalInput{
				Job:     job,
				SW:      sw,
				Travel:  cand.travel,
				Stops:   r.resolveStops(cand.contractor.ID, sw),
				Weights: weights,
			})
			if err != nil {
				r.logger.Warn("candidate evaluation failed",
					"job_id", job.ID, "contractor_id", cand.contractor.ID, "error", err)
				return nil
			}
			results[i] = out
			return nil
		})
	}
	g.Wait()

	var ranked []*scheduler.Candidate
	for i, res := range results {
		if res == nil {
			reply.Degraded = true
			dropped = append(dropped, &structs.RankedContractor{
				ContractorID:   pool[i].contractor.ID,
				ContractorName: pool[i].contractor.Name,
				DistanceMeters: pool[i].travel.DistanceMeters,
				ETA:            pool[i].travel.ETA,
				DropReason:     "evaluation did not finish before the deadline",
			})
			continue
		}
		ranked = append(ranked, res)
	}

	rush := tun.RushTieBreak && job.Priority == structs.PriorityRush
	scheduler.SortCandidates(ranked, rush)

	// A tied top pair gets the deciding rule spelled out in the winner's
	// rationale.
	if len(ranked) >= 2 && ranked[0].Ranked.Score == ranked[1].Ranked.Score {
		ranked[0].Ranked.Rationale = scheduler.Rationale(
			ranked[0].Contractor, ranked[0].Ranked.Breakdown, weights,
			ranked[0].Ranked.ETA, tieBreakReason(ranked[0], ranked[1], rush))
	}

	out := make([]*structs.RankedContractor, 0, len(ranked))
	audited := make([]*structs.RankedContractor, 0, len(ranked)+len(dropped))
	for i, c := range ranked {
		audited = append(audited, c.Ranked)
		if i < maxResults {
			out = append(out, c.Ranked)
		}
	}
	audited = append(audited, dropped...)
	reply.Ranked = out

	audit := &structs.AuditRecommendation{
		ID:            requestID,
		JobID:         job.ID,
		Request:       req.Copy(),
		Candidates:    audited,
		Actor:         req.Actor,
		Priority:      job.Priority,
		ConfigVersion: weights.Version,
		Degraded:      reply.Degraded,
		CreatedAt:     now,
	}
	if err := r.srv.store.AppendAudit(audit); err != nil {
		// The caller still gets the best-effort list; without a durable
		// audit the ready event must not fan out.
		r.logger.Error("audit append failed, skipping ready event", "job_id", job.ID, "error", err)
		return nil
	}

	if err := r.srv.publishLogged(structs.TopicRecommendation, job.ID,
		structs.TypeRecommendationReady,
		&structs.RecommendationReadyEvent{
			RequestID:     requestID,
			JobID:         job.ID,
			ConfigVersion: weights.Version,
		},
		[]string{structs.DispatchChannel(job.Region())}); err != nil {
		r.logger.Error("ready event publish failed", "job_id", job.ID, "error", err)
	}

	metrics.IncrCounter([]string{"dispatch", "recommend", "runs"}, 1)
	return nil
}

// Latest replays the most recent audited run for a job as a response, so the
// surface can show the ranking without recomputing it.
func (r *Recommend) Latest(jobID string, reply *structs.RecommendResponse) error {
	if jobID == "" {
		return structs.NewInvalidRequestError("missing job ID")
	}
	if job, err := r.srv.store.JobByID(jobID); err != nil {
		return err
	} else if job == nil {
		return structs.ErrJobNotFound
	}
	audit, err := r.srv.store.LatestAuditByJob(jobID)
	if err != nil {
		return err
	}
	if audit == nil {
		return structs.ErrAuditNotFound
	}

	maxResults := audit.Request.MaxResults
	if maxResults == 0 {
		maxResults = structs.DefaultMaxResults
	}
	var ranked []*structs.RankedContractor
	for _, c := range audit.Candidates {
		if c.DropReason != "" {
			continue
		}
		if len(ranked) == maxResults {
			break
		}
		ranked = append(ranked, c)
	}

	reply.RequestID = audit.ID
	reply.JobID = audit.JobID
	reply.Ranked = ranked
	reply.ConfigVersion = audit.ConfigVersion
	reply.GeneratedAt = audit.CreatedAt
	reply.Degraded = audit.Degraded
	return nil
}

// resolveStops loads the contractor's booked neighbor stops around the
// service window for the lowest-travel slot heuristic. Failures degrade to
// no stops.
func (r *Recommend) resolveStops(contractorID string, sw structs.Interval) []scheduler.Stop {
	window := sw.Expand(stopLookaround, stopLookaround)
	assignments, err := r.srv.store.AssignmentsByContractorInWindow(contractorID, window)
	if err != nil {
		r.logger.Warn("neighbor stop lookup failed", "contractor_id", contractorID, "error", err)
		return nil
	}
	var stops []scheduler.Stop
	for _, a := range assignments {
		j, err := r.srv.store.JobByID(a.JobID)
		if err != nil || j == nil {
			continue
		}
		stops = append(stops, scheduler.Stop{Window: a.Interval(), Loc: j.Location})
	}
	return stops
}

// tieBreakReason names the rule that ordered two candidates with equal final
// scores, mirroring the comparison chain in the scheduler sort.
func tieBreakReason(a, b *scheduler.Candidate, rush bool) string {
	if rush && !a.Earliest.Equal(b.Earliest) {
		return "earlier start"
	}
	if a.Contractor.Rating != b.Contractor.Rating {
		return "higher rating"
	}
	if a.Ranked.ETA != b.Ranked.ETA {
		return "shorter travel"
	}
	if !a.Earliest.Equal(b.Earliest) {
		return "earlier start"
	}
	return "contractor id"
}
