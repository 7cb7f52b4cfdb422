// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package dispatch is the contractor recommendation and booking engine. The
// Server owns the state store, event broker, routing estimator, and the
// endpoint handlers; everything is wired explicitly here, with no lookup
// indirection at request time.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-set/v3"

	"github.com/hashicorp/dispatch/dispatch/state"
	"github.com/hashicorp/dispatch/dispatch/stream"
	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/routing"
)

// Server is the long-lived engine instance.
type Server struct {
	config *Config
	logger hclog.Logger

	store     *state.StateStore
	broker    *stream.EventBroker
	estimator *routing.Estimator
	locks     *contractorLocks

	recommend  *Recommend
	assignment *Assignment

	recalcCh chan string

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
}

// NewServer constructs and starts a Server: state store, broker, estimator,
// endpoints, and the recalculation worker. Call Shutdown when done.
func NewServer(config *Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = hclog.Default().Named("dispatch")
	}

	store, err := state.NewStateStore(&state.StateStoreConfig{
		Logger: logger.Named("state"),
	})
	if err != nil {
		return nil, fmt.Errorf("state store setup failed: %w", err)
	}
	if err := store.UpsertSkills(config.Skills); err != nil {
		return nil, fmt.Errorf("skill catalogue seed failed: %w", err)
	}
	// The active weights config is durable from the first read.
	if _, err := store.ActiveWeightsConfig(); err != nil {
		return nil, fmt.Errorf("weights config seed failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	routingCfg := config.Routing
	routingCfg.Logger = logger.Named("routing")

	s := &Server{
		config: config,
		logger: logger,
		store:  store,
		broker: stream.NewEventBroker(ctx, stream.EventBrokerCfg{
			EventBufferSize: int64(config.EventBufferSize),
			Logger:          logger.Named("stream"),
		}),
		estimator:      routing.NewEstimator(config.RoutingProvider, routingCfg),
		locks:          newContractorLocks(),
		recalcCh:       make(chan string, config.RecalcQueueDepth),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	s.recommend = &Recommend{srv: s, logger: logger.Named("recommend")}
	s.assignment = &Assignment{srv: s, logger: logger.Named("assignment")}

	s.wg.Add(1)
	go s.recalcWorker()

	return s, nil
}

// Shutdown stops the recalc worker and closes every event subscription.
func (s *Server) Shutdown() {
	s.shutdownCancel()
	s.wg.Wait()
}

// State returns the state store.
func (s *Server) State() *state.StateStore { return s.store }

// Broker returns the event broker for subscription endpoints.
func (s *Server) Broker() *stream.EventBroker { return s.broker }

// Recommend returns the recommendation endpoint.
func (s *Server) Recommend() *Recommend { return s.recommend }

// Assignment returns the booking endpoint.
func (s *Server) Assignment() *Assignment { return s.assignment }

// SkillCatalogue reads the current catalogue for validation.
func (s *Server) SkillCatalogue() (*set.Set[string], error) {
	return s.store.SkillCatalogue()
}

// EnqueueRecalculate queues a fresh recommendation run for the job. The call
// returns immediately; a full queue is a conflict rather than a silent drop.
func (s *Server) EnqueueRecalculate(jobID string) error {
	job, err := s.store.JobByID(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return structs.ErrJobNotFound
	}
	select {
	case s.recalcCh <- jobID:
		return nil
	default:
		return structs.NewConflictError("recalculation queue is full")
	}
}

// recalcWorker drains the recalculation queue, running the normal
// recommendation pipeline as the system actor. Failures are logged and
// dropped; the next explicit request recomputes anyway.
func (s *Server) recalcWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		case jobID := <-s.recalcCh:
			var reply structs.RecommendResponse
			err := s.recommend.Run(s.shutdownCtx, &structs.RecommendRequest{
				JobID: jobID,
				Actor: "system",
			}, &reply)
			if err != nil {
				s.logger.Warn("recalculation failed", "job_id", jobID, "error", err)
			}
		}
	}
}
