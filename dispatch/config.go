// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/dispatch/routing"
)

const (
	// DefaultRecommendDeadline bounds the whole recommendation pipeline.
	DefaultRecommendDeadline = 500 * time.Millisecond

	// DefaultLockWait bounds the wait for a contractor lock before the
	// booking is rejected as a conflict.
	DefaultLockWait = 750 * time.Millisecond

	// DefaultTopK is how many cheap-ranked candidates get a refined
	// routing batch.
	DefaultTopK = 8

	// DefaultRecalcQueueDepth bounds the recalculation queue.
	DefaultRecalcQueueDepth = 64
)

// Config parameterizes a Server. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	Logger hclog.Logger

	// RecommendDeadline is the end-to-end budget for one recommendation
	// run. Work past the deadline is abandoned and the response flagged
	// degraded.
	RecommendDeadline time.Duration

	// LockWait caps how long a booking waits for the contractor lock.
	LockWait time.Duration

	// TopK candidates by cheap estimate receive refined routing.
	TopK int

	// EventBufferSize is handed to the event broker.
	EventBufferSize int

	// RecalcQueueDepth bounds pending recalculation requests.
	RecalcQueueDepth int

	// RoutingProvider, when set, serves refined matrices. Nil runs the
	// estimator haversine-only.
	RoutingProvider routing.Provider

	// Routing tunes the estimator caches and deadline.
	Routing routing.Config

	// Skills seeds the skill catalogue at startup.
	Skills []string
}

// DefaultConfig returns a Config with the documented defaults and a starter
// trade catalogue.
func DefaultConfig() *Config {
	return &Config{
		RecommendDeadline: DefaultRecommendDeadline,
		LockWait:          DefaultLockWait,
		TopK:              DefaultTopK,
		RecalcQueueDepth:  DefaultRecalcQueueDepth,
		Skills: []string{
			"appliance-repair", "carpentry", "carpet", "drywall",
			"electrical", "flooring", "gas-certification", "hvac",
			"landscaping", "painting", "pipefitting", "plumbing",
			"roofing", "tile",
		},
	}
}
