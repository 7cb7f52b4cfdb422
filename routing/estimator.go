// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package routing produces distance and travel-time estimates. The cheap
// path is pure haversine math and never fails; the refined path consults an
// external routing provider through a cell-quantized cache and falls back to
// cheap figures rather than erroring.
package routing

import (
	"context"
	"errors"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/helper"
)

const (
	// DefaultCellMeters is the cache quantization cell side.
	DefaultCellMeters = 250.0

	// DefaultRoutedTTL is how long a routed estimate stays usable.
	DefaultRoutedTTL = 24 * time.Hour

	// DefaultNegativeTTL suppresses repeated provider calls after an
	// error.
	DefaultNegativeTTL = 60 * time.Second

	// DefaultRoutingDeadline bounds one refined batch, retries included.
	DefaultRoutingDeadline = 1500 * time.Millisecond

	// routedCacheSize bounds the routed LRU. At 250 m cells this covers a
	// metro area of active contractor/job pairs comfortably.
	routedCacheSize = 65536

	negativeCacheSize = 1024

	retryBaseWait = 50 * time.Millisecond
	retryMaxWait  = 400 * time.Millisecond
)

// Config tunes an Estimator. Zero values fall back to defaults.
type Config struct {
	CellMeters      float64
	RoutedTTL       time.Duration
	NegativeTTL     time.Duration
	RoutingDeadline time.Duration
	SpeedKPH        float64
	Logger          hclog.Logger
}

func (c Config) withDefaults() Config {
	if c.CellMeters <= 0 {
		c.CellMeters = DefaultCellMeters
	}
	if c.RoutedTTL <= 0 {
		c.RoutedTTL = DefaultRoutedTTL
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = DefaultNegativeTTL
	}
	if c.RoutingDeadline <= 0 {
		c.RoutingDeadline = DefaultRoutingDeadline
	}
	if c.SpeedKPH <= 0 {
		c.SpeedKPH = DefaultSpeedKPH
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	return c
}

// Estimator serves CheapMatrix and RefinedMatrix. Safe for concurrent use;
// both caches are internally locked and writes publish whole values.
type Estimator struct {
	cfg      Config
	provider Provider
	logger   hclog.Logger

	// routed holds provider results keyed by cell pair and hour-of-week.
	routed *expirable.LRU[cacheKey, Estimate]

	// negative remembers recent provider failures per origin cell so a
	// burst of recommendations does not hammer a failing provider.
	negative *expirable.LRU[cell, struct{}]
}

// NewEstimator creates an estimator. provider may be nil, in which case
// refined calls always fall back to cheap estimates.
func NewEstimator(provider Provider, cfg Config) *Estimator {
	cfg = cfg.withDefaults()
	return &Estimator{
		cfg:      cfg,
		provider: provider,
		logger:   cfg.Logger.Named("routing"),
		routed:   expirable.NewLRU[cacheKey, Estimate](routedCacheSize, nil, cfg.RoutedTTL),
		negative: expirable.NewLRU[cell, struct{}](negativeCacheSize, nil, cfg.NegativeTTL),
	}
}

// CheapMatrix returns haversine distance and fixed-speed ETA for every
// destination. Deterministic, monotonic in great-circle distance, never
// fails.
func (e *Estimator) CheapMatrix(origin structs.Location, destinations []structs.Location) []Estimate {
	out := make([]Estimate, len(destinations))
	for i, d := range destinations {
		meters := HaversineMeters(origin.Lat, origin.Lon, d.Lat, d.Lon)
		out[i] = Estimate{
			DistanceMeters: meters,
			ETA:            DriveETA(meters, e.cfg.SpeedKPH),
			Source:         structs.ETASourceHaversine,
		}
	}
	return out
}

// RefinedMatrix returns one estimate per destination, routed where the cache
// or provider can supply one and haversine otherwise. The second return is
// true when any entry fell back, so callers can mark the response degraded.
// Provider retries stay inside the configured routing deadline.
func (e *Estimator) RefinedMatrix(ctx context.Context, origin structs.Location, destinations []structs.Location, at time.Time) ([]Estimate, bool) {
	defer metrics.MeasureSince([]string{"dispatch", "routing", "refined_matrix"}, time.Now())

	out := e.CheapMatrix(origin, destinations)
	if len(destinations) == 0 {
		return out, false
	}

	originCell := cellOf(origin.Lat, origin.Lon, e.cfg.CellMeters)
	hour := hourOfWeek(at)

	var missIdx []int
	for i, d := range destinations {
		key := cacheKey{
			From:       originCell,
			To:         cellOf(d.Lat, d.Lon, e.cfg.CellMeters),
			HourOfWeek: hour,
		}
		if est, ok := e.routed.Get(key); ok {
			metrics.IncrCounter([]string{"dispatch", "routing", "cache_hit"}, 1)
			out[i] = est
			continue
		}
		metrics.IncrCounter([]string{"dispatch", "routing", "cache_miss"}, 1)
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 {
		return out, false
	}

	if e.provider == nil {
		return out, true
	}
	if _, blocked := e.negative.Get(originCell); blocked {
		metrics.IncrCounter([]string{"dispatch", "routing", "negative_cache_hit"}, 1)
		return out, true
	}

	missDests := make([]structs.Location, len(missIdx))
	for n, i := range missIdx {
		missDests[n] = destinations[i]
	}

	estimates, err := e.callProvider(ctx, origin, missDests, at)
	if err != nil {
		metrics.IncrCounter([]string{"dispatch", "routing", "provider_fallback"}, 1)
		e.logger.Warn("routing provider unavailable, using haversine estimates",
			"destinations", len(missDests), "error", err)
		e.negative.Add(originCell, struct{}{})
		return out, true
	}

	for n, i := range missIdx {
		est := estimates[n]
		est.Source = structs.ETASourceRouted
		out[i] = est
		e.routed.Add(cacheKey{
			From:       originCell,
			To:         cellOf(destinations[i].Lat, destinations[i].Lon, e.cfg.CellMeters),
			HourOfWeek: hour,
		}, est)
	}
	return out, false
}

// callProvider retries with jittered exponential backoff until the routing
// deadline runs out.
func (e *Estimator) callProvider(ctx context.Context, origin structs.Location, destinations []structs.Location, at time.Time) ([]Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RoutingDeadline)
	defer cancel()

	var lastErr error
	for attempt := uint64(0); ; attempt++ {
		estimates, err := e.provider.Matrix(ctx, origin, destinations, at)
		if err == nil {
			if len(estimates) != len(destinations) {
				return nil, errShortMatrix
			}
			return estimates, nil
		}
		lastErr = err

		wait := helper.Backoff(retryBaseWait, retryMaxWait, attempt) + helper.RandomStagger(retryBaseWait)
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(wait):
		}
	}
}

var errShortMatrix = errors.New("routing provider returned short matrix")
