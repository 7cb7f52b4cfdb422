// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/dispatch/dispatch"
	"github.com/hashicorp/dispatch/dispatch/structs"
	"github.com/hashicorp/dispatch/helper"
	"github.com/hashicorp/dispatch/routing"
)

// Config is the agent configuration, assembled from defaults, config files,
// and command line flags, in that order of precedence.
type Config struct {
	// BindAddr is the address the HTTP API listens on.
	BindAddr string `hcl:"bind_addr"`

	// Port is the HTTP API port.
	Port int `hcl:"port"`

	LogLevel string `hcl:"log_level"`
	LogJson  bool   `hcl:"log_json"`

	Deadline *DeadlineConfig `hcl:"deadline"`
	Buffer   *BufferConfig   `hcl:"buffer"`
	Fatigue  *FatigueConfig  `hcl:"fatigue"`
	Score    *ScoreConfig    `hcl:"score"`
	Rotation *RotationConfig `hcl:"rotation"`
	Cache    *CacheConfig    `hcl:"cache"`
	Weights  *WeightsBlock   `hcl:"weights"`
	Routing  *RoutingBlock   `hcl:"routing"`

	// Skills extends the seeded trade catalogue.
	Skills []string `hcl:"skills"`

	// HTTPAPIResponseHeaders are set on every API response.
	HTTPAPIResponseHeaders map[string]string `hcl:"http_api_response_headers"`

	// ExtraKeysHCL is used by hcl to surface unexpected keys.
	ExtraKeysHCL []string `hcl:",unusedKeys" json:"-"`
}

// DeadlineConfig holds the request budgets.
type DeadlineConfig struct {
	// RecommendMs bounds one recommendation run end to end.
	RecommendMs int `hcl:"recommend_ms"`

	// RoutingMs bounds one refined matrix batch, retries included.
	RoutingMs int `hcl:"routing_ms"`
}

// BufferConfig holds the travel buffer knobs.
type BufferConfig struct {
	MinMinutes     int `hcl:"min_minutes"`
	PaddingMinutes int `hcl:"padding_minutes"`
}

// FatigueConfig holds the per-day caps.
type FatigueConfig struct {
	DailyHours int `hcl:"daily_hours"`
	DailyJobs  int `hcl:"daily_jobs"`
}

// ScoreConfig holds the distance and availability scoring bounds.
type ScoreConfig struct {
	DMaxMeters       int  `hcl:"d_max_m"`
	HorizonFloorMins int  `hcl:"horizon_floor_min"`
	RushTieBreak     bool `hcl:"rush_tiebreak"`
}

// RotationConfig holds the fairness look-back.
type RotationConfig struct {
	WindowDays int `hcl:"window_days"`
	Cap        int `hcl:"cap"`
}

// CacheConfig tunes the routing estimate cache.
type CacheConfig struct {
	CellMeters   int `hcl:"cell_m"`
	RoutedTTLSec int `hcl:"routed_ttl_s"`
}

// WeightsBlock pins the active scoring weights version at startup.
type WeightsBlock struct {
	ActiveVersion int `hcl:"active_version"`
}

// RoutingBlock configures the external routing provider. An empty URL runs
// the estimator haversine-only.
type RoutingBlock struct {
	ProviderURL       string  `hcl:"provider_url"`
	RequestsPerSecond float64 `hcl:"requests_per_second"`
	Burst             int     `hcl:"burst"`
	SpeedKPH          float64 `hcl:"speed_kph"`
}

// DefaultConfig returns the agent defaults, matching the recognized option
// table.
func DefaultConfig() *Config {
	return &Config{
		BindAddr: "127.0.0.1",
		Port:     4646,
		LogLevel: "INFO",
		Deadline: &DeadlineConfig{
			RecommendMs: 500,
			RoutingMs:   1500,
		},
		Buffer: &BufferConfig{
			MinMinutes:     15,
			PaddingMinutes: 5,
		},
		Fatigue: &FatigueConfig{
			DailyHours: 10,
			DailyJobs:  4,
		},
		Score: &ScoreConfig{
			DMaxMeters:       80000,
			HorizonFloorMins: 60,
		},
		Rotation: &RotationConfig{
			WindowDays: 14,
			Cap:        20,
		},
		Cache: &CacheConfig{
			CellMeters:   250,
			RoutedTTLSec: 86400,
		},
		Weights: &WeightsBlock{},
		Routing: &RoutingBlock{
			RequestsPerSecond: 10,
			Burst:             5,
		},
	}
}

// Merge layers b on top of c, returning a new config. Zero values in b leave
// the lower layer untouched.
func (c *Config) Merge(b *Config) *Config {
	result := *c

	if b.BindAddr != "" {
		result.BindAddr = b.BindAddr
	}
	if b.Port != 0 {
		result.Port = b.Port
	}
	if b.LogLevel != "" {
		result.LogLevel = b.LogLevel
	}
	if b.LogJson {
		result.LogJson = true
	}
	if b.Deadline != nil {
		var d DeadlineConfig
		if result.Deadline != nil {
			d = *result.Deadline
		}
		if b.Deadline.RecommendMs != 0 {
			d.RecommendMs = b.Deadline.RecommendMs
		}
		if b.Deadline.RoutingMs != 0 {
			d.RoutingMs = b.Deadline.RoutingMs
		}
		result.Deadline = &d
	}
	if b.Buffer != nil {
		var buf BufferConfig
		if result.Buffer != nil {
			buf = *result.Buffer
		}
		if b.Buffer.MinMinutes != 0 {
			buf.MinMinutes = b.Buffer.MinMinutes
		}
		if b.Buffer.PaddingMinutes != 0 {
			buf.PaddingMinutes = b.Buffer.PaddingMinutes
		}
		result.Buffer = &buf
	}
	if b.Fatigue != nil {
		var f FatigueConfig
		if result.Fatigue != nil {
			f = *result.Fatigue
		}
		if b.Fatigue.DailyHours != 0 {
			f.DailyHours = b.Fatigue.DailyHours
		}
		if b.Fatigue.DailyJobs != 0 {
			f.DailyJobs = b.Fatigue.DailyJobs
		}
		result.Fatigue = &f
	}
	if b.Score != nil {
		var sc ScoreConfig
		if result.Score != nil {
			sc = *result.Score
		}
		if b.Score.DMaxMeters != 0 {
			sc.DMaxMeters = b.Score.DMaxMeters
		}
		if b.Score.HorizonFloorMins != 0 {
			sc.HorizonFloorMins = b.Score.HorizonFloorMins
		}
		if b.Score.RushTieBreak {
			sc.RushTieBreak = true
		}
		result.Score = &sc
	}
	if b.Rotation != nil {
		var r RotationConfig
		if result.Rotation != nil {
			r = *result.Rotation
		}
		if b.Rotation.WindowDays != 0 {
			r.WindowDays = b.Rotation.WindowDays
		}
		if b.Rotation.Cap != 0 {
			r.Cap = b.Rotation.Cap
		}
		result.Rotation = &r
	}
	if b.Cache != nil {
		var cache CacheConfig
		if result.Cache != nil {
			cache = *result.Cache
		}
		if b.Cache.CellMeters != 0 {
			cache.CellMeters = b.Cache.CellMeters
		}
		if b.Cache.RoutedTTLSec != 0 {
			cache.RoutedTTLSec = b.Cache.RoutedTTLSec
		}
		result.Cache = &cache
	}
	if b.Weights != nil && b.Weights.ActiveVersion != 0 {
		result.Weights = &WeightsBlock{ActiveVersion: b.Weights.ActiveVersion}
	}
	if b.Routing != nil {
		var rb RoutingBlock
		if result.Routing != nil {
			rb = *result.Routing
		}
		if b.Routing.ProviderURL != "" {
			rb.ProviderURL = b.Routing.ProviderURL
		}
		if b.Routing.RequestsPerSecond != 0 {
			rb.RequestsPerSecond = b.Routing.RequestsPerSecond
		}
		if b.Routing.Burst != 0 {
			rb.Burst = b.Routing.Burst
		}
		if b.Routing.SpeedKPH != 0 {
			rb.SpeedKPH = b.Routing.SpeedKPH
		}
		result.Routing = &rb
	}
	if len(b.Skills) != 0 {
		result.Skills = append(helper.CopySlice(result.Skills), b.Skills...)
	}
	if len(b.HTTPAPIResponseHeaders) != 0 {
		headers := helper.CopyMap(b.HTTPAPIResponseHeaders)
		for k, v := range result.HTTPAPIResponseHeaders {
			if _, ok := headers[k]; !ok {
				headers[k] = v
			}
		}
		result.HTTPAPIResponseHeaders = headers
	}

	return &result
}

// AdvertiseAddr is the address clients reach the HTTP API on.
func (c *Config) AdvertiseAddr() string {
	return net.JoinHostPort(c.BindAddr, fmt.Sprintf("%d", c.Port))
}

// Tunables converts the config blocks into the scheduling tunables persisted
// with the weights.
func (c *Config) Tunables() structs.Tunables {
	return structs.Tunables{
		BufferMinMinutes:     c.Buffer.MinMinutes,
		BufferPaddingMinutes: c.Buffer.PaddingMinutes,
		FatigueDailyHours:    c.Fatigue.DailyHours,
		FatigueDailyJobs:     c.Fatigue.DailyJobs,
		DistanceMaxMeters:    float64(c.Score.DMaxMeters),
		HorizonFloorMinutes:  c.Score.HorizonFloorMins,
		RushTieBreak:         c.Score.RushTieBreak,
		RotationWindowDays:   c.Rotation.WindowDays,
		RotationCap:          c.Rotation.Cap,
	}
}

// ServerConfig converts the agent config into the engine's config.
func (c *Config) ServerConfig() *dispatch.Config {
	conf := dispatch.DefaultConfig()
	conf.RecommendDeadline = time.Duration(c.Deadline.RecommendMs) * time.Millisecond
	conf.Routing = routing.Config{
		CellMeters:      float64(c.Cache.CellMeters),
		RoutedTTL:       time.Duration(c.Cache.RoutedTTLSec) * time.Second,
		RoutingDeadline: time.Duration(c.Deadline.RoutingMs) * time.Millisecond,
		SpeedKPH:        c.Routing.SpeedKPH,
	}
	if c.Routing.ProviderURL != "" {
		conf.RoutingProvider = routing.NewHTTPProvider(
			c.Routing.ProviderURL, c.Routing.RequestsPerSecond, c.Routing.Burst)
	}
	conf.Skills = append(conf.Skills, c.Skills...)
	return conf
}
