// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package agent hosts the dispatch engine behind an HTTP API: it assembles
// configuration, boots the server, and frames requests and the event stream.
package agent

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/dispatch/dispatch"
)

// Agent owns a running dispatch server plus the glue configured around it.
type Agent struct {
	config *Config
	logger hclog.Logger
	server *dispatch.Server
}

// NewAgent starts the engine from an agent config.
func NewAgent(config *Config, logger hclog.Logger) (*Agent, error) {
	conf := config.ServerConfig()
	conf.Logger = logger

	server, err := dispatch.NewServer(conf)
	if err != nil {
		return nil, fmt.Errorf("server setup failed: %w", err)
	}

	a := &Agent{
		config: config,
		logger: logger,
		server: server,
	}

	if err := a.applyScoringConfig(); err != nil {
		server.Shutdown()
		return nil, err
	}
	return a, nil
}

// applyScoringConfig reconciles the file-configured tunables with the
// versioned weights in state. Changed tunables become a new weights version;
// the previous one stays immutable for the audits that reference it.
func (a *Agent) applyScoringConfig() error {
	store := a.server.State()

	active, err := store.ActiveWeightsConfig()
	if err != nil {
		return err
	}

	if tun := a.config.Tunables(); tun != active.Tunables {
		next := active.Copy()
		next.Version = active.Version + 1
		next.Tunables = tun
		if err := store.UpsertWeightsConfig(next); err != nil {
			return fmt.Errorf("weights config update failed: %w", err)
		}
		if err := store.SetActiveWeightsVersion(next.Version); err != nil {
			return err
		}
		a.logger.Info("scheduling tunables updated", "weights_version", next.Version)
	}

	if v := a.config.Weights.ActiveVersion; v != 0 {
		if err := store.SetActiveWeightsVersion(uint64(v)); err != nil {
			return fmt.Errorf("pinning weights version %d failed: %w", v, err)
		}
	}
	return nil
}

// Reload applies a freshly loaded config to the running agent. Only the
// scoring tunables take effect without a restart; listener and routing
// changes need a new process.
func (a *Agent) Reload(config *Config) error {
	if config == nil {
		return nil
	}
	a.config = config
	return a.applyScoringConfig()
}

// Server returns the underlying engine.
func (a *Agent) Server() *dispatch.Server { return a.server }

// Shutdown stops the engine.
func (a *Agent) Shutdown() {
	a.logger.Info("requesting shutdown")
	a.server.Shutdown()
	a.logger.Info("shutdown complete")
}
