// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/hashicorp/cli"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/dispatch/helper/flags"
	"github.com/hashicorp/dispatch/version"
)

// Command is a cli.Command implementation that runs a dispatch agent until
// interrupted.
type Command struct {
	Ui         cli.Ui
	Version    *version.VersionInfo
	ShutdownCh <-chan struct{}

	args       []string
	agent      *Agent
	httpServer *HTTPServer
	logger     hclog.Logger

	configPaths []string
}

func (c *Command) readConfig() *Config {
	var dev bool
	var configPaths flags.StringFlag
	cmdConfig := &Config{}

	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.Usage = func() { c.Ui.Error(c.Help()) }

	fs.Var(&configPaths, "config", "")
	fs.StringVar(&cmdConfig.BindAddr, "bind", "", "")
	fs.IntVar(&cmdConfig.Port, "port", 0, "")
	fs.StringVar(&cmdConfig.LogLevel, "log-level", "", "")
	fs.BoolVar(&cmdConfig.LogJson, "log-json", false, "")
	fs.BoolVar(&dev, "dev", false, "")

	if err := fs.Parse(c.args); err != nil {
		return nil
	}

	config := DefaultConfig()
	for _, path := range configPaths {
		current, err := LoadConfig(path)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error loading configuration from %s: %s", path, err))
			return nil
		}
		config = config.Merge(current)
	}
	config = config.Merge(cmdConfig)
	c.configPaths = configPaths

	if dev {
		config.LogLevel = "DEBUG"
	}

	if _, ok := hclogLevel(config.LogLevel); !ok {
		c.Ui.Error(fmt.Sprintf("Unknown log level: %s", config.LogLevel))
		return nil
	}
	return config
}

func hclogLevel(s string) (hclog.Level, bool) {
	level := hclog.LevelFromString(strings.ToLower(s))
	return level, level != hclog.NoLevel
}

func (c *Command) setupLogger(config *Config) hclog.Logger {
	level, _ := hclogLevel(config.LogLevel)
	return hclog.New(&hclog.LoggerOptions{
		Name:       "dispatch",
		Level:      level,
		Output:     os.Stderr,
		JSONFormat: config.LogJson,
	})
}

func (c *Command) Run(args []string) int {
	c.Ui = &cli.PrefixedUi{
		OutputPrefix: "==> ",
		InfoPrefix:   "    ",
		ErrorPrefix:  "==> ",
		Ui:           c.Ui,
	}

	c.args = args
	config := c.readConfig()
	if config == nil {
		return 1
	}

	c.logger = c.setupLogger(config)

	agent, err := NewAgent(config, c.logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting agent: %s", err))
		return 1
	}
	c.agent = agent
	defer c.agent.Shutdown()

	httpServer, err := NewHTTPServer(agent, config)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting http server: %s", err))
		return 1
	}
	c.httpServer = httpServer
	defer c.httpServer.Shutdown()

	c.printConfigInfo(config)

	c.Ui.Info("")
	c.Ui.Output("Dispatch agent started! Log data will stream in below:\n")

	return c.handleSignals()
}

func (c *Command) printConfigInfo(config *Config) {
	info := map[string]string{
		"bind addr": config.AdvertiseAddr(),
		"log level": config.LogLevel,
		"routing":   "haversine only",
		"version":   c.Version.FullVersionNumber(false),
	}
	if config.Routing.ProviderURL != "" {
		info["routing"] = config.Routing.ProviderURL
	}

	padding := 0
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
		if len(k) > padding {
			padding = len(k)
		}
	}
	sort.Strings(keys)

	c.Ui.Output("Dispatch agent configuration:\n")
	for _, k := range keys {
		c.Ui.Info(fmt.Sprintf("%s%s: %s", strings.Repeat(" ", padding-len(k)), k, info[k]))
	}
}

// handleSignals blocks until a shutdown signal arrives. SIGHUP reloads the
// config files and reapplies the scoring tunables in place.
func (c *Command) handleSignals() int {
	signalCh := make(chan os.Signal, 4)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		var sig os.Signal
		select {
		case s := <-signalCh:
			sig = s
		case <-c.ShutdownCh:
			sig = os.Interrupt
		}

		c.Ui.Output(fmt.Sprintf("Caught signal: %v", sig))

		if sig == syscall.SIGHUP {
			c.handleReload()
			continue
		}
		return 0
	}
}

func (c *Command) handleReload() {
	config := DefaultConfig()
	for _, path := range c.configPaths {
		current, err := LoadConfig(path)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error reloading configuration from %s: %s", path, err))
			return
		}
		config = config.Merge(current)
	}
	if err := c.agent.Reload(config); err != nil {
		c.Ui.Error(fmt.Sprintf("Error applying reloaded configuration: %s", err))
	}
}

func (c *Command) Synopsis() string {
	return "Runs a dispatch agent"
}

func (c *Command) Help() string {
	helpText := `
Usage: dispatch agent [options]

  Starts the dispatch agent and runs until an interrupt is received. The
  agent serves the recommendation, booking, and event stream APIs over HTTP.

  The agent's configuration primarily comes from the config files used, but
  a subset of the options may also be passed directly as CLI arguments.

General Options:

  -config=<path>
    The path to either a single config file or a directory of config files
    to use for configuring the agent. Directories are scanned for .hcl files
    and loaded in lexical order, with later files merged on top of earlier
    ones. May be specified multiple times.

  -bind=<addr>
    The address the agent will bind to for the HTTP API. Overrides the
    bind_addr configuration. Defaults to 127.0.0.1.

  -port=<port>
    The port the agent will listen on for the HTTP API. Overrides the port
    configuration. Defaults to 4646.

  -log-level=<level>
    Specify the verbosity level of the agent's logs. Valid values include
    DEBUG, INFO, and WARN, in decreasing order of verbosity. The default is
    INFO.

  -log-json
    Output logs in a JSON format. The default is false.

  -dev
    Start the agent in development mode, with DEBUG logging enabled.
`
	return strings.TrimSpace(helpText)
}
