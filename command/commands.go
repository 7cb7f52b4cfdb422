// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"os"

	"github.com/hashicorp/cli"

	"github.com/hashicorp/dispatch/command/agent"
	"github.com/hashicorp/dispatch/version"
)

// Commands returns the mapping of CLI commands for dispatch. The meta
// parameter lets you set meta options for all commands.
func Commands(metaPtr *Meta, agentUi cli.Ui) map[string]cli.CommandFactory {
	if metaPtr == nil {
		metaPtr = new(Meta)
	}

	meta := *metaPtr
	if meta.Ui == nil {
		meta.Ui = &cli.BasicUi{
			Reader:      os.Stdin,
			Writer:      os.Stdout,
			ErrorWriter: os.Stderr,
		}
	}

	return map[string]cli.CommandFactory{
		"agent": func() (cli.Command, error) {
			return &agent.Command{
				Ui:      agentUi,
				Version: version.GetVersion(),
			}, nil
		},
		"version": func() (cli.Command, error) {
			return &VersionCommand{
				Meta: meta,
			}, nil
		},
	}
}
