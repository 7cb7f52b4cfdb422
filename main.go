// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/cli"

	"github.com/hashicorp/dispatch/command"
	"github.com/hashicorp/dispatch/version"
)

func main() {
	os.Exit(Run(os.Args[1:]))
}

// Run invokes the CLI with the given args.
func Run(args []string) int {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := cli.NewCLI("dispatch", version.GetVersion().FullVersionNumber(true))
	c.Args = args
	c.Commands = command.Commands(&command.Meta{Ui: ui}, ui)

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %s\n", err.Error())
		return 1
	}
	return exitCode
}
