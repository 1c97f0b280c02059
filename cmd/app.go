// Package cmd wires the urfave/cli command surface onto pkg/orchestrator.
// Argument parsing and config-file discovery are treated as external
// collaborator concerns (spec.md §1); this package is the thin adapter
// that turns parsed flags into an Engine invocation.
package cmd

import (
	"context"

	"github.com/urfave/cli"
)

// Commands is the full command table, analogous to the teacher's
// `cmd.Commands` wired from main.go.
var Commands = []cli.Command{
	DebugCommand,
	VerifyCommand,
	BenchmarkCommand,
	HealthcheckCommand,
}

// Flags are process-wide flags applied to every command, mirroring the
// teacher's top-level `-v`/`-vv` verbosity switches.
var Flags = []cli.Flag{
	cli.BoolFlag{Name: "v", Usage: "enable debug logging"},
	cli.BoolFlag{Name: "vv", Usage: "enable debug logging"},
}

// ProcessContext returns the background context each command action
// builds its request context from.
func ProcessContext() context.Context {
	return context.Background()
}
