package cmd

import (
	"fmt"

	"github.com/techempower/tfbtoolset/pkg/orchestrator"

	"github.com/urfave/cli"
)

// DebugCommand implements spec.md §1's `debug` mode: start and hold.
var DebugCommand = cli.Command{
	Name:   "debug",
	Usage:  "starts the framework's app (and database) container and holds it open for manual inspection",
	Flags:  commonFlags(),
	Action: debugAction,
}

func debugAction(c *cli.Context) error {
	engine, project, err := setupEngine(c)
	if err != nil {
		return err
	}
	if len(project.Tests) == 0 {
		return fmt.Errorf("no tests found in %s", c.String("config"))
	}

	// Debug mode holds one test's containers open until interrupted;
	// running every test would defeat "hold for manual inspection".
	_, err = engine.Run(ProcessContext(), orchestrator.ModeDebug, project.Tests[0])
	return err
}
