package cmd

import (
	"fmt"

	"github.com/techempower/tfbtoolset/pkg/config"
	"github.com/techempower/tfbtoolset/pkg/docker"
	"github.com/techempower/tfbtoolset/pkg/orchestrator"

	"github.com/urfave/cli"
)

// HealthcheckCommand smoke-tests connectivity to the three Docker hosts
// (spec.md §9 design note; SPEC_FULL.md §4 supplemented feature).
var HealthcheckCommand = cli.Command{
	Name:  "healthcheck",
	Usage: "smoke-tests connectivity to the server, database, and client Docker hosts",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "server-host", Value: "localhost"},
		cli.StringFlag{Name: "database-host", Value: "localhost"},
		cli.StringFlag{Name: "client-host", Value: "localhost"},
	},
	Action: healthcheckAction,
}

func healthcheckAction(c *cli.Context) error {
	cfg := config.DefaultDockerConfig(c.String("server-host"), c.String("database-host"), c.String("client-host"))
	gw := docker.New(cfg.UseUnixSocket)

	report := orchestrator.Healthcheck(ProcessContext(), gw, cfg)
	fmt.Printf("server:   %s\n", statusString(report.Server))
	fmt.Printf("database: %s\n", statusString(report.Database))
	fmt.Printf("client:   %s\n", statusString(report.Client))

	if !report.OK() {
		return cli.NewExitError(report.Err().Error(), 1)
	}
	return nil
}

func statusString(err error) string {
	if err == nil {
		return "OK"
	}
	return "FAILED: " + err.Error()
}
