package cmd

import (
	"strconv"
	"strings"

	"github.com/techempower/tfbtoolset/pkg/config"
	"github.com/techempower/tfbtoolset/pkg/docker"
	"github.com/techempower/tfbtoolset/pkg/orchestrator"
	"github.com/techempower/tfbtoolset/pkg/rpc"

	"github.com/urfave/cli"
)

// commonFlags are shared by debug/verify/benchmark: the config file to
// drive, the Docker topology to drive it against, and the results
// directory each test's rpc.OutputWriter is rooted at. rpc.New creates that
// directory; no log file is opened in it, so nothing is written there.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to the framework's config.toml", Required: true},
		cli.StringFlag{Name: "language", Usage: "language directory the framework belongs to", Required: true},
		cli.StringFlag{Name: "server-host", Value: "localhost"},
		cli.StringFlag{Name: "database-host", Value: "localhost"},
		cli.StringFlag{Name: "client-host", Value: "localhost"},
		cli.StringFlag{Name: "network-mode", Value: "bridge", Usage: "bridge or host"},
		cli.BoolFlag{Name: "ci", Usage: "disable the interrupt handler; the CI environment owns lifecycle"},
		cli.StringFlag{Name: "results-dir", Value: "results"},
		cli.StringFlag{Name: "concurrency-levels", Usage: "comma-separated override for the concurrency level vector"},
		cli.StringFlag{Name: "query-levels", Usage: "comma-separated override for the query level vector"},
		cli.StringFlag{Name: "cached-query-levels", Usage: "comma-separated override for the cached-query level vector"},
		cli.IntFlag{Name: "duration", Usage: "override for the per-run benchmark duration, in seconds"},
	}
}

// parseIntList parses a comma-separated list of integers, returning nil for
// an empty string so it is a no-op when merged via config.ApplyOverrides.
func parseIntList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// setupEngine loads the framework's Project and constructs an Engine ready
// to run it, per SPEC_FULL.md §2.3/§2.4.
func setupEngine(c *cli.Context) (*orchestrator.Engine, *config.Project, error) {
	project, err := config.Load(c.String("config"), c.String("language"))
	if err != nil {
		return nil, nil, err
	}

	cfg := config.DefaultDockerConfig(c.String("server-host"), c.String("database-host"), c.String("client-host"))

	concurrencyLevels, err := parseIntList(c.String("concurrency-levels"))
	if err != nil {
		return nil, nil, err
	}
	queryLevels, err := parseIntList(c.String("query-levels"))
	if err != nil {
		return nil, nil, err
	}
	cachedQueryLevels, err := parseIntList(c.String("cached-query-levels"))
	if err != nil {
		return nil, nil, err
	}
	if err := config.ApplyOverrides(&cfg, config.Overrides{
		NetworkMode:       c.String("network-mode"),
		ConcurrencyLevels: concurrencyLevels,
		QueryLevels:       queryLevels,
		CachedQueryLevels: cachedQueryLevels,
		DurationSeconds:   c.Int("duration"),
	}); err != nil {
		return nil, nil, err
	}

	gw := docker.New(cfg.UseUnixSocket)

	ctx := ProcessContext()
	if err := orchestrator.PrepareNetworks(ctx, gw, &cfg); err != nil {
		return nil, nil, err
	}

	trackers := orchestrator.NewTrackers(cfg)
	supervisor := orchestrator.NewSupervisor(gw, trackers, rpc.Discard(), c.Bool("ci"))
	supervisor.Install()

	resultsDir := c.String("results-dir")
	newLogger := func(framework, test string) (*rpc.OutputWriter, error) {
		return rpc.New(resultsDir, framework, test)
	}

	return orchestrator.NewEngine(gw, cfg, supervisor, trackers, newLogger), project, nil
}
