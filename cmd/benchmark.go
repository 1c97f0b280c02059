package cmd

import (
	"github.com/techempower/tfbtoolset/pkg/orchestrator"

	"github.com/urfave/cli"
)

// BenchmarkCommand implements spec.md §1's `benchmark` mode: start,
// verify, load, parse, persist. Persistence is an external collaborator
// (results.Writer); this command reports to the console and leaves
// writing the Bundle to disk to that collaborator.
var BenchmarkCommand = cli.Command{
	Name:   "benchmark",
	Usage:  "starts, verifies, benchmarks, and reports every test in the framework's config.toml",
	Flags:  commonFlags(),
	Action: benchmarkAction,
}

func benchmarkAction(c *cli.Context) error {
	engine, project, err := setupEngine(c)
	if err != nil {
		return err
	}

	ctx := ProcessContext()
	failed := false
	for _, test := range project.Tests {
		bundle, runErr := engine.Run(ctx, orchestrator.ModeBenchmark, test)
		if bundle == nil {
			failed = true
			continue
		}
		for _, testType := range test.Endpoints.Keys() {
			v, ok := bundle.Verification(testType)
			if !ok {
				if reason, failedOk := bundle.Failed(testType); failedOk {
					reportFailure(test.TestName, testType, reason)
				}
				failed = true
				continue
			}
			reportVerification(v)
			if !v.Passed() {
				failed = true
				continue
			}
			reportBenchmarkRuns(testType, bundle.BenchmarkRuns(testType))
		}
		_ = runErr
	}

	if failed {
		return cli.NewExitError("one or more test-types failed verification", 1)
	}
	return nil
}
