package cmd

import (
	"github.com/techempower/tfbtoolset/pkg/orchestrator"

	"github.com/urfave/cli"
)

// VerifyCommand implements spec.md §1's `verify` mode: start, verify,
// report. Exit code is non-zero iff at least one test-type failed
// verification (spec.md §7).
var VerifyCommand = cli.Command{
	Name:   "verify",
	Usage:  "starts, verifies, and reports every test in the framework's config.toml",
	Flags:  commonFlags(),
	Action: verifyAction,
}

func verifyAction(c *cli.Context) error {
	engine, project, err := setupEngine(c)
	if err != nil {
		return err
	}

	ctx := ProcessContext()
	failed := false
	for _, test := range project.Tests {
		bundle, runErr := engine.Run(ctx, orchestrator.ModeVerify, test)
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
			}
		}
		_ = runErr // a phase error before any test-type ran is reflected above
	}

	if failed {
		return cli.NewExitError("one or more test-types failed verification", 1)
	}
	return nil
}
