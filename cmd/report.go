package cmd

import (
	"fmt"

	"github.com/techempower/tfbtoolset/pkg/docker/listener"
	"github.com/techempower/tfbtoolset/pkg/results"

	"github.com/logrusorgru/aurora"
	wordwrap "github.com/mitchellh/go-wordwrap"
)

// reportVerification prints one (test, test-type) verification outcome,
// colored PASS/WARN/ERROR, grounded on original_source/src/io.rs's
// report_verifications.
func reportVerification(v *results.Verification) {
	status := aurora.Green("PASS")
	switch {
	case len(v.Errors) > 0:
		status = aurora.Red("ERROR")
	case len(v.Warnings) > 0:
		status = aurora.Yellow("WARN")
	}

	fmt.Printf("[%s] %s / %s\n", status, v.TestName, v.TypeName)
	for _, w := range v.Warnings {
		printFinding("  warning", w)
	}
	for _, e := range v.Errors {
		printFinding("  error", e)
	}
}

// reportFailure prints a phase failure that prevented a Verification from
// ever being recorded for testType.
func reportFailure(testName, testType, reason string) {
	fmt.Printf("[%s] %s / %s: %s\n", aurora.Red("ERROR"), testName, testType, wordwrap.WrapString(reason, 80))
}

func printFinding(label string, f listener.Finding) {
	fmt.Printf("%s (%s): %s\n", label, f.ShortMessage, wordwrap.WrapString(f.Message, 80))
}

// reportBenchmarkRuns prints the retained (non-primer/warmup) benchmark
// runs for one test-type.
func reportBenchmarkRuns(testType string, runs []listener.BenchmarkResults) {
	for i, r := range runs {
		fmt.Printf("  %s run %d: %.2f req/s, p50=%s, p99=%s\n", testType, i, r.RequestsPerSecond, r.Percentile50, r.Percentile99)
	}
}
