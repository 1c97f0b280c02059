package orchestrator

import "errors"

// Sentinel errors mirroring original_source/src/error.rs's ToolsetError
// taxonomy (spec.md §7), tested with errors.Is by callers that need to
// distinguish readiness failure from other phase errors.
var (
	ErrAppServerContainerShutDown    = errors.New("app server container shut down before becoming ready")
	ErrNoResponseFromDockerContainer = errors.New("no response from app container within the readiness window")
	ErrVerificationFailed            = errors.New("verification recorded one or more errors")
	ErrDebugFailed                   = errors.New("debug run failed")
	ErrBenchmarkCommandRetrieval     = errors.New("failed to retrieve benchmark command set")
)
