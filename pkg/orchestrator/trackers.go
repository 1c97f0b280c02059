package orchestrator

import (
	"context"

	"github.com/techempower/tfbtoolset/pkg/config"
	"github.com/techempower/tfbtoolset/pkg/lifecycle"
	"github.com/techempower/tfbtoolset/pkg/rpc"
)

// Trackers holds the four per-role Lifecycle Handles for one run (spec.md
// §4.2): app, database, verifier, loadgen.
type Trackers struct {
	App      *lifecycle.Handle
	Database *lifecycle.Handle
	Verifier *lifecycle.Handle
	Loadgen  *lifecycle.Handle
}

// NewTrackers constructs idle trackers, each bound to the Docker host its
// role runs on.
func NewTrackers(cfg config.DockerConfig) *Trackers {
	return &Trackers{
		App:      lifecycle.NewHandle(lifecycle.RoleApp, cfg.ServerDockerHost),
		Database: lifecycle.NewHandle(lifecycle.RoleDatabase, cfg.DatabaseDockerHost),
		Verifier: lifecycle.NewHandle(lifecycle.RoleVerifier, cfg.ClientDockerHost),
		Loadgen:  lifecycle.NewHandle(lifecycle.RoleLoadgen, cfg.ClientDockerHost),
	}
}

// DrainAll tears down every tracker in the fixed order loadgen -> verifier
// -> app -> database (spec.md §4.3 step 5, Invariant 3).
func (t *Trackers) DrainAll(ctx context.Context, gw lifecycle.Killer, log *rpc.OutputWriter) {
	t.Loadgen.Drain(ctx, gw, log)
	t.Verifier.Drain(ctx, gw, log)
	t.App.Drain(ctx, gw, log)
	t.Database.Drain(ctx, gw, log)
}
