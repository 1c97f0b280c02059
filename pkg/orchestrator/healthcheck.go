package orchestrator

import (
	"context"

	"github.com/techempower/tfbtoolset/pkg/config"
	"github.com/techempower/tfbtoolset/pkg/docker"

	multierror "github.com/hashicorp/go-multierror"
)

// HealthcheckReport is the per-host outcome of a connectivity smoke-test
// against each of the three Docker hosts a run would use (spec.md §9
// "hello-world is reserved for connectivity smoke-testing of a Docker
// endpoint").
type HealthcheckReport struct {
	Server   error
	Database error
	Client   error
}

// OK reports whether every host answered.
func (r *HealthcheckReport) OK() bool {
	return r.Server == nil && r.Database == nil && r.Client == nil
}

// Err combines every host's failure into a single error, or nil if all
// three hosts are reachable.
func (r *HealthcheckReport) Err() error {
	var result *multierror.Error
	result = multierror.Append(result, r.Server, r.Database, r.Client)
	return result.ErrorOrNil()
}

// Healthcheck pings all three of cfg's Docker hosts, the supplemented
// command invited by spec.md §9's design note (not a [MODULE] of spec.md
// itself, but fair game per SPEC_FULL.md §4).
func Healthcheck(ctx context.Context, gw *docker.Gateway, cfg config.DockerConfig) *HealthcheckReport {
	return &HealthcheckReport{
		Server:   gw.Healthcheck(ctx, cfg.ServerDockerHost),
		Database: gw.Healthcheck(ctx, cfg.DatabaseDockerHost),
		Client:   gw.Healthcheck(ctx, cfg.ClientDockerHost),
	}
}
