package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/techempower/tfbtoolset/pkg/config"
)

// readinessCeiling is the maximum number of failed probe attempts before
// the probe gives up, each attempt separated by a one-second sleep — a
// 60-second wall-clock ceiling (spec.md §4.3.1, Invariant 4).
const readinessCeiling = 60

// tfbServerAlias is the in-network hostname used when the configured
// server host is the local machine (spec.md §4.3.1).
const tfbServerAlias = "tfb-server"

// probeReadiness implements the bounded readiness probe (spec.md §4.3.1).
// Each tick re-inspects the app container (a crashed process fails fast
// with ErrAppServerContainerShutDown) and issues a 1-second-timeout GET
// against the test's first endpoint in insertion order; any completed HTTP
// round trip, regardless of status code, counts as ready.
func (e *Engine) probeReadiness(ctx context.Context, dockerHost, containerID, hostPort string, endpoints *config.OrderedEndpoints) error {
	_, endpoint, ok := endpoints.First()
	if !ok {
		return fmt.Errorf("test descriptor has no endpoints to probe")
	}

	target := e.Cfg.ServerHost
	if target == tfbServerAlias {
		target = "localhost"
	}
	url := fmt.Sprintf("http://%s:%s%s", target, hostPort, endpoint)

	client := &http.Client{Timeout: time.Second}

	failures := 0
	for {
		e.Supervisor.Trip()

		insp, err := e.GW.InspectContainer(ctx, dockerHost, containerID)
		if err == nil && !insp.Running {
			return ErrAppServerContainerShutDown
		}

		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			return nil
		}

		failures++
		if failures > readinessCeiling {
			return ErrNoResponseFromDockerContainer
		}
		time.Sleep(time.Second)
	}
}
