package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/techempower/tfbtoolset/pkg/config"
	"github.com/techempower/tfbtoolset/pkg/rpc"
)

type orderTrackingKiller struct {
	mu    sync.Mutex
	order []string
}

func (k *orderTrackingKiller) KillContainer(ctx context.Context, dockerHost, containerID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.order = append(k.order, containerID)
	return nil
}

func TestNewTrackersBindsRolesToConfiguredHosts(t *testing.T) {
	cfg := config.DefaultDockerConfig("server-host", "db-host", "client-host")
	tr := NewTrackers(cfg)

	if tr.App.DockerHost != cfg.ServerDockerHost {
		t.Errorf("App.DockerHost = %q, want %q", tr.App.DockerHost, cfg.ServerDockerHost)
	}
	if tr.Database.DockerHost != cfg.DatabaseDockerHost {
		t.Errorf("Database.DockerHost = %q, want %q", tr.Database.DockerHost, cfg.DatabaseDockerHost)
	}
	if tr.Verifier.DockerHost != cfg.ClientDockerHost {
		t.Errorf("Verifier.DockerHost = %q, want %q", tr.Verifier.DockerHost, cfg.ClientDockerHost)
	}
	if tr.Loadgen.DockerHost != cfg.ClientDockerHost {
		t.Errorf("Loadgen.DockerHost = %q, want %q", tr.Loadgen.DockerHost, cfg.ClientDockerHost)
	}
}

// TestDrainAllOrdersLoadgenVerifierAppDatabase covers Invariant 3: teardown
// must always proceed loadgen -> verifier -> app -> database.
func TestDrainAllOrdersLoadgenVerifierAppDatabase(t *testing.T) {
	cfg := config.DefaultDockerConfig("localhost", "localhost", "localhost")
	tr := NewTrackers(cfg)

	tr.Loadgen.Register("loadgen-id")
	tr.Verifier.Register("verifier-id")
	tr.App.Register("app-id")
	tr.Database.Register("database-id")

	k := &orderTrackingKiller{}
	tr.DrainAll(context.Background(), k, rpc.Discard())

	want := []string{"loadgen-id", "verifier-id", "app-id", "database-id"}
	if len(k.order) != len(want) {
		t.Fatalf("kill order = %v, want %v", k.order, want)
	}
	for i, id := range want {
		if k.order[i] != id {
			t.Errorf("kill order[%d] = %q, want %q", i, k.order[i], id)
		}
	}
}

func TestDrainAllSkipsIdleTrackers(t *testing.T) {
	cfg := config.DefaultDockerConfig("localhost", "localhost", "localhost")
	tr := NewTrackers(cfg)
	tr.App.Register("only-app-id")

	k := &orderTrackingKiller{}
	tr.DrainAll(context.Background(), k, nil)

	if len(k.order) != 1 || k.order[0] != "only-app-id" {
		t.Errorf("kill order = %v, want [only-app-id]", k.order)
	}
}
