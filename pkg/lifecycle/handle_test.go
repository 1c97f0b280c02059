package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/techempower/tfbtoolset/pkg/rpc"
)

type fakeKiller struct {
	mu      sync.Mutex
	killed  []string
	failWith error
}

func (f *fakeKiller) KillContainer(ctx context.Context, dockerHost, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, containerID)
	return f.failWith
}

func (f *fakeKiller) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.killed))
	copy(out, f.killed)
	return out
}

func TestHandleZeroValueIsIdleAndReady(t *testing.T) {
	h := NewHandle(RoleApp, "localhost:2375")
	if got := h.Poll(); got != Ready {
		t.Errorf("Poll() on idle handle = %v, want Ready", got)
	}
}

func TestHandlePendingUntilContainerIDArrives(t *testing.T) {
	h := NewHandle(RoleApp, "localhost:2375")
	h.mu.Lock()
	h.needsStop = true
	h.mu.Unlock()

	if got := h.Poll(); got != Pending {
		t.Fatalf("Poll() with needsStop and no container-id = %v, want Pending", got)
	}

	h.Register("abc123")
	if got := h.Poll(); got != Ready {
		t.Errorf("Poll() after Register = %v, want Ready", got)
	}
}

func TestUnregisterClearsState(t *testing.T) {
	h := NewHandle(RoleDatabase, "db-host:2375")
	h.Register("deadbeef")
	h.Unregister()

	if h.ContainerID() != "" {
		t.Errorf("ContainerID() after Unregister = %q, want empty", h.ContainerID())
	}
	if h.Poll() != Ready {
		t.Errorf("Poll() after Unregister = %v, want Ready", h.Poll())
	}
}

func TestDrainKillsRegisteredContainer(t *testing.T) {
	h := NewHandle(RoleVerifier, "client-host:2375")
	h.Register("c0ffee")

	k := &fakeKiller{}
	h.Drain(context.Background(), k, nil)

	if got := k.calls(); len(got) != 1 || got[0] != "c0ffee" {
		t.Errorf("KillContainer calls = %v, want [c0ffee]", got)
	}
	if h.ContainerID() != "" {
		t.Errorf("ContainerID() after Drain = %q, want empty", h.ContainerID())
	}
}

func TestDrainSkipsUnregisteredContainer(t *testing.T) {
	h := NewHandle(RoleLoadgen, "client-host:2375")

	k := &fakeKiller{}
	h.Drain(context.Background(), k, nil)

	if got := k.calls(); len(got) != 0 {
		t.Errorf("KillContainer calls = %v, want none for an idle handle", got)
	}
}

// TestDrainWaitsForRaceWithRegister reproduces spec.md §4.2's race: a
// teardown is requested after the decision to start a container but before
// its id is known. Drain must wait for Register rather than miss the kill.
func TestDrainWaitsForRaceWithRegister(t *testing.T) {
	h := NewHandle(RoleApp, "server-host:2375")
	h.mu.Lock()
	h.needsStop = true // "decided to start" happened, id not yet known
	h.mu.Unlock()

	k := &fakeKiller{}
	done := make(chan struct{})
	go func() {
		h.Drain(context.Background(), k, nil)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Drain returned before the container id was registered")
	case <-time.After(200 * time.Millisecond):
	}

	h.Register("late-arriving-id")

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Drain did not observe the late Register")
	}

	if got := k.calls(); len(got) != 1 || got[0] != "late-arriving-id" {
		t.Errorf("KillContainer calls = %v, want [late-arriving-id]", got)
	}
}

func TestDrainLogsButDoesNotPanicOnKillError(t *testing.T) {
	h := NewHandle(RoleApp, "server-host:2375")
	h.Register("flaky")

	k := &fakeKiller{failWith: errors.New("engine unreachable")}
	h.Drain(context.Background(), k, rpc.Discard())

	if h.ContainerID() != "" {
		t.Errorf("ContainerID() after Drain = %q, want empty even when kill fails", h.ContainerID())
	}
}
