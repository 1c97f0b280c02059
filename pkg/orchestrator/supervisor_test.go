package orchestrator

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/techempower/tfbtoolset/pkg/config"
	"github.com/techempower/tfbtoolset/pkg/rpc"
)

func newTestSupervisor() *Supervisor {
	cfg := config.DefaultDockerConfig("localhost", "localhost", "localhost")
	tr := NewTrackers(cfg)
	k := &orderTrackingKiller{}
	return NewSupervisor(k, tr, rpc.Discard(), true)
}

func TestSupervisorCIModeInstallDoesNotStartHandler(t *testing.T) {
	s := newTestSupervisor()
	s.Install()

	if s.sigCh != nil {
		t.Error("Install() in ciMode registered a signal channel, want none")
	}
}

func TestSupervisorTrippedReflectsFlag(t *testing.T) {
	s := newTestSupervisor()
	if s.Tripped() {
		t.Fatal("Tripped() = true on a fresh Supervisor, want false")
	}

	atomic.StoreInt32(&s.tripped, 1)
	if !s.Tripped() {
		t.Error("Tripped() = false after setting the flag, want true")
	}
}

// TestTripBlocksWhileTrippedThenReleases covers spec.md §4.5's checkpoint
// contract: Trip must block indefinitely while the flag is set, and return
// promptly once it clears.
func TestTripBlocksWhileTrippedThenReleases(t *testing.T) {
	s := newTestSupervisor()
	atomic.StoreInt32(&s.tripped, 1)

	done := make(chan struct{})
	go func() {
		s.Trip()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Trip() returned while the interrupt flag was still set")
	case <-time.After(1500 * time.Millisecond):
	}

	atomic.StoreInt32(&s.tripped, 0)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Trip() did not return after the interrupt flag cleared")
	}
}

func TestTripIsANoOpWhenNotTripped(t *testing.T) {
	s := newTestSupervisor()

	done := make(chan struct{})
	go func() {
		s.Trip()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Trip() blocked despite the interrupt flag never being set")
	}
}
