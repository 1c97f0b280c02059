package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/techempower/tfbtoolset/pkg/lifecycle"
	"github.com/techempower/tfbtoolset/pkg/rpc"
)

// Supervisor is the Signal Supervisor (C5, spec.md §4.5): installs one
// process-wide interrupt handler, maintains the `ctrlc_received` flag, and
// drains every Lifecycle Tracker on first interrupt.
type Supervisor struct {
	gw       lifecycle.Killer
	trackers *Trackers
	log      *rpc.OutputWriter
	ciMode   bool

	tripped int32
	sigCh   chan os.Signal
}

// NewSupervisor constructs a Supervisor. ciMode, when true, skips
// installing the signal handler entirely (spec.md §4.5 "except in a
// designated CI mode where no handler is installed — the CI environment
// owns lifecycle").
func NewSupervisor(gw lifecycle.Killer, trackers *Trackers, log *rpc.OutputWriter, ciMode bool) *Supervisor {
	return &Supervisor{gw: gw, trackers: trackers, log: log, ciMode: ciMode}
}

// Install wires SIGINT/SIGTERM to the supervisor's handler. No-op in CI
// mode.
func (s *Supervisor) Install() {
	if s.ciMode {
		return
	}
	s.sigCh = make(chan os.Signal, 1)
	signal.Notify(s.sigCh, os.Interrupt, syscall.SIGTERM)
	go s.loop()
}

func (s *Supervisor) loop() {
	for range s.sigCh {
		s.onInterrupt()
	}
}

// onInterrupt implements spec.md §4.5's first-interrupt/subsequent-interrupt
// split. The handler itself does nothing but flip the flag and dispatch a
// worker; all cleanup runs off the handler.
func (s *Supervisor) onInterrupt() {
	if atomic.CompareAndSwapInt32(&s.tripped, 0, 1) {
		go func() {
			s.trackers.DrainAll(context.Background(), s.gw, s.log)
			os.Exit(0)
		}()
		return
	}

	if s.log != nil {
		s.log.Warn("forcing exit; dangling containers may remain")
	}
	os.Exit(0)
}

// Tripped reports whether the interrupt flag is set.
func (s *Supervisor) Tripped() bool {
	return atomic.LoadInt32(&s.tripped) == 1
}

// Trip is the checkpoint interleaved before every container-creating or
// container-starting step (spec.md §4.5): if the interrupt flag is set,
// block indefinitely so the drain worker remains the sole actor on the
// trackers, rather than racing it by continuing to create containers.
func (s *Supervisor) Trip() {
	for s.Tripped() {
		time.Sleep(time.Second)
	}
}
