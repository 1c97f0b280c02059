// Package lifecycle implements the Lifecycle Tracker (spec.md §4.2): a
// small mutable cell, one per role (app, db, verifier, loadgen), guarded by
// a mutex, read by both the orchestration engine and the signal
// supervisor's teardown path.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/techempower/tfbtoolset/pkg/rpc"
)

// Role identifies which container a Handle tracks.
type Role string

const (
	RoleApp      Role = "app"
	RoleDatabase Role = "db"
	RoleVerifier Role = "verifier"
	RoleLoadgen  Role = "loadgen"
)

// Killer is the subset of the Docker Gateway a Handle needs to drain
// itself: kill the tracked container on its own Docker host.
type Killer interface {
	KillContainer(ctx context.Context, dockerHost, containerID string) error
}

// Handle carries {docker-host, image-id, container-id, needs-stop} for one
// role, per spec.md §3/§4.2. The zero value is idle
// (containerID == "" && !needsStop).
type Handle struct {
	Role       Role
	DockerHost string

	mu          sync.Mutex
	imageID     string
	containerID string
	needsStop   bool
}

// NewHandle constructs an idle Handle for the given role/host.
func NewHandle(role Role, dockerHost string) *Handle {
	return &Handle{Role: role, DockerHost: dockerHost}
}

// SetImage records the image id before container creation, so a half-built
// image can be cleaned up on an abort path. Optional.
func (h *Handle) SetImage(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.imageID = id
}

// Register atomically sets {container-id: Some, needs-stop: true}.
func (h *Handle) Register(containerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.containerID = containerID
	h.needsStop = true
}

// Unregister sets {container-id: None, needs-stop: false}, signalling that
// the container exited naturally and does not need to be torn down.
func (h *Handle) Unregister() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.containerID = ""
	h.needsStop = false
}

// Readiness is the result of Poll.
type Readiness int

const (
	Pending Readiness = iota
	Ready
)

// Poll returns Ready iff (not needs-stop) OR (container-id is Some); else
// Pending. This is the race guard described in spec.md §4.2: a teardown
// requested between "decided to start container X" and "received X's id"
// must wait rather than miss the kill.
func (h *Handle) Poll() Readiness {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.needsStop || h.containerID != "" {
		return Ready
	}
	return Pending
}

// Drain polls until Ready, kills any present container, then unregisters.
// Safe to call from the signal supervisor's worker concurrently with the
// main path still registering the same Handle.
func (h *Handle) Drain(ctx context.Context, gw Killer, log *rpc.OutputWriter) {
	for h.Poll() == Pending {
		time.Sleep(time.Second)
	}

	h.mu.Lock()
	containerID := h.containerID
	dockerHost := h.DockerHost
	h.mu.Unlock()

	if containerID != "" {
		if err := gw.KillContainer(ctx, dockerHost, containerID); err != nil && log != nil {
			log.Warnw("failed to kill container during drain", "role", h.Role, "container", containerID, "error", err)
		}
	}

	h.Unregister()
}

// ContainerID returns the currently registered container id, if any.
func (h *Handle) ContainerID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.containerID
}

// ImageID returns the recorded image id, if any.
func (h *Handle) ImageID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.imageID
}
