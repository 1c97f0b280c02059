// Package docker implements the Docker Gateway (spec.md §4.1): a typed
// surface over the Engine API, operating across any of the three hosts a
// benchmarking run may touch (application, database, client). Every
// operation is dispatched through the official docker/docker client, never
// a hand-rolled HTTP layer against the Engine API (spec.md §1 non-goal).
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/techempower/tfbtoolset/pkg/docker/listener"
	"github.com/techempower/tfbtoolset/pkg/rpc"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	units "github.com/docker/go-units"

	"github.com/hashicorp/go-getter"
	"github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"
)

// TFBNetwork is the constant bridge network name this system creates on
// every host that needs one (spec.md §6).
const TFBNetwork = "TFBNetwork"

// Gateway is a typed Engine API client, lazily instantiating one
// *client.Client per distinct docker-host string it is asked to operate
// against (spec.md §9 "Multiple Docker hosts: ... three independent
// Gateway clients; never assume a single global client").
type Gateway struct {
	useUnixSocket bool

	mu      sync.Mutex
	clients map[string]*client.Client
}

// New constructs a Gateway. useUnixSocket selects the /var/run/docker.sock
// transport for every host (single-machine operation); otherwise each host
// string is dialed over TCP.
func New(useUnixSocket bool) *Gateway {
	return &Gateway{useUnixSocket: useUnixSocket, clients: make(map[string]*client.Client)}
}

func (g *Gateway) clientFor(dockerHost string) (*client.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[dockerHost]; ok {
		return c, nil
	}

	var opts []client.Opt
	if g.useUnixSocket {
		opts = append(opts, client.WithHost("unix:///var/run/docker.sock"))
	} else {
		opts = append(opts, client.WithHost("tcp://"+dockerHost))
	}
	opts = append(opts, client.WithAPIVersionNegotiation())

	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("constructing docker client for %s: %w", dockerHost, err)
	}
	g.clients[dockerHost] = c
	return c, nil
}

// ContainerSpec describes a container to create (spec.md §4.1).
type ContainerSpec struct {
	Image          string
	Hostname       string
	DomainName     string
	Env            []string
	ExposedPorts   []string // "N/proto"
	NetworkMode    string   // "bridge" | "host"
	PublishAll     bool
	ExtraHosts     []string // "host:ip"
	NetworkID      string
	NetworkAlias   string
	Ulimits        []*units.Ulimit
	Sysctls        map[string]string
	Cmd            []string
}

// CreateNetwork creates TFBNetwork on dockerHost, idempotently: if the
// network already exists, its id is returned without attempting creation
// (spec.md §4.1).
func (g *Gateway) CreateNetwork(ctx context.Context, dockerHost string) (string, error) {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return "", err
	}

	if id, err := g.inspectNetworkID(ctx, dockerHost, TFBNetwork); err == nil {
		return id, nil
	}

	resp, err := cli.NetworkCreate(ctx, TFBNetwork, types.NetworkCreate{
		Driver: "bridge",
	})
	if err != nil {
		// A failed create (e.g. a 409 because a concurrent creator on the
		// same host won) falls back to one more inspect by name; the
		// network is not deleted and recreated.
		if id, inspectErr := g.inspectNetworkID(ctx, dockerHost, TFBNetwork); inspectErr == nil {
			return id, nil
		}
		return "", fmt.Errorf("creating network %s on %s: %w", TFBNetwork, dockerHost, err)
	}
	return resp.ID, nil
}

// ResolveNetwork resolves the id of an existing network by name, used for
// host-mode's built-in "host" network (spec.md §4.1).
func (g *Gateway) ResolveNetwork(ctx context.Context, dockerHost, name string) (string, error) {
	return g.inspectNetworkID(ctx, dockerHost, name)
}

func (g *Gateway) inspectNetworkID(ctx context.Context, dockerHost, name string) (string, error) {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return "", err
	}
	res, err := cli.NetworkInspect(ctx, name, types.NetworkInspectOptions{})
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// ResolveNetworks resolves the three per-host network ids concurrently
// (spec.md §3 "three precomputed network IDs ... resolved at startup").
// serverHost/databaseHost/clientHost may repeat if hosts are shared.
func (g *Gateway) ResolveNetworks(ctx context.Context, serverHost, databaseHost, clientHost, networkMode string) (serverNetID, dbNetID, clientNetID string, err error) {
	resolve := g.CreateNetwork
	if networkMode == "host" {
		resolve = func(ctx context.Context, host string) (string, error) {
			return g.ResolveNetwork(ctx, host, "host")
		}
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() (e error) { serverNetID, e = resolve(gctx, serverHost); return })
	grp.Go(func() (e error) { dbNetID, e = resolve(gctx, databaseHost); return })
	grp.Go(func() (e error) { clientNetID, e = resolve(gctx, clientHost); return })

	if err = grp.Wait(); err != nil {
		return "", "", "", err
	}
	return serverNetID, dbNetID, clientNetID, nil
}

// PullImage pulls name:tag on dockerHost, surfacing progress JSON lines to
// log (spec.md §4.1).
func (g *Gateway) PullImage(ctx context.Context, dockerHost, name, tag string, log *rpc.OutputWriter) error {
	if tag == "" {
		tag = "latest"
	}
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return err
	}

	reader, err := cli.ImagePull(ctx, name+":"+tag, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pulling %s:%s on %s: %w", name, tag, dockerHost, err)
	}
	defer reader.Close()

	progress := listener.NewAppLogListener(logSink(log))
	_, _ = io.Copy(progress, reader)
	return progress.Close()
}

// BuildImage builds dockerfilePath from buildContextDir, tagged tag, on
// dockerHost, per spec.md §4.1. Returns the resulting image id; when an
// image tagged tag already exists on dockerHost, the build is skipped and
// tag itself is returned. The build
// context is first materialized into a scratch directory (go-getter, with
// otiai10/copy resolving any symlinked source tree) rather than tarring
// the framework directory in place, mirroring the teacher's own build
// pipeline.
func (g *Gateway) BuildImage(ctx context.Context, dockerHost, tag, dockerfilePath, buildContextDir string, log *rpc.OutputWriter) (string, error) {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return "", err
	}

	if exists, err := g.imageExists(ctx, cli, tag); err == nil && exists {
		return tag, nil
	}

	tmp, err := ioutil.TempDir("", "tfbtoolset-build")
	if err != nil {
		return "", fmt.Errorf("creating build scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	scratch := tmp + "/context"
	if err := getter.Get(scratch, buildContextDir); err != nil {
		return "", fmt.Errorf("materializing build context from %s: %w", buildContextDir, err)
	}
	if err := materializeSymlink(scratch); err != nil {
		return "", fmt.Errorf("resolving build context symlink: %w", err)
	}

	buildCtx, err := archive.TarWithOptions(scratch, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("tarring build context %s: %w", scratch, err)
	}
	defer buildCtx.Close()

	resp, err := cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Dockerfile: dockerfilePath,
		Tags:       []string{tag},
	})
	if err != nil {
		return "", fmt.Errorf("building image %s on %s: %w", tag, dockerHost, err)
	}
	defer resp.Body.Close()

	build := listener.NewImageBuildListener(logSink(log))
	if _, err := io.Copy(build, resp.Body); err != nil {
		return "", fmt.Errorf("streaming build response: %w", err)
	}
	_ = build.Close()

	if errMsg := build.Err(); errMsg != "" {
		return "", fmt.Errorf("image build failed: %s", errMsg)
	}
	if build.ImageID() == "" {
		return "", fmt.Errorf("image build did not report an image id")
	}
	return build.ImageID(), nil
}

// imageExists reports whether an image tagged ref already exists on the
// client's host, the idempotence fast path grounded on teacher
// `pkg/build/docker.go`'s `imageExists`.
func (g *Gateway) imageExists(ctx context.Context, cli *client.Client, ref string) (bool, error) {
	summary, err := cli.ImageList(ctx, types.ImageListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return false, err
	}
	return len(summary) > 0, nil
}

// materializeSymlink replaces dir, if it is a symlink, with a real copy of
// its target (teacher `pkg/build/docker.go`'s materializeSymlink).
func materializeSymlink(dir string) error {
	fi, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	ref, err := os.Readlink(dir)
	if err != nil {
		return err
	}
	if err := os.Remove(dir); err != nil {
		return err
	}
	return copy.Copy(ref, dir)
}

// CreateContainer creates a container per spec, returning its id truncated
// to 12 hex characters (spec.md §4.1).
func (g *Gateway) CreateContainer(ctx context.Context, dockerHost, name string, spec ContainerSpec) (string, error) {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return "", err
	}

	exposedPorts, portBindings, err := nat.ParsePortSpecs(spec.ExposedPorts)
	if err != nil {
		return "", fmt.Errorf("parsing exposed ports for %s: %w", name, err)
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Hostname:     spec.Hostname,
		Domainname:   spec.DomainName,
		Env:          spec.Env,
		Cmd:          spec.Cmd,
		ExposedPorts: exposedPorts,
	}

	hostCfg := &container.HostConfig{
		PublishAllPorts: spec.PublishAll,
		ExtraHosts:      spec.ExtraHosts,
		PortBindings:    portBindings,
	}
	if spec.NetworkMode != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.NetworkMode)
	}
	if len(spec.Ulimits) > 0 {
		hostCfg.Resources = container.Resources{Ulimits: spec.Ulimits}
	}
	if len(spec.Sysctls) > 0 {
		hostCfg.Sysctls = spec.Sysctls
	}

	var netCfg *network.NetworkingConfig
	if spec.NetworkID != "" {
		ep := &network.EndpointSettings{NetworkID: spec.NetworkID}
		if spec.NetworkAlias != "" {
			ep.Aliases = []string{spec.NetworkAlias}
		}
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{spec.NetworkID: ep},
		}
	}

	created, err := cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, name)
	if err != nil {
		return "", fmt.Errorf("creating container %s on %s: %w", name, dockerHost, err)
	}

	id := created.ID
	if len(id) > 12 {
		id = id[:12]
	}
	return id, nil
}

// ConnectContainerToNetwork attaches containerID to networkID on dockerHost.
func (g *Gateway) ConnectContainerToNetwork(ctx context.Context, dockerHost, containerID, networkID string) error {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return err
	}
	if err := cli.NetworkConnect(ctx, networkID, containerID, nil); err != nil {
		return fmt.Errorf("connecting %s to network %s on %s: %w", containerID, networkID, dockerHost, err)
	}
	return nil
}

// StartContainer starts containerID on dockerHost.
func (g *Gateway) StartContainer(ctx context.Context, dockerHost, containerID string) error {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return err
	}
	if err := cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("starting container %s on %s: %w", containerID, dockerHost, err)
	}
	return nil
}

// Inspection is the subset of `GET /containers/{id}/json` this gateway
// exposes (spec.md §4.1).
type Inspection struct {
	Running      bool
	ExposedPorts []string // "N/proto"
	PortBindings map[string]string // "N/proto" -> host port, bridge mode only
}

// InspectContainer inspects containerID on dockerHost.
func (g *Gateway) InspectContainer(ctx context.Context, dockerHost, containerID string) (*Inspection, error) {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return nil, err
	}
	info, err := cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("inspecting container %s on %s: %w", containerID, dockerHost, err)
	}

	insp := &Inspection{
		PortBindings: make(map[string]string),
	}
	if info.State != nil {
		insp.Running = info.State.Running
	}
	if info.Config != nil {
		for port := range info.Config.ExposedPorts {
			insp.ExposedPorts = append(insp.ExposedPorts, string(port))
		}
	}
	if info.NetworkSettings != nil {
		for port, bindings := range info.NetworkSettings.Ports {
			if len(bindings) > 0 {
				insp.PortBindings[string(port)] = bindings[0].HostPort
			}
		}
	}
	return insp, nil
}

// ExtractPortBindings resolves (host_port, internal_port) for the
// lowest-numbered exposed port, per spec.md §4.1. In bridge mode it reads the published
// host port from the inspected port bindings; in host mode, exposed equals
// published.
func ExtractPortBindings(insp *Inspection, networkMode string) (hostPort, internalPort string, err error) {
	if len(insp.ExposedPorts) == 0 {
		return "", "", fmt.Errorf("container exposes no ports")
	}

	// Deterministic: pick the lowest-numbered exposed port.
	var chosen string
	var chosenNum int = -1
	for _, p := range insp.ExposedPorts {
		parts := strings.SplitN(p, "/", 2)
		n, convErr := strconv.Atoi(parts[0])
		if convErr != nil {
			continue
		}
		if chosenNum == -1 || n < chosenNum {
			chosenNum = n
			chosen = p
		}
	}
	if chosen == "" {
		return "", "", fmt.Errorf("no numeric exposed ports found")
	}
	internalPort = strconv.Itoa(chosenNum)

	if networkMode == "host" {
		return internalPort, internalPort, nil
	}

	hostPort, ok := insp.PortBindings[chosen]
	if !ok || hostPort == "" {
		return "", "", fmt.Errorf("failed to resolve host port binding for %s", chosen)
	}
	return hostPort, internalPort, nil
}

// Attach long-lives, streaming the container's multiplexed stdout/stderr
// into sink until the remote closes (spec.md §4.1).
func (g *Gateway) Attach(ctx context.Context, dockerHost, containerID string, sink io.Writer) error {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return err
	}

	resp, err := cli.ContainerAttach(ctx, containerID, types.ContainerAttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
		Logs:   true,
	})
	if err != nil {
		return fmt.Errorf("attaching to container %s on %s: %w", containerID, dockerHost, err)
	}
	defer resp.Close()

	_, err = stdcopy.StdCopy(sink, sink, resp.Reader)
	return err
}

// WaitForExit blocks until containerID exits, per spec.md §4.1. Preferred
// over Attach for short-lived containers whose output must be captured in
// full (spec.md §9 "Attach vs. logs+wait").
func (g *Gateway) WaitForExit(ctx context.Context, dockerHost, containerID string) error {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return err
	}

	statusCh, errCh := cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("waiting for container %s on %s: %w", containerID, dockerHost, err)
		}
	case <-statusCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ContainerLogs fetches the complete historical log of containerID into
// sink (non-interactive alternative to Attach, spec.md §4.1/§9).
func (g *Gateway) ContainerLogs(ctx context.Context, dockerHost, containerID string, sink io.Writer) error {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return err
	}

	reader, err := cli.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return fmt.Errorf("fetching logs for container %s on %s: %w", containerID, dockerHost, err)
	}
	defer reader.Close()

	_, err = stdcopy.StdCopy(sink, sink, reader)
	return err
}

// KillContainer forcefully kills containerID on dockerHost. Idempotent
// w.r.t. "already stopped" (spec.md §4.1).
func (g *Gateway) KillContainer(ctx context.Context, dockerHost, containerID string) error {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return err
	}
	if err := cli.ContainerKill(ctx, containerID, "KILL"); err != nil && !isAlreadyStopped(err) {
		return fmt.Errorf("killing container %s on %s: %w", containerID, dockerHost, err)
	}
	return nil
}

// StopContainer gracefully stops containerID on dockerHost, the preferred
// teardown path over KillContainer (spec.md §4.1).
func (g *Gateway) StopContainer(ctx context.Context, dockerHost, containerID string) error {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return err
	}
	timeout := 10 * time.Second
	if err := cli.ContainerStop(ctx, containerID, &timeout); err != nil && !isAlreadyStopped(err) {
		return fmt.Errorf("stopping container %s on %s: %w", containerID, dockerHost, err)
	}
	return nil
}

func isAlreadyStopped(err error) bool {
	return client.IsErrNotFound(err) || strings.Contains(err.Error(), "is not running")
}

// Healthcheck pings dockerHost by pulling/inspecting the `hello-world`
// image, the connectivity smoke test reserved for this purpose (spec.md §9).
func (g *Gateway) Healthcheck(ctx context.Context, dockerHost string) error {
	cli, err := g.clientFor(dockerHost)
	if err != nil {
		return err
	}
	const ref = "hello-world:latest"
	reader, err := cli.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("healthcheck against %s failed: %w", dockerHost, err)
	}
	_, _ = io.Copy(ioutil.Discard, reader)
	reader.Close()
	if _, _, err := cli.ImageInspectWithRaw(ctx, ref); err != nil {
		return fmt.Errorf("healthcheck against %s failed: %w", dockerHost, err)
	}
	return nil
}

// tarSingleFile is a small helper used by tests to fabricate a minimal
// build context in memory without touching disk.
func tarSingleFile(name string, contents []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(contents))}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(contents); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// logSink adapts an *rpc.OutputWriter (or nil) to listener.Sink.
func logSink(log *rpc.OutputWriter) listener.Sink {
	if log == nil {
		return listener.SinkFunc(func(string, ...interface{}) {})
	}
	return listener.SinkFunc(func(format string, args ...interface{}) {
		log.Infof(format, args...)
	})
}

// filtersFor builds a filters.Args from alternating key/value pairs. Only
// this package's tests call it; imageExists builds its filter with
// filters.NewArgs directly.
func filtersFor(pairs ...string) filters.Args {
	args := filters.NewArgs()
	for i := 0; i+1 < len(pairs); i += 2 {
		args.Add(pairs[i], pairs[i+1])
	}
	return args
}
