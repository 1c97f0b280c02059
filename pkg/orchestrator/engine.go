// Package orchestrator implements the Orchestration Engine (C3) and Signal
// Supervisor (C5): the phase-sequenced state machine that drives one
// TestDescriptor through database -> image -> app -> readiness ->
// per-test-type verify/benchmark -> teardown (spec.md §4.3), and the
// cooperative-interrupt machinery that guarantees teardown always runs.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/techempower/tfbtoolset/pkg/config"
	"github.com/techempower/tfbtoolset/pkg/docker"
	"github.com/techempower/tfbtoolset/pkg/docker/listener"
	"github.com/techempower/tfbtoolset/pkg/results"
	"github.com/techempower/tfbtoolset/pkg/rpc"

	units "github.com/docker/go-units"
)

const (
	verifierImage        = "techempower/tfb.verifier"
	databaseImagePrefix  = "techempower/tfb.database."
	tfbDatabaseAlias     = "tfb-database"
	tfbClientAlias       = "tfb-client"
)

// Mode selects which of the three execution modes a Run call performs
// (spec.md §1).
type Mode int

const (
	ModeDebug Mode = iota
	ModeVerify
	ModeBenchmark
)

// Engine is the Orchestration Engine, bound to one set of Docker hosts for
// the lifetime of a run (spec.md §3 DockerConfig is immutable for a run).
type Engine struct {
	GW         *docker.Gateway
	Cfg        config.DockerConfig
	Supervisor *Supervisor
	Trackers   *Trackers

	// NewLogger constructs a per-test scoped logger; exposed as a field
	// (rather than called directly) so callers can wire it to
	// rpc.New/rpc.Discard without this package depending on a results
	// directory layout (spec.md §1 non-goal).
	NewLogger func(framework, test string) (*rpc.OutputWriter, error)
}

// NewEngine constructs an Engine ready to run tests against cfg's three
// Docker hosts.
func NewEngine(gw *docker.Gateway, cfg config.DockerConfig, supervisor *Supervisor, trackers *Trackers, newLogger func(string, string) (*rpc.OutputWriter, error)) *Engine {
	return &Engine{GW: gw, Cfg: cfg, Supervisor: supervisor, Trackers: trackers, NewLogger: newLogger}
}

// PrepareNetworks resolves (or creates) the per-host TFBNetwork ids and
// fills them into cfg, as spec.md §3's "three precomputed network IDs...
// resolved at startup" requires. Call once before the first Run.
func PrepareNetworks(ctx context.Context, gw *docker.Gateway, cfg *config.DockerConfig) error {
	serverID, dbID, clientID, err := gw.ResolveNetworks(ctx, cfg.ServerDockerHost, cfg.DatabaseDockerHost, cfg.ClientDockerHost, cfg.NetworkMode)
	if err != nil {
		return fmt.Errorf("resolving networks: %w", err)
	}
	cfg.ServerNetworkID = serverID
	cfg.DatabaseNetworkID = dbID
	cfg.ClientNetworkID = clientID
	return nil
}

// Run drives test through mode's procedure end to end, always tearing
// down trackers before returning (spec.md §4.3 step 5 "Teardown is
// unconditional, including on error paths").
func (e *Engine) Run(ctx context.Context, mode Mode, test config.TestDescriptor) (*results.Bundle, error) {
	log, err := e.NewLogger(test.FrameworkName, test.TestName)
	if err != nil {
		return nil, fmt.Errorf("constructing logger for %s: %w", test.TestName, err)
	}

	bundle := results.NewBundle(test.TestName, time.Now())
	defer e.teardown(context.Background(), log)

	if test.DatabaseKind != "" {
		if err := e.runDatabasePhase(ctx, log, test); err != nil {
			return bundle, fmt.Errorf("database phase: %w", err)
		}
	}

	imageID, err := e.runImagePhase(ctx, log, test)
	if err != nil {
		return bundle, fmt.Errorf("image phase: %w", err)
	}
	e.Trackers.App.SetImage(imageID)

	hostPort, _, err := e.runApplicationPhase(ctx, log, test, imageID)
	if err != nil {
		return bundle, fmt.Errorf("application phase: %w", err)
	}

	if mode == ModeDebug {
		// "start and hold" (spec.md §1): sit at the trip checkpoint until
		// interrupted; the supervisor's worker performs the actual exit.
		for {
			e.Supervisor.Trip()
			time.Sleep(time.Second)
		}
	}

	for _, testType := range test.Endpoints.Keys() {
		e.Supervisor.Trip()

		endpoint, _ := test.Endpoints.Get(testType)

		v, err := e.runVerify(ctx, log, test, testType, endpoint, hostPort)
		bundle.RecordVerification(v)
		bundle.RecordCompletion(testType, time.Now())
		if err != nil {
			bundle.RecordFailure(testType, err.Error())
			continue
		}

		if mode != ModeBenchmark || !v.Passed() {
			continue
		}

		if err := e.runBenchmarkPhase(ctx, log, bundle, test, testType, endpoint, hostPort); err != nil {
			bundle.RecordFailure(testType, err.Error())
		}
	}

	bundle.Finish(time.Now())
	return bundle, nil
}

func (e *Engine) teardown(ctx context.Context, log *rpc.OutputWriter) {
	e.Trackers.DrainAll(ctx, e.GW, log)
}

// runDatabasePhase implements spec.md §4.3 step 1.
func (e *Engine) runDatabasePhase(ctx context.Context, log *rpc.OutputWriter, test config.TestDescriptor) error {
	e.Supervisor.Trip()

	image := databaseImagePrefix + strings.ToLower(test.DatabaseKind)
	if err := e.GW.PullImage(ctx, e.Cfg.DatabaseDockerHost, image, "latest", log); err != nil {
		return fmt.Errorf("pulling database image: %w", err)
	}

	e.Supervisor.Trip()

	spec := docker.ContainerSpec{
		Image:        image,
		Hostname:     tfbDatabaseAlias,
		NetworkID:    e.Cfg.DatabaseNetworkID,
		NetworkAlias: tfbDatabaseAlias,
	}
	containerID, err := e.GW.CreateContainer(ctx, e.Cfg.DatabaseDockerHost, test.TestName+"-database", spec)
	if err != nil {
		return fmt.Errorf("creating database container: %w", err)
	}

	e.Trackers.Database.Register(containerID)

	if err := e.GW.StartContainer(ctx, e.Cfg.DatabaseDockerHost, containerID); err != nil {
		return fmt.Errorf("starting database container: %w", err)
	}

	return e.runDatabaseVerifier(ctx, log, test)
}

// runDatabaseVerifier runs the synchronous database-readiness verifier
// (spec.md §4.3 step 1d): its exit is the readiness barrier for the
// database, so the database tracker stays registered throughout.
func (e *Engine) runDatabaseVerifier(ctx context.Context, log *rpc.OutputWriter, test config.TestDescriptor) error {
	e.Supervisor.Trip()

	spec := docker.ContainerSpec{
		Image:     verifierImage,
		Hostname:  tfbClientAlias,
		NetworkID: e.Cfg.ClientNetworkID,
		Env: []string{
			"MODE=verify",
			"TEST_TYPE=db",
			"DATABASE=" + test.DatabaseKind,
		},
	}
	containerID, err := e.GW.CreateContainer(ctx, e.Cfg.ClientDockerHost, test.TestName+"-database-verifier", spec)
	if err != nil {
		return fmt.Errorf("creating database verifier: %w", err)
	}

	e.Trackers.Verifier.Register(containerID)
	defer e.Trackers.Verifier.Unregister()

	if err := e.GW.StartContainer(ctx, e.Cfg.ClientDockerHost, containerID); err != nil {
		return fmt.Errorf("starting database verifier: %w", err)
	}

	// Prefer wait-then-logs over attach for a short-lived command-style
	// container (spec.md §9 "Attach vs. logs+wait").
	if err := e.GW.WaitForExit(ctx, e.Cfg.ClientDockerHost, containerID); err != nil {
		return fmt.Errorf("waiting for database verifier: %w", err)
	}

	return e.GW.ContainerLogs(ctx, e.Cfg.ClientDockerHost, containerID, log)
}

// runImagePhase implements spec.md §4.3 step 2.
func (e *Engine) runImagePhase(ctx context.Context, log *rpc.OutputWriter, test config.TestDescriptor) (string, error) {
	e.Supervisor.Trip()

	tag := strings.ToLower(test.FrameworkName) + ":latest"
	buildContextDir := filepath.Dir(test.DockerfilePath)
	return e.GW.BuildImage(ctx, e.Cfg.ServerDockerHost, tag, filepath.Base(test.DockerfilePath), buildContextDir, log)
}

// runApplicationPhase implements spec.md §4.3 step 3, including the
// readiness probe (§4.3.1).
func (e *Engine) runApplicationPhase(ctx context.Context, log *rpc.OutputWriter, test config.TestDescriptor, imageID string) (hostPort, internalPort string, err error) {
	e.Supervisor.Trip()

	spec := docker.ContainerSpec{
		Image:        imageID,
		Hostname:     tfbServerAlias,
		NetworkMode:  e.Cfg.NetworkMode,
		PublishAll:   true,
		NetworkID:    e.Cfg.ServerNetworkID,
		NetworkAlias: tfbServerAlias,
	}
	if e.Cfg.NetworkMode == "host" {
		spec.ExtraHosts = []string{fmt.Sprintf("%s:%s", tfbDatabaseAlias, e.Cfg.DatabaseHost)}
	}

	containerID, err := e.GW.CreateContainer(ctx, e.Cfg.ServerDockerHost, test.TestName+"-app", spec)
	if err != nil {
		return "", "", fmt.Errorf("creating app container: %w", err)
	}

	if err := e.GW.ConnectContainerToNetwork(ctx, e.Cfg.ServerDockerHost, containerID, e.Cfg.ServerNetworkID); err != nil {
		return "", "", fmt.Errorf("connecting app container to network: %w", err)
	}

	e.Trackers.App.Register(containerID)

	if err := e.GW.StartContainer(ctx, e.Cfg.ServerDockerHost, containerID); err != nil {
		return "", "", fmt.Errorf("starting app container: %w", err)
	}

	appLog := listener.NewAppLogListener(logSink(log))
	go func() {
		_ = e.GW.Attach(ctx, e.Cfg.ServerDockerHost, containerID, appLog)
		_ = appLog.Close()
	}()

	insp, err := e.GW.InspectContainer(ctx, e.Cfg.ServerDockerHost, containerID)
	if err != nil {
		return "", "", fmt.Errorf("inspecting app container: %w", err)
	}

	hostPort, internalPort, err = docker.ExtractPortBindings(insp, e.Cfg.NetworkMode)
	if err != nil {
		_ = e.GW.StopContainer(ctx, e.Cfg.ServerDockerHost, containerID)
		return "", "", fmt.Errorf("extracting port bindings: %w", err)
	}

	if err := e.probeReadiness(ctx, e.Cfg.ServerDockerHost, containerID, hostPort, test.Endpoints); err != nil {
		return "", "", err
	}

	return hostPort, internalPort, nil
}

// runVerify implements spec.md §4.3 step 4 "Verify".
func (e *Engine) runVerify(ctx context.Context, log *rpc.OutputWriter, test config.TestDescriptor, testType, endpoint, hostPort string) (*results.Verification, error) {
	e.Supervisor.Trip()

	v := &results.Verification{Framework: test.FrameworkName, TestName: test.TestName, TypeName: testType}

	containerID, err := e.GW.CreateContainer(ctx, e.Cfg.ClientDockerHost, test.TestName+"-"+testType+"-verify", e.verifierSpec(test, testType, endpoint, hostPort, "verify"))
	if err != nil {
		v.Failed(err.Error())
		return v, fmt.Errorf("creating verifier container: %w", err)
	}

	e.Trackers.Verifier.Register(containerID)
	defer e.Trackers.Verifier.Unregister()

	if err := e.GW.StartContainer(ctx, e.Cfg.ClientDockerHost, containerID); err != nil {
		v.Failed(err.Error())
		return v, fmt.Errorf("starting verifier container: %w", err)
	}

	vl := listener.NewVerifierListener(logSink(log))
	if err := e.GW.Attach(ctx, e.Cfg.ClientDockerHost, containerID, vl); err != nil {
		return v, fmt.Errorf("attaching to verifier container: %w", err)
	}
	_ = vl.Close()

	v.Warnings = vl.Warnings
	v.Errors = vl.Errors

	if len(v.Errors) > 0 {
		return v, ErrVerificationFailed
	}
	return v, nil
}

// runBenchmarkPhase implements spec.md §4.3 step 4 "Benchmark": command
// retrieval followed by primer -> warmup -> benchmark_commands[...], in
// order, discarding primer/warmup results.
func (e *Engine) runBenchmarkPhase(ctx context.Context, log *rpc.OutputWriter, bundle *results.Bundle, test config.TestDescriptor, testType, endpoint, hostPort string) error {
	e.Supervisor.Trip()

	cmds, err := e.retrieveBenchmarkCommands(ctx, log, test, testType, endpoint, hostPort)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBenchmarkCommandRetrieval, err)
	}

	sequence := append([][]string{cmds.PrimerCommand, cmds.WarmupCommand}, cmds.BenchmarkCommands...)
	for i, cmd := range sequence {
		e.Supervisor.Trip()

		res, err := e.runLoadGenCommand(ctx, test, testType, cmd)
		if err != nil {
			return fmt.Errorf("load generator command %d: %w", i, err)
		}
		if i < 2 {
			continue // primer, warmup discarded (spec.md §4.3 step 4)
		}
		bundle.RecordBenchmark(testType, res)
	}
	return nil
}

// retrieveBenchmarkCommands runs the verifier in MODE=benchmark to obtain
// the load-generator command vectors (spec.md §4.3 step 4).
func (e *Engine) retrieveBenchmarkCommands(ctx context.Context, log *rpc.OutputWriter, test config.TestDescriptor, testType, endpoint, hostPort string) (*listener.BenchmarkCommands, error) {
	spec := e.verifierSpec(test, testType, endpoint, hostPort, "benchmark")

	containerID, err := e.GW.CreateContainer(ctx, e.Cfg.ClientDockerHost, test.TestName+"-"+testType+"-commands", spec)
	if err != nil {
		return nil, err
	}

	e.Trackers.Verifier.Register(containerID)
	defer e.Trackers.Verifier.Unregister()

	if err := e.GW.StartContainer(ctx, e.Cfg.ClientDockerHost, containerID); err != nil {
		return nil, err
	}

	if err := e.GW.WaitForExit(ctx, e.Cfg.ClientDockerHost, containerID); err != nil {
		return nil, err
	}

	bc := listener.NewBenchmarkCommandListener(logSink(log))
	if err := e.GW.ContainerLogs(ctx, e.Cfg.ClientDockerHost, containerID, bc); err != nil {
		return nil, err
	}
	_ = bc.Close()

	cmds := bc.Commands()
	if cmds == nil {
		return nil, fmt.Errorf("verifier did not emit a benchmark command set")
	}
	return cmds, nil
}

// runLoadGenCommand runs one load-generator container with cmd as its
// overridden entrypoint command, capturing its textual output (spec.md
// §4.1, §4.4.1).
func (e *Engine) runLoadGenCommand(ctx context.Context, test config.TestDescriptor, testType string, cmd []string) (listener.BenchmarkResults, error) {
	spec := docker.ContainerSpec{
		Image:     verifierImage,
		Hostname:  tfbClientAlias,
		NetworkID: e.Cfg.ClientNetworkID,
		Cmd:       cmd,
		Ulimits:   []*units.Ulimit{{Name: "nofile", Soft: 65535, Hard: 65535}},
		Sysctls:   map[string]string{"net.core.somaxconn": "65535"},
	}

	containerID, err := e.GW.CreateContainer(ctx, e.Cfg.ClientDockerHost, test.TestName+"-"+testType+"-loadgen", spec)
	if err != nil {
		return listener.BenchmarkResults{}, err
	}

	e.Trackers.Loadgen.Register(containerID)
	defer e.Trackers.Loadgen.Unregister()

	startedMS := time.Now().UnixNano() / int64(time.Millisecond)

	if err := e.GW.StartContainer(ctx, e.Cfg.ClientDockerHost, containerID); err != nil {
		return listener.BenchmarkResults{}, err
	}

	if err := e.GW.WaitForExit(ctx, e.Cfg.ClientDockerHost, containerID); err != nil {
		return listener.BenchmarkResults{}, err
	}

	lg := listener.NewLoadGenOutputListener(startedMS)
	if err := e.GW.ContainerLogs(ctx, e.Cfg.ClientDockerHost, containerID, lg); err != nil {
		return listener.BenchmarkResults{}, err
	}

	return lg.Result(), nil
}

// verifierSpec builds the verifier container's env contract (spec.md §6).
func (e *Engine) verifierSpec(test config.TestDescriptor, testType, endpoint, hostPort, mode string) docker.ContainerSpec {
	env := []string{
		"MODE=" + mode,
		"PORT=" + hostPort,
		"ENDPOINT=" + endpoint,
		"TEST_TYPE=" + testType,
		"CONCURRENCY_LEVELS=" + config.JoinLevels(e.Cfg.ConcurrencyLevels),
		"PIPELINE_CONCURRENCY_LEVELS=" + config.JoinLevels(e.Cfg.PipelineConcurrencyLevels),
	}
	if test.DatabaseKind != "" {
		env = append(env, "DATABASE="+test.DatabaseKind)
	}

	return docker.ContainerSpec{
		Image:     verifierImage,
		Hostname:  tfbClientAlias,
		Env:       env,
		NetworkID: e.Cfg.ClientNetworkID,
	}
}

// logSink adapts an *rpc.OutputWriter (or nil) to listener.Sink, matching
// the small local adapter pkg/docker defines for the same purpose.
func logSink(log *rpc.OutputWriter) listener.Sink {
	return listener.SinkFunc(func(format string, args ...interface{}) {
		if log != nil {
			log.Infof(format, args...)
		}
	})
}
