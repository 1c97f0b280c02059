// Package config holds the data describing a benchmarking run: the
// frameworks/tests to exercise (TestDescriptor) and the Docker topology to
// drive them against (DockerConfig). Decoding these from disk is treated as
// an external collaborator concern (spec.md §1); this package supplies the
// data types and a minimal TOML-backed loader so the CLI is runnable end to
// end.
package config

import (
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"
)

// OrderedEndpoints preserves insertion order when iterating test-type ->
// endpoint-path pairs. spec.md Invariant 5 requires iteration order to
// equal insertion order; a plain Go map cannot guarantee that.
type OrderedEndpoints struct {
	keys   []string
	values map[string]string
}

// NewOrderedEndpoints builds an empty OrderedEndpoints; iteration order is
// the order in which Set first sees each test-type.
func NewOrderedEndpoints() *OrderedEndpoints {
	return &OrderedEndpoints{values: make(map[string]string)}
}

// Set appends a new test-type/endpoint pair, or overwrites an existing
// one's value in place (order is only established on first insertion).
func (o *OrderedEndpoints) Set(testType, endpoint string) {
	if _, ok := o.values[testType]; !ok {
		o.keys = append(o.keys, testType)
	}
	o.values[testType] = endpoint
}

// Keys returns the test-type names in insertion order.
func (o *OrderedEndpoints) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the endpoint path for a test-type.
func (o *OrderedEndpoints) Get(testType string) (string, bool) {
	v, ok := o.values[testType]
	return v, ok
}

// First returns the first-inserted test-type and its endpoint, used by the
// readiness probe (spec.md §4.3.1, "first key in insertion order").
func (o *OrderedEndpoints) First() (testType, endpoint string, ok bool) {
	if len(o.keys) == 0 {
		return "", "", false
	}
	return o.keys[0], o.values[o.keys[0]], true
}

// Len reports the number of test-types.
func (o *OrderedEndpoints) Len() int { return len(o.keys) }

// Framework describes the framework-under-test's identity.
type Framework struct {
	Name    string   `toml:"name"`
	Authors []string `toml:"authors"`
	GitHub  string   `toml:"github"`
}

// TestDescriptor is the immutable input to one orchestration run (spec.md
// §3). DatabaseKind is empty when no backing database is required.
type TestDescriptor struct {
	FrameworkName  string
	TestName       string
	DockerfilePath string
	DatabaseKind   string
	Endpoints      *OrderedEndpoints
}

// Project groups a framework with the ordered tests sourced from its
// config.toml, mirroring original_source/src/config.rs's Project/Test split.
type Project struct {
	Name      string
	Language  string
	Framework Framework
	Tests     []TestDescriptor
}

// rawConfig mirrors the on-disk TOML shape of a framework's config.toml,
// following original_source/src/config.rs's Config{framework, main, ...}.
type rawConfig struct {
	Framework Framework `toml:"framework"`
}

type rawTest struct {
	Name       string            `toml:"name"`
	URLs       map[string]string `toml:"urls"`
	Database   string            `toml:"database"`
	Dockerfile string            `toml:"dockerfile"`
}

// Load decodes a framework's config.toml at path into a Project. Endpoint
// insertion order follows the order the TOML table declares the `urls`
// keys in, which the toml decoder preserves only via a second raw pass
// (see loadEndpointsInOrder); relying on map iteration here would violate
// Invariant 5.
func Load(path, language string) (*Project, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var raw rawConfig
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	var tree map[string]toml.Primitive
	meta, err := toml.Decode(string(data), &tree)
	if err != nil {
		return nil, fmt.Errorf("decoding config table %s: %w", path, err)
	}

	project := &Project{
		Name:      raw.Framework.Name,
		Language:  language,
		Framework: raw.Framework,
	}

	for _, key := range meta.Keys() {
		if len(key) != 1 || key[0] == "framework" {
			continue
		}
		var rt rawTest
		if err := meta.PrimitiveDecode(tree[key[0]], &rt); err != nil {
			return nil, fmt.Errorf("decoding test block %q: %w", key[0], err)
		}

		testName := strings.ToLower(raw.Framework.Name)
		if key[0] != "main" {
			testName = testName + "-" + key[0]
		}

		endpoints, err := loadEndpointsInOrder(data, key[0])
		if err != nil {
			return nil, err
		}

		project.Tests = append(project.Tests, TestDescriptor{
			FrameworkName:  raw.Framework.Name,
			TestName:       testName,
			DockerfilePath: rt.Dockerfile,
			DatabaseKind:   rt.Database,
			Endpoints:      endpoints,
		})
	}

	return project, nil
}

// loadEndpointsInOrder re-scans the raw TOML text for the `[<block>.urls]`
// table and records keys in the order they appear, since toml.Decode into a
// Go map loses ordering.
func loadEndpointsInOrder(data []byte, block string) (*OrderedEndpoints, error) {
	endpoints := NewOrderedEndpoints()
	lines := strings.Split(string(data), "\n")
	header := fmt.Sprintf("[%s.urls]", block)
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == header:
			inBlock = true
			continue
		case strings.HasPrefix(trimmed, "[") && inBlock:
			inBlock = false
		}
		if !inBlock || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		parts := strings.SplitN(trimmed, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.Trim(strings.TrimSpace(parts[0]), `"`)
		val := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		endpoints.Set(key, val)
	}
	return endpoints, nil
}

// DockerConfig is immutable for the duration of a run (spec.md §3): three
// Engine endpoints and in-network hostnames, a transport flag, a network
// mode, three precomputed network IDs, and the benchmark parameter
// vectors.
type DockerConfig struct {
	UseUnixSocket bool

	ServerDockerHost   string
	ServerHost         string
	DatabaseDockerHost string
	DatabaseHost       string
	ClientDockerHost   string
	ClientHost         string

	NetworkMode string // "bridge" | "host"

	ServerNetworkID   string
	DatabaseNetworkID string
	ClientNetworkID   string

	ConcurrencyLevels           []int
	PipelineConcurrencyLevels   []int
	QueryLevels                 []int
	CachedQueryLevels           []int
	DurationSeconds             int
}

// DefaultDockerConfig mirrors original_source/src/docker/docker_config.rs's
// defaults: communicate over the unix socket unless the server host has
// been overridden away from localhost.
func DefaultDockerConfig(serverHost, databaseHost, clientHost string) DockerConfig {
	const defaultHost = "localhost"
	return DockerConfig{
		UseUnixSocket:             serverHost == defaultHost,
		ServerDockerHost:          serverHost + ":2375",
		ServerHost:                serverHost,
		DatabaseDockerHost:        databaseHost + ":2375",
		DatabaseHost:              databaseHost,
		ClientDockerHost:          clientHost + ":2375",
		ClientHost:                clientHost,
		NetworkMode:               "bridge",
		ConcurrencyLevels:         []int{16, 32, 64},
		PipelineConcurrencyLevels: []int{16, 32, 64},
		QueryLevels:               []int{1, 5, 10, 15, 20},
		CachedQueryLevels:         []int{1, 10, 20, 50, 100},
		DurationSeconds:           15,
	}
}

// Overrides carries the subset of DockerConfig a caller (the CLI flags in
// cmd/setup.go) wants to override on top of DefaultDockerConfig's defaults.
// Zero-value fields are left untouched by ApplyOverrides.
type Overrides struct {
	NetworkMode       string
	ConcurrencyLevels []int
	QueryLevels       []int
	CachedQueryLevels []int
	DurationSeconds   int
}

// ApplyOverrides merges o onto base, leaving any zero-value field in o
// untouched (mergo's default behavior). base is modified in place; only an
// error is returned.
func ApplyOverrides(base *DockerConfig, o Overrides) error {
	if err := mergo.Merge(base, DockerConfig{
		NetworkMode:       o.NetworkMode,
		ConcurrencyLevels: o.ConcurrencyLevels,
		QueryLevels:       o.QueryLevels,
		CachedQueryLevels: o.CachedQueryLevels,
		DurationSeconds:   o.DurationSeconds,
	}, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging config overrides: %w", err)
	}
	return nil
}

// JoinLevels renders a level vector as the comma list the verifier
// container's CONCURRENCY_LEVELS/PIPELINE_CONCURRENCY_LEVELS env vars
// expect (spec.md §6).
func JoinLevels(levels []int) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, ",")
}
