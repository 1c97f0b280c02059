package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
[framework]
name = "Example"
authors = ["a dev"]
github = "techempower/example"

[main]
dockerfile = "example.dockerfile"
database = "postgres"

[main.urls]
json = "/json"
db = "/db"
query = "/queries"
plaintext = "/plaintext"

[cached-queries]
dockerfile = "example.dockerfile"

[cached-queries.urls]
cached = "/cached-queries"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := ioutil.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadParsesFrameworkAndTests(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	project, err := Load(path, "go")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if project.Framework.Name != "Example" {
		t.Errorf("Framework.Name = %q, want %q", project.Framework.Name, "Example")
	}
	if project.Language != "go" {
		t.Errorf("Language = %q, want %q", project.Language, "go")
	}
	if len(project.Tests) != 2 {
		t.Fatalf("len(Tests) = %d, want 2", len(project.Tests))
	}

	byName := map[string]TestDescriptor{}
	for _, test := range project.Tests {
		byName[test.TestName] = test
	}

	main, ok := byName["example"]
	if !ok {
		t.Fatalf("missing main test, got names %v", keysOf(byName))
	}
	if main.DatabaseKind != "postgres" {
		t.Errorf("main.DatabaseKind = %q, want %q", main.DatabaseKind, "postgres")
	}

	cq, ok := byName["example-cached-queries"]
	if !ok {
		t.Fatalf("missing cached-queries test, got names %v", keysOf(byName))
	}
	if cq.DatabaseKind != "" {
		t.Errorf("cached-queries.DatabaseKind = %q, want empty", cq.DatabaseKind)
	}
}

func keysOf(m map[string]TestDescriptor) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// TestLoadPreservesEndpointInsertionOrder covers Invariant 5: endpoint
// iteration order must equal the order urls are declared in the TOML, which
// a plain map cannot guarantee.
func TestLoadPreservesEndpointInsertionOrder(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	project, err := Load(path, "go")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var main TestDescriptor
	for _, test := range project.Tests {
		if test.TestName == "example" {
			main = test
		}
	}

	want := []string{"json", "db", "query", "plaintext"}
	got := main.Endpoints.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i, k := range want {
		if got[i] != k {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], k)
		}
	}

	firstType, firstPath, ok := main.Endpoints.First()
	if !ok || firstType != "json" || firstPath != "/json" {
		t.Errorf("First() = (%q, %q, %v), want (json, /json, true)", firstType, firstPath, ok)
	}
}

func TestOrderedEndpointsSetOverwritesInPlace(t *testing.T) {
	e := NewOrderedEndpoints()
	e.Set("json", "/json")
	e.Set("db", "/db")
	e.Set("json", "/json-v2") // overwrite, must not move position

	if got := e.Keys(); len(got) != 2 || got[0] != "json" || got[1] != "db" {
		t.Fatalf("Keys() = %v, want [json db]", got)
	}
	v, ok := e.Get("json")
	if !ok || v != "/json-v2" {
		t.Errorf("Get(json) = (%q, %v), want (/json-v2, true)", v, ok)
	}
}

func TestDefaultDockerConfigUsesUnixSocketOnlyForLocalhost(t *testing.T) {
	local := DefaultDockerConfig("localhost", "localhost", "localhost")
	if !local.UseUnixSocket {
		t.Error("UseUnixSocket = false for localhost server host, want true")
	}

	remote := DefaultDockerConfig("10.0.0.5", "10.0.0.6", "10.0.0.7")
	if remote.UseUnixSocket {
		t.Error("UseUnixSocket = true for a remote server host, want false")
	}
	if remote.ServerDockerHost != "10.0.0.5:2375" {
		t.Errorf("ServerDockerHost = %q, want %q", remote.ServerDockerHost, "10.0.0.5:2375")
	}
}

func TestApplyOverridesLeavesZeroValuesUntouched(t *testing.T) {
	cfg := DefaultDockerConfig("localhost", "localhost", "localhost")
	originalQueryLevels := cfg.QueryLevels

	if err := ApplyOverrides(&cfg, Overrides{NetworkMode: "host"}); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}

	if cfg.NetworkMode != "host" {
		t.Errorf("NetworkMode = %q, want %q", cfg.NetworkMode, "host")
	}
	if len(cfg.QueryLevels) != len(originalQueryLevels) {
		t.Errorf("QueryLevels = %v, want untouched default %v", cfg.QueryLevels, originalQueryLevels)
	}
}

func TestApplyOverridesReplacesNonZeroVectors(t *testing.T) {
	cfg := DefaultDockerConfig("localhost", "localhost", "localhost")

	if err := ApplyOverrides(&cfg, Overrides{ConcurrencyLevels: []int{8, 256}, DurationSeconds: 30}); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}

	if len(cfg.ConcurrencyLevels) != 2 || cfg.ConcurrencyLevels[0] != 8 || cfg.ConcurrencyLevels[1] != 256 {
		t.Errorf("ConcurrencyLevels = %v, want [8 256]", cfg.ConcurrencyLevels)
	}
	if cfg.DurationSeconds != 30 {
		t.Errorf("DurationSeconds = %d, want 30", cfg.DurationSeconds)
	}
}

func TestJoinLevels(t *testing.T) {
	if got := JoinLevels([]int{16, 32, 64}); got != "16,32,64" {
		t.Errorf("JoinLevels = %q, want %q", got, "16,32,64")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(os.TempDir(), "does-not-exist.toml"), "go"); err == nil {
		t.Fatal("Load of a missing file returned nil error, want an error")
	}
}
