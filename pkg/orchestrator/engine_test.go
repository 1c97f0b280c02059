package orchestrator

import (
	"testing"

	"github.com/techempower/tfbtoolset/pkg/config"
)

func testEngine() *Engine {
	cfg := config.DefaultDockerConfig("localhost", "localhost", "localhost")
	return &Engine{Cfg: cfg}
}

func TestVerifierSpecBuildsEnvContract(t *testing.T) {
	e := testEngine()
	test := config.TestDescriptor{FrameworkName: "example", TestName: "example", DatabaseKind: "postgres"}

	spec := e.verifierSpec(test, "json", "/json", "8080", "verify")

	want := map[string]string{
		"MODE":                        "verify",
		"PORT":                        "8080",
		"ENDPOINT":                    "/json",
		"TEST_TYPE":                   "json",
		"CONCURRENCY_LEVELS":          "16,32,64",
		"PIPELINE_CONCURRENCY_LEVELS": "16,32,64",
		"DATABASE":                    "postgres",
	}
	got := envToMap(spec.Env)
	for k, v := range want {
		if got[k] != v {
			t.Errorf("env[%q] = %q, want %q", k, got[k], v)
		}
	}
	if spec.Image != verifierImage {
		t.Errorf("Image = %q, want %q", spec.Image, verifierImage)
	}
}

func TestVerifierSpecOmitsDatabaseWhenTestHasNone(t *testing.T) {
	e := testEngine()
	test := config.TestDescriptor{FrameworkName: "example", TestName: "example"}

	spec := e.verifierSpec(test, "plaintext", "/plaintext", "8080", "benchmark")

	got := envToMap(spec.Env)
	if _, ok := got["DATABASE"]; ok {
		t.Errorf("env contains DATABASE=%q for a test with no database kind, want absent", got["DATABASE"])
	}
	if got["MODE"] != "benchmark" {
		t.Errorf("env[MODE] = %q, want benchmark", got["MODE"])
	}
}

func envToMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				m[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return m
}
