package docker

import (
	"archive/tar"
	"io"
	"io/ioutil"
	"testing"
)

func TestExtractPortBindingsBridgeModePicksLowestNumberedPort(t *testing.T) {
	insp := &Inspection{
		ExposedPorts: []string{"9090/tcp", "8080/tcp"},
		PortBindings: map[string]string{
			"9090/tcp": "49152",
			"8080/tcp": "49153",
		},
	}

	hostPort, internalPort, err := ExtractPortBindings(insp, "bridge")
	if err != nil {
		t.Fatalf("ExtractPortBindings: %v", err)
	}
	if hostPort != "49153" || internalPort != "8080" {
		t.Errorf("got (%q, %q), want (49153, 8080)", hostPort, internalPort)
	}
}

// TestExtractPortBindingsHostMode covers spec.md §8 scenario 6: in host
// network mode, exposed and published are identical regardless of any
// network_settings.ports entries.
func TestExtractPortBindingsHostMode(t *testing.T) {
	insp := &Inspection{ExposedPorts: []string{"8080/tcp"}}

	hostPort, internalPort, err := ExtractPortBindings(insp, "host")
	if err != nil {
		t.Fatalf("ExtractPortBindings: %v", err)
	}
	if hostPort != "8080" || internalPort != "8080" {
		t.Errorf("got (%q, %q), want (8080, 8080)", hostPort, internalPort)
	}
}

func TestExtractPortBindingsNoExposedPorts(t *testing.T) {
	if _, _, err := ExtractPortBindings(&Inspection{}, "bridge"); err == nil {
		t.Fatal("expected an error for a container that exposes no ports")
	}
}

func TestExtractPortBindingsMissingBridgeBindingIsAnError(t *testing.T) {
	insp := &Inspection{ExposedPorts: []string{"8080/tcp"}, PortBindings: map[string]string{}}
	if _, _, err := ExtractPortBindings(insp, "bridge"); err == nil {
		t.Fatal("expected an error when the bridge-mode binding is missing")
	}
}

func TestFiltersForBuildsNameValuePairs(t *testing.T) {
	args := filtersFor("reference", "example:latest")
	if !args.Contains("reference") {
		t.Fatal("filtersFor did not set the \"reference\" key")
	}
	if !args.Match("reference", "example:latest") {
		t.Error("filtersFor did not record the expected value")
	}
}

func TestTarSingleFileProducesAReadableArchive(t *testing.T) {
	r, err := tarSingleFile("Dockerfile", []byte("FROM scratch\n"))
	if err != nil {
		t.Fatalf("tarSingleFile: %v", err)
	}

	tr := tar.NewReader(r)
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("reading tar header: %v", err)
	}
	if hdr.Name != "Dockerfile" {
		t.Errorf("header name = %q, want Dockerfile", hdr.Name)
	}

	contents, err := ioutil.ReadAll(tr)
	if err != nil {
		t.Fatalf("reading tar contents: %v", err)
	}
	if string(contents) != "FROM scratch\n" {
		t.Errorf("contents = %q, want %q", contents, "FROM scratch\n")
	}
	if _, err := tr.Next(); err != io.EOF {
		t.Errorf("expected a single-entry archive, got extra entry (err=%v)", err)
	}
}
