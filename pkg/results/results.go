// Package results holds the data the Orchestration Engine populates as it
// runs: per-(test, test-type) Verification records and BenchmarkResults,
// gathered into a Bundle. Persisting a Bundle to disk is an external
// collaborator concern (spec.md §3 "produced but owned by an external
// collaborator"); this package supplies the populate-side data and a
// narrow Writer contract for that collaborator.
package results

import (
	"sync"
	"time"

	"github.com/techempower/tfbtoolset/pkg/docker/listener"

	"github.com/google/uuid"
)

// Verification is the outcome of running a verifier container in
// MODE=verify against one test-type's endpoint (spec.md §3).
type Verification struct {
	Framework string
	TestName  string
	TypeName  string

	Warnings []listener.Finding
	Errors   []listener.Finding
}

// Passed reports whether this Verification carries no recorded errors.
func (v *Verification) Passed() bool { return len(v.Errors) == 0 }

// Failed records a synthetic "Failed to Start" error, per spec.md §7
// ("Verifier failure to start: record a synthetic error into
// Verification").
func (v *Verification) Failed(reason string) {
	v.Errors = append(v.Errors, listener.Finding{Message: reason, ShortMessage: "Failed to Start"})
}

// Git carries the repository commit this run measured, populated by the
// collaborator that invokes the orchestrator (original_source/src/results.rs Git).
type Git struct {
	CommitID      string
	RepositoryURL string
	Branch        string
}

// MetaData carries descriptive, non-semantic fields about the run's
// environment (original_source/src/results.rs MetaData); the core does not
// interpret these, only carries them through to the Bundle.
type MetaData struct {
	Description string
	Environment string
}

// Bundle is the per-run results record (spec.md §3 "Results bundle"):
// per-test-type maps of raw benchmark data, verification outcomes,
// success/failure sets, and completion timestamps.
type Bundle struct {
	UUID          string
	Name          string
	StartTime     int64
	CompletionTime int64

	Git      *Git
	MetaData *MetaData

	mu         sync.Mutex
	rawData    map[string][]listener.BenchmarkResults
	verify     map[string]*Verification
	succeeded  map[string]bool
	failed     map[string]string
	completed  map[string]int64
}

// NewBundle constructs an empty Bundle, stamping a fresh uuid and
// start-time, matching original_source/src/results.rs's
// `Uuid::from_u128`/`SystemTime::now` construction.
func NewBundle(name string, startTime time.Time) *Bundle {
	return &Bundle{
		UUID:      uuid.New().String(),
		Name:      name,
		StartTime: startTime.UnixNano() / int64(time.Millisecond),
		rawData:   make(map[string][]listener.BenchmarkResults),
		verify:    make(map[string]*Verification),
		succeeded: make(map[string]bool),
		failed:    make(map[string]string),
		completed: make(map[string]int64),
	}
}

// RecordVerification stores a Verification under its test-type key.
func (b *Bundle) RecordVerification(v *Verification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verify[v.TypeName] = v
	if v.Passed() {
		b.succeeded[v.TypeName] = true
	} else {
		delete(b.succeeded, v.TypeName)
	}
}

// RecordBenchmark appends a completed load-generator run's parsed results
// under testType (spec.md §4.3 step 4 "only the final benchmark_commands[]
// results are retained").
func (b *Bundle) RecordBenchmark(testType string, res listener.BenchmarkResults) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rawData[testType] = append(b.rawData[testType], res)
}

// RecordFailure marks testType as failed with reason, per spec.md §7's
// per-test-type failure recording.
func (b *Bundle) RecordFailure(testType, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed[testType] = reason
	delete(b.succeeded, testType)
}

// RecordCompletion stamps testType's completion time, in epoch ms.
func (b *Bundle) RecordCompletion(testType string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed[testType] = at.UnixNano() / int64(time.Millisecond)
}

// Verification returns the recorded Verification for testType, if any.
func (b *Bundle) Verification(testType string) (*Verification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.verify[testType]
	return v, ok
}

// BenchmarkRuns returns the recorded benchmark runs for testType.
func (b *Bundle) BenchmarkRuns(testType string) []listener.BenchmarkResults {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]listener.BenchmarkResults, len(b.rawData[testType]))
	copy(out, b.rawData[testType])
	return out
}

// Failed reports whether testType has a recorded failure and its reason.
func (b *Bundle) Failed(testType string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reason, ok := b.failed[testType]
	return reason, ok
}

// TestTypes returns every test-type this bundle has recorded a
// verification, benchmark run, or failure for.
func (b *Bundle) TestTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]bool)
	for k := range b.verify {
		seen[k] = true
	}
	for k := range b.rawData {
		seen[k] = true
	}
	for k := range b.failed {
		seen[k] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// Finish stamps the bundle's completion time.
func (b *Bundle) Finish(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CompletionTime = at.UnixNano() / int64(time.Millisecond)
}

// Writer is the external collaborator contract for persisting a finished
// Bundle (spec.md §3 "produced but owned by an external collaborator").
type Writer interface {
	Write(*Bundle) error
}
