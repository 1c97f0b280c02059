package results

import (
	"sort"
	"testing"
	"time"

	"github.com/techempower/tfbtoolset/pkg/docker/listener"
)

func TestNewBundleStampsUUIDAndStartTime(t *testing.T) {
	start := time.Unix(1700000000, 0)
	b := NewBundle("example", start)

	if b.UUID == "" {
		t.Error("UUID is empty, want a generated uuid")
	}
	if b.StartTime != start.UnixNano()/int64(time.Millisecond) {
		t.Errorf("StartTime = %d, want %d", b.StartTime, start.UnixNano()/int64(time.Millisecond))
	}
}

func TestRecordVerificationTracksPassFail(t *testing.T) {
	b := NewBundle("example", time.Now())

	passing := &Verification{TypeName: "json"}
	b.RecordVerification(passing)

	failing := &Verification{TypeName: "db"}
	failing.Failed("verifier could not start")
	b.RecordVerification(failing)

	gotPass, ok := b.Verification("json")
	if !ok || !gotPass.Passed() {
		t.Errorf("Verification(json) = (%+v, %v), want a passing verification", gotPass, ok)
	}
	gotFail, ok := b.Verification("db")
	if !ok || gotFail.Passed() {
		t.Errorf("Verification(db) = (%+v, %v), want a failing verification", gotFail, ok)
	}
	if len(gotFail.Errors) != 1 || gotFail.Errors[0].ShortMessage != "Failed to Start" {
		t.Errorf("Errors = %+v, want one Failed to Start finding", gotFail.Errors)
	}
}

func TestRecordVerificationRevokesSuccessOnLaterFailure(t *testing.T) {
	b := NewBundle("example", time.Now())

	v := &Verification{TypeName: "json"}
	b.RecordVerification(v)
	if gv, _ := b.Verification("json"); !gv.Passed() {
		t.Fatal("expected first recording to pass")
	}

	v2 := &Verification{TypeName: "json"}
	v2.Failed("container crashed mid-run")
	b.RecordVerification(v2)

	gv, _ := b.Verification("json")
	if gv.Passed() {
		t.Error("second recording should have overwritten the first with a failure")
	}
}

func TestRecordBenchmarkAppendsInOrder(t *testing.T) {
	b := NewBundle("example", time.Now())
	b.RecordBenchmark("json", listener.BenchmarkResults{RequestsPerSecond: 100})
	b.RecordBenchmark("json", listener.BenchmarkResults{RequestsPerSecond: 200})

	runs := b.BenchmarkRuns("json")
	if len(runs) != 2 {
		t.Fatalf("len(BenchmarkRuns) = %d, want 2", len(runs))
	}
	if runs[0].RequestsPerSecond != 100 || runs[1].RequestsPerSecond != 200 {
		t.Errorf("BenchmarkRuns = %+v, want [100 200] in order", runs)
	}
}

func TestRecordFailureClearsSuccessAndIsObservable(t *testing.T) {
	b := NewBundle("example", time.Now())
	b.RecordVerification(&Verification{TypeName: "plaintext"})
	b.RecordFailure("plaintext", "app container exited before becoming responsive")

	if b.succeeded["plaintext"] {
		t.Error("RecordFailure left plaintext in the succeeded set")
	}
	reason, ok := b.Failed("plaintext")
	if !ok || reason != "app container exited before becoming responsive" {
		t.Errorf("Failed(plaintext) = (%q, %v), want the recorded reason", reason, ok)
	}
}

func TestTestTypesUnionsAllSources(t *testing.T) {
	b := NewBundle("example", time.Now())
	b.RecordVerification(&Verification{TypeName: "json"})
	b.RecordBenchmark("query", listener.BenchmarkResults{})
	b.RecordFailure("db", "boom")

	got := b.TestTypes()
	sort.Strings(got)
	want := []string{"db", "json", "query"}
	if len(got) != len(want) {
		t.Fatalf("TestTypes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TestTypes()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFinishStampsCompletionTime(t *testing.T) {
	b := NewBundle("example", time.Now())
	end := time.Unix(1700000100, 0)
	b.Finish(end)

	if b.CompletionTime != end.UnixNano()/int64(time.Millisecond) {
		t.Errorf("CompletionTime = %d, want %d", b.CompletionTime, end.UnixNano()/int64(time.Millisecond))
	}
}
