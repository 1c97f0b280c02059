package orchestrator

import (
	"errors"
	"strings"
	"testing"
)

func TestHealthcheckReportOK(t *testing.T) {
	r := &HealthcheckReport{}
	if !r.OK() {
		t.Error("OK() = false for a report with no errors, want true")
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}
}

func TestHealthcheckReportCombinesFailures(t *testing.T) {
	r := &HealthcheckReport{
		Server:   errors.New("server unreachable"),
		Database: errors.New("database unreachable"),
	}
	if r.OK() {
		t.Error("OK() = true for a report with recorded errors, want false")
	}
	err := r.Err()
	if err == nil {
		t.Fatal("Err() = nil, want a combined error")
	}
	if !strings.Contains(err.Error(), "server unreachable") || !strings.Contains(err.Error(), "database unreachable") {
		t.Errorf("Err() = %q, want it to mention both failures", err.Error())
	}
}
