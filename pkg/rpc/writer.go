// Package rpc contains OutputWriter, the per-test scoped logger used by the
// orchestrator to tag every line with the framework/test/test-type it
// belongs to, and to optionally mirror it into a rolling log file.
package rpc

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/techempower/tfbtoolset/pkg/logging"

	"go.uber.org/zap"
)

// OutputWriter wraps the process logger with per-test context and an
// optional file sink. A zero value is not usable; construct with New.
type OutputWriter struct {
	mu sync.Mutex

	*zap.SugaredLogger

	dir  string
	file *os.File

	// Quiet suppresses console output while still writing to the file
	// sink, mirroring the `logger.quiet = true` convention used around
	// long, noisy container output (verifier/benchmark runs).
	Quiet bool
}

// New creates an OutputWriter rooted at dir (created if absent) and tagged
// with the given framework/test name.
func New(dir, framework, test string) (*OutputWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir %s: %w", dir, err)
	}
	ow := &OutputWriter{
		SugaredLogger: logging.S().With("framework", framework, "test", test),
		dir:           dir,
	}
	return ow, nil
}

// Discard returns an OutputWriter that drops everything; useful in tests.
func Discard() *OutputWriter {
	return &OutputWriter{SugaredLogger: zap.NewNop().Sugar()}
}

// SetLogFile redirects subsequent Write calls to <dir>/<name>, closing any
// previously open file sink. Matches the per-test-type log file convention
// described in spec.md §4.4 (one rolling log per test-type).
func (ow *OutputWriter) SetLogFile(name string) error {
	ow.mu.Lock()
	defer ow.mu.Unlock()

	if ow.file != nil {
		_ = ow.file.Close()
	}
	if ow.dir == "" {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(ow.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", name, err)
	}
	ow.file = f
	return nil
}

// Close releases the underlying file sink, if any.
func (ow *OutputWriter) Close() error {
	ow.mu.Lock()
	defer ow.mu.Unlock()
	if ow.file == nil {
		return nil
	}
	err := ow.file.Close()
	ow.file = nil
	return err
}

// Write implements io.Writer, appending a raw line to both the console
// (unless Quiet) and the file sink (if one is open). Gateway.ContainerLogs
// callers pass the OutputWriter as the sink to persist container output;
// the listeners in pkg/docker/listener log through Infof instead.
func (ow *OutputWriter) Write(p []byte) (int, error) {
	ow.mu.Lock()
	file := ow.file
	quiet := ow.Quiet
	ow.mu.Unlock()

	if !quiet {
		ow.SugaredLogger.Info(string(p))
	}
	if file != nil {
		if _, err := file.Write(p); err != nil {
			return 0, err
		}
		if len(p) == 0 || p[len(p)-1] != '\n' {
			_, _ = file.Write([]byte("\n"))
		}
	}
	return len(p), nil
}

// With returns a derived OutputWriter sharing the file/dir state but
// carrying additional structured fields, mirroring zap's With semantics
// used pervasively by the teacher (`ow.With("runner", ..., "run_id", ...)`).
func (ow *OutputWriter) With(args ...interface{}) *OutputWriter {
	return &OutputWriter{
		SugaredLogger: ow.SugaredLogger.With(args...),
		dir:           ow.dir,
		file:          ow.file,
		Quiet:         ow.Quiet,
	}
}
