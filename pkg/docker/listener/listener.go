// Package listener implements the Attachment Listeners (spec.md §4.4): byte
// sinks fed arbitrary chunks by the Docker Gateway, each line-robust (a
// chunk may split a line anywhere) and each double-purposing container
// stdout/stderr into logs, embedded JSON control messages, or textual
// metrics to parse.
package listener

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// lineBuffer accumulates bytes across Write calls and yields only complete
// lines, carrying any trailing partial line into the next Write. This is
// the shared plumbing every listener variant below is built on (spec.md §9
// "Streamed parsing").
type lineBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// feed appends p to the buffer and returns the complete lines now available,
// retaining any trailing partial line for the next call.
func (lb *lineBuffer) feed(p []byte) []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.buf.Write(p)

	var lines []string
	for {
		data := lb.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		lb.buf.Next(idx + 1)
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	return lines
}

// flush returns any remaining partial line (used at end-of-stream so a
// final line with no trailing newline is not silently dropped).
func (lb *lineBuffer) flush() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.buf.Len() == 0 {
		return ""
	}
	s := lb.buf.String()
	lb.buf.Reset()
	return s
}

// Sink is any consumer that receives a complete, non-empty log line.
type Sink interface {
	Logf(format string, args ...interface{})
}

// funcSink adapts a plain function to Sink.
type funcSink func(string, ...interface{})

func (f funcSink) Logf(format string, args ...interface{}) { f(format, args...) }

// SinkFunc builds a Sink from a function, convenient for wiring an
// *rpc.OutputWriter's Infof (or similar) without an import cycle.
func SinkFunc(f func(format string, args ...interface{})) Sink {
	return funcSink(f)
}

var _ io.Writer = (*AppLogListener)(nil)

// AppLogListener decodes UTF-8 best-effort and forwards each non-empty line
// to the app log sink (spec.md §4.4 "App-log listener").
type AppLogListener struct {
	lb  lineBuffer
	log Sink
}

// NewAppLogListener builds an AppLogListener writing complete lines to log.
func NewAppLogListener(log Sink) *AppLogListener {
	return &AppLogListener{log: log}
}

func (l *AppLogListener) Write(p []byte) (int, error) {
	for _, line := range l.lb.feed(p) {
		if strings.TrimSpace(line) != "" {
			l.log.Logf("%s", line)
		}
	}
	return len(p), nil
}

// Close flushes any trailing partial line.
func (l *AppLogListener) Close() error {
	if line := l.lb.flush(); strings.TrimSpace(line) != "" {
		l.log.Logf("%s", line)
	}
	return nil
}

// buildEvent is the JSON-line shape emitted by `POST /build` (spec.md §6).
type buildEvent struct {
	Stream  string `json:"stream"`
	Aux     *struct {
		ID string `json:"ID"`
	} `json:"aux"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

var _ io.Writer = (*ImageBuildListener)(nil)

// ImageBuildListener parses each non-empty line of a `POST /build` response
// as JSON, promoting `stream` to the log, `aux.ID` (sha256:-stripped) to
// the resulting image id, and `message`/`error` to a recorded failure
// (spec.md §4.1, §4.4 "Image-build listener").
type ImageBuildListener struct {
	lb  lineBuffer
	log Sink

	mu      sync.Mutex
	imageID string
	errMsg  string
}

// NewImageBuildListener builds an ImageBuildListener writing log lines to log.
func NewImageBuildListener(log Sink) *ImageBuildListener {
	return &ImageBuildListener{log: log}
}

func (l *ImageBuildListener) Write(p []byte) (int, error) {
	for _, line := range l.lb.feed(p) {
		l.consume(line)
	}
	return len(p), nil
}

func (l *ImageBuildListener) consume(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	var ev buildEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		l.log.Logf("%s", line)
		return
	}

	if ev.Stream != "" {
		l.log.Logf("%s", strings.TrimRight(ev.Stream, "\n"))
	}
	if ev.Aux != nil && ev.Aux.ID != "" {
		l.mu.Lock()
		l.imageID = strings.TrimPrefix(ev.Aux.ID, "sha256:")
		l.mu.Unlock()
	}
	msg := ev.Message
	if msg == "" {
		msg = ev.Error
	}
	if msg != "" {
		l.mu.Lock()
		l.errMsg = msg
		l.mu.Unlock()
		l.log.Logf("%s", msg)
	}
}

// Close flushes any trailing partial line.
func (l *ImageBuildListener) Close() error {
	if line := l.lb.flush(); line != "" {
		l.consume(line)
	}
	return nil
}

// ImageID returns the sha256:-stripped image id promoted from `aux.ID`, if any.
func (l *ImageBuildListener) ImageID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.imageID
}

// Err returns a recorded build failure message, if any.
func (l *ImageBuildListener) Err() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errMsg
}

// createEvent is the JSON-line shape emitted by container/network create
// progress streams in dockurl-style wire listeners (spec.md §4.4).
type createEvent struct {
	ID      string `json:"Id"`
	Message string `json:"message"`
}

var _ io.Writer = (*ContainerCreateListener)(nil)

// ContainerCreateListener parses each non-empty line, promoting `Id`
// (first 12 chars) to the output container id and `message` to a recorded
// error (spec.md §4.4 "Container-create listener").
type ContainerCreateListener struct {
	lb  lineBuffer
	log Sink

	mu          sync.Mutex
	containerID string
	errMsg      string
}

// NewContainerCreateListener builds a ContainerCreateListener.
func NewContainerCreateListener(log Sink) *ContainerCreateListener {
	return &ContainerCreateListener{log: log}
}

func (l *ContainerCreateListener) Write(p []byte) (int, error) {
	for _, line := range l.lb.feed(p) {
		l.consume(line)
	}
	return len(p), nil
}

func (l *ContainerCreateListener) consume(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	var ev createEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		l.log.Logf("%s", line)
		return
	}
	if ev.ID != "" {
		id := ev.ID
		if len(id) > 12 {
			id = id[:12]
		}
		l.mu.Lock()
		l.containerID = id
		l.mu.Unlock()
	}
	if ev.Message != "" {
		l.mu.Lock()
		l.errMsg = ev.Message
		l.mu.Unlock()
		l.log.Logf("%s", ev.Message)
	}
}

// ContainerID returns the truncated (12 hex chars) container id, if any.
func (l *ContainerCreateListener) ContainerID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.containerID
}

// Err returns a recorded error message, if any.
func (l *ContainerCreateListener) Err() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errMsg
}

var _ io.Writer = (*NetworkCreateListener)(nil)

// NetworkCreateListener is analogous to ContainerCreateListener but for
// network ids (spec.md §4.4 "Network-create listener").
type NetworkCreateListener struct {
	lb  lineBuffer
	log Sink

	mu        sync.Mutex
	networkID string
	errMsg    string
}

// NewNetworkCreateListener builds a NetworkCreateListener.
func NewNetworkCreateListener(log Sink) *NetworkCreateListener {
	return &NetworkCreateListener{log: log}
}

func (l *NetworkCreateListener) Write(p []byte) (int, error) {
	for _, line := range l.lb.feed(p) {
		l.consume(line)
	}
	return len(p), nil
}

func (l *NetworkCreateListener) consume(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	var ev createEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		l.log.Logf("%s", line)
		return
	}
	if ev.ID != "" {
		l.mu.Lock()
		l.networkID = ev.ID
		l.mu.Unlock()
	}
	if ev.Message != "" {
		l.mu.Lock()
		l.errMsg = ev.Message
		l.mu.Unlock()
		l.log.Logf("%s", ev.Message)
	}
}

// NetworkID returns the created network id, if any.
func (l *NetworkCreateListener) NetworkID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.networkID
}

// Finding is a single warning or error surfaced by the verifier container.
type Finding struct {
	Message      string `json:"message"`
	ShortMessage string `json:"short_message"`
}

type verifierEvent struct {
	Warning *Finding `json:"warning"`
	Error   *Finding `json:"error"`
}

var _ io.Writer = (*VerifierListener)(nil)

// VerifierListener parses each non-empty line; `{"warning":{...}}` /
// `{"error":{...}}` lines accumulate into Warnings/Errors, everything else
// is forwarded to the verification log (spec.md §4.4 "Verifier listener").
type VerifierListener struct {
	lb  lineBuffer
	log Sink

	mu       sync.Mutex
	Warnings []Finding
	Errors   []Finding
}

// NewVerifierListener builds a VerifierListener.
func NewVerifierListener(log Sink) *VerifierListener {
	return &VerifierListener{log: log}
}

func (l *VerifierListener) Write(p []byte) (int, error) {
	for _, line := range l.lb.feed(p) {
		l.consume(line)
	}
	return len(p), nil
}

func (l *VerifierListener) consume(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	var ev verifierEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil || (ev.Warning == nil && ev.Error == nil) {
		l.log.Logf("%s", line)
		return
	}
	l.mu.Lock()
	if ev.Warning != nil {
		l.Warnings = append(l.Warnings, *ev.Warning)
	}
	if ev.Error != nil {
		l.Errors = append(l.Errors, *ev.Error)
	}
	l.mu.Unlock()
	l.log.Logf("%s", line)
}

// Close flushes any trailing partial line.
func (l *VerifierListener) Close() error {
	if line := l.lb.flush(); line != "" {
		l.consume(line)
	}
	return nil
}

// BenchmarkCommands is the single-line JSON object the verifier emits in
// MODE=benchmark (spec.md §4.3 step 4, §6).
type BenchmarkCommands struct {
	PrimerCommand      []string   `json:"primer_command"`
	WarmupCommand      []string   `json:"warmup_command"`
	BenchmarkCommands  [][]string `json:"benchmark_commands"`
}

var _ io.Writer = (*BenchmarkCommandListener)(nil)

// BenchmarkCommandListener accumulates lines until one parses as a whole
// BenchmarkCommands object; everything else is a log line (spec.md §4.4
// "Benchmark-command listener").
type BenchmarkCommandListener struct {
	lb  lineBuffer
	log Sink

	mu       sync.Mutex
	commands *BenchmarkCommands
}

// NewBenchmarkCommandListener builds a BenchmarkCommandListener.
func NewBenchmarkCommandListener(log Sink) *BenchmarkCommandListener {
	return &BenchmarkCommandListener{log: log}
}

func (l *BenchmarkCommandListener) Write(p []byte) (int, error) {
	for _, line := range l.lb.feed(p) {
		l.consume(line)
	}
	return len(p), nil
}

func (l *BenchmarkCommandListener) consume(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	var cmds BenchmarkCommands
	if err := json.Unmarshal([]byte(line), &cmds); err != nil || cmds.PrimerCommand == nil {
		l.log.Logf("%s", line)
		return
	}
	l.mu.Lock()
	l.commands = &cmds
	l.mu.Unlock()
}

// Close flushes any trailing partial line.
func (l *BenchmarkCommandListener) Close() error {
	if line := l.lb.flush(); line != "" {
		l.consume(line)
	}
	return nil
}

// Commands returns the parsed BenchmarkCommands, if one has been seen.
func (l *BenchmarkCommandListener) Commands() *BenchmarkCommands {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commands
}

var _ io.Writer = (*LoadGenOutputListener)(nil)

// LoadGenOutputListener buffers the complete output of a load-generator
// run; Result applies the metric parser at end-of-stream (spec.md §4.4.1).
type LoadGenOutputListener struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	startedMS int64
}

// NewLoadGenOutputListener builds a LoadGenOutputListener, capturing
// startedAtMS (monotonic wall clock in ms) at construction time, per
// spec.md §4.4.1.
func NewLoadGenOutputListener(startedAtMS int64) *LoadGenOutputListener {
	return &LoadGenOutputListener{startedMS: startedAtMS}
}

func (l *LoadGenOutputListener) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

// Result parses the accumulated output into BenchmarkResults.
func (l *LoadGenOutputListener) Result() BenchmarkResults {
	l.mu.Lock()
	text := l.buf.String()
	l.mu.Unlock()
	return ParseBenchmarkOutput(text, l.startedMS)
}

// scanLines is a small helper shared by callers that want to iterate
// complete lines of a fully-buffered string (used by the wrk parser).
func scanLines(text string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
