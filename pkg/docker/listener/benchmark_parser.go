package listener

import (
	"regexp"
	"strconv"
	"strings"
)

// LatencyStats carries the average/stdev/max/±stdev quadruple reported for
// both latency and req/sec blocks (spec.md §3 BenchmarkResults). Values are
// kept as-typed strings (e.g. "1.23ms", "42.5k") per spec.md §4.4.1.
type LatencyStats struct {
	Average         string
	Stdev           string
	Max             string
	PlusMinusStdev  string
}

// SocketErrors is optional (spec.md §3).
type SocketErrors struct {
	Connect int
	Read    int
	Write   int
	Timeout int
}

// BenchmarkResults is the structured result of parsing one load-generator
// run's textual output (spec.md §3, §4.4.1).
type BenchmarkResults struct {
	StartMS int64
	EndMS   int64

	Threads     int
	Connections int

	Latency LatencyStats
	ReqSec  LatencyStats

	Percentile50 string
	Percentile75 string
	Percentile90 string
	Percentile99 string

	TotalRequests   int
	DurationSeconds float64
	BytesRead       string

	SocketErrors *SocketErrors
	Non2xx3xxCount *int

	RequestsPerSecond float64
	TransferPerSecond string
}

var (
	reThreadsConns   = regexp.MustCompile(`(\d+)\s+threads and\s+(\d+)\s+connections`)
	reLatencyBlock   = regexp.MustCompile(`^\s*Latency\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)%?`)
	reReqSecBlock    = regexp.MustCompile(`^\s*Req/Sec\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)%?`)
	reRequestsInTime = regexp.MustCompile(`(\d+)\s+requests in\s+([\d.]+)\s*s,\s*([\d.]+\S*)\s*read`)
	rePercentile     = regexp.MustCompile(`^\s*(50|75|90|99)%\s+(\S+)`)
	reSocketErrors   = regexp.MustCompile(`Socket errors:\s*connect\s+(\d+),\s*read\s+(\d+),\s*write\s+(\d+),\s*timeout\s+(\d+)`)
	reNon2xx3xx      = regexp.MustCompile(`Non-2xx or 3xx responses:\s*(\d+)`)
	reRequestsPerSec = regexp.MustCompile(`Requests/sec:\s*([\d.]+)`)
	reTransferPerSec = regexp.MustCompile(`Transfer/sec:\s*(\S+)`)
)

// ParseBenchmarkOutput scans a full load-generator transcript line by line
// for the fixed-shape patterns listed in spec.md §4.4.1. Missing optional
// fields (socket errors, non-2xx/3xx) are left nil; missing latency/req-sec
// blocks yield the zero-value LatencyStats (empty strings), never an error.
func ParseBenchmarkOutput(text string, startMS int64) BenchmarkResults {
	results := BenchmarkResults{StartMS: startMS}

	for _, line := range scanLines(text) {
		switch {
		case reThreadsConns.MatchString(line):
			m := reThreadsConns.FindStringSubmatch(line)
			results.Threads, _ = strconv.Atoi(m[1])
			results.Connections, _ = strconv.Atoi(m[2])

		case reLatencyBlock.MatchString(line):
			m := reLatencyBlock.FindStringSubmatch(line)
			results.Latency = LatencyStats{Average: m[1], Stdev: m[2], Max: m[3], PlusMinusStdev: m[4]}

		case reReqSecBlock.MatchString(line):
			m := reReqSecBlock.FindStringSubmatch(line)
			results.ReqSec = LatencyStats{Average: m[1], Stdev: m[2], Max: m[3], PlusMinusStdev: m[4]}

		case reRequestsInTime.MatchString(line):
			m := reRequestsInTime.FindStringSubmatch(line)
			results.TotalRequests, _ = strconv.Atoi(m[1])
			results.DurationSeconds, _ = strconv.ParseFloat(m[2], 64)
			results.BytesRead = m[3]

		case rePercentile.MatchString(line):
			m := rePercentile.FindStringSubmatch(line)
			switch m[1] {
			case "50":
				results.Percentile50 = m[2]
			case "75":
				results.Percentile75 = m[2]
			case "90":
				results.Percentile90 = m[2]
			case "99":
				results.Percentile99 = m[2]
			}

		case reSocketErrors.MatchString(line):
			m := reSocketErrors.FindStringSubmatch(line)
			connect, _ := strconv.Atoi(m[1])
			read, _ := strconv.Atoi(m[2])
			write, _ := strconv.Atoi(m[3])
			timeout, _ := strconv.Atoi(m[4])
			results.SocketErrors = &SocketErrors{Connect: connect, Read: read, Write: write, Timeout: timeout}

		case reNon2xx3xx.MatchString(line):
			m := reNon2xx3xx.FindStringSubmatch(line)
			n, _ := strconv.Atoi(m[1])
			results.Non2xx3xxCount = &n

		case reRequestsPerSec.MatchString(line):
			m := reRequestsPerSec.FindStringSubmatch(line)
			results.RequestsPerSecond, _ = strconv.ParseFloat(m[1], 64)

		case reTransferPerSec.MatchString(line):
			m := reTransferPerSec.FindStringSubmatch(line)
			results.TransferPerSecond = strings.TrimSpace(m[1])
		}
	}

	results.EndMS = startMS + int64(results.DurationSeconds*1000)
	return results
}
