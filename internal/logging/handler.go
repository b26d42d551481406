package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	// MaxLineLength is the maximum length of a forwarded line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per process.
	MaxBufferedLines = 100

	// maxScanLine is the longest line the scanner accepts before giving up
	// and discarding the rest of the stream.
	maxScanLine = 1024 * 1024
)

// OutputForwarder relays a child process's stdout/stderr lines to the log
// sink and keeps a small ring of recent lines for failure reports.
type OutputForwarder struct {
	logger  *slog.Logger
	verbose bool

	buffer []string
	bufIdx int
	count  int
	mu     sync.Mutex
}

// NewOutputForwarder creates a forwarder. logger should already carry the
// runtime attribute. In non-verbose mode stdout lines are logged at debug
// and stderr lines at warn.
func NewOutputForwarder(logger *slog.Logger, verbose bool) *OutputForwarder {
	return &OutputForwarder{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// Forward reads r line by line until EOF. stream is "stdout" or "stderr".
// The reader is always drained so the child never blocks on a full pipe.
func (f *OutputForwarder) Forward(r io.Reader, stream string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxScanLine)

	for scanner.Scan() {
		f.HandleLine(stream, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		f.logger.Warn("output_scan_stopped", "stream", stream, "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
	return nil
}

// HandleLine records and logs a single line.
func (f *OutputForwarder) HandleLine(stream, line string) {
	if len(line) > MaxLineLength {
		n := MaxLineLength
		for n > 0 && !utf8.RuneStart(line[n]) {
			n--
		}
		line = line[:n] + "...(truncated)"
	}

	f.mu.Lock()
	f.buffer[f.bufIdx] = line
	f.bufIdx = (f.bufIdx + 1) % MaxBufferedLines
	if f.count < MaxBufferedLines {
		f.count++
	}
	f.mu.Unlock()

	f.logger.Log(context.Background(), f.levelFor(stream, line), "runtime_output",
		"stream", stream,
		"line", line,
	)
}

func (f *OutputForwarder) levelFor(stream, line string) slog.Level {
	if f.verbose {
		return slog.LevelInfo
	}
	lower := strings.ToLower(line)
	if stream == "stderr" || strings.Contains(lower, "error") {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (f *OutputForwarder) RecentLines(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n > f.count {
		n = f.count
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (f.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, f.buffer[idx])
	}
	return lines
}
