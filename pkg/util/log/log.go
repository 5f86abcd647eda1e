// Copyright 2015 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log implements leveled, context-aware logging for the optimizer.
//
// Every entry carries the logging tags attached to its context (see
// github.com/cockroachdb/logtags) and is rendered through
// github.com/cockroachdb/redact, so that values which are not marked safe can
// be stripped from the output when redactable logs are enabled.
package log

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/cascades/pkg/util/syncutil"
)

// Severity identifies the sort of log: info, warning etc.
type Severity int32

// The severities understood by the logger, in increasing order.
const (
	Severity_UNKNOWN Severity = iota
	Severity_INFO
	Severity_WARNING
	Severity_ERROR
	Severity_FATAL
)

var severityChars = [...]byte{'U', 'I', 'W', 'E', 'F'}

var severityNames = [...]string{"UNKNOWN", "INFO", "WARNING", "ERROR", "FATAL"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return severityNames[0]
	}
	return severityNames[s]
}

func (s Severity) char() byte {
	if s < 0 || int(s) >= len(severityChars) {
		return severityChars[0]
	}
	return severityChars[s]
}

// OrigStderr points to the original stderr stream.
var OrigStderr = os.Stderr

// loggingT collects all the global state of the logging setup.
type loggingT struct {
	// verbosity is the V() threshold. Accessed atomically.
	verbosity int32

	mu struct {
		syncutil.Mutex

		// out receives formatted entries. Defaults to OrigStderr.
		out io.Writer
		// redactable, when set, keeps the redaction markers in the output.
		redactable bool
		// minSeverity suppresses entries below this severity.
		minSeverity Severity

		exitOverride struct {
			f         func(int) // overrides os.Exit when non-nil; testing only
			hideStack bool      // hides stack traces on fatal calls
		}
	}
}

var logging = func() *loggingT {
	l := &loggingT{}
	l.mu.out = OrigStderr
	l.mu.minSeverity = Severity_INFO
	return l
}()

// V returns true if the logging verbosity is set to the specified level or
// higher.
//
// See also the documentation for VEventf.
func V(level int32) bool {
	return VDepth(level, 1)
}

// VDepth reports whether verbosity at the call site is at least the requested
// level. The depth argument is kept for parity with per-file verbosity
// filtering.
func VDepth(level int32, depth int) bool {
	return atomic.LoadInt32(&logging.verbosity) >= level
}

// SetVerbosity sets the global V() threshold and returns the previous one.
func SetVerbosity(level int32) (prev int32) {
	return atomic.SwapInt32(&logging.verbosity, level)
}

// SetOutput redirects log entries to w and returns a function which restores
// the previous destination.
func SetOutput(w io.Writer) (restore func()) {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	prev := logging.mu.out
	logging.mu.out = w
	return func() {
		logging.mu.Lock()
		defer logging.mu.Unlock()
		logging.mu.out = prev
	}
}

// SetRedactable controls whether redaction markers are kept in the output.
func SetRedactable(redactable bool) {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	logging.mu.redactable = redactable
}

// SetMinSeverity suppresses all entries below the given severity. Fatal
// entries are always emitted.
func SetMinSeverity(s Severity) {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	if s > Severity_FATAL {
		s = Severity_FATAL
	}
	logging.mu.minSeverity = s
}

// Infof logs to the INFO log.
// It extracts log tags from the context and logs them along with the given
// message. Arguments are handled in the manner of fmt.Printf; a newline is
// appended if missing.
func Infof(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, Severity_INFO, 1, format, args)
}

// Warningf logs to the WARNING and INFO logs.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, Severity_WARNING, 1, format, args)
}

// Errorf logs to the ERROR, WARNING, and INFO logs.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, Severity_ERROR, 1, format, args)
}

// Fatalf logs to the INFO, WARNING, ERROR, and FATAL logs, including a stack
// trace of all running goroutines, then calls os.Exit(255) or the function
// installed with SetExitFunc.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, Severity_FATAL, 1, format, args)
}

// VEventf logs to the INFO log if the verbosity is at least the given level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if VDepth(level, 1) {
		addStructured(ctx, Severity_INFO, 1, format, args)
	}
}

// InfofDepth logs to the INFO log, offsetting the caller's stack frame by
// 'depth'.
func InfofDepth(ctx context.Context, depth int, format string, args ...interface{}) {
	addStructured(ctx, Severity_INFO, depth+1, format, args)
}
