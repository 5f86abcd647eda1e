// Copyright 2015 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/ttycolor"
)

// logEntry is a single formatted log record before it hits the output.
type logEntry struct {
	sev     Severity
	time    time.Time
	file    string
	line    int
	tags    string
	message redact.RedactableString
	stacks  []byte
}

// FormatWithContextTags formats the string and prepends the context
// tags.
//
// Redaction markers are *not* inserted. The resulting
// string is generally unsafe for reporting.
func FormatWithContextTags(ctx context.Context, format string, args ...interface{}) string {
	var buf strings.Builder
	if formatTags(ctx, &buf) {
		buf.WriteByte(' ')
	}
	buf.WriteString(redact.Sprintf(format, args...).StripMarkers())
	return buf.String()
}

// formatTags appends the tags to a strings.Builder. If there are no tags,
// returns false.
func formatTags(ctx context.Context, buf *strings.Builder) bool {
	tags := logtags.FromContext(ctx)
	if tags == nil || len(tags.Get()) == 0 {
		return false
	}
	buf.WriteByte('[')
	tags.FormatToString(buf)
	buf.WriteByte(']')
	return true
}

func makeEntry(
	ctx context.Context, sev Severity, depth int, format string, args []interface{},
) logEntry {
	e := logEntry{sev: sev, time: time.Now().UTC()}
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		e.file = filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file))
		e.line = line
	} else {
		e.file = "???"
	}
	var tagBuf strings.Builder
	if formatTags(ctx, &tagBuf) {
		e.tags = tagBuf.String()
	}
	if len(args) == 0 {
		e.message = redact.Sprint(redact.Safe(format))
	} else {
		e.message = redact.Sprintf(format, args...)
	}
	return e
}

// addStructured creates a structured log entry to be written to the
// configured output, and terminates the process for fatal entries.
func addStructured(
	ctx context.Context, sev Severity, depth int, format string, args []interface{},
) {
	entry := makeEntry(ctx, sev, depth+1, format, args)

	logging.mu.Lock()
	if sev < logging.mu.minSeverity && sev != Severity_FATAL {
		logging.mu.Unlock()
		return
	}
	if sev == Severity_FATAL && !logging.mu.exitOverride.hideStack {
		entry.stacks = debug.Stack()
	}
	out := logging.mu.out
	buf := formatEntry(entry, logging.mu.redactable, out == OrigStderr)
	_, _ = out.Write(buf)
	exitFn := logging.mu.exitOverride.f
	logging.mu.Unlock()

	if sev == Severity_FATAL {
		exit(exitFn, 255)
	}
}

// formatEntry renders an entry in the form:
//
//	Lyymmdd hh:mm:ss.uuuuuu file:line  [tags] msg
//
// where L is the severity character.
func formatEntry(e logEntry, redactable bool, tty bool) []byte {
	var buf strings.Builder
	var cp ttycolor.Profile
	if tty {
		cp = stderrColorProfile
	}
	// Indexing a nil profile yields empty sequences.
	buf.Write(severityColor(cp, e.sev))
	buf.WriteByte(e.sev.char())
	buf.Write(cp[ttycolor.Reset])
	buf.Write(cp[ttycolor.Gray])
	buf.WriteString(e.time.Format("060102 15:04:05.000000"))
	buf.Write(cp[ttycolor.Reset])
	fmt.Fprintf(&buf, " %s:%d ", e.file, e.line)
	if e.tags != "" {
		buf.WriteByte(' ')
		buf.WriteString(e.tags)
	}
	buf.WriteByte(' ')
	if redactable {
		buf.WriteString(string(e.message))
	} else {
		buf.WriteString(e.message.StripMarkers())
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteByte('\n')
	}
	if len(e.stacks) > 0 {
		buf.Write(e.stacks)
	}
	return []byte(buf.String())
}
