// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"bytes"
	"io"
	"sync/atomic"

	"github.com/cockroachdb/cascades/pkg/util/syncutil"
)

// tShim is the subset of testing.TB used by TestLogScope.
type tShim interface {
	Helper()
	Failed() bool
	Logf(format string, args ...interface{})
}

// TestLogScope represents the lifetime of a logging output redirection
// for a test. Log entries emitted while the scope is active are captured
// in memory and only surfaced through the test's log when it fails.
//
// Use like this:
//
//	func TestFoo(t *testing.T) {
//	  defer log.Scope(t).Close(t)
//	  ...
//	}
type TestLogScope struct {
	buf       *syncBuffer
	restore   func()
	verbosity int32
}

// Scope creates a TestLogScope which captures all log output until
// Close() is called.
func Scope(t tShim) *TestLogScope {
	t.Helper()
	buf := &syncBuffer{}
	return &TestLogScope{
		buf:       buf,
		restore:   SetOutput(buf),
		verbosity: atomic.LoadInt32(&logging.verbosity),
	}
}

// Close restores the previous log destination and verbosity. If the test
// failed, the captured log entries are written to the test log.
func (l *TestLogScope) Close(t tShim) {
	t.Helper()
	l.restore()
	SetVerbosity(l.verbosity)
	if t.Failed() {
		if captured := l.buf.String(); captured != "" {
			t.Logf("captured log entries:\n%s", captured)
		}
	}
}

// Captured returns the log entries written so far within the scope.
func (l *TestLogScope) Captured() string {
	return l.buf.String()
}

type syncBuffer struct {
	mu  syncutil.Mutex
	buf bytes.Buffer
}

var _ io.Writer = (*syncBuffer)(nil)

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
