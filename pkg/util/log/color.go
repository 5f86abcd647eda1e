// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"os"

	"github.com/cockroachdb/ttycolor"
	"github.com/mattn/go-isatty"
)

// stderrColorProfile is the profile used when entries are written to
// OrigStderr. It is nil when stderr is not a terminal or NO_COLOR is set.
var stderrColorProfile = func() ttycolor.Profile {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return nil
	}
	if !isatty.IsTerminal(OrigStderr.Fd()) {
		return nil
	}
	return ttycolor.StderrProfile
}()

// severityColor returns the escape sequence which starts the severity
// character of an entry.
func severityColor(cp ttycolor.Profile, s Severity) []byte {
	switch s {
	case Severity_INFO:
		return cp[ttycolor.Cyan]
	case Severity_WARNING:
		return cp[ttycolor.Yellow]
	default:
		return cp[ttycolor.Red]
	}
}
