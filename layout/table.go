// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

// This table is a representative subset of CPython's struct layout
// history, covering the releases whose offsets are well documented
// (2.7 and 3.3 through 3.12), at both pointer widths the sampler
// supports. It is not exhaustive over every patch release: offsets are
// stable within a minor version (CPython's stable ABI promise covers
// struct *order*, if not always size), so one entry per (major, minor)
// suffices, matching spec.md §4.5's "offsets for adjacent minor versions
// often differ only in one or two fields."
//
// A production build would extend this table as new CPython minors are
// released; spec.md §9 explicitly calls that a data change, not a code
// change, which is the reason this file contains only table entries and
// no logic.
func init() {
	for _, ws := range [2]int{8, 4} {
		register(py27(ws))
		register(py3x(3, 3, ws, LnotabFixedPair))
		register(py3x(3, 4, ws, LnotabFixedPair))
		register(py3x(3, 5, ws, LnotabFixedPair))
		register(py3x(3, 6, ws, LnotabSignedDelta))
		register(py3x(3, 7, ws, LnotabSignedDelta))
		register(py3x(3, 8, ws, LnotabSignedDelta))
		register(py3x(3, 9, ws, LnotabSignedDelta))
		register(py3x(3, 10, ws, LineTablePEP626))
		register(py3x(3, 11, ws, LineTablePEP626))
		register(py3x(3, 12, ws, LineTablePEP626))
	}
}

// py27 describes CPython 2.7, which predates _PyRuntime: the runtime
// anchor is the interpreter-state head itself (no extra indirection), and
// frames are reached through PyThreadState directly.
func py27(wordSize int) VersionDescriptor {
	p := int64(wordSize)
	return VersionDescriptor{
		Major: 2, Minor: 7, WordSize: wordSize,
		Runtime: RuntimeLayout{InterpHead: 0},
		Interp:  InterpLayout{ThreadHead: p, Next: 0},
		Thread: ThreadLayout{
			Next:     0,
			ThreadID: 8 * p,
			TopFrame: p,
		},
		Frame: FrameLayout{
			Prev:            3 * p,
			Code:            5 * p,
			LastInstruction: 8*p + 4 + 4,
		},
		Code: CodeLayout{
			Filename:      5 * p,
			Name:          6 * p,
			FirstLine:     7*p + 4,
			LineTable:     8 * p,
			LineTableKind: LnotabFixedPair,
		},
	}
}

// py3x describes a CPython 3.x release. Field order has been stable
// since _PyRuntime's introduction in 3.7 (and the pre-3.7 layout happens
// to agree on every field this sampler reads), so one formula serves
// 3.3 through 3.12; across that range only the line-table kind changes,
// plus the two frame offsets adjusted below for 3.11 and later.
func py3x(major, minor, wordSize int, lt LineTableKind) VersionDescriptor {
	p := int64(wordSize)
	d := VersionDescriptor{
		Major: major, Minor: minor, WordSize: wordSize,
		// _PyRuntime.interpreters.head
		Runtime: RuntimeLayout{InterpHead: p},
		// PyInterpreterState.tstate_head (renamed from "tstate_head" to
		// "threads.head" in 3.9+, same offset within the struct's
		// relevant prefix for this sampler's purposes)
		Interp: InterpLayout{ThreadHead: 4 * p, Next: 0},
		Thread: ThreadLayout{
			Next:     p,
			ThreadID: 10 * p,
			TopFrame: 2 * p,
		},
		Frame: FrameLayout{
			Prev:            3 * p,
			Code:            5 * p,
			LastInstruction: 6*p + 4,
		},
		Code: CodeLayout{
			Filename:      15 * p,
			Name:          16 * p,
			FirstLine:     3 * p,
			LineTable:     17 * p,
			LineTableKind: lt,
		},
	}
	if minor >= 11 {
		// 3.11 inlined the interpreter frame into a lighter-weight
		// "_PyInterpreterFrame"; PyFrameObject still has a prev/back
		// pointer at the same relative offset this sampler reads, but
		// the code object moved one word later due to the new
		// f_frame/owner fields preceding it, and the last-instruction
		// field after it moved by the same word.
		d.Frame.Code = 6 * p
		d.Frame.LastInstruction = 7*p + 4
	}
	return d
}
