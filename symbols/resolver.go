// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbols matches the small, fixed set of anchor symbols the
// Runtime Probe needs against a binary's dynamic symbol table (spec.md §2
// "Symbol Resolver", ~5% of the core).
//
// This is a narrower, read-only cousin of golang.org/x/debug/internal/
// core.Process.Symbols, which builds a name->address map of every symbol
// in a core dump for general-purpose lookup (breakpoints, expression
// evaluation). The sampler only ever needs two names, so instead of
// building a full map it counts down a required set and reports when
// every anchor has been found, matching spec.md §4.4's "stop once the
// required set is satisfied" / §4.3's short-circuit instruction.
package symbols

import (
	"github.com/austin-profiler/austin/binfmt"
	"github.com/austin-profiler/austin/remote"
)

// Runtime state anchor names. CPython exports both as data symbols in
// libpython/the main executable; "interp_head" is the historical name
// for the interpreter-state head before _PyRuntime consolidated it.
const (
	AnchorRuntimeState = "_PyRuntime"
	AnchorThreadHead    = "_PyThreadState_Current" // pre-3.7 fallback anchor
)

// RequiredAnchors is the fixed set the Resolver needs; spec.md §3 requires
// "exactly one must be non-null for sampling to proceed."
var RequiredAnchors = []string{AnchorRuntimeState, AnchorThreadHead}

// RuntimeAnchors holds the remote addresses of whichever anchor symbols
// were resolved. At least one of the two is set after a successful
// Resolve; both may be set on older CPython builds that export both
// names.
type RuntimeAnchors struct {
	RuntimeState remote.Address
	HasRuntimeState bool

	ThreadHead remote.Address
	HasThreadHead bool
}

// Any reports whether at least one anchor was resolved, the precondition
// spec.md §3 states for sampling to proceed.
func (a RuntimeAnchors) Any() bool {
	return a.HasRuntimeState || a.HasThreadHead
}

// Resolve matches img's dynamic symbols against RequiredAnchors and
// computes each resolved anchor's remote address as
// regionBase + (sym.Value - img.LoadBias), short-circuiting once both
// names have been seen (spec.md §4.3/§4.4).
func Resolve(img *binfmt.BinaryImage, regionBase remote.Address) RuntimeAnchors {
	var out RuntimeAnchors
	for _, sym := range img.Symbols {
		switch sym.Name {
		case AnchorRuntimeState:
			out.RuntimeState = regionBase.Add(int64(sym.Value) - img.LoadBias)
			out.HasRuntimeState = true
		case AnchorThreadHead:
			out.ThreadHead = regionBase.Add(int64(sym.Value) - img.LoadBias)
			out.HasThreadHead = true
		}
		if out.HasRuntimeState && out.HasThreadHead {
			break
		}
	}
	return out
}

// Count reports how many of RequiredAnchors were resolved, for
// diagnostics ("Reports the count of resolved anchors").
func (a RuntimeAnchors) Count() int {
	n := 0
	if a.HasRuntimeState {
		n++
	}
	if a.HasThreadHead {
		n++
	}
	return n
}
