// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package probe locates and validates the live interpreter runtime object
// in a target process (spec.md §2 "Runtime Probe", ~15% of the core):
// given the anchors the Symbol Resolver found, it walks runtime ->
// interpreter -> thread -> frame and accepts the first candidate whose
// reads all succeed and whose pointers and small integer fields look
// plausible. If no anchor resolved (a stripped binary), it falls back to
// scanning BSS and heap for a pointer-aligned candidate that survives the
// same validation.
//
// The original golang.org/x/debug/probe/probe.go (adapted into this
// file's bounds-before-dereference discipline) was injected into the target's
// own address space: it checked a candidate address against four
// linker-provided boundary symbols (base/etext/heapStart/heapUsed) before
// ever touching it. This package keeps that same "validate before you
// dereference" shape but generalizes it across a process boundary: the
// bounds now come from the Process Map Introspector instead of injected
// globals, and every dereference is a remote.Reader.Read instead of a
// local load.
package probe

import (
	"github.com/austin-profiler/austin/arch"
	"github.com/austin-profiler/austin/errs"
	"github.com/austin-profiler/austin/layout"
	"github.com/austin-profiler/austin/procmap"
	"github.com/austin-profiler/austin/remote"
	"github.com/austin-profiler/austin/symbols"
)

// RuntimeInfo is the result of a successful probe: the cached remote
// address of the thread-state head (spec.md §4.6: "the successful remote
// address of the thread-state head is cached in the session") and the
// VersionDescriptor selected for the rest of the session.
type RuntimeInfo struct {
	ThreadHead remote.Address
	Version    layout.VersionDescriptor
}

// minPlausibleThreadID / maxPlausibleThreadID bound the "looks plausible"
// check spec.md §4.6 asks for on the thread-identifier field: real OS
// thread/LWP ids are small positive integers, never zero, and in
// practice never anywhere near 2^32.
const (
	minPlausibleThreadID = 1
	maxPlausibleThreadID = 1 << 32
)

// reading bundles the handful of values every probe attempt needs, so
// the symbol-path and scan-fallback code can share one set of helpers.
type reading struct {
	r      remote.Reader
	h      remote.ProcessHandle
	bounds remote.Bounds
	a      arch.Architecture
	ws     int // word size, 4 or 8
}

// Probe attempts the symbol path first, then the scan fallback, per
// spec.md §4.6. buildVersion, if non-empty, is the interpreter's own
// reported version string (spec.md: "read the version string from a
// known runtime field (if available)"); when empty, every tabulated
// descriptor is tried in order.
func Probe(r remote.Reader, h remote.ProcessHandle, mmap *procmap.MemoryMap, anchors symbols.RuntimeAnchors, a arch.Architecture, wordSize int, buildVersion string) (*RuntimeInfo, error) {
	rd := reading{r: r, h: h, bounds: mmap.Bounds(), a: a, ws: wordSize}

	candidates := candidateDescriptors(wordSize, buildVersion)
	if len(candidates) == 0 {
		return nil, errs.New(errs.UnsupportedVersion, "no layout entry for version %q (word size %d)", buildVersion, wordSize)
	}

	if anchors.Any() {
		if info, err := rd.symbolPath(anchors, candidates); err == nil {
			return info, nil
		}
		// Fall through to the scan: a resolved-but-stale anchor (e.g. a
		// partially relocated binary) shouldn't prevent recovery.
	}

	if info, err := rd.scanFallback(mmap, candidates); err == nil {
		return info, nil
	}

	return nil, errs.New(errs.RuntimeNotFound, "no plausible runtime object found via symbols or scan")
}

// candidateDescriptors orders the version table to try: if buildVersion
// parses, only the matching entry (none if the table has no entry for
// it); otherwise every tabulated descriptor, newest first (spec.md §4.6:
// "try descriptors in order and accept the first that yields a
// self-consistent walk").
func candidateDescriptors(wordSize int, buildVersion string) []layout.VersionDescriptor {
	if maj, min, _, ok := layout.ParseVersion(buildVersion); ok {
		d, err := layout.Lookup(maj, min, wordSize)
		if err != nil {
			return nil
		}
		return []layout.VersionDescriptor{d}
	}
	return layout.Supported(wordSize)
}

// symbolPath dereferences the resolved anchor and walks
// runtime -> interpreter -> thread -> frame, accepting the first
// descriptor for which every read succeeds and every invariant holds.
func (rd reading) symbolPath(anchors symbols.RuntimeAnchors, candidates []layout.VersionDescriptor) (*RuntimeInfo, error) {
	for _, d := range candidates {
		threadHead, ok := rd.resolveThreadHead(anchors, d)
		if !ok {
			continue
		}
		if rd.validateThreadHead(threadHead, d) {
			return &RuntimeInfo{ThreadHead: threadHead, Version: d}, nil
		}
	}
	return nil, errs.New(errs.RuntimeNotFound, "symbol-path validation failed for every candidate version")
}

// resolveThreadHead follows whichever anchor is available down to the
// thread-state head address, without yet validating the result.
func (rd reading) resolveThreadHead(anchors symbols.RuntimeAnchors, d layout.VersionDescriptor) (remote.Address, bool) {
	if anchors.HasThreadHead {
		// The legacy anchor is the address of a variable holding the
		// current PyThreadState pointer; one dereference yields that
		// thread, which is returned as the start of the thread walk.
		// Threads that precede it in the list are not reached from it.
		if head, err := rd.readPointer(anchors.ThreadHead); err == nil {
			return head, true
		}
	}
	if anchors.HasRuntimeState {
		interp, err := rd.readPointer(anchors.RuntimeState.Add(d.Runtime.InterpHead))
		if err != nil {
			return 0, false
		}
		head, err := rd.readPointer(interp.Add(d.Interp.ThreadHead))
		if err != nil {
			return 0, false
		}
		return head, true
	}
	return 0, false
}

// validateThreadHead checks the round-trip invariants spec.md §4.6 names:
// the thread and its top frame must be readable, in bounds, and the
// thread id must look plausible.
func (rd reading) validateThreadHead(head remote.Address, d layout.VersionDescriptor) bool {
	if head == 0 {
		return false
	}
	tid, err := rd.readPointerSizedWord(head.Add(d.Thread.ThreadID))
	if err != nil || tid < minPlausibleThreadID || tid >= maxPlausibleThreadID {
		return false
	}
	topFrame, err := rd.readPointer(head.Add(d.Thread.TopFrame))
	if err != nil {
		return false
	}
	if topFrame == 0 {
		// A thread with no current frame is legitimate (just-created or
		// idle); geometry can't be confirmed further, but nothing here
		// contradicts it either.
		return true
	}
	codePtr, err := rd.readPointer(topFrame.Add(d.Frame.Code))
	if err != nil || codePtr == 0 {
		return false
	}
	return true
}

// readPointer reads one pointer-sized, bounds-validated word and returns
// it as a remote.Address.
func (rd reading) readPointer(addr remote.Address) (remote.Address, error) {
	v, err := rd.readPointerSizedWord(addr)
	if err != nil {
		return 0, err
	}
	return remote.Address(v), nil
}

// readPointerSizedWord reads rd.ws bytes at addr, rejecting out-of-bounds
// addresses before any syscall (spec.md §4.6, §8: "rejected without a
// read syscall").
func (rd reading) readPointerSizedWord(addr remote.Address) (uint64, error) {
	ra, err := rd.bounds.Validate(rd.h, addr, int64(rd.ws))
	if err != nil {
		return 0, err
	}
	buf := make([]byte, rd.ws)
	if err := rd.r.Read(ra, buf); err != nil {
		return 0, err
	}
	return rd.a.Uint(buf), nil
}

// scanFallback is spec.md §4.6's stripped-binary path: "linearly scan the
// BSS and then the heap region for a candidate runtime. A candidate is
// any pointer-aligned word in-range that, when dereferenced as a
// candidate structure, survives the same invariants above. The first
// survivor wins." A candidate word is treated as a thread-state head
// directly, since that is the structure validateThreadHead already knows
// how to confirm; treating a found word as the runtime/interpreter head
// instead would only add more unvalidated indirection before reaching
// the same check.
func (rd reading) scanFallback(mmap *procmap.MemoryMap, candidates []layout.VersionDescriptor) (*RuntimeInfo, error) {
	regions := make([]procmap.Region, 0, 2)
	if bss, ok := mmap.Bss(); ok {
		regions = append(regions, bss)
	}
	if mmap.HasHeap() {
		regions = append(regions, mmap.Heap)
	}
	for _, region := range regions {
		if info, ok := rd.scanRegion(region, candidates); ok {
			return info, nil
		}
	}
	return nil, errs.New(errs.RuntimeNotFound, "no candidate survived BSS/heap scan")
}

// scanRegion walks region one word at a time, testing each pointer-aligned
// word as a candidate thread-state head against every candidate version.
func (rd reading) scanRegion(region procmap.Region, candidates []layout.VersionDescriptor) (*RuntimeInfo, bool) {
	step := uint64(rd.ws)
	for base := region.Base; base+step <= region.Base+region.Size; base += step {
		candidate := remote.Address(base)
		for _, d := range candidates {
			if rd.validateThreadHead(candidate, d) {
				return &RuntimeInfo{ThreadHead: candidate, Version: d}, true
			}
		}
	}
	return nil, false
}
