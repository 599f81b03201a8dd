// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sampler is the Frame Stack Sampler (spec.md §2, ~25% of the
// core): the hot loop that walks the live thread and frame chains of an
// attached interpreter and emits a Sample per thread.
//
// It generalizes the frame-walking half of
// golang.org/x/debug/internal/gocore (which walks Go's own runtime
// goroutine/frame structures out of a core dump, see gocore.go's
// Frame/ForEachFrame) to CPython's thread-state/frame-object chain read
// live out of another process, through the remote.Reader instead of an
// mmap'd core file.
package sampler

import (
	"github.com/austin-profiler/austin/arch"
	"github.com/austin-profiler/austin/errs"
	"github.com/austin-profiler/austin/layout"
	"github.com/austin-profiler/austin/probe"
	"github.com/austin-profiler/austin/remote"
)

// MaxFrameDepth bounds a single frame walk (spec.md §4.7, §5, §7
// DepthExceeded: "to cap damage from corrupted pointers"). 1024 exceeds
// any realistic CPython call stack (the interpreter's own default
// recursion limit is 1000) while still bounding a walk that hit a cyclic
// or corrupted prev chain.
const MaxFrameDepth = 1024

// RemoteFrame is one frame as read off the wire, before code resolution
// (spec.md §3).
type RemoteFrame struct {
	Prev            remote.Address
	Code            remote.Address
	LastInstruction int32
}

// ResolvedFrame is one frame after resolving its code object, ready for
// output.
type ResolvedFrame struct {
	Function string
	Filename string
	Line     int32
}

// Sample is one thread's snapshot, spec.md §3: "{pid, tid, frames:
// [(filename, name, line)]}".
type Sample struct {
	PID   int
	TID   uint64
	// Frames is root-to-leaf (spec.md §4.7 step 4, §8 "Emitted frames
	// are ordered root-to-leaf").
	Frames    []ResolvedFrame
	Truncated bool // true if the walk hit MaxFrameDepth (DepthExceeded)
}

// Sampler holds the session-wide state built once at attach (spec.md §3
// Lifecycle) and the per-session code cache reused across every call to
// Sample.
type Sampler struct {
	r      remote.Reader
	h      remote.ProcessHandle
	bounds remote.Bounds
	a      arch.Architecture
	pid    int
	info   *probe.RuntimeInfo
	cache  *codeCache
}

// New builds a Sampler from the state the earlier pipeline stages
// produced: a reader and handle bound to the attached process, the
// bounds the Process Map Introspector computed, the architecture the
// Binary Format Parser identified, and the RuntimeInfo the Runtime Probe
// validated.
func New(r remote.Reader, h remote.ProcessHandle, bounds remote.Bounds, a arch.Architecture, pid int, info *probe.RuntimeInfo) *Sampler {
	return &Sampler{r: r, h: h, bounds: bounds, a: a, pid: pid, info: info, cache: newCodeCache()}
}

// Sample produces one Sample per live thread reachable from the cached
// thread-state head (spec.md §4.7). A thread whose walk fails partway
// (a racy read landing on freed or mid-update memory) is silently
// dropped, per spec.md §5 "Per-sample failure containment: a failed
// read within one thread's walk discards that thread's sample, not the
// session" — the caller sees fewer samples, not an error.
func (s *Sampler) Sample() []Sample {
	var samples []Sample
	d := s.info.Version

	threadAddr := s.info.ThreadHead
	seen := 0
	for threadAddr != 0 {
		seen++
		if seen > MaxFrameDepth {
			// A cyclic "next" chain is exactly the kind of corruption
			// the depth bound exists to contain; stop walking threads
			// rather than looping forever.
			break
		}
		sample, next, ok := s.sampleThread(threadAddr, d)
		if ok {
			samples = append(samples, sample)
		}
		if next == threadAddr {
			break
		}
		threadAddr = next
	}
	return samples
}

// sampleThread reads one thread-state's id and top frame, walks its
// frame chain, and returns the completed Sample plus the next
// thread-state's address. ok is false if the thread, or any frame or
// code object on its chain, could not be read (its sample is discarded,
// the walk of other threads continues with next regardless).
func (s *Sampler) sampleThread(threadAddr remote.Address, d layout.VersionDescriptor) (Sample, remote.Address, bool) {
	tid, err := s.readWord(threadAddr.Add(d.Thread.ThreadID), s.a.PointerSize)
	if err != nil {
		return Sample{}, 0, false
	}
	nextWord, err := s.readWord(threadAddr.Add(d.Thread.Next), s.a.PointerSize)
	next := remote.Address(nextWord)
	if err != nil {
		next = 0
	}

	topFrame, err := s.readPointer(threadAddr.Add(d.Thread.TopFrame))
	if err != nil {
		return Sample{}, next, false
	}

	frames, truncated, ok := s.walkFrames(topFrame, d)
	if !ok {
		return Sample{}, next, false
	}
	reverseFrames(frames)

	return Sample{PID: s.pid, TID: tid, Frames: frames, Truncated: truncated}, next, true
}

// walkFrames follows prev pointers from top down to the oldest frame,
// resolving each one's code object, up to MaxFrameDepth (spec.md §4.7
// step 3, §7 DepthExceeded). Returned frames are leaf-to-root; the
// caller reverses them. The second result reports truncation at
// MaxFrameDepth; the third is false if any frame or code object on the
// chain could not be read, in which case the caller discards the whole
// thread's sample (spec.md §5 "Per-sample failure containment").
func (s *Sampler) walkFrames(top remote.Address, d layout.VersionDescriptor) ([]ResolvedFrame, bool, bool) {
	var out []ResolvedFrame
	addr := top
	for i := 0; addr != 0; i++ {
		if i >= MaxFrameDepth {
			return out, true, true
		}
		rf, err := s.readRemoteFrame(addr, d)
		if err != nil {
			return nil, false, false
		}
		resolved, err := s.resolveFrame(rf, d)
		if err != nil {
			return nil, false, false
		}
		out = append(out, resolved)
		addr = rf.Prev
	}
	return out, false, true
}

// readRemoteFrame reads one frame object's three fields.
func (s *Sampler) readRemoteFrame(addr remote.Address, d layout.VersionDescriptor) (RemoteFrame, error) {
	prev, err := s.readPointer(addr.Add(d.Frame.Prev))
	if err != nil {
		return RemoteFrame{}, err
	}
	code, err := s.readPointer(addr.Add(d.Frame.Code))
	if err != nil {
		return RemoteFrame{}, err
	}
	lastInstr, err := s.readWord(addr.Add(d.Frame.LastInstruction), 4)
	if err != nil {
		return RemoteFrame{}, err
	}
	return RemoteFrame{Prev: prev, Code: code, LastInstruction: int32(lastInstr)}, nil
}

// resolveFrame turns a RemoteFrame into a labeled ResolvedFrame, reading
// (and caching) the code object it points at.
func (s *Sampler) resolveFrame(rf RemoteFrame, d layout.VersionDescriptor) (ResolvedFrame, error) {
	snap, err := s.codeSnapshot(rf.Code, d)
	if err != nil {
		return ResolvedFrame{}, err
	}
	line := lineForInstruction(snap.LineTable, snap.FirstLine, rf.LastInstruction, d.Code.LineTableKind)
	return ResolvedFrame{Function: snap.Name, Filename: snap.Filename, Line: line}, nil
}

// codeSnapshot returns the cached CodeSnapshot for codeAddr, reading and
// storing it on first sight (spec.md §4.7 step a, §8 "the code cache
// never returns a stale CodeSnapshot").
func (s *Sampler) codeSnapshot(codeAddr remote.Address, d layout.VersionDescriptor) (*CodeSnapshot, error) {
	if snap, ok := s.cache.lookup(codeAddr); ok {
		return snap, nil
	}
	snap, err := s.readCodeObject(codeAddr, d)
	if err != nil {
		return nil, err
	}
	s.cache.store(codeAddr, snap)
	return snap, nil
}

// readCodeObject reads a code object's small fixed field (first_line)
// and its three variable-length referenced buffers (filename, name,
// line table), each individually bounds-checked and length-capped.
func (s *Sampler) readCodeObject(codeAddr remote.Address, d layout.VersionDescriptor) (*CodeSnapshot, error) {
	firstLine, err := s.readWord(codeAddr.Add(d.Code.FirstLine), 4)
	if err != nil {
		return nil, err
	}
	filenameObj, err := s.readPointer(codeAddr.Add(d.Code.Filename))
	if err != nil {
		return nil, err
	}
	nameObj, err := s.readPointer(codeAddr.Add(d.Code.Name))
	if err != nil {
		return nil, err
	}
	lineTableObj, err := s.readPointer(codeAddr.Add(d.Code.LineTable))
	if err != nil {
		return nil, err
	}

	filename, err := s.readPyString(filenameObj)
	if err != nil {
		return nil, err
	}
	name, err := s.readPyString(nameObj)
	if err != nil {
		return nil, err
	}
	lineTable, err := s.readPyBytes(lineTableObj)
	if err != nil {
		return nil, err
	}

	return &CodeSnapshot{
		Filename:  filename,
		Name:      name,
		FirstLine: int32(firstLine),
		LineTable: lineTable,
	}, nil
}

// unicodeDataOffset is the byte offset from the start of a CPython
// "compact ASCII" unicode object (PyASCIIObject) to its inline character
// data; unicodeLengthOffset is the offset of its length field. This
// sampler only reads the compact-ASCII representation: CPython interns
// filenames and function names as ASCII in the overwhelming majority of
// real programs, and a non-ASCII name degrades to a read error rather
// than a wrong answer, which is consistent with every other racy-read
// failure mode this package already tolerates.
const (
	unicodeLengthOffset = 2 // after a 2-word PyObject_HEAD's refcnt+type are already accounted by caller offset
	unicodeDataOffset   = 6 // PyASCIIObject header size in words, pointer width dependent handled via a*wordSize
)

// readPyString reads a CPython compact-ASCII unicode object's characters.
func (s *Sampler) readPyString(obj remote.Address) (string, error) {
	if obj == 0 {
		return "", nil
	}
	p := int64(s.a.PointerSize)
	length, err := s.readWord(obj.Add(unicodeLengthOffset*p), s.a.PointerSize)
	if err != nil {
		return "", err
	}
	if length > maxStringLen {
		length = maxStringLen
	}
	buf, err := s.readBytes(obj.Add(unicodeDataOffset*p), int64(length))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// readPyBytes reads a CPython bytes object's raw payload (used for
// co_lnotab / co_linetable, which are always a bytes object).
func (s *Sampler) readPyBytes(obj remote.Address) ([]byte, error) {
	if obj == 0 {
		return nil, nil
	}
	p := int64(s.a.PointerSize)
	// PyBytesObject: PyObject_VAR_HEAD (refcnt, type, ob_size) then the
	// hash field, then inline character data.
	length, err := s.readWord(obj.Add(2*p), s.a.PointerSize)
	if err != nil {
		return nil, err
	}
	if length > maxLineTableLen {
		length = maxLineTableLen
	}
	return s.readBytes(obj.Add(4*p), int64(length))
}

// readPointer reads one pointer-sized, bounds-validated word.
func (s *Sampler) readPointer(addr remote.Address) (remote.Address, error) {
	v, err := s.readWord(addr, s.a.PointerSize)
	if err != nil {
		return 0, err
	}
	return remote.Address(v), nil
}

// readWord reads size bytes at addr (size is 4 or the architecture's
// pointer size) after bounds validation.
func (s *Sampler) readWord(addr remote.Address, size int) (uint64, error) {
	ra, err := s.bounds.Validate(s.h, addr, int64(size))
	if err != nil {
		return 0, err
	}
	buf := make([]byte, size)
	if err := s.r.Read(ra, buf); err != nil {
		return 0, err
	}
	if size == 4 {
		return uint64(s.a.ByteOrder.Uint32(buf)), nil
	}
	return s.a.Uint(buf), nil
}

// readBytes reads a bounds-validated byte run of the given length.
func (s *Sampler) readBytes(addr remote.Address, length int64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	ra, err := s.bounds.Validate(s.h, addr, length)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if err := s.r.Read(ra, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func reverseFrames(frames []ResolvedFrame) {
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
}

// errDepthExceeded is not returned by any function in this package: a
// truncated walk is reported per sample through Sample.Truncated, which
// the output format renders as a sentinel marker (spec.md §7
// DepthExceeded: "truncate and emit with a sentinel marker").
var errDepthExceeded = errs.New(errs.DepthExceeded, "frame walk exceeded max depth %d", MaxFrameDepth)
