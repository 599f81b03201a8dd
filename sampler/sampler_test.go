// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampler

import (
	"encoding/binary"
	"testing"

	"github.com/austin-profiler/austin/arch"
	"github.com/austin-profiler/austin/errs"
	"github.com/austin-profiler/austin/layout"
	"github.com/austin-profiler/austin/probe"
	"github.com/austin-profiler/austin/remote"
)

type fakeHandle struct{ pid int }

func (f fakeHandle) PID() int { return f.pid }

// fakeMemory is a flat in-process stand-in for a target's address space,
// letting these tests synthesize a CPython thread/frame/code chain
// without an actual interpreter to attach to.
type fakeMemory struct {
	base remote.Address
	buf  []byte
}

func (m *fakeMemory) Read(ra remote.RemoteAddress, dst []byte) error {
	off := int64(ra.Addr()) - int64(m.base)
	if off < 0 || off+int64(len(dst)) > int64(len(m.buf)) {
		return errs.New(errs.MemoryFault, "fake read out of range")
	}
	copy(dst, m.buf[off:off+int64(len(dst))])
	return nil
}

func (m *fakeMemory) Close() error { return nil }

func (m *fakeMemory) putU64(off int64, v uint64) {
	binary.LittleEndian.PutUint64(m.buf[off:off+8], v)
}

func (m *fakeMemory) putU32(off int64, v uint32) {
	binary.LittleEndian.PutUint32(m.buf[off:off+4], v)
}

func (m *fakeMemory) putBytes(off int64, data []byte) {
	copy(m.buf[off:], data)
}

// buildFixture lays out one thread with two frames ("caller" calling
// "fact") over a 3.11/64-bit VersionDescriptor, at the offsets table.go
// actually registers, so this test breaks if the real table changes
// shape instead of silently drifting from it.
func buildFixture(t *testing.T) (*fakeMemory, layout.VersionDescriptor, remote.Address) {
	t.Helper()
	d, err := layout.Lookup(3, 11, 8)
	if err != nil {
		t.Fatalf("layout.Lookup: %v", err)
	}

	const (
		base         = remote.Address(0x10000)
		threadAddr   = base + 0x0000
		frame1Addr   = base + 0x0200 // leaf: fact
		frame2Addr   = base + 0x0400 // root: caller
		codeFactAddr = base + 0x0600
		codeCallAddr = base + 0x0800
		filenameAddr = base + 0x0a00
		nameFactAddr = base + 0x0c00
		nameCallAddr = base + 0x0e00
		lineTabFact  = base + 0x1000
		lineTabCall  = base + 0x1200
	)

	m := &fakeMemory{base: base, buf: make([]byte, 0x1300)}
	off := func(addr remote.Address) int64 { return int64(addr - base) }

	// thread-state
	m.putU64(off(threadAddr)+d.Thread.Next, 0) // single thread
	m.putU64(off(threadAddr)+d.Thread.ThreadID, 42)
	m.putU64(off(threadAddr)+d.Thread.TopFrame, uint64(frame1Addr))

	// frame1 (leaf, "fact")
	m.putU64(off(frame1Addr)+d.Frame.Prev, uint64(frame2Addr))
	m.putU64(off(frame1Addr)+d.Frame.Code, uint64(codeFactAddr))
	m.putU32(off(frame1Addr)+d.Frame.LastInstruction, 2)

	// frame2 (root, "caller")
	m.putU64(off(frame2Addr)+d.Frame.Prev, 0)
	m.putU64(off(frame2Addr)+d.Frame.Code, uint64(codeCallAddr))
	m.putU32(off(frame2Addr)+d.Frame.LastInstruction, 0)

	// code object: fact
	m.putU32(off(codeFactAddr)+d.Code.FirstLine, 5)
	m.putU64(off(codeFactAddr)+d.Code.Filename, uint64(filenameAddr))
	m.putU64(off(codeFactAddr)+d.Code.Name, uint64(nameFactAddr))
	m.putU64(off(codeFactAddr)+d.Code.LineTable, uint64(lineTabFact))

	// code object: caller
	m.putU32(off(codeCallAddr)+d.Code.FirstLine, 1)
	m.putU64(off(codeCallAddr)+d.Code.Filename, uint64(filenameAddr))
	m.putU64(off(codeCallAddr)+d.Code.Name, uint64(nameCallAddr))
	m.putU64(off(codeCallAddr)+d.Code.LineTable, uint64(lineTabCall))

	p := int64(8)
	writeUnicode := func(addr remote.Address, s string) {
		m.putU64(off(addr)+unicodeLengthOffset*p, uint64(len(s)))
		m.putBytes(off(addr)+unicodeDataOffset*p, []byte(s))
	}
	writeUnicode(filenameAddr, "test.py")
	writeUnicode(nameFactAddr, "fact")
	writeUnicode(nameCallAddr, "caller")

	writeBytesObj := func(addr remote.Address, data []byte) {
		m.putU64(off(addr)+2*p, uint64(len(data)))
		m.putBytes(off(addr)+4*p, data)
	}
	// one PEP 626 entry: length 3, delta +4 -> line 5+4 = 9 at instr 2
	writeBytesObj(lineTabFact, []byte{0x02, 0x08})
	// one PEP 626 entry: length 1, delta 0 -> line 1 at instr 0
	writeBytesObj(lineTabCall, []byte{0x00, 0x00})

	return m, d, threadAddr
}

func newTestSampler(t *testing.T) *Sampler {
	m, d, threadHead := buildFixture(t)
	bounds := remote.Bounds{Min: m.base, Max: m.base + remote.Address(len(m.buf))}
	info := &probe.RuntimeInfo{ThreadHead: threadHead, Version: d}
	return New(m, fakeHandle{pid: 4242}, bounds, arch.AMD64, 4242, info)
}

func TestSampleRootToLeafOrder(t *testing.T) {
	s := newTestSampler(t)
	samples := s.Sample()
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	sample := samples[0]
	if sample.PID != 4242 {
		t.Errorf("PID = %d, want 4242", sample.PID)
	}
	if sample.TID != 42 {
		t.Errorf("TID = %d, want 42", sample.TID)
	}
	if sample.Truncated {
		t.Error("Truncated = true, want false")
	}
	if len(sample.Frames) != 2 {
		t.Fatalf("got %d frames, want 2: %+v", len(sample.Frames), sample.Frames)
	}
	root, leaf := sample.Frames[0], sample.Frames[1]
	if root.Function != "caller" || root.Line != 1 {
		t.Errorf("root frame = %+v, want caller@1", root)
	}
	if leaf.Function != "fact" || leaf.Line != 9 {
		t.Errorf("leaf frame = %+v, want fact@9", leaf)
	}
	if root.Filename != "test.py" || leaf.Filename != "test.py" {
		t.Errorf("unexpected filenames: root=%q leaf=%q", root.Filename, leaf.Filename)
	}
}

func TestSampleCodeCacheIsReusedAcrossSamples(t *testing.T) {
	s := newTestSampler(t)
	s.Sample()
	codeFactAddr := remote.Address(0x10000 + 0x0600)
	snap, ok := s.cache.lookup(codeFactAddr)
	if !ok {
		t.Fatal("expected fact's code object to be cached after one sample")
	}
	if snap.Name != "fact" {
		t.Errorf("cached snapshot Name = %q, want fact", snap.Name)
	}

	// Corrupt the underlying memory's line table payload in place (offset
	// 0x1000 is lineTabFact relative to base; +32 is its data start, per
	// the 2*p/4*p PyBytesObject layout readPyBytes assumes). A second
	// Sample() must still report the cached value, not whatever this
	// corrupted table would decode to, since entries are never evicted
	// within a session.
	mem := s.r.(*fakeMemory)
	mem.buf[0x1000+32] = 0x07
	mem.buf[0x1000+33] = 0x00
	samples := s.Sample()
	if samples[0].Frames[1].Line != 9 {
		t.Errorf("Line = %d after cache reuse, want 9 (cached, not re-read)", samples[0].Frames[1].Line)
	}
}

func TestSampleDiscardsThreadOnUnreadableTopFrame(t *testing.T) {
	m, d, threadHead := buildFixture(t)
	// Point TopFrame outside the mapped bounds.
	off := int64(threadHead - m.base)
	m.putU64(off+d.Thread.TopFrame, 0xdeadbeef)
	bounds := remote.Bounds{Min: m.base, Max: m.base + remote.Address(len(m.buf))}
	info := &probe.RuntimeInfo{ThreadHead: threadHead, Version: d}
	s := New(m, fakeHandle{pid: 1}, bounds, arch.AMD64, 1, info)

	samples := s.Sample()
	if len(samples) != 0 {
		t.Errorf("got %d samples, want 0 (unreadable top frame discards the thread)", len(samples))
	}
}
