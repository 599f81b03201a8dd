// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains architecture-specific definitions needed to decode
// words read out of a target process: pointer width and byte order. Unlike
// a debugger, the sampler never injects a breakpoint instruction, so this
// package keeps only the subset of golang.org/x/debug/arch.Architecture
// that the sampler actually needs.
package arch

import "encoding/binary"

// Architecture describes how to decode integers and pointers read from a
// target process of a particular machine kind.
type Architecture struct {
	// Name is the canonical name used in VersionDescriptor lookups and
	// CLI diagnostics, e.g. "amd64", "386", "arm64".
	Name string
	// PointerSize is the size of a pointer in the inferior, in bytes: 4
	// or 8. The runtime layout descriptor is selected per this width
	// (spec.md §3 "two pointer widths").
	PointerSize int
	// ByteOrder is the byte order used by the inferior.
	ByteOrder binary.ByteOrder
}

// Uint decodes a little/big-endian pointer-sized unsigned integer from buf,
// which must be exactly PointerSize bytes.
func (a *Architecture) Uint(buf []byte) uint64 {
	switch a.PointerSize {
	case 4:
		return uint64(a.ByteOrder.Uint32(buf[:4]))
	case 8:
		return a.ByteOrder.Uint64(buf[:8])
	}
	panic("bad PointerSize")
}

// PutUint encodes v into buf using the architecture's pointer width and
// byte order. Used only by tests that synthesize remote memory fixtures.
func (a *Architecture) PutUint(buf []byte, v uint64) {
	switch a.PointerSize {
	case 4:
		a.ByteOrder.PutUint32(buf[:4], uint32(v))
	case 8:
		a.ByteOrder.PutUint64(buf[:8], v)
	default:
		panic("bad PointerSize")
	}
}

var AMD64 = Architecture{Name: "amd64", PointerSize: 8, ByteOrder: binary.LittleEndian}
var I386 = Architecture{Name: "386", PointerSize: 4, ByteOrder: binary.LittleEndian}
var ARM64 = Architecture{Name: "arm64", PointerSize: 8, ByteOrder: binary.LittleEndian}
var ARM = Architecture{Name: "arm", PointerSize: 4, ByteOrder: binary.LittleEndian}

// ByName returns the Architecture for a Go-style GOARCH-ish name, as
// reported by the binary format parser's machine-type field.
func ByName(name string) (Architecture, bool) {
	switch name {
	case "amd64":
		return AMD64, true
	case "386":
		return I386, true
	case "arm64":
		return ARM64, true
	case "arm":
		return ARM, true
	}
	return Architecture{}, false
}
