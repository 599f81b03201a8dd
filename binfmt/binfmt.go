// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package binfmt parses the on-disk executable or shared-library file
// that backs the interpreter (spec.md §2 "Binary Format Parser", ~20% of
// the core): it identifies word size, computes the load bias, and
// enumerates dynamic symbols.
//
// This generalizes golang.org/x/debug/internal/core.Process.readExec,
// which opens exactly one format (ELF, via debug/elf, with a "TODO: use
// golang.org/x/debug/elf instead?" left unresolved) because a Go core
// dump is always ELF. A live target may be any of the three host
// platforms' native formats, so this package dispatches on the file's
// magic bytes to one of three sibling files (elf.go, macho.go, pe.go),
// each wrapping the matching debug/* stdlib package — the same vehicle
// the teacher reaches for, just generalized across all three formats
// instead of hardcoding ELF.
package binfmt

import (
	"bytes"
	"os"

	"github.com/austin-profiler/austin/errs"
)

// Symbol is one dynamic symbol's name and file-relative value, before
// load-bias adjustment.
type Symbol struct {
	Name  string
	Value uint64
}

// BinaryImage is a locally parsed view of the on-disk object file
// (spec.md §3).
type BinaryImage struct {
	// WordSize is 4 or 8.
	WordSize int
	// Machine names the CPU architecture, e.g. "amd64", "386", "arm64".
	Machine string
	// LoadBias is the value to subtract from a file-declared symbol
	// address to get its offset from the mapped region's base (spec.md
	// §4.3 step 2).
	LoadBias int64
	// Symbols is the dynamic symbol table.
	Symbols []Symbol
}

var (
	elfMagic   = []byte{0x7f, 'E', 'L', 'F'}
	machoMagic32LE = []byte{0xce, 0xfa, 0xed, 0xfe}
	machoMagic64LE = []byte{0xcf, 0xfa, 0xed, 0xfe}
	machoMagic32BE = []byte{0xfe, 0xed, 0xfa, 0xce}
	machoMagic64BE = []byte{0xfe, 0xed, 0xfa, 0xcf}
	peMagic    = []byte{'M', 'Z'}
)

// Parse reads path and dispatches to the matching format. It fails with
// errs.BadFormat if the file's magic bytes don't match any supported
// format, is shorter than the smallest possible header, or the format
// parser itself rejects the file (bad section/program headers).
func Parse(path string) (*BinaryImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var head [4]byte
	n, err := f.ReadAt(head[:], 0)
	if n < 4 || err != nil {
		return nil, errs.New(errs.BadFormat, "%s: file too short to identify format", path)
	}

	switch {
	case bytes.Equal(head[:], elfMagic):
		return parseELF(f, path)
	case bytes.Equal(head[:], machoMagic32LE), bytes.Equal(head[:], machoMagic64LE),
		bytes.Equal(head[:], machoMagic32BE), bytes.Equal(head[:], machoMagic64BE):
		return parseMachO(f, path)
	case bytes.Equal(head[:2], peMagic):
		return parsePE(f, path)
	default:
		return nil, errs.New(errs.BadFormat, "%s: unrecognized magic bytes %x", path, head)
	}
}

// requiredAnchors and allFound track which names in want have been seen.
// None of the three format parsers calls them: each returns its full
// symbol list, and the anchor matching and its short-circuit happen in
// symbols.Resolve.
func requiredAnchors(want []string) map[string]bool {
	m := make(map[string]bool, len(want))
	for _, w := range want {
		m[w] = false
	}
	return m
}

func allFound(m map[string]bool) bool {
	for _, found := range m {
		if !found {
			return false
		}
	}
	return true
}

// badFormat normalizes the stdlib debug/* packages' parse errors to
// errs.BadFormat for all three format parsers, since each package returns
// its own unexported error types for "not a valid object file."
func badFormat(path string, cause error) error {
	return errs.Wrap(errs.BadFormat, cause, "%s", path)
}
