// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binfmt

import (
	"debug/elf"
	"os"

	"github.com/austin-profiler/austin/errs"
)

// parseELF returns every named dynamic symbol of the file; it knows
// nothing about the anchor names, so this package has no dependency on
// symbols. symbols.Resolve matches the returned list against spec.md
// §4.4's anchor list.
func parseELF(f *os.File, path string) (*BinaryImage, error) {
	e, err := elf.NewFile(f)
	if err != nil {
		return nil, badFormat(path, err)
	}
	defer e.Close()

	if len(e.Sections) < 2 {
		return nil, errs.New(errs.BadFormat, "%s: fewer than two section headers", path)
	}

	wordSize := 8
	if e.Class == elf.ELFCLASS32 {
		wordSize = 4
	}

	bias, err := elfLoadBias(e)
	if err != nil {
		return nil, err
	}

	syms, err := e.DynamicSymbols()
	if err != nil || len(syms) == 0 {
		// Some interpreter builds export a regular (non-dynamic) symbol
		// table instead (e.g. statically linked binaries); fall back to
		// it before declaring NoDynamicSymbols.
		syms, err = e.Symbols()
		if err != nil || len(syms) == 0 {
			return nil, errs.New(errs.NoDynamicSymbols, "%s", path)
		}
	}

	out := &BinaryImage{
		WordSize: wordSize,
		Machine:  machineName(e.Machine),
		LoadBias: bias,
	}
	out.Symbols = make([]Symbol, 0, len(syms))
	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		out.Symbols = append(out.Symbols, Symbol{Name: s.Name, Value: s.Value})
	}
	return out, nil
}

// elfLoadBias computes the bias per spec.md §4.3 step 2: the virtual
// address of the first PT_LOAD segment, aligned down to its own
// alignment boundary.
func elfLoadBias(e *elf.File) (int64, error) {
	for _, prog := range e.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		align := prog.Align
		if align == 0 {
			align = 1
		}
		return int64(prog.Vaddr &^ (align - 1)), nil
	}
	return 0, errs.New(errs.BadFormat, "no PT_LOAD segment found")
}

func machineName(m elf.Machine) string {
	switch m {
	case elf.EM_X86_64:
		return "amd64"
	case elf.EM_386:
		return "386"
	case elf.EM_AARCH64:
		return "arm64"
	case elf.EM_ARM:
		return "arm"
	default:
		return m.String()
	}
}
