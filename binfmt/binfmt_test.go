// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binfmt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/austin-profiler/austin/errs"
)

// TestParseTruncatedELFFailsBadFormat exercises spec.md §8's boundary
// scenario 5: "Feed the binary parser a truncated object file (first 512
// bytes only): fails with BadFormat; does not crash, does not read past
// the mapped length."
func TestParseTruncatedELFFailsBadFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truncated")

	// A real ELF header begins with the magic bytes, but the rest of the
	// file is zeroed and far too short to contain any section headers.
	buf := make([]byte, 512)
	copy(buf, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Parse(path)
	if err == nil {
		t.Fatal("expected an error parsing a truncated ELF file")
	}
	if !errors.Is(err, errs.ErrBadFormat) {
		t.Errorf("got %v, want BadFormat", err)
	}
}

func TestParseUnknownMagicFailsBadFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage")
	if err := os.WriteFile(path, []byte("not an object file, just text"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Parse(path)
	if !errors.Is(err, errs.ErrBadFormat) {
		t.Errorf("got %v, want BadFormat", err)
	}
}

func TestParseEmptyFileFailsBadFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Parse(path)
	if !errors.Is(err, errs.ErrBadFormat) {
		t.Errorf("got %v, want BadFormat", err)
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
