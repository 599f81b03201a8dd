// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"errors"
	"testing"

	"github.com/austin-profiler/austin/errs"
)

func TestLookupKnownVersion(t *testing.T) {
	d, err := Lookup(3, 11, 8)
	if err != nil {
		t.Fatal(err)
	}
	if d.Code.LineTableKind != LineTablePEP626 {
		t.Errorf("3.11 should use PEP 626 line tables")
	}
}

func TestLookupUnsupportedVersion(t *testing.T) {
	_, err := Lookup(3, 99, 8)
	if !errors.Is(err, errs.ErrUnsupportedVersion) {
		t.Errorf("got %v, want UnsupportedVersion", err)
	}
}

func TestSupportedIsDescending(t *testing.T) {
	vs := Supported(8)
	if len(vs) == 0 {
		t.Fatal("expected at least one descriptor")
	}
	for i := 1; i < len(vs); i++ {
		if less(vs[i-1], vs[i]) {
			t.Fatalf("Supported() not sorted descending at index %d: %+v then %+v", i, vs[i-1], vs[i])
		}
	}
}

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in                    string
		major, minor, patch   int
		ok                    bool
	}{
		{"3.11.4 (main, Jun  1 2023, 00:00:00)", 3, 11, 4, true},
		{"2.7.18", 2, 7, 18, true},
		{"garbage", 0, 0, 0, false},
		{"3", 0, 0, 0, false},
	}
	for _, c := range cases {
		maj, min, pat, ok := ParseVersion(c.in)
		if ok != c.ok {
			t.Errorf("ParseVersion(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if !ok {
			continue
		}
		if maj != c.major || min != c.minor || pat != c.patch {
			t.Errorf("ParseVersion(%q) = %d.%d.%d, want %d.%d.%d", c.in, maj, min, pat, c.major, c.minor, c.patch)
		}
	}
}
