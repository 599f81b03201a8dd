// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbols

import (
	"testing"

	"github.com/austin-profiler/austin/binfmt"
	"github.com/austin-profiler/austin/remote"
)

func TestResolveBothAnchors(t *testing.T) {
	img := &binfmt.BinaryImage{
		LoadBias: 0x1000,
		Symbols: []binfmt.Symbol{
			{Name: "irrelevant", Value: 0xdead},
			{Name: AnchorRuntimeState, Value: 0x2000},
			{Name: AnchorThreadHead, Value: 0x2100},
		},
	}
	base := remote.Address(0x555500000000)
	anchors := Resolve(img, base)
	if !anchors.Any() {
		t.Fatal("expected at least one anchor resolved")
	}
	if anchors.Count() != 2 {
		t.Errorf("Count() = %d, want 2", anchors.Count())
	}
	want := base.Add(0x2000 - 0x1000)
	if anchors.RuntimeState != want {
		t.Errorf("RuntimeState = %s, want %s", anchors.RuntimeState, want)
	}
}

func TestResolveNoAnchors(t *testing.T) {
	img := &binfmt.BinaryImage{
		Symbols: []binfmt.Symbol{{Name: "unrelated_symbol", Value: 1}},
	}
	anchors := Resolve(img, remote.Address(0x1000))
	if anchors.Any() {
		t.Error("expected no anchors resolved")
	}
	if anchors.Count() != 0 {
		t.Errorf("Count() = %d, want 0", anchors.Count())
	}
}
