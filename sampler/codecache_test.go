// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampler

import (
	"testing"

	"github.com/austin-profiler/austin/remote"
)

func TestCodeCacheMissThenHit(t *testing.T) {
	c := newCodeCache()
	addr := remote.Address(0x1000)
	if _, ok := c.lookup(addr); ok {
		t.Fatal("expected a miss on an empty cache")
	}
	snap := &CodeSnapshot{Filename: "a.py", Name: "f", FirstLine: 1}
	c.store(addr, snap)
	got, ok := c.lookup(addr)
	if !ok {
		t.Fatal("expected a hit after store")
	}
	if got != snap {
		t.Error("lookup returned a different pointer than was stored")
	}
}

func TestCodeCacheDistinguishesAddresses(t *testing.T) {
	c := newCodeCache()
	c.store(remote.Address(0x1000), &CodeSnapshot{Name: "one"})
	c.store(remote.Address(0x2000), &CodeSnapshot{Name: "two"})
	one, _ := c.lookup(remote.Address(0x1000))
	two, _ := c.lookup(remote.Address(0x2000))
	if one.Name != "one" || two.Name != "two" {
		t.Errorf("got %q and %q, want one and two", one.Name, two.Name)
	}
}
