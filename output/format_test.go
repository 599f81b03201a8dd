// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package output

import (
	"strings"
	"testing"

	"github.com/austin-profiler/austin/sampler"
)

func TestFormatSampleRootToLeaf(t *testing.T) {
	s := sampler.Sample{
		PID: 123,
		TID: 456,
		Frames: []sampler.ResolvedFrame{
			{Function: "main", Filename: "app.py", Line: 10},
			{Function: "fact", Filename: "app.py", Line: 20},
		},
	}
	got := FormatSample(s, 100000)
	want := "P123;T456;main (app.py);L10;fact (app.py);L20 100000"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatSampleEscapesSemicolons(t *testing.T) {
	s := sampler.Sample{
		PID: 1,
		TID: 2,
		Frames: []sampler.ResolvedFrame{
			{Function: "f;g", Filename: "a;b.py", Line: 1},
		},
	}
	got := FormatSample(s, 1000)
	if !strings.Contains(got, `f\;g`) || !strings.Contains(got, `a\;b.py`) {
		t.Errorf("expected escaped semicolons, got %q", got)
	}
}

func TestFormatSampleNoFrames(t *testing.T) {
	s := sampler.Sample{PID: 1, TID: 2}
	got := FormatSample(s, 1000)
	want := "P1;T2 1000"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatSampleTruncatedMarker(t *testing.T) {
	s := sampler.Sample{PID: 1, TID: 2, Truncated: true}
	got := FormatSample(s, 1000)
	want := "P1;T2;... 1000"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
