// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"errors"
	"testing"

	"github.com/austin-profiler/austin/errs"
	"github.com/austin-profiler/austin/sampler"
)

// fakeSink records every emitted sample and can be told to fail.
type fakeSink struct {
	emitted []sampler.Sample
	fail    bool
}

func (f *fakeSink) Emit(s sampler.Sample, metricMicros int64) error {
	if f.fail {
		return errors.New("sink failure")
	}
	f.emitted = append(f.emitted, s)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func TestRecordTickWindowCapsAtErrorWindow(t *testing.T) {
	d := &Driver{}
	for i := 0; i < errorWindow+5; i++ {
		d.recordTick(i%2 == 0)
	}
	if len(d.window) != errorWindow {
		t.Fatalf("window length = %d, want %d", len(d.window), errorWindow)
	}
}

func TestErrorRateNotExceededBeforeWindowFull(t *testing.T) {
	d := &Driver{}
	for i := 0; i < errorWindow-1; i++ {
		d.recordTick(false)
	}
	if d.errorRateExceeded() {
		t.Error("expected no abort before the window is full")
	}
}

func TestErrorRateExceededWhenAllFail(t *testing.T) {
	d := &Driver{}
	for i := 0; i < errorWindow; i++ {
		d.recordTick(false)
	}
	if !d.errorRateExceeded() {
		t.Error("expected abort once the window fills with failures")
	}
}

func TestErrorRateNotExceededWithOneSuccess(t *testing.T) {
	d := &Driver{}
	for i := 0; i < errorWindow; i++ {
		d.recordTick(i == 0) // first tick ok, rest fail
	}
	if d.errorRateExceeded() {
		t.Error("a single success within the window should prevent abort")
	}
}

func TestProcessSamplesRecordsStatsOnSinkFailure(t *testing.T) {
	sink := &fakeSink{fail: true}
	d := &Driver{cfg: Config{}, sink: sink}
	d.processSamples([]sampler.Sample{{PID: 1, TID: 2}})
	if d.stats.SamplesError != 1 {
		t.Errorf("SamplesError = %d, want 1", d.stats.SamplesError)
	}
	if d.stats.LastError != errs.MemoryFault {
		t.Errorf("LastError = %v, want MemoryFault", d.stats.LastError)
	}
}

func TestProcessSamplesNoSamplesCountsAsError(t *testing.T) {
	sink := &fakeSink{}
	d := &Driver{cfg: Config{}, sink: sink}
	d.processSamples(nil)
	if d.stats.SamplesError != 1 {
		t.Errorf("SamplesError = %d, want 1", d.stats.SamplesError)
	}
	if d.stats.LastError != errs.RuntimeNotFound {
		t.Errorf("LastError = %v, want RuntimeNotFound", d.stats.LastError)
	}
}

func TestProcessSamplesEmitsAndCountsOK(t *testing.T) {
	sink := &fakeSink{}
	d := &Driver{cfg: Config{}, sink: sink}
	d.processSamples([]sampler.Sample{{PID: 1, TID: 2}, {PID: 1, TID: 3}})
	if d.stats.SamplesOK != 2 {
		t.Errorf("SamplesOK = %d, want 2", d.stats.SamplesOK)
	}
	if len(sink.emitted) != 2 {
		t.Errorf("sink recorded %d emissions, want 2", len(sink.emitted))
	}
}
