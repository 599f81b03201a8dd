// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session wires the whole pipeline together and exposes the
// session API spec.md §6 names for the CLI front-end: attach(pid),
// spawn(argv), start(interval, duration, sink), stop().
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/austin-profiler/austin/arch"
	"github.com/austin-profiler/austin/binfmt"
	"github.com/austin-profiler/austin/errs"
	"github.com/austin-profiler/austin/output"
	"github.com/austin-profiler/austin/probe"
	"github.com/austin-profiler/austin/procmap"
	"github.com/austin-profiler/austin/remote"
	"github.com/austin-profiler/austin/sampler"
	"github.com/austin-profiler/austin/scheduler"
	"github.com/austin-profiler/austin/symbols"
)

// EnvInterpreterFamily is spec.md §6's "override environment variable
// [that] may select the interpreter binary when multiple candidates
// exist in the target's maps."
const EnvInterpreterFamily = "AUSTIN_INTERPRETER"

// defaultInterpreterFamily is used when EnvInterpreterFamily is unset;
// CPython is this module's only supported family (see SPEC_FULL.md).
const defaultInterpreterFamily = "python"

// Options configures how Attach/Spawn build the pipeline's session-wide
// state (spec.md §3 Lifecycle: "built once on attach").
type Options struct {
	// BuildVersion, if non-empty, is an already-known interpreter
	// version string (e.g. from an out-of-band source); empty lets the
	// Runtime Probe try every tabulated descriptor in turn.
	BuildVersion string
	Logger       *slog.Logger
}

// Session holds everything built at attach time, plus whichever Driver
// Start created.
type Session struct {
	pid    int
	handle remote.ProcessHandle
	reader remote.Reader
	proc   *os.Process // non-nil only for a session created by Spawn
	info   *probe.RuntimeInfo
	arch   arch.Architecture
	bounds remote.Bounds
	log    *slog.Logger

	cancel context.CancelFunc
	reaper *scheduler.Reaper
}

// Attach implements spec.md §6's attach(pid): opens the target, loads
// its memory map and binary image, resolves the runtime, and returns a
// ready-to-Start Session.
func Attach(pid int, opts Options) (*Session, error) {
	handle, reader, err := remote.Attach(pid)
	if err != nil {
		return nil, err
	}
	return buildSession(pid, handle, reader, nil, opts)
}

// Spawn implements spec.md §6's spawn(argv): execs the target directly
// (argv[0] is the program path) and attaches to the resulting child,
// additionally starting the wait-for-child Reaper spec.md §5 requires.
func Spawn(argv []string, opts Options) (*Session, error) {
	if len(argv) == 0 {
		return nil, errs.New(errs.BadFormat, "spawn requires a non-empty argv")
	}
	proc, handle, reader, err := remote.Spawn(argv[0], argv)
	if err != nil {
		return nil, err
	}
	s, err := buildSession(proc.Pid, handle, reader, proc, opts)
	if err != nil {
		proc.Kill()
		return nil, err
	}
	s.reaper = scheduler.NewReaper(proc)
	return s, nil
}

// buildSession runs the Process Map Introspector, Binary Format Parser,
// Symbol Resolver, and Runtime Probe in sequence (spec.md §2's
// "At startup: Map Introspector -> Binary Parser -> Symbol Resolver ->
// Runtime Probe").
func buildSession(pid int, handle remote.ProcessHandle, reader remote.Reader, proc *os.Process, opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	family := os.Getenv(EnvInterpreterFamily)
	if family == "" {
		family = defaultInterpreterFamily
	}

	mmap, err := procmap.Load(pid, family)
	if err != nil {
		reader.Close()
		return nil, err
	}

	binPath := mmap.BinPath
	if binPath == "" {
		binPath = mmap.LibPath
	}
	img, err := binfmt.Parse(binPath)
	if err != nil {
		reader.Close()
		return nil, err
	}

	a, ok := arch.ByName(img.Machine)
	if !ok {
		reader.Close()
		return nil, errs.New(errs.BadFormat, "unsupported machine type %q in %s", img.Machine, binPath)
	}

	anchors := symbols.Resolve(img, mmap.ELF.Min())

	info, err := probe.Probe(reader, handle, mmap, anchors, a, img.WordSize, opts.BuildVersion)
	if err != nil {
		reader.Close()
		return nil, err
	}

	log.Info("attached", "pid", pid, "version", fmt.Sprintf("%d.%d", info.Version.Major, info.Version.Minor), "binary", binPath)

	return &Session{
		pid:    pid,
		handle: handle,
		reader: reader,
		proc:   proc,
		info:   info,
		arch:   a,
		bounds: mmap.Bounds(),
		log:    log,
	}, nil
}

// Start implements spec.md §6's start(interval, duration, sink): runs
// the Driver's sample loop until the target exits, duration elapses, or
// Stop is called. It blocks for the duration of the run, matching the
// one-shot CLI's synchronous usage (spec.md §6: "the sampler is
// stateless across invocations").
func (s *Session) Start(interval, duration time.Duration, sink output.Sink) (scheduler.Stats, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	defer cancel()

	smp := sampler.New(s.reader, s.handle, s.bounds, s.arch, s.pid, s.info)
	driver := scheduler.New(scheduler.Config{Interval: interval, Duration: duration}, smp, sink, s.pid, s.log)

	if s.reaper != nil {
		go func() {
			select {
			case <-s.reaper.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return driver.Run(ctx)
}

// Stop implements spec.md §6's stop(): signals the running Start call to
// return at the next loop check. Safe to call before Start (a no-op) or
// more than once.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Close releases the session's OS resources (the process handle/reader),
// per spec.md §5 "All acquisitions are scoped with guaranteed release on
// every exit path, including error."
func (s *Session) Close() error {
	return s.reader.Close()
}
