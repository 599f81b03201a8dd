// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command austin is the thin CLI front-end over the session API
// (spec.md §6): it parses flags, resolves the interval/duration/output
// surface, and drives one attach-or-spawn, sample, exit cycle.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/austin-profiler/austin/errs"
	"github.com/austin-profiler/austin/output"
	"github.com/austin-profiler/austin/session"
)

// Exit codes, spec.md §6: "nonzero values partition into permission
// failure, no-such-process, invalid-arguments, unsupported-runtime-
// version, and internal error."
const (
	exitOK = iota
	exitInvalidArgs
	exitNoSuchProcess
	exitPermissionDenied
	exitUnsupportedVersion
	exitInternal
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		pid      int
		interval string
		duration string
		exposure string
		output_  string
	)

	root := &cobra.Command{
		Use:   "austin [flags] -- [command [args...]]",
		Short: "sample a running interpreter's call stacks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(pid, interval, firstNonEmpty(duration, exposure), output_, args)
		},
		SilenceUsage: true,
	}

	flags := root.Flags()
	flags.IntVarP(&pid, "pid", "p", 0, "attach to an already-running process by pid")
	flags.StringVarP(&interval, "interval", "i", "100ms", "sampling interval, e.g. 100ms, 1s")
	flags.StringVarP(&duration, "duration", "t", "0", "total sampling duration, 0 = until the target exits")
	flags.StringVarP(&exposure, "exposure", "x", "", "alias of --duration")
	flags.StringVarP(&output_, "output", "o", "", "output file path; empty means stdout")

	if err := root.Execute(); err != nil {
		return classifyExit(err)
	}
	return exitOK
}

func firstNonEmpty(a, b string) string {
	if a != "0" && a != "" {
		return a
	}
	if b != "" {
		return b
	}
	return a
}

func runSample(pid int, intervalStr, durationStr, outputPath string, argv []string) error {
	if pid == 0 && len(argv) == 0 {
		return errs.New(errs.BadFormat, "either --pid or a target command must be given")
	}
	if pid != 0 && len(argv) != 0 {
		return errs.New(errs.BadFormat, "--pid and a target command are mutually exclusive")
	}

	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return errs.Wrap(errs.BadFormat, err, "invalid --interval %q", intervalStr)
	}
	duration, err := parseDurationOrZero(durationStr)
	if err != nil {
		return errs.Wrap(errs.BadFormat, err, "invalid --duration %q", durationStr)
	}

	log := slog.Default()
	opts := session.Options{Logger: log}

	var sess *session.Session
	if pid != 0 {
		sess, err = session.Attach(pid, opts)
	} else {
		sess, err = session.Spawn(argv, opts)
	}
	if err != nil {
		return err
	}
	defer sess.Close()

	sink, err := openSink(outputPath)
	if err != nil {
		return err
	}
	defer sink.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go func() {
		<-ctx.Done()
		sess.Stop()
	}()

	stats, err := sess.Start(interval, duration, sink)
	log.Info("session finished", "samples_ok", stats.SamplesOK, "samples_error", stats.SamplesError)
	return err
}

// openSink opens path as a file sink, or wraps stdout if path is empty.
func openSink(path string) (output.Sink, error) {
	if path == "" {
		return output.NewStreamSink(os.Stdout), nil
	}
	return output.NewFileSink(path)
}

// parseDurationOrZero accepts "0" (meaning unbounded, spec.md §4.8) in
// addition to anything time.ParseDuration accepts.
func parseDurationOrZero(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil && n == 0 {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// classifyExit maps a returned error to one of spec.md §6's exit code
// partitions and prints a message to stderr.
func classifyExit(err error) int {
	fmt.Fprintln(os.Stderr, "austin:", err)
	switch {
	case isKind(err, errs.NoSuchProcess):
		return exitNoSuchProcess
	case isKind(err, errs.PermissionDenied):
		return exitPermissionDenied
	case isKind(err, errs.UnsupportedVersion):
		return exitUnsupportedVersion
	case isKind(err, errs.BadFormat), isKind(err, errs.NoDynamicSymbols):
		return exitInvalidArgs
	default:
		return exitInternal
	}
}

func isKind(err error, kind errs.Kind) bool {
	e, ok := err.(*errs.Error)
	return ok && e.Kind == kind
}
