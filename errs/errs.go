// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs defines the typed error kinds shared by every layer of the
// sampler, from the remote memory reader up to the scheduler. Kinds are
// compared with errors.Is; only the scheduler decides which kinds are fatal
// (spec.md §7) — every other package just returns one.
package errs

import "fmt"

// Kind classifies an error by the policy the driver should apply to it.
type Kind int

const (
	// Unknown is the zero value; never returned by this package, only
	// used as the result of looking up a Kind that wasn't set with New.
	Unknown Kind = iota

	// NoSuchProcess means the target process does not exist, or exited
	// since the session was last checked. Fatal.
	NoSuchProcess

	// PermissionDenied means the caller lacks the privilege to read the
	// target's memory or enumerate its maps. Fatal at attach.
	PermissionDenied

	// MemoryFault means a remote read landed on an unmapped or
	// permission-denied address after bounds validation passed; expected
	// during races with a running mutator. Per-thread, not fatal.
	MemoryFault

	// BadFormat means the on-disk object file is not a valid ELF/Mach-O/PE
	// image (bad magic, truncated headers, too few sections).
	BadFormat

	// NoDynamicSymbols means the object file has no dynamic symbol table.
	NoDynamicSymbols

	// RuntimeNotFound means neither the symbol path nor the scan fallback
	// located a plausible runtime object.
	RuntimeNotFound

	// UnsupportedVersion means a runtime was found but its version has no
	// corresponding entry in the layout table.
	UnsupportedVersion

	// DepthExceeded means a frame walk hit the configured maximum depth
	// without reaching a null prev pointer. Per-thread: truncate and emit
	// a sentinel, not fatal.
	DepthExceeded

	// MapIncomplete means the process map loader could not find both a
	// candidate interpreter binary and a heap region (spec.md §4.2).
	// Fatal at attach.
	MapIncomplete
)

func (k Kind) String() string {
	switch k {
	case NoSuchProcess:
		return "no such process"
	case PermissionDenied:
		return "permission denied"
	case MemoryFault:
		return "memory fault"
	case BadFormat:
		return "bad object file format"
	case NoDynamicSymbols:
		return "no dynamic symbol table"
	case RuntimeNotFound:
		return "runtime not found"
	case UnsupportedVersion:
		return "unsupported interpreter version"
	case DepthExceeded:
		return "frame depth exceeded"
	case MapIncomplete:
		return "incomplete process map (no interpreter binary or no heap found)"
	default:
		return "unknown error"
	}
}

// Error is a typed error: a Kind plus a free-form message. Callers that
// care only about the policy to apply should compare with errors.Is
// against one of the Kind sentinels below; callers that want the detail
// can call Error() or Unwrap.
type Error struct {
	Kind Kind
	Msg  string
	err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is the same Kind sentinel. This lets callers
// write errors.Is(err, errs.ErrNoSuchProcess).
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && k.kind == e.Kind
}

// New builds an *Error of the given kind with no wrapped cause; use Wrap
// to attach one.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), err: cause}
}

// kindSentinel lets errors.Is(err, errs.ErrNoSuchProcess) work without every
// Kind value being its own type: each exported sentinel below implements
// error and is matched structurally by (*Error).Is.
type kindSentinel struct{ kind Kind }

func (k kindSentinel) Error() string { return k.kind.String() }

// Sentinels for use with errors.Is. These are not themselves constructed
// by this package's functions; they exist only as comparison targets.
var (
	ErrNoSuchProcess      error = kindSentinel{NoSuchProcess}
	ErrPermissionDenied   error = kindSentinel{PermissionDenied}
	ErrMemoryFault        error = kindSentinel{MemoryFault}
	ErrBadFormat          error = kindSentinel{BadFormat}
	ErrNoDynamicSymbols   error = kindSentinel{NoDynamicSymbols}
	ErrRuntimeNotFound    error = kindSentinel{RuntimeNotFound}
	ErrUnsupportedVersion error = kindSentinel{UnsupportedVersion}
	ErrDepthExceeded      error = kindSentinel{DepthExceeded}
	ErrMapIncomplete      error = kindSentinel{MapIncomplete}
)
