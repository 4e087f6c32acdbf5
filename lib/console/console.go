// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// Package console provides the shared console root and per-context
// output sinks.
//
// Exactly one Console exists per session. Contexts never write to the
// destination directly: a Shared-policy context writes through a live
// sink (each write lands under the flush lock), while Snapshot and
// Isolated contexts buffer privately and flush once at commit or
// discard. Interleaving across sinks is therefore resolved only at
// flush time — output from one task never tears mid-fragment into
// another task's output.
//
// The console keeps a bounded replay ring of everything flushed, so a
// late observer (hexlabd GET /console, the CLI after a background task)
// can fetch recent output by sequence offset.
package console

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// ErrSealed is returned by writes to a sink whose owning context has
// already committed or discarded. Output written that late has no
// flush left to carry it, so the write fails loudly instead of
// vanishing.
var ErrSealed = errors.New("console: sink is sealed")

// DefaultRingCapacity is the default replay ring size in bytes.
const DefaultRingCapacity = 256 * 1024

// Console is the shared flush destination. Safe for concurrent use.
type Console struct {
	flushMu sync.Mutex
	dest    io.Writer
	ring    replayRing
}

// New creates a console writing to dest with a replay ring of the
// given byte capacity. Use DefaultRingCapacity unless the caller has a
// reason to bound memory tighter.
func New(dest io.Writer, ringCapacity int) *Console {
	return &Console{
		dest: dest,
		ring: newReplayRing(ringCapacity),
	}
}

// NewSink creates a sink for one context. A live sink forwards each
// write straight to the console; a buffered sink accumulates privately
// until Flush. A sink is owned by exactly one context and is not safe
// for concurrent use.
func (c *Console) NewSink(live bool) *Sink {
	return &Sink{console: c, live: live}
}

// Offset returns the console's current replay sequence offset: the
// total number of bytes flushed so far.
func (c *Console) Offset() uint64 {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.ring.offset()
}

// ReplayFrom returns all output flushed since the given sequence
// offset. If the offset has aged out of the ring, returns everything
// still retained.
func (c *Console) ReplayFrom(offset uint64) []byte {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.ring.readFrom(offset)
}

// write appends data to the destination and the replay ring under the
// flush lock. Returns the destination write error, if any; the ring is
// updated regardless so replay stays consistent with what was
// attempted.
func (c *Console) write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	c.ring.write(data)
	if c.dest == nil {
		return nil
	}
	_, err := c.dest.Write(data)
	return err
}

// Sink is a per-context output buffer. Writes through a live sink go
// to the console immediately; writes through a buffered sink are
// invisible to other contexts until Flush.
type Sink struct {
	console  *Console
	live     bool
	sealed   bool
	buffered bytes.Buffer
}

// WriteString appends text to the sink.
func (s *Sink) WriteString(text string) error {
	if s.sealed {
		return ErrSealed
	}
	if s.live {
		return s.console.write([]byte(text))
	}
	s.buffered.WriteString(text)
	return nil
}

// Write implements io.Writer so commands can fprintf into a sink.
func (s *Sink) Write(p []byte) (int, error) {
	if s.sealed {
		return 0, ErrSealed
	}
	if s.live {
		if err := s.console.write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	return s.buffered.Write(p)
}

// Seal makes every further write fail with ErrSealed. Called by the
// owning context once it goes terminal; the final Flush happens
// before sealing.
func (s *Sink) Seal() {
	s.sealed = true
}

// Flush writes any buffered output to the console as one atomic
// fragment and empties the buffer. A no-op for live sinks, which have
// nothing buffered.
func (s *Sink) Flush() error {
	if s.sealed || s.live || s.buffered.Len() == 0 {
		return nil
	}
	err := s.console.write(s.buffered.Bytes())
	s.buffered.Reset()
	return err
}

// Buffered returns the bytes currently held in the sink. Live sinks
// always return nil.
func (s *Sink) Buffered() []byte {
	if s.live {
		return nil
	}
	return s.buffered.Bytes()
}

// replayRing is a fixed-size circular byte buffer with a monotonic
// sequence offset, so observers can ask for "everything since N".
// Callers must hold the console flush lock.
type replayRing struct {
	data []byte
	// head is the next write position within data (0..len(data)-1).
	head int
	// seq is the total number of bytes ever written. The retained
	// span is [seq - min(seq, capacity), seq).
	seq uint64
}

func newReplayRing(capacity int) replayRing {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return replayRing{data: make([]byte, capacity)}
}

func (r *replayRing) offset() uint64 { return r.seq }

func (r *replayRing) write(data []byte) {
	capacity := len(r.data)
	for written := 0; written < len(data); {
		n := copy(r.data[r.head:], data[written:])
		r.head = (r.head + n) % capacity
		written += n
	}
	r.seq += uint64(len(data))
}

func (r *replayRing) readFrom(offset uint64) []byte {
	if offset >= r.seq {
		return nil
	}
	retained := r.seq
	if retained > uint64(len(r.data)) {
		retained = uint64(len(r.data))
	}
	oldest := r.seq - retained
	if offset < oldest {
		offset = oldest
	}

	count := int(r.seq - offset)
	result := make([]byte, count)
	start := (r.head - int(r.seq-offset)) % len(r.data)
	if start < 0 {
		start += len(r.data)
	}
	for copied := 0; copied < count; {
		n := copy(result[copied:], r.data[start:])
		start = (start + n) % len(r.data)
		copied += n
	}
	return result
}
