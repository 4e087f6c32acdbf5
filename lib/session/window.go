// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"

	"github.com/hexlab-tools/hexlab/lib/content"
)

// DefaultFillByte pads short reads and grown resize tails. 0xff is
// visually distinct from real zero-filled content in a hex dump.
const DefaultFillByte = 0xff

// window is the (address, size, buffer, valid) tuple a context views.
// Not safe for concurrent use: the session's canonical window is
// guarded by the session lock, and a context's private window is owned
// by exactly one unit of work.
//
// Invariant: valid is true only when buffer was filled by a read at
// the current address/size pair. Every mutation clears valid before
// touching address or size, so there is no interval where the fields
// disagree with a true valid flag.
type window struct {
	address uint64
	size    int
	buffer  []byte
	valid   bool

	reader  content.Reader
	maxSize int
	fill    byte
}

func newWindow(reader content.Reader, address uint64, size, maxSize int, fill byte) *window {
	w := &window{
		reader:  reader,
		address: address,
		size:    size,
		maxSize: maxSize,
		fill:    fill,
	}
	w.buffer = make([]byte, size)
	return w
}

// clone returns an independent copy seeded from w's address and size.
// The buffer is freshly allocated and invalid: the copy re-reads on
// first use rather than aliasing w's cache.
func (w *window) clone() *window {
	return newWindow(w.reader, w.address, w.size, w.maxSize, w.fill)
}

// block returns the buffer, reading it from the content layer first if
// the cache is invalid. The returned slice always has length equal to
// the window size: a short or out-of-range read leaves the untouched
// tail at the fill pattern. The returned slice aliases the window's
// buffer — callers that escape it must copy.
func (w *window) block() ([]byte, error) {
	if w.valid {
		return w.buffer, nil
	}
	n, err := w.reader.ReadAt(w.address, w.buffer)
	if err != nil {
		return nil, fmt.Errorf("session: reading %d bytes at %#x: %w", w.size, w.address, err)
	}
	for i := n; i < len(w.buffer); i++ {
		w.buffer[i] = w.fill
	}
	w.valid = true
	return w.buffer, nil
}

// seek moves the window to address. Validity is cleared before the
// address is updated. If readNow, the block is fetched before
// returning. Reports whether the address actually changed.
func (w *window) seek(address uint64, readNow bool) (bool, error) {
	changed := address != w.address
	if changed {
		w.valid = false
		w.address = address
	}
	if readNow {
		if _, err := w.block(); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// resize changes the window to size bytes. The overlapping prefix of
// the old buffer is preserved, any grown tail is set to the fill
// pattern, validity is cleared, and a fresh read is triggered. If size
// is rejected, the window is left entirely unchanged and an
// *AllocError is returned.
func (w *window) resize(size int) error {
	if size <= 0 || size > w.maxSize {
		return &AllocError{Requested: size, Limit: w.maxSize}
	}
	buffer := make([]byte, size)
	n := copy(buffer, w.buffer)
	for i := n; i < size; i++ {
		buffer[i] = w.fill
	}
	w.valid = false
	w.buffer = buffer
	w.size = size
	_, err := w.block()
	return err
}

// invalidate drops the cached block so the next read re-fetches.
func (w *window) invalidate() {
	w.valid = false
}

// release frees the buffer. The window must not be used afterwards.
func (w *window) release() {
	w.buffer = nil
	w.valid = false
}
