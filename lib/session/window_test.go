// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"testing"

	"github.com/hexlab-tools/hexlab/lib/content"
)

// testImage returns a sparse image with 4 KiB of a recognizable
// pattern starting at address 0.
func testImage() *content.SparseImage {
	img := content.NewSparse()
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 251)
	}
	img.Put(0, data)
	return img
}

func TestWindowBlockLengthAlwaysEqualsSize(t *testing.T) {
	w := newWindow(testImage(), 0, 64, 1024, DefaultFillByte)

	for _, address := range []uint64{0, 100, 4090, 10000} {
		if _, err := w.seek(address, false); err != nil {
			t.Fatalf("seek %#x: %v", address, err)
		}
		block, err := w.block()
		if err != nil {
			t.Fatalf("block at %#x: %v", address, err)
		}
		if len(block) != 64 {
			t.Errorf("block at %#x: length %d, want 64", address, len(block))
		}
	}
}

func TestWindowShortReadFillsTail(t *testing.T) {
	w := newWindow(testImage(), 4090, 16, 1024, DefaultFillByte)

	block, err := w.block()
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	// 6 bytes of image remain past 4090; the other 10 are fill.
	for i := 0; i < 6; i++ {
		if block[i] != byte((4090+i)%251) {
			t.Errorf("byte %d: got %#x, want image content", i, block[i])
		}
	}
	for i := 6; i < 16; i++ {
		if block[i] != DefaultFillByte {
			t.Errorf("tail byte %d: got %#x, want fill %#x", i, block[i], DefaultFillByte)
		}
	}
}

func TestWindowOutOfRangeReadIsAllFill(t *testing.T) {
	w := newWindow(testImage(), 1<<30, 8, 1024, DefaultFillByte)

	block, err := w.block()
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	for i, b := range block {
		if b != DefaultFillByte {
			t.Errorf("byte %d: got %#x, want fill", i, b)
		}
	}
	if !w.valid {
		t.Error("out-of-range read should still validate the window")
	}
}

func TestWindowSeekInvalidatesBeforeMove(t *testing.T) {
	w := newWindow(testImage(), 0, 32, 1024, DefaultFillByte)
	if _, err := w.block(); err != nil {
		t.Fatalf("block: %v", err)
	}
	if !w.valid {
		t.Fatal("window should be valid after read")
	}

	changed, err := w.seek(0x40, false)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	if !changed {
		t.Error("seek to a new address should report a change")
	}
	if w.valid {
		t.Error("seek must clear validity")
	}

	// Seeking to the current address is a no-op.
	changed, err = w.seek(0x40, false)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	if changed {
		t.Error("seek to the same address should not report a change")
	}
}

func TestWindowSeekReadImmediately(t *testing.T) {
	img := testImage()
	w := newWindow(img, 0, 32, 1024, DefaultFillByte)

	if _, err := w.seek(0x100, true); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if !w.valid {
		t.Error("read-immediately seek should leave the window valid")
	}

	direct := make([]byte, 32)
	img.ReadAt(0x100, direct)
	if !bytes.Equal(w.buffer, direct) {
		t.Error("block after seek differs from a direct read at the same address")
	}
}

func TestWindowResizePreservesPrefixAndFillsTail(t *testing.T) {
	w := newWindow(testImage(), 0, 256, 4096, DefaultFillByte)
	if _, err := w.block(); err != nil {
		t.Fatalf("block: %v", err)
	}
	old := make([]byte, 256)
	copy(old, w.buffer)

	if err := w.resize(1024); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if w.size != 1024 || len(w.buffer) != 1024 {
		t.Fatalf("size after resize: %d / buffer %d", w.size, len(w.buffer))
	}
	// resize triggers a fresh read, so the full kilobyte holds image
	// content; the prefix must still match what was there before.
	if !bytes.Equal(w.buffer[:256], old) {
		t.Error("resize did not preserve the overlapping prefix")
	}
}

func TestWindowResizeTailFillBeforeRead(t *testing.T) {
	// An image that is entirely out of range isolates the fill
	// behavior: the re-read touches nothing, so the grown tail must
	// show the fill pattern.
	img := content.NewSparse()
	w := newWindow(img, 0, 4, 64, DefaultFillByte)
	if _, err := w.block(); err != nil {
		t.Fatalf("block: %v", err)
	}

	if err := w.resize(16); err != nil {
		t.Fatalf("resize: %v", err)
	}
	for i := 4; i < 16; i++ {
		if w.buffer[i] != DefaultFillByte {
			t.Errorf("grown tail byte %d: got %#x, want fill", i, w.buffer[i])
		}
	}
}

func TestWindowResizeFailureLeavesWindowUnchanged(t *testing.T) {
	w := newWindow(testImage(), 0x10, 64, 128, DefaultFillByte)
	if _, err := w.block(); err != nil {
		t.Fatalf("block: %v", err)
	}
	before := make([]byte, 64)
	copy(before, w.buffer)

	err := w.resize(4096) // beyond the 128-byte limit
	if err == nil {
		t.Fatal("expected resize beyond the limit to fail")
	}
	if !IsAllocError(err) {
		t.Fatalf("expected *AllocError, got %v", err)
	}

	if w.size != 64 || w.address != 0x10 || !w.valid {
		t.Errorf("window changed after failed resize: size=%d address=%#x valid=%v",
			w.size, w.address, w.valid)
	}
	block, err := w.block()
	if err != nil {
		t.Fatalf("block after failed resize: %v", err)
	}
	if !bytes.Equal(block, before) {
		t.Error("buffer content changed after failed resize")
	}

	if err := w.resize(0); err == nil {
		t.Error("expected non-positive resize to fail")
	}
}
