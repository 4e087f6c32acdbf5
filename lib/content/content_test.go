// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestFileImageShortRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	img, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer img.Close()

	if img.Size() != 10 {
		t.Fatalf("size: got %d, want 10", img.Size())
	}

	buf := make([]byte, 8)
	n, err := img.ReadAt(6, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 4 {
		t.Errorf("short read: got %d bytes, want 4", n)
	}
	if !bytes.Equal(buf[:n], []byte("6789")) {
		t.Errorf("read content: got %q", buf[:n])
	}
}

func TestFileImagePastEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	img, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer img.Close()

	n, err := img.ReadAt(100, make([]byte, 4))
	if err != nil {
		t.Fatalf("read past end should not error: %v", err)
	}
	if n != 0 {
		t.Errorf("read past end: got %d bytes, want 0", n)
	}
}

func TestSparseImageGapsReadZero(t *testing.T) {
	img := NewSparse()
	img.Put(0, []byte{0xaa, 0xbb})
	img.Put(4, []byte{0xcc, 0xdd})

	buf := make([]byte, 6)
	n, err := img.ReadAt(0, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 6 {
		t.Fatalf("got %d bytes, want 6", n)
	}
	want := []byte{0xaa, 0xbb, 0x00, 0x00, 0xcc, 0xdd}
	if !bytes.Equal(buf, want) {
		t.Errorf("got % x, want % x", buf, want)
	}
}

func TestSparseImageOffsetRead(t *testing.T) {
	img := NewSparse()
	img.Put(0x100, []byte{1, 2, 3, 4})

	buf := make([]byte, 8)
	n, err := img.ReadAt(0x102, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 2 {
		t.Fatalf("got %d bytes, want 2", n)
	}
	if buf[0] != 3 || buf[1] != 4 {
		t.Errorf("got % x", buf[:n])
	}
}

func TestDigestStable(t *testing.T) {
	a := Digest([]byte("block"))
	b := Digest([]byte("block"))
	if a != b {
		t.Error("digest of identical content differs")
	}
	if a == Digest([]byte("other")) {
		t.Error("digest of different content collides")
	}
	if len(a) != 64 {
		t.Errorf("digest length: got %d hex chars, want 64", len(a))
	}
}
