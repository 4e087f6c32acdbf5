// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// Package content provides the content I/O layer: random-access reads
// against the binary image under analysis. Readers are stateless with
// respect to session state and safe to call from any goroutine, which
// is what lets task contexts fill their private block buffers without
// touching the shared session.
package content

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/zeebo/blake3"
)

// Reader is the boundary the session core reads content through.
// ReadAt fills buf with bytes starting at address and returns the
// number of bytes read. A read past the end of the image returns
// n < len(buf) with a nil error; short reads are an expected
// condition, not a failure. Implementations must be safe for
// concurrent use.
type Reader interface {
	ReadAt(address uint64, buf []byte) (int, error)

	// Size returns the extent of the image in bytes. Addresses at or
	// beyond Size read as empty.
	Size() uint64
}

// Digest returns the BLAKE3-256 hex digest of data. Used for block
// content fingerprints in the CLI and for snapshot integrity checks.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileImage is a Reader backed by a file on disk. Reads use pread
// semantics (os.File.ReadAt), so a single FileImage serves concurrent
// readers without shared cursor state.
type FileImage struct {
	file *os.File
	size uint64
}

// OpenFile opens the file at path for read-only random access.
// The caller must Close the image when done.
func OpenFile(path string) (*FileImage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: opening %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("content: stat %s: %w", path, err)
	}
	return &FileImage{file: file, size: uint64(info.Size())}, nil
}

// ReadAt reads up to len(buf) bytes at address. Reads past the end of
// the file return the available prefix with a nil error.
func (f *FileImage) ReadAt(address uint64, buf []byte) (int, error) {
	if address >= f.size {
		return 0, nil
	}
	n, err := f.file.ReadAt(buf, int64(address))
	if n > 0 || err == nil {
		// Partial reads at end-of-file surface as io.EOF with n > 0;
		// that is the documented short-read case, not an error.
		return n, nil
	}
	return 0, fmt.Errorf("content: read at %#x: %w", address, err)
}

// Size returns the file size in bytes.
func (f *FileImage) Size() uint64 { return f.size }

// Close releases the underlying file handle.
func (f *FileImage) Close() error { return f.file.Close() }

// SparseImage is an in-memory Reader assembled from address regions.
// Gaps between regions read as zero bytes. Used by tests and as the
// backing for patch overlays.
type SparseImage struct {
	regions []region
	size    uint64
}

type region struct {
	address uint64
	data    []byte
}

// NewSparse creates an empty sparse image.
func NewSparse() *SparseImage {
	return &SparseImage{}
}

// Put writes data at address, extending the image extent if needed.
// Regions are kept sorted by address; Put is not safe to call
// concurrently with ReadAt.
func (s *SparseImage) Put(address uint64, data []byte) {
	copied := make([]byte, len(data))
	copy(copied, data)
	s.regions = append(s.regions, region{address: address, data: copied})
	sort.Slice(s.regions, func(i, j int) bool {
		return s.regions[i].address < s.regions[j].address
	})
	if end := address + uint64(len(data)); end > s.size {
		s.size = end
	}
}

// ReadAt copies the parts of buf covered by the image extent, zeroing
// gaps. Returns the number of bytes within the extent.
func (s *SparseImage) ReadAt(address uint64, buf []byte) (int, error) {
	if address >= s.size {
		return 0, nil
	}
	n := len(buf)
	if remaining := s.size - address; uint64(n) > remaining {
		n = int(remaining)
	}
	window := buf[:n]
	for i := range window {
		window[i] = 0
	}
	for _, r := range s.regions {
		regionEnd := r.address + uint64(len(r.data))
		readEnd := address + uint64(n)
		if regionEnd <= address || r.address >= readEnd {
			continue
		}
		from, to := r.address, regionEnd
		if from < address {
			from = address
		}
		if to > readEnd {
			to = readEnd
		}
		copy(window[from-address:to-address], r.data[from-r.address:to-r.address])
	}
	return n, nil
}

// Size returns the image extent in bytes.
func (s *SparseImage) Size() uint64 { return s.size }
