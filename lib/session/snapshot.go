// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"io"

	"github.com/hexlab-tools/hexlab/lib/codec"
	"github.com/hexlab-tools/hexlab/lib/content"
)

// stateDocument is the serialized form of a session's canonical state:
// a deterministic CBOR document inside an LZ4 frame. Content bytes are
// not stored — the image file is the source of truth; the document
// records where the session was looking and its settings.
type stateDocument struct {
	FormatVersion int               `cbor:"format_version"`
	Address       uint64            `cbor:"address"`
	BlockSize     int               `cbor:"block_size"`
	Settings      map[string]string `cbor:"settings"`

	// BlockDigest is the BLAKE3 digest of the block at save time.
	// Informational: LoadState logs a mismatch (the image changed
	// underneath the snapshot) but does not fail.
	BlockDigest string `cbor:"block_digest"`
}

const stateFormatVersion = 1

// SaveState writes the session's canonical state to w. The session
// lock is held while the snapshot is taken, so the document is
// consistent with respect to concurrent commits.
func (s *Session) SaveState(ctx context.Context, w io.Writer) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	block, err := s.window.block()
	if err != nil {
		s.release()
		return fmt.Errorf("session: reading block for snapshot: %w", err)
	}
	doc := stateDocument{
		FormatVersion: stateFormatVersion,
		Address:       s.window.address,
		BlockSize:     s.window.size,
		Settings:      s.settings.Snapshot(),
		BlockDigest:   content.Digest(block),
	}
	s.release()

	if err := codec.WriteCompressed(w, doc); err != nil {
		return fmt.Errorf("session: writing snapshot: %w", err)
	}
	return nil
}

// LoadState restores canonical state saved by SaveState: address,
// block size, and settings. Settings are applied through the store so
// side-effecting hooks fire; cfg.blocksize is excluded from that pass
// because the window resize below already covers it.
func (s *Session) LoadState(ctx context.Context, r io.Reader) error {
	var doc stateDocument
	if err := codec.ReadCompressed(r, &doc); err != nil {
		return fmt.Errorf("session: reading snapshot: %w", err)
	}
	if doc.FormatVersion != stateFormatVersion {
		return fmt.Errorf("session: unsupported snapshot format version %d", doc.FormatVersion)
	}

	for key, value := range doc.Settings {
		if key == "cfg.blocksize" {
			continue
		}
		s.settings.Set(key, value)
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	if err := s.window.resize(doc.BlockSize); err != nil {
		return fmt.Errorf("session: restoring block size: %w", err)
	}
	if _, err := s.window.seek(doc.Address, true); err != nil {
		return fmt.Errorf("session: restoring address: %w", err)
	}
	if doc.BlockDigest != "" {
		block, err := s.window.block()
		if err == nil && content.Digest(block) != doc.BlockDigest {
			s.logger.Warn("snapshot block digest mismatch; image content changed since save",
				"address", doc.Address,
				"block_size", doc.BlockSize,
			)
		}
	}
	return nil
}
