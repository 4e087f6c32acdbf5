// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	img := testImage()
	ctx := context.Background()

	source, err := New(Config{Reader: img, BlockSize: 128})
	if err != nil {
		t.Fatalf("creating source session: %v", err)
	}
	source.Settings().Set("asm.arch", "arm")
	source.Settings().Set("anal.depth", "8")

	tc := mustContext(t, source, ContextOptions{Policy: Shared})
	if _, err := tc.Seek(ctx, 0x400, true); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if err := tc.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var buf bytes.Buffer
	if err := source.SaveState(ctx, &buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := New(Config{Reader: img})
	if err != nil {
		t.Fatalf("creating target session: %v", err)
	}
	if err := restored.LoadState(ctx, &buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	state, err := restored.CurrentState(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Address != 0x400 {
		t.Errorf("restored address: got %#x, want 0x400", state.Address)
	}
	if state.BlockSize != 128 {
		t.Errorf("restored block size: got %d, want 128", state.BlockSize)
	}
	if v, _ := restored.Settings().Get("asm.arch"); v != "arm" {
		t.Errorf("restored setting: got %q, want arm", v)
	}
	if v, _ := restored.Settings().Get("anal.depth"); v != "8" {
		t.Errorf("restored setting: got %q, want 8", v)
	}
}

func TestLoadStateRejectsGarbage(t *testing.T) {
	s := newTestSession(t)
	err := s.LoadState(context.Background(), bytes.NewReader([]byte("junk")))
	if err == nil {
		t.Fatal("expected error loading a corrupt snapshot")
	}
}
