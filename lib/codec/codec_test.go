// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Address uint64            `cbor:"address"`
	Size    int               `cbor:"size"`
	Values  map[string]string `cbor:"values"`
}

func TestMarshalDeterministic(t *testing.T) {
	v := sample{
		Address: 0x1000,
		Size:    256,
		Values:  map[string]string{"asm.arch": "x86", "scr.color": "false"},
	}

	first, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same value produced different encodings")
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	in := sample{
		Address: 0xdeadbeef,
		Size:    1024,
		Values:  map[string]string{"cfg.fill": "ff"},
	}

	var buf bytes.Buffer
	if err := WriteCompressed(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out sample
	if err := ReadCompressed(&buf, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Address != in.Address || out.Size != in.Size {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if out.Values["cfg.fill"] != "ff" {
		t.Errorf("values lost in round trip: %+v", out.Values)
	}
}

func TestReadCompressedRejectsGarbage(t *testing.T) {
	var out sample
	err := ReadCompressed(bytes.NewReader([]byte("not an lz4 frame")), &out)
	if err == nil {
		t.Fatal("expected error for non-LZ4 input")
	}
}
