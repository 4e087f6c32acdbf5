// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides hexlab's on-disk serialization: deterministic
// CBOR for structured state, wrapped in an LZ4 frame for snapshot
// files. Deterministic encoding means the same logical session state
// always produces identical bytes, so snapshot files can be compared
// and content-addressed.
package codec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored for forward compatibility.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Hexlab never uses non-string map keys. When the decoder's
		// target is any, it must pick a concrete Go map type; the CBOR
		// default of map[interface{}]interface{} is incompatible with
		// most Go code expecting map[string]any. Struct field decoding
		// is unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// WriteCompressed encodes v as deterministic CBOR and writes it to w
// inside an LZ4 frame. This is the snapshot file format: the frame
// carries its own content checksum, so corrupt snapshots fail on read
// rather than decoding into garbage state.
func WriteCompressed(w io.Writer, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("codec: marshal: %w", err)
	}
	zw := lz4.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("codec: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("codec: finish frame: %w", err)
	}
	return nil
}

// ReadCompressed reads one LZ4 frame from r and decodes the contained
// CBOR document into v.
func ReadCompressed(r io.Reader, v any) error {
	data, err := io.ReadAll(lz4.NewReader(r))
	if err != nil {
		return fmt.Errorf("codec: decompress: %w", err)
	}
	if err := Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}
