// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
)

// ErrStaleContext is returned by any operation on a context after its
// Commit or Discard. Stale use is always reported, never silently
// ignored.
var ErrStaleContext = errors.New("session: context already committed or discarded")

// ErrAddressConflict is returned by Commit under the RejectStale
// commit policy when the session address moved after the context was
// created. The session is left untouched and the context remains
// usable: the caller can re-read the session, retry, or Discard.
var ErrAddressConflict = errors.New("session: canonical address changed since context creation")

// AllocError reports a failed block resize. The window is left
// entirely unchanged: prior buffer, size, and validity are preserved
// and the context remains usable.
type AllocError struct {
	// Requested is the rejected block size in bytes.
	Requested int
	// Limit is the configured maximum block size.
	Limit int
}

func (e *AllocError) Error() string {
	if e.Requested <= 0 {
		return fmt.Sprintf("session: block size %d is not positive", e.Requested)
	}
	return fmt.Sprintf("session: block size %d exceeds limit %d", e.Requested, e.Limit)
}

// IsAllocError reports whether err is an *AllocError.
func IsAllocError(err error) bool {
	var allocErr *AllocError
	return errors.As(err, &allocErr)
}
