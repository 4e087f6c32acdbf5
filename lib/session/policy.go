// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "fmt"

// Policy selects which parts of session state a context keeps private.
// Fixed for the lifetime of a context.
type Policy int

const (
	// Shared forwards every operation to the session under the
	// session lock and writes console output live. Legacy
	// single-threaded execution.
	Shared Policy = iota

	// Snapshot gives the context a private address window seeded from
	// the session at creation. Config operations pass through to the
	// session; console output is buffered until commit or discard.
	Snapshot

	// Isolated gives the context private copies of the window and the
	// settings. Console output is buffered until commit or discard.
	Isolated
)

// String returns the lowercase policy name.
func (p Policy) String() string {
	switch p {
	case Shared:
		return "shared"
	case Snapshot:
		return "snapshot"
	case Isolated:
		return "isolated"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy converts a policy name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "shared":
		return Shared, nil
	case "snapshot":
		return Snapshot, nil
	case "isolated":
		return Isolated, nil
	}
	return 0, fmt.Errorf("session: unknown isolation policy %q", name)
}

// CommitPolicy resolves the race between two contexts that both
// propagate an address at commit.
type CommitPolicy int

const (
	// LastWriterWins lets every address commit through; the session
	// ends at whichever commit the lock serializes last. This is the
	// documented hazard, not a bug — callers needing determinism must
	// avoid two concurrently propagating address changes.
	LastWriterWins CommitPolicy = iota

	// RejectStale performs an optimistic check: if the session address
	// moved after the context was created, Commit returns
	// ErrAddressConflict and applies nothing.
	RejectStale
)

// String returns the commit policy name as used in config files.
func (p CommitPolicy) String() string {
	switch p {
	case LastWriterWins:
		return "last-writer-wins"
	case RejectStale:
		return "reject-stale"
	}
	return fmt.Sprintf("commitpolicy(%d)", int(p))
}

// ParseCommitPolicy converts a config-file name to a CommitPolicy.
func ParseCommitPolicy(name string) (CommitPolicy, error) {
	switch name {
	case "last-writer-wins", "":
		return LastWriterWins, nil
	case "reject-stale":
		return RejectStale, nil
	}
	return 0, fmt.Errorf("session: unknown commit policy %q", name)
}
