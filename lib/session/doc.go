// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements hexlab's task context isolation: the
// machinery that lets every unit of work execute commands against a
// private, consistent view of session state and merge (or drop) the
// result under a single well-defined commit protocol.
//
// A [Session] owns the canonical state: current address, block size,
// cached block buffer, settings store, and console. Commands never
// touch it directly. Instead, each unit of work gets a [Context] at
// one of three isolation policies:
//
//   - [Shared] forwards every operation to the session under the
//     session lock. This is the legacy single-threaded execution path,
//     kept as a thin forwarding variant.
//   - [Snapshot] captures a private copy of the address window at
//     creation but passes config reads and writes through to the
//     session. Suited to read-mostly parallel work such as request
//     handlers.
//   - [Isolated] captures private copies of both the window and the
//     settings. Nothing a fully isolated task does is visible to the
//     session or to other contexts until its commit, and then only
//     what its propagation flags permit.
//
// The session lock is the only lock in the design (the console flush
// mutex is acquired strictly inside it, never the other way around),
// so no lock-ordering deadlock is possible. Commits serialize on it;
// the serialization order is a total order over commits but carries no
// relationship to context creation order. Two concurrently committing
// contexts that both propagate an address race by design — see
// [CommitPolicy] for the two supported resolutions.
package session
