// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sort"

	"github.com/hexlab-tools/hexlab/lib/settings"
)

// overlay is a context's settings view. Shared and Snapshot contexts
// pass every operation through to the session store (which holds its
// own short per-operation lock). Isolated contexts operate on a
// private clone taken once at context creation and track dirty keys
// for an optional merge at commit.
//
// Side-effecting keys (see the settings package registry) are the
// carve-out: a write to one always routes to the session store no
// matter the policy, because storing the value is not the whole
// behavior.
type overlay struct {
	shared  *settings.Store
	private *settings.Store // nil unless isolated
	dirty   map[string]struct{}
}

func newOverlay(shared *settings.Store, isolated bool) *overlay {
	o := &overlay{shared: shared}
	if isolated {
		o.private = shared.Clone()
		o.dirty = make(map[string]struct{})
	}
	return o
}

// get returns the value for key. Isolated overlays read the private
// copy, which was seeded from the session at creation and never
// re-reads the session afterwards.
func (o *overlay) get(key string) (string, bool) {
	if o.private != nil {
		return o.private.Get(key)
	}
	return o.shared.Get(key)
}

// set stores value under key. Side-effecting keys go to the session
// store regardless of policy; the private copy is kept in step (not
// dirty — the session already has the value) so the context's own
// later reads stay coherent.
func (o *overlay) set(key, value string) {
	if settings.SideEffecting(key) {
		o.shared.Set(key, value)
		if o.private != nil {
			o.private.Set(key, value)
		}
		return
	}
	if o.private != nil {
		o.private.Set(key, value)
		o.dirty[key] = struct{}{}
		return
	}
	o.shared.Set(key, value)
}

// dirtyKeys returns the locally modified keys in sorted order. Empty
// for pass-through overlays.
func (o *overlay) dirtyKeys() []string {
	keys := make([]string, 0, len(o.dirty))
	for k := range o.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mergeInto applies every dirty key from the private copy into the
// session store. Called only during commit, with the session lock
// held; if two commits race, the one the lock serializes last wins
// per key.
func (o *overlay) mergeInto(shared *settings.Store) {
	for _, key := range o.dirtyKeys() {
		if value, ok := o.private.Get(key); ok {
			shared.Set(key, value)
		} else {
			shared.Unset(key)
		}
	}
}

// release drops the private copy.
func (o *overlay) release() {
	o.private = nil
	o.dirty = nil
}
