// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings provides the session settings store: a string
// key/value map with change hooks for side-effecting keys.
//
// Most settings are plain stored values. A small set of keys trigger
// behavior beyond storing the value (toggling a display mode, resizing
// the block). Those keys are declared in an embedded registry file
// (sidefx.jsonc) rather than inferred from code, so the carve-out list
// stays explicit and auditable. Task contexts consult [SideEffecting]
// to decide whether a write may stay private to the context or must
// route to the shared session store.
package settings

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/jsonc"
)

//go:embed sidefx.jsonc
var sideEffectRegistry []byte

// sideEffecting is the parsed registry: key → description. The
// description exists for auditability (hexlab config sidefx prints it);
// only membership matters to the isolation machinery.
var sideEffecting map[string]string

func init() {
	stripped := jsonc.ToJSON(sideEffectRegistry)
	if err := json.Unmarshal(stripped, &sideEffecting); err != nil {
		panic("settings: embedded side-effect registry is invalid: " + err.Error())
	}
}

// SideEffecting reports whether key is declared side-effecting. Writes
// to such keys always go to the shared session store regardless of the
// writing context's isolation policy.
func SideEffecting(key string) bool {
	_, ok := sideEffecting[key]
	return ok
}

// SideEffectingKeys returns the registry as key → description, for
// display. The returned map is a copy.
func SideEffectingKeys() map[string]string {
	out := make(map[string]string, len(sideEffecting))
	for k, v := range sideEffecting {
		out[k] = v
	}
	return out
}

// Hook is called after a side-effecting key changes value in a Store.
// Hooks run with the store lock released so they may read the store.
type Hook func(key, value string)

// Store is a mutex-guarded string key/value map. It is safe for
// concurrent use; individual operations hold the lock briefly and
// never call out while holding it.
type Store struct {
	mu     sync.Mutex
	values map[string]string
	hooks  map[string][]Hook
}

// New creates a store seeded with the given defaults. A nil map is
// allowed.
func New(defaults map[string]string) *Store {
	values := make(map[string]string, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &Store{
		values: values,
		hooks:  make(map[string][]Hook),
	}
}

// Get returns the value for key and whether it is set.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key, creating the key if absent. If key is
// side-effecting, registered hooks fire after the store lock is
// released.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	var fire []Hook
	if SideEffecting(key) {
		fire = append(fire, s.hooks[key]...)
	}
	s.mu.Unlock()

	for _, hook := range fire {
		hook(key, value)
	}
}

// Unset removes key from the store.
func (s *Store) Unset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys returns all set keys in unspecified order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns an independent copy of the store's values. Hooks are
// not cloned: a clone is a passive snapshot, and firing display
// toggles from a private copy is exactly what isolation exists to
// prevent.
func (s *Store) Clone() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return &Store{
		values: values,
		hooks:  make(map[string][]Hook),
	}
}

// Snapshot returns the store's values as a plain map copy. Used by
// session snapshot serialization.
func (s *Store) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return values
}

// OnChange registers a hook for a side-effecting key. Returns an error
// if the key is not in the registry: hooks on plain keys would
// reintroduce the implicit global visibility the registry exists to
// rule out.
func (s *Store) OnChange(key string, hook Hook) error {
	if !SideEffecting(key) {
		return fmt.Errorf("settings: %q is not a registered side-effecting key", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[key] = append(s.hooks[key], hook)
	return nil
}
