// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import "testing"

func TestGetSet(t *testing.T) {
	s := New(map[string]string{"asm.arch": "x86"})

	v, ok := s.Get("asm.arch")
	if !ok || v != "x86" {
		t.Errorf("default value: got %q, %v", v, ok)
	}

	s.Set("asm.bits", "64")
	v, ok = s.Get("asm.bits")
	if !ok || v != "64" {
		t.Errorf("set then get: got %q, %v", v, ok)
	}

	if _, ok := s.Get("no.such.key"); ok {
		t.Error("unset key reported as present")
	}

	s.Unset("asm.bits")
	if _, ok := s.Get("asm.bits"); ok {
		t.Error("unset key still present")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New(map[string]string{"k": "original"})
	c := s.Clone()

	c.Set("k", "changed")
	if v, _ := s.Get("k"); v != "original" {
		t.Errorf("clone write leaked into source: %q", v)
	}

	s.Set("k", "also-changed")
	if v, _ := c.Get("k"); v != "changed" {
		t.Errorf("source write leaked into clone: %q", v)
	}
}

func TestSideEffectRegistry(t *testing.T) {
	if !SideEffecting("cfg.blocksize") {
		t.Error("cfg.blocksize should be registered side-effecting")
	}
	if SideEffecting("asm.arch") {
		t.Error("asm.arch should not be side-effecting")
	}
	keys := SideEffectingKeys()
	if keys["scr.color"] == "" {
		t.Error("registry entries should carry descriptions")
	}
}

func TestOnChangeFiresForSideEffectingKey(t *testing.T) {
	s := New(nil)

	var got string
	if err := s.OnChange("scr.color", func(key, value string) { got = value }); err != nil {
		t.Fatalf("registering hook: %v", err)
	}

	s.Set("scr.color", "true")
	if got != "true" {
		t.Errorf("hook did not fire: got %q", got)
	}

	// Plain keys refuse hooks.
	if err := s.OnChange("asm.arch", func(string, string) {}); err == nil {
		t.Error("expected error registering hook on plain key")
	}
}

func TestCloneDropsHooks(t *testing.T) {
	s := New(nil)
	fired := false
	if err := s.OnChange("scr.color", func(string, string) { fired = true }); err != nil {
		t.Fatalf("registering hook: %v", err)
	}

	c := s.Clone()
	c.Set("scr.color", "true")
	if fired {
		t.Error("hook fired from a cloned store")
	}
}
