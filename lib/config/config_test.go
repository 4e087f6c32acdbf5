// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hexlab-tools/hexlab/lib/session"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	if cfg.Block.Size != session.DefaultBlockSize {
		t.Errorf("block size: got %d, want %d", cfg.Block.Size, session.DefaultBlockSize)
	}
	fill, err := cfg.FillByte()
	if err != nil {
		t.Fatalf("FillByte: %v", err)
	}
	if fill != session.DefaultFillByte {
		t.Errorf("fill byte: got %#x, want %#x", fill, session.DefaultFillByte)
	}
	if cfg.CommitPolicy() != session.LastWriterWins {
		t.Errorf("commit policy: got %v, want %v", cfg.CommitPolicy(), session.LastWriterWins)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hexlab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
block:
  size: 512
  max_size: 4096
  fill: "00"
commit:
  policy: reject-stale
  lock_timeout: 2s
scheduler:
  workers: 8
flag_database: /var/lib/hexlab/flags.db
settings:
  scr.color: "true"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Block.Size != 512 {
		t.Errorf("block size: got %d, want 512", cfg.Block.Size)
	}
	fill, err := cfg.FillByte()
	if err != nil {
		t.Fatalf("FillByte: %v", err)
	}
	if fill != 0x00 {
		t.Errorf("fill byte: got %#x, want 0", fill)
	}
	if cfg.CommitPolicy() != session.RejectStale {
		t.Errorf("commit policy: got %v, want reject-stale", cfg.CommitPolicy())
	}
	if cfg.Commit.LockTimeout != 2*time.Second {
		t.Errorf("lock timeout: got %v, want 2s", cfg.Commit.LockTimeout)
	}
	if cfg.Scheduler.Workers != 8 {
		t.Errorf("workers: got %d, want 8", cfg.Scheduler.Workers)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Scheduler.QueueDepth != 64 {
		t.Errorf("queue depth: got %d, want default 64", cfg.Scheduler.QueueDepth)
	}
	if cfg.FlagDatabase != "/var/lib/hexlab/flags.db" {
		t.Errorf("flag database: got %q", cfg.FlagDatabase)
	}
	if cfg.Settings["scr.color"] != "true" {
		t.Errorf("settings seed: got %q, want %q", cfg.Settings["scr.color"], "true")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	path := writeConfig(t, "block:\n  size: 128\n")
	t.Setenv("HEXLAB_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Block.Size != 128 {
		t.Errorf("block size: got %d, want 128", cfg.Block.Size)
	}
}

func TestLoadWithoutEnvironment(t *testing.T) {
	t.Setenv("HEXLAB_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when HEXLAB_CONFIG is unset")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero block size", func(c *Config) { c.Block.Size = 0 }, "block.size"},
		{"max below size", func(c *Config) { c.Block.MaxSize = 1 }, "block.max_size"},
		{"bad fill", func(c *Config) { c.Block.Fill = "zz" }, "block.fill"},
		{"bad policy", func(c *Config) { c.Commit.Policy = "newest" }, "commit.policy"},
		{"negative timeout", func(c *Config) { c.Commit.LockTimeout = -time.Second }, "lock_timeout"},
		{"zero workers", func(c *Config) { c.Scheduler.Workers = 0 }, "scheduler.workers"},
		{"zero ring", func(c *Config) { c.Console.RingCapacity = 0 }, "console.ring_capacity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
