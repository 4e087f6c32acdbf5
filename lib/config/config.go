// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for hexlab binaries.
//
// Configuration is loaded from a single YAML file specified by:
//   - HEXLAB_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// Every field has a default, so running without a config file at all
// is also supported (the binaries call Default()).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hexlab-tools/hexlab/lib/session"
)

// Config is the master configuration for hexlab.
type Config struct {
	// Block configures the content window.
	Block BlockConfig `yaml:"block"`

	// Commit configures the commit protocol.
	Commit CommitConfig `yaml:"commit"`

	// Scheduler configures the worker pool.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Console configures the shared console.
	Console ConsoleConfig `yaml:"console"`

	// FlagDatabase is the path of the SQLite flag store. Empty
	// disables persistent flags.
	FlagDatabase string `yaml:"flag_database"`

	// Settings seeds the session settings store.
	Settings map[string]string `yaml:"settings"`
}

// BlockConfig configures the content window.
type BlockConfig struct {
	// Size is the initial block size in bytes.
	Size int `yaml:"size"`

	// MaxSize bounds resize requests; larger requests fail and leave
	// the window unchanged.
	MaxSize int `yaml:"max_size"`

	// Fill is the hex byte used to pad short reads and grown resize
	// tails, e.g. "ff".
	Fill string `yaml:"fill"`
}

// CommitConfig configures the commit protocol.
type CommitConfig struct {
	// Policy resolves racing address commits: "last-writer-wins"
	// (default) or "reject-stale".
	Policy string `yaml:"policy"`

	// LockTimeout bounds the session lock wait at commit. Zero waits
	// indefinitely.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// SchedulerConfig configures the worker pool.
type SchedulerConfig struct {
	// Workers is the pool size for request and background tasks.
	Workers int `yaml:"workers"`

	// QueueDepth bounds the submission queue.
	QueueDepth int `yaml:"queue_depth"`
}

// ConsoleConfig configures the shared console.
type ConsoleConfig struct {
	// RingCapacity is the replay ring size in bytes.
	RingCapacity int `yaml:"ring_capacity"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Block: BlockConfig{
			Size:    session.DefaultBlockSize,
			MaxSize: session.DefaultMaxBlockSize,
			Fill:    "ff",
		},
		Commit: CommitConfig{
			Policy: session.LastWriterWins.String(),
		},
		Scheduler: SchedulerConfig{
			Workers:    4,
			QueueDepth: 64,
		},
		Console: ConsoleConfig{
			RingCapacity: 256 * 1024,
		},
		Settings: map[string]string{},
	}
}

// Load reads the config file named by HEXLAB_CONFIG. Returns an error
// if the variable is not set; use LoadFile when the path comes from a
// flag, or Default when running without a file.
func Load() (*Config, error) {
	path := os.Getenv("HEXLAB_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("HEXLAB_CONFIG environment variable not set")
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config file at path. Missing fields
// keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	if c.Block.Size <= 0 {
		return fmt.Errorf("block.size must be positive, got %d", c.Block.Size)
	}
	if c.Block.MaxSize < c.Block.Size {
		return fmt.Errorf("block.max_size %d is smaller than block.size %d", c.Block.MaxSize, c.Block.Size)
	}
	if _, err := c.FillByte(); err != nil {
		return err
	}
	if _, err := session.ParseCommitPolicy(c.Commit.Policy); err != nil {
		return fmt.Errorf("commit.policy: %w", err)
	}
	if c.Commit.LockTimeout < 0 {
		return fmt.Errorf("commit.lock_timeout must not be negative")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be positive, got %d", c.Scheduler.Workers)
	}
	if c.Console.RingCapacity <= 0 {
		return fmt.Errorf("console.ring_capacity must be positive, got %d", c.Console.RingCapacity)
	}
	return nil
}

// FillByte parses the block fill byte.
func (c *Config) FillByte() (byte, error) {
	value, err := strconv.ParseUint(c.Block.Fill, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("block.fill must be a hex byte, got %q", c.Block.Fill)
	}
	return byte(value), nil
}

// CommitPolicy parses the commit policy enumeration. Call Validate
// first; this panics on an invalid value.
func (c *Config) CommitPolicy() session.CommitPolicy {
	policy, err := session.ParseCommitPolicy(c.Commit.Policy)
	if err != nil {
		panic("config: " + err.Error())
	}
	return policy
}
