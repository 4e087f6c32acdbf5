// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// Package interp is the command interpreter: it parses command lines
// and executes them against a task context. The isolation core never
// inspects command semantics — it only supplies the context every
// command reads and writes through, which is why the same interpreter
// serves the interactive CLI (Shared contexts), the daemon (Snapshot
// contexts), and background tasks (Isolated contexts) unchanged.
package interp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hexlab-tools/hexlab/lib/session"
)

// ErrAborted is returned by ExecuteScript when the context's advisory
// abort flag was set between commands.
var ErrAborted = errors.New("interp: execution aborted")

// Func is a command implementation. Output goes through tc.Console();
// commands never write to the shared console directly.
type Func func(ctx context.Context, tc *session.Context, args []string) error

// Command is a registered command.
type Command struct {
	// Name is the command word.
	Name string
	// Summary is a one-line help string.
	Summary string
	// Run is the implementation.
	Run Func
}

// Interpreter is a command registry. Safe for concurrent use: many
// contexts execute through one interpreter at once.
type Interpreter struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// New creates an interpreter with the built-in command set.
func New() *Interpreter {
	in := &Interpreter{commands: make(map[string]*Command)}
	in.registerBuiltins()
	return in
}

// Register adds or replaces a command.
func (in *Interpreter) Register(cmd Command) error {
	if cmd.Name == "" || cmd.Run == nil {
		return fmt.Errorf("interp: command needs a name and a body")
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.commands[cmd.Name] = &cmd
	return nil
}

// Commands returns the registered commands sorted by name.
func (in *Interpreter) Commands() []Command {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]Command, 0, len(in.commands))
	for _, cmd := range in.commands {
		out = append(out, *cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs one command line against tc. An empty line is a no-op.
func (in *Interpreter) Execute(ctx context.Context, tc *session.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]

	in.mu.RLock()
	cmd, ok := in.commands[name]
	in.mu.RUnlock()
	if !ok {
		return fmt.Errorf("interp: unknown command %q", name)
	}
	if err := cmd.Run(ctx, tc, args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ExecuteScript runs lines in order, checking the context's advisory
// abort flag between commands — the safe points of a long-running
// unit. Empty lines and lines starting with '#' are skipped.
func (in *Interpreter) ExecuteScript(ctx context.Context, tc *session.Context, lines []string) error {
	for _, line := range lines {
		if tc.Aborted() {
			return ErrAborted
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if err := in.Execute(ctx, tc, trimmed); err != nil {
			return err
		}
	}
	return nil
}

// ParseAddress parses an address in 0x-prefixed hex, octal, or
// decimal.
func ParseAddress(s string) (uint64, error) {
	address, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("interp: bad address %q", s)
	}
	return address, nil
}
