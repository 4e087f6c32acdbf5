// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package interp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hexlab-tools/hexlab/lib/content"
	"github.com/hexlab-tools/hexlab/lib/flagdb"
	"github.com/hexlab-tools/hexlab/lib/session"
)

// registerBuiltins installs the core command set. Single-letter names
// follow the conventions analysts expect from hex tools: s(eek),
// b(lock size), p(rint) variants, e for settings.
func (in *Interpreter) registerBuiltins() {
	in.Register(Command{Name: "s", Summary: "seek to address, or print the current address", Run: cmdSeek})
	in.Register(Command{Name: "b", Summary: "set the block size, or print it", Run: cmdBlockSize})
	in.Register(Command{Name: "px", Summary: "hexdump the current block (optional byte count)", Run: cmdHexdump})
	in.Register(Command{Name: "ph", Summary: "print the BLAKE3 digest of the current block", Run: cmdDigest})
	in.Register(Command{Name: "e", Summary: "get (e key) or set (e key=value) a setting", Run: cmdConfig})
	in.Register(Command{Name: "?", Summary: "list commands", Run: in.cmdHelp})
}

func cmdSeek(ctx context.Context, tc *session.Context, args []string) error {
	if len(args) == 0 {
		address, err := tc.Address(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(tc.Console(), "%#x\n", address)
		return nil
	}
	address, err := ParseAddress(args[0])
	if err != nil {
		return err
	}
	_, err = tc.Seek(ctx, address, true)
	return err
}

func cmdBlockSize(ctx context.Context, tc *session.Context, args []string) error {
	if len(args) == 0 {
		size, err := tc.BlockSize(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(tc.Console(), "%d\n", size)
		return nil
	}
	size, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad block size %q", args[0])
	}
	return tc.Resize(ctx, size)
}

func cmdHexdump(ctx context.Context, tc *session.Context, args []string) error {
	block, err := tc.Block(ctx)
	if err != nil {
		return err
	}
	count := len(block)
	if len(args) > 0 {
		count, err = strconv.Atoi(args[0])
		if err != nil || count <= 0 {
			return fmt.Errorf("bad byte count %q", args[0])
		}
		if count > len(block) {
			count = len(block)
		}
	}
	address, err := tc.Address(ctx)
	if err != nil {
		return err
	}

	for row := 0; row < count; row += 16 {
		end := row + 16
		if end > count {
			end = count
		}
		var hexCol, asciiCol strings.Builder
		for i := row; i < end; i++ {
			fmt.Fprintf(&hexCol, "%02x ", block[i])
			if block[i] >= 0x20 && block[i] < 0x7f {
				asciiCol.WriteByte(block[i])
			} else {
				asciiCol.WriteByte('.')
			}
		}
		fmt.Fprintf(tc.Console(), "%#010x  %-48s %s\n", address+uint64(row), hexCol.String(), asciiCol.String())
	}
	return nil
}

func cmdDigest(ctx context.Context, tc *session.Context, args []string) error {
	block, err := tc.Block(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(tc.Console(), "blake3 %s\n", content.Digest(block))
	return nil
}

func cmdConfig(ctx context.Context, tc *session.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: e key | e key=value")
	}
	expr := strings.Join(args, " ")
	if key, value, found := strings.Cut(expr, "="); found {
		return tc.ConfigSet(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	value, ok, err := tc.ConfigGet(expr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no such setting %q", expr)
	}
	fmt.Fprintf(tc.Console(), "%s\n", value)
	return nil
}

func (in *Interpreter) cmdHelp(ctx context.Context, tc *session.Context, args []string) error {
	for _, cmd := range in.Commands() {
		fmt.Fprintf(tc.Console(), "%-4s %s\n", cmd.Name, cmd.Summary)
	}
	return nil
}

// RegisterFlagCommands installs the flag commands backed by store:
// f (set), f- (delete), fl (list by prefix), fa (flags at the current
// address).
func (in *Interpreter) RegisterFlagCommands(store *flagdb.Store) {
	in.Register(Command{
		Name:    "f",
		Summary: "set a flag at the current address: f name [size]",
		Run: func(ctx context.Context, tc *session.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: f name [size]")
			}
			flag := flagdb.Flag{Name: args[0]}
			address, err := tc.Address(ctx)
			if err != nil {
				return err
			}
			flag.Address = address
			if len(args) > 1 {
				size, err := strconv.ParseInt(args[1], 0, 64)
				if err != nil || size < 0 {
					return fmt.Errorf("bad flag size %q", args[1])
				}
				flag.Size = size
			}
			return store.Set(ctx, flag)
		},
	})
	in.Register(Command{
		Name:    "f-",
		Summary: "delete a flag: f- name",
		Run: func(ctx context.Context, tc *session.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: f- name")
			}
			return store.Delete(ctx, args[0])
		},
	})
	in.Register(Command{
		Name:    "fl",
		Summary: "list flags, optionally by prefix: fl [prefix]",
		Run: func(ctx context.Context, tc *session.Context, args []string) error {
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			flags, err := store.List(ctx, prefix)
			if err != nil {
				return err
			}
			for _, flag := range flags {
				fmt.Fprintf(tc.Console(), "%#010x %6d %s\n", flag.Address, flag.Size, flag.Name)
			}
			return nil
		},
	})
	in.Register(Command{
		Name:    "fa",
		Summary: "show flags covering the current address",
		Run: func(ctx context.Context, tc *session.Context, args []string) error {
			address, err := tc.Address(ctx)
			if err != nil {
				return err
			}
			flags, err := store.At(ctx, address)
			if err != nil {
				return err
			}
			for _, flag := range flags {
				fmt.Fprintf(tc.Console(), "%#010x %6d %s\n", flag.Address, flag.Size, flag.Name)
			}
			return nil
		},
	})
}
