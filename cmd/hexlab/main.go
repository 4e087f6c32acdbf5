// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// hexlab is the interactive analysis shell.
//
// It opens a content image, builds a shared session over it, and runs
// analysis commands against the session: from -c flags, from a script
// file, or interactively. Lines ending in "&" run as background tasks
// in isolated workspaces and publish their results on commit.
//
// Usage:
//
//	hexlab [flags] <image> [script]
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/hexlab-tools/hexlab/lib/config"
	"github.com/hexlab-tools/hexlab/lib/console"
	"github.com/hexlab-tools/hexlab/lib/content"
	"github.com/hexlab-tools/hexlab/lib/flagdb"
	"github.com/hexlab-tools/hexlab/lib/interp"
	"github.com/hexlab-tools/hexlab/lib/schedule"
	"github.com/hexlab-tools/hexlab/lib/session"
	"github.com/hexlab-tools/hexlab/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("hexlab", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the hexlab config file")
	commands := flags.StringArrayP("command", "c", nil, "command to run before the script or REPL (repeatable)")
	statePath := flags.String("load-state", "", "restore a saved session state before running")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("hexlab %s\n", version.Info())
		return nil
	}

	args := flags.Args()
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: hexlab [flags] <image> [script]")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	image, err := content.OpenFile(args[0])
	if err != nil {
		return err
	}
	defer image.Close()

	shared := console.New(os.Stdout, cfg.Console.RingCapacity)
	logger := newLogger()

	sess, err := session.New(session.Config{
		Reader:       image,
		Settings:     cfg.Settings,
		Console:      shared,
		BlockSize:    cfg.Block.Size,
		MaxBlockSize: cfg.Block.MaxSize,
		CommitPolicy: cfg.CommitPolicy(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if *statePath != "" {
		if err := restoreState(sess, *statePath); err != nil {
			return err
		}
	}

	sched, err := schedule.New(schedule.Config{
		Session:       sess,
		Workers:       cfg.Scheduler.Workers,
		QueueDepth:    cfg.Scheduler.QueueDepth,
		CommitTimeout: cfg.Commit.LockTimeout,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer sched.Close()

	in := interp.New()
	if cfg.FlagDatabase != "" {
		store, err := flagdb.Open(flagdb.Config{Path: cfg.FlagDatabase, Logger: logger})
		if err != nil {
			return fmt.Errorf("opening flag database: %w", err)
		}
		defer store.Close()
		in.RegisterFlagCommands(store)
	}

	shell := &shell{
		interp:    in,
		scheduler: sched,
		session:   sess,
		styles:    newStyles(term.IsTerminal(int(os.Stdout.Fd()))),
	}

	for _, command := range *commands {
		if err := shell.runLine(command); err != nil {
			return err
		}
	}
	if len(args) == 2 {
		return shell.runScript(args[1])
	}
	if len(*commands) > 0 {
		return nil
	}
	return shell.repl(bufio.NewScanner(os.Stdin))
}

// loadConfig resolves the config file: the --config flag wins, then
// HEXLAB_CONFIG, then built-in defaults. The fill byte travels as the
// cfg.fill settings seed so the hook applies it ("00" included).
func loadConfig(path string) (*config.Config, error) {
	cfg, err := resolveConfig(path)
	if err != nil {
		return nil, err
	}
	if cfg.Settings == nil {
		cfg.Settings = map[string]string{}
	}
	if _, ok := cfg.Settings["cfg.fill"]; !ok {
		cfg.Settings["cfg.fill"] = cfg.Block.Fill
	}
	return cfg, nil
}

func resolveConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("HEXLAB_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// newLogger routes structured logs to stderr so they never interleave
// with command output on stdout. Text for terminals, JSON for pipes.
func newLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelWarn}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func restoreState(sess *session.Session, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer file.Close()
	if err := sess.LoadState(context.Background(), file); err != nil {
		return fmt.Errorf("loading state from %s: %w", path, err)
	}
	return nil
}

func saveState(sess *session.Session, path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	if err := sess.SaveState(context.Background(), file); err != nil {
		file.Close()
		return fmt.Errorf("saving state to %s: %w", path, err)
	}
	return file.Close()
}

// readScript loads a command script, keeping blank lines and comments
// for the interpreter to skip so reported line numbers stay stable.
func readScript(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
}
