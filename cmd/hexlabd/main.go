// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// hexlabd serves a shared analysis session over HTTP.
//
// Each POST /execute request runs its commands in a snapshot
// workspace: the request sees a consistent view of the session but
// publishes nothing unless it asks to. GET /state reports the
// canonical session state.
//
// Usage:
//
//	hexlabd --listen :7390 <image>
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

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
	flags := pflag.NewFlagSet("hexlabd", pflag.ContinueOnError)
	listen := flags.String("listen", ":7390", "TCP listen address")
	configPath := flags.String("config", "", "path to the hexlab config file")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("hexlabd %s\n", version.Info())
		return nil
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: hexlabd [flags] <image>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	image, err := content.OpenFile(flags.Arg(0))
	if err != nil {
		return err
	}
	defer image.Close()

	// The daemon has no terminal: console output goes to the replay
	// ring only, where /console can serve it.
	shared := console.New(io.Discard, cfg.Console.RingCapacity)

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

	api := &apiServer{
		session:   sess,
		scheduler: sched,
		interp:    in,
		console:   shared,
		logger:    logger,
	}
	server := newHTTPServer(httpServerConfig{
		Address: *listen,
		Handler: api.routes(),
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.serve(ctx)
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
