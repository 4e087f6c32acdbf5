// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// Package flagdb stores flags: names attached to address ranges in the
// image under analysis. Flags persist in SQLite so a reopened session
// keeps its annotations.
//
// The store maintains its own internal concurrency discipline (a
// WAL-mode connection pool); it is one of the external collaborators
// the task isolation core treats as safe for concurrent reads and
// makes no further guarantees about.
package flagdb

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Flag is one named address range.
type Flag struct {
	// Name is the unique flag name (e.g. "sym.main", "str.banner").
	Name string
	// Address is the start of the flagged range.
	Address uint64
	// Size is the range length in bytes; zero means a point label.
	Size int64
}

// Config holds the parameters for opening a flag store.
type Config struct {
	// Path is the SQLite database file. Created if missing. Use
	// ":memory:" in tests, with PoolSize 1 — each in-memory connection
	// is an independent database.
	Path string

	// PoolSize is the connection pool size. If zero or negative,
	// defaults to max(runtime.NumCPU(), 4).
	PoolSize int

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Store is a flag database over a fixed-size SQLite connection pool.
// Safe for concurrent use; individual connections are not, so every
// operation takes its own connection and returns it.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

const schema = `
CREATE TABLE IF NOT EXISTS flags (
	name    TEXT PRIMARY KEY,
	address INTEGER NOT NULL,
	size    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS flags_by_address ON flags(address);
`

// Open creates or opens the flag database at cfg.Path.
// The caller must Close the store when done.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("flagdb: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("flagdb: opening %s: %w", cfg.Path, err)
	}

	logger.Info("flag store opened", "path", cfg.Path, "pool_size", poolSize)
	return &Store{pool: pool, logger: logger, path: cfg.Path}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	// WAL mode: concurrent readers, single writer, no reader blocking.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("flagdb: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("flagdb: applying schema: %w", err)
	}
	return nil
}

// Set creates or replaces a flag.
func (s *Store) Set(ctx context.Context, flag Flag) error {
	if flag.Name == "" {
		return fmt.Errorf("flagdb: flag name is required")
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("flagdb: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO flags (name, address, size) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET address=excluded.address, size=excluded.size`,
		&sqlitex.ExecOptions{Args: []any{flag.Name, int64(flag.Address), flag.Size}})
	if err != nil {
		return fmt.Errorf("flagdb: setting %q: %w", flag.Name, err)
	}
	return nil
}

// Get returns the flag with the given name, and whether it exists.
func (s *Store) Get(ctx context.Context, name string) (Flag, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Flag{}, false, fmt.Errorf("flagdb: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var flag Flag
	found := false
	err = sqlitex.Execute(conn,
		`SELECT name, address, size FROM flags WHERE name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				flag = Flag{
					Name:    stmt.ColumnText(0),
					Address: uint64(stmt.ColumnInt64(1)),
					Size:    stmt.ColumnInt64(2),
				}
				found = true
				return nil
			},
		})
	if err != nil {
		return Flag{}, false, fmt.Errorf("flagdb: getting %q: %w", name, err)
	}
	return flag, found, nil
}

// List returns all flags whose name starts with prefix, ordered by
// address. An empty prefix lists everything.
func (s *Store) List(ctx context.Context, prefix string) ([]Flag, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("flagdb: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var flags []Flag
	err = sqlitex.Execute(conn,
		`SELECT name, address, size FROM flags
		 WHERE name LIKE ? || '%' ORDER BY address, name`,
		&sqlitex.ExecOptions{
			Args: []any{prefix},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				flags = append(flags, Flag{
					Name:    stmt.ColumnText(0),
					Address: uint64(stmt.ColumnInt64(1)),
					Size:    stmt.ColumnInt64(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("flagdb: listing %q: %w", prefix, err)
	}
	return flags, nil
}

// At returns the flags covering the given address (point labels match
// exactly; sized flags match anywhere in their range).
func (s *Store) At(ctx context.Context, address uint64) ([]Flag, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("flagdb: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var flags []Flag
	err = sqlitex.Execute(conn,
		`SELECT name, address, size FROM flags
		 WHERE (size = 0 AND address = ?1)
		    OR (size > 0 AND address <= ?1 AND ?1 < address + size)
		 ORDER BY address, name`,
		&sqlitex.ExecOptions{
			Args: []any{int64(address)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				flags = append(flags, Flag{
					Name:    stmt.ColumnText(0),
					Address: uint64(stmt.ColumnInt64(1)),
					Size:    stmt.ColumnInt64(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("flagdb: flags at %#x: %w", address, err)
	}
	return flags, nil
}

// Delete removes the named flag. Deleting a missing flag is a no-op.
func (s *Store) Delete(ctx context.Context, name string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("flagdb: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM flags WHERE name = ?`,
		&sqlitex.ExecOptions{Args: []any{name}})
	if err != nil {
		return fmt.Errorf("flagdb: deleting %q: %w", name, err)
	}
	return nil
}

// Close closes all connections in the pool. Blocks until borrowed
// connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("flag store close error", "path", s.path, "error", err)
		return fmt.Errorf("flagdb: closing %s: %w", s.path, err)
	}
	s.logger.Info("flag store closed", "path", s.path)
	return nil
}
