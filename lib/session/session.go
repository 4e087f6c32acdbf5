// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/hexlab-tools/hexlab/lib/clock"
	"github.com/hexlab-tools/hexlab/lib/console"
	"github.com/hexlab-tools/hexlab/lib/content"
	"github.com/hexlab-tools/hexlab/lib/settings"
)

// DefaultBlockSize is the canonical content window size for a new
// session when the config does not say otherwise.
const DefaultBlockSize = 256

// DefaultMaxBlockSize bounds resize requests. Resizes beyond the
// limit fail with *AllocError and leave the window unchanged.
const DefaultMaxBlockSize = 16 * 1024 * 1024

// Config holds the parameters for creating a Session. Reader is
// required; all other fields have defaults.
type Config struct {
	// Reader is the content I/O layer the session and all contexts
	// read through. Required; must be safe for concurrent use.
	Reader content.Reader

	// Settings seeds the canonical settings store. A nil map is
	// allowed.
	Settings map[string]string

	// Console is the shared console root. If nil, a console with no
	// destination (replay ring only) is created.
	Console *console.Console

	// BlockSize is the initial canonical window size. Defaults to
	// DefaultBlockSize.
	BlockSize int

	// MaxBlockSize bounds resize requests. Defaults to
	// DefaultMaxBlockSize.
	MaxBlockSize int

	// FillByte pads short reads and grown resize tails. Defaults to
	// DefaultFillByte. The zero value means "default": a genuine 0x00
	// fill is configured through the cfg.fill setting (a Settings
	// seed entry or a later write), whose hook updates the window.
	FillByte byte

	// CommitPolicy resolves racing address commits. Defaults to
	// LastWriterWins.
	CommitPolicy CommitPolicy

	// Clock is the time source for context creation stamps. Defaults
	// to clock.Real().
	Clock clock.Clock

	// Logger receives lifecycle messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Session is the single shared, long-lived execution state of the
// host tool: canonical address window, settings store, and console.
// It is created once at startup and outlives every context.
//
// All access to the canonical window goes through the session lock, a
// capacity-1 channel semaphore. A channel rather than a sync.Mutex so
// acquisition can be bounded by a context deadline (commit contention
// is the one place the design blocks).
type Session struct {
	lock chan struct{}

	window   *window
	settings *settings.Store
	console  *console.Console
	reader   content.Reader

	commitPolicy CommitPolicy
	clock        clock.Clock
	logger       *slog.Logger
}

// New creates a session over the given content reader and installs
// the side-effecting key hooks (cfg.blocksize resizes the canonical
// window).
func New(cfg Config) (*Session, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("session: Reader is required")
	}

	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	maxBlockSize := cfg.MaxBlockSize
	if maxBlockSize <= 0 {
		maxBlockSize = DefaultMaxBlockSize
	}
	if blockSize > maxBlockSize {
		return nil, fmt.Errorf("session: block size %d exceeds maximum %d", blockSize, maxBlockSize)
	}
	fill := cfg.FillByte
	if fill == 0 {
		fill = DefaultFillByte
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sharedConsole := cfg.Console
	if sharedConsole == nil {
		sharedConsole = console.New(nil, console.DefaultRingCapacity)
	}

	// Side-effecting seed entries are held back: they must flow
	// through Set once the hooks are registered, or the stored value
	// and the window would disagree from the first moment.
	plain := make(map[string]string, len(cfg.Settings))
	deferred := make(map[string]string)
	for key, value := range cfg.Settings {
		if settings.SideEffecting(key) {
			deferred[key] = value
		} else {
			plain[key] = value
		}
	}

	s := &Session{
		lock:         make(chan struct{}, 1),
		window:       newWindow(cfg.Reader, 0, blockSize, maxBlockSize, fill),
		settings:     settings.New(plain),
		console:      sharedConsole,
		reader:       cfg.Reader,
		commitPolicy: cfg.CommitPolicy,
		clock:        timeSource,
		logger:       logger,
	}

	// cfg.blocksize is the canonical example of a side-effecting key:
	// storing the value is not enough, the canonical window must
	// resize. The hooks fire after the settings store releases its own
	// lock, so acquiring the session lock in them nests nothing.
	if err := s.settings.OnChange("cfg.blocksize", s.onBlockSizeChange); err != nil {
		return nil, fmt.Errorf("session: registering blocksize hook: %w", err)
	}
	if err := s.settings.OnChange("cfg.fill", s.onFillChange); err != nil {
		return nil, fmt.Errorf("session: registering fill hook: %w", err)
	}

	for _, key := range sortedKeys(deferred) {
		s.settings.Set(key, deferred[key])
	}

	return s, nil
}

func (s *Session) onBlockSizeChange(_, value string) {
	size, err := strconv.Atoi(value)
	if err != nil {
		s.logger.Warn("ignoring non-numeric cfg.blocksize", "value", value)
		return
	}
	s.acquire(context.Background())
	defer s.release()
	if err := s.window.resize(size); err != nil {
		s.logger.Warn("cfg.blocksize resize rejected", "size", size, "error", err)
	}
}

// onFillChange applies the cfg.fill setting: two hex digits naming
// the pad byte, including "00". The cached block is dropped so the
// next read refills any padded tail with the new byte.
func (s *Session) onFillChange(_, value string) {
	fill, err := strconv.ParseUint(value, 16, 8)
	if err != nil {
		s.logger.Warn("ignoring malformed cfg.fill", "value", value)
		return
	}
	s.acquire(context.Background())
	defer s.release()
	s.window.fill = byte(fill)
	s.window.invalidate()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// acquire takes the session lock, waiting until it is free or ctx is
// done. The lock is held briefly (a snapshot at context creation, one
// commit, or one Shared-policy operation), so contention resolves
// quickly; a bounded wait is expressed through the context deadline.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: waiting for session lock: %w", ctx.Err())
	}
}

func (s *Session) release() {
	<-s.lock
}

// Settings returns the canonical settings store. Callers outside the
// isolation machinery (side-effect hooks, the CLI settings printout)
// read it directly; contexts go through their overlay.
func (s *Session) Settings() *settings.Store {
	return s.settings
}

// Console returns the shared console root.
func (s *Session) Console() *console.Console {
	return s.console
}

// Reader returns the content I/O layer.
func (s *Session) Reader() content.Reader {
	return s.reader
}

// State is a consistent copy of the session's canonical scalar state,
// taken under the session lock.
type State struct {
	// Address is the canonical current address.
	Address uint64
	// BlockSize is the canonical window size in bytes.
	BlockSize int
	// BlockValid reports whether the canonical block cache matches the
	// current address and size.
	BlockValid bool
	// SettingsCount is the number of set keys.
	SettingsCount int
	// ConsoleOffset is the console replay sequence offset.
	ConsoleOffset uint64
}

// CurrentState returns a lock-held consistent snapshot of the
// canonical state. No intermediate or torn state is observable: the
// same lock serializes every commit.
func (s *Session) CurrentState(ctx context.Context) (State, error) {
	if err := s.acquire(ctx); err != nil {
		return State{}, err
	}
	defer s.release()
	return State{
		Address:       s.window.address,
		BlockSize:     s.window.size,
		BlockValid:    s.window.valid,
		SettingsCount: len(s.settings.Keys()),
		ConsoleOffset: s.console.Offset(),
	}, nil
}
