// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hexlab-tools/hexlab/lib/console"
)

// ContextOptions configures context creation. The scheduler decides
// these per task kind; direct callers pick their own.
type ContextOptions struct {
	// Policy selects what the context keeps private.
	Policy Policy

	// PropagateAddress makes Commit write the context's address into
	// the session (invalidating the session's cached block).
	PropagateAddress bool

	// PropagateConfig makes Commit merge the context's dirty settings
	// into the session. Only meaningful for Isolated contexts —
	// Shared/Snapshot config writes land in the session immediately.
	PropagateConfig bool
}

// Context is a per-unit-of-work isolated view over the session. It is
// owned exclusively by the unit that created it and is not safe for
// concurrent use. Every context ends in exactly one call to Commit or
// Discard; all operations after that fail with ErrStaleContext.
type Context struct {
	id      uuid.UUID
	created time.Time
	policy  Policy

	session *Session

	// window is the private address window; nil for Shared contexts,
	// which operate on the session's canonical window under the
	// session lock.
	window  *window
	overlay *overlay
	sink    *console.Sink

	propagateAddress bool
	propagateConfig  bool

	// baseAddress is the canonical address at creation time, used by
	// the RejectStale commit policy for its optimistic check.
	baseAddress uint64

	aborted atomic.Bool
	done    atomic.Bool
}

// NewContext creates a context at the given isolation level. The
// session lock is held briefly to snapshot the canonical address and
// size; this is one of the design's two blocking points (the other is
// commit).
func (s *Session) NewContext(ctx context.Context, opts ContextOptions) (*Context, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	c := &Context{
		id:               uuid.New(),
		created:          s.clock.Now(),
		policy:           opts.Policy,
		session:          s,
		propagateAddress: opts.PropagateAddress,
		propagateConfig:  opts.PropagateConfig,
		baseAddress:      s.window.address,
		overlay:          newOverlay(s.settings, opts.Policy == Isolated),
		sink:             s.console.NewSink(opts.Policy == Shared),
	}
	if opts.Policy != Shared {
		c.window = s.window.clone()
	}

	s.logger.Debug("context created",
		"task_id", c.id,
		"policy", opts.Policy.String(),
		"address", c.baseAddress,
	)
	return c, nil
}

// ID returns the context's task identity.
func (c *Context) ID() uuid.UUID { return c.id }

// CreatedAt returns the context's creation time.
func (c *Context) CreatedAt() time.Time { return c.created }

// Policy returns the context's isolation policy.
func (c *Context) Policy() Policy { return c.policy }

// Console returns the context's output sink. Command implementations
// write through it; they never touch the shared console directly.
// Once the context commits or discards, the sink is sealed and writes
// fail with console.ErrSealed.
func (c *Context) Console() *console.Sink { return c.sink }

// Cancel sets the advisory abort flag. Long-running commands check
// Aborted between processed items; cancellation never interrupts a
// held lock and never leaves the session mid-mutation. The context
// stays usable so cleanup (normally Discard) can run.
func (c *Context) Cancel() { c.aborted.Store(true) }

// Aborted reports whether Cancel has been called.
func (c *Context) Aborted() bool { return c.aborted.Load() }

// withWindow runs op against the context's window: the private one
// directly, or the session's canonical window under the session lock
// for Shared contexts.
func (c *Context) withWindow(ctx context.Context, op func(*window) error) error {
	if c.done.Load() {
		return ErrStaleContext
	}
	if c.window != nil {
		return op(c.window)
	}
	if err := c.session.acquire(ctx); err != nil {
		return err
	}
	defer c.session.release()
	return op(c.session.window)
}

// Block returns the context's current block content. The returned
// slice is an independent copy of length equal to the window size;
// short and out-of-range reads have their untouched tail at the fill
// pattern.
func (c *Context) Block(ctx context.Context) ([]byte, error) {
	var out []byte
	err := c.withWindow(ctx, func(w *window) error {
		block, err := w.block()
		if err != nil {
			return err
		}
		out = make([]byte, len(block))
		copy(out, block)
		return nil
	})
	return out, err
}

// Seek moves the context's window to address, fetching the block
// immediately when readNow is set. Reports whether the address
// actually changed.
func (c *Context) Seek(ctx context.Context, address uint64, readNow bool) (bool, error) {
	var changed bool
	err := c.withWindow(ctx, func(w *window) error {
		var seekErr error
		changed, seekErr = w.seek(address, readNow)
		return seekErr
	})
	return changed, err
}

// Resize changes the context's window size. On failure the window is
// left unchanged and the context remains usable.
func (c *Context) Resize(ctx context.Context, size int) error {
	return c.withWindow(ctx, func(w *window) error {
		return w.resize(size)
	})
}

// Address returns the context's current address.
func (c *Context) Address(ctx context.Context) (uint64, error) {
	var address uint64
	err := c.withWindow(ctx, func(w *window) error {
		address = w.address
		return nil
	})
	return address, err
}

// BlockSize returns the context's current window size.
func (c *Context) BlockSize(ctx context.Context) (int, error) {
	var size int
	err := c.withWindow(ctx, func(w *window) error {
		size = w.size
		return nil
	})
	return size, err
}

// ConfigGet returns the value of key through the context's overlay.
func (c *Context) ConfigGet(key string) (string, bool, error) {
	if c.done.Load() {
		return "", false, ErrStaleContext
	}
	value, ok := c.overlay.get(key)
	return value, ok, nil
}

// ConfigSet stores value under key through the context's overlay.
// Side-effecting keys route to the session regardless of policy.
func (c *Context) ConfigSet(key, value string) error {
	if c.done.Load() {
		return ErrStaleContext
	}
	c.overlay.set(key, value)
	return nil
}

// DirtyConfigKeys returns the keys this context has modified privately
// (always empty for Shared/Snapshot contexts, and empty again once the
// context is terminal and the overlay released).
func (c *Context) DirtyConfigKeys() []string {
	return c.overlay.dirtyKeys()
}

// Commit merges the context's permitted changes into the session
// under one session lock acquisition: address (when PropagateAddress),
// dirty config (when PropagateConfig), then the console flush under
// the console flush lock. After Commit the context is terminal.
//
// A lock wait bounded by ctx that expires leaves the context usable —
// the caller may retry or Discard. Under the RejectStale commit
// policy, ErrAddressConflict likewise applies nothing and leaves the
// context usable. A console flush failure is reported, but the
// address/config merge has already completed deterministically and is
// not rolled back.
func (c *Context) Commit(ctx context.Context) error {
	if c.done.Load() {
		return ErrStaleContext
	}

	if c.policy == Shared {
		// Every Shared operation already landed in the session; there
		// is nothing to merge and the sink wrote live.
		c.freeResources()
		c.session.logger.Debug("context committed", "task_id", c.id, "policy", c.policy.String())
		return nil
	}

	if err := c.session.acquire(ctx); err != nil {
		return err
	}

	if c.propagateAddress &&
		c.session.commitPolicy == RejectStale &&
		c.session.window.address != c.baseAddress {
		c.session.release()
		return fmt.Errorf("commit of task %s: %w", c.id, ErrAddressConflict)
	}

	if c.propagateAddress {
		// The cached block drops even when the address is unchanged:
		// address propagation always leaves the session re-reading
		// from the content layer.
		c.session.window.invalidate()
		c.session.window.address = c.window.address
	}
	if c.propagateConfig {
		c.overlay.mergeInto(c.session.settings)
	}
	flushErr := c.sink.Flush()
	c.session.release()

	c.freeResources()
	c.session.logger.Debug("context committed",
		"task_id", c.id,
		"policy", c.policy.String(),
		"propagate_address", c.propagateAddress,
		"propagate_config", c.propagateConfig,
	)
	if flushErr != nil {
		return fmt.Errorf("session: console flush after commit of task %s: %w", c.id, flushErr)
	}
	return nil
}

// Discard drops the context's changes. Buffered console output still
// flushes (under the flush lock only — the session lock is not
// needed, since nothing in the session is touched); for Shared
// contexts the sink wrote live, so there is nothing to do. After
// Discard the context is terminal.
func (c *Context) Discard() error {
	if c.done.Load() {
		return ErrStaleContext
	}
	flushErr := c.sink.Flush()
	c.freeResources()
	c.session.logger.Debug("context discarded", "task_id", c.id, "policy", c.policy.String())
	if flushErr != nil {
		return fmt.Errorf("session: console flush on discard of task %s: %w", c.id, flushErr)
	}
	return nil
}

// freeResources marks the context terminal, seals the sink, and
// releases the private buffers.
func (c *Context) freeResources() {
	c.done.Store(true)
	c.sink.Seal()
	if c.window != nil {
		c.window.release()
	}
	c.overlay.release()
}
