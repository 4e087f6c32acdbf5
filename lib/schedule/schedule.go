// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

// Package schedule runs units of work against the session, each in its
// own task context at the isolation level implied by the task's kind:
//
//   - Interactive tasks run inline on the caller's goroutine with a
//     Shared context — the legacy single-threaded path.
//   - Request tasks run on the worker pool with a Snapshot context and
//     propagate nothing unless the task says otherwise.
//   - Background tasks run on the worker pool with an Isolated context
//     and propagate address and output (never config) by default.
//
// The scheduler owns the commit/discard decision: a task body that
// returns an error, or a task with no propagation intent, is
// discarded; a successful task with intent is committed. Either way
// buffered console output flushes exactly once.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hexlab-tools/hexlab/lib/clock"
	"github.com/hexlab-tools/hexlab/lib/session"
)

// Kind classifies a unit of work and selects its isolation policy and
// default propagation flags.
type Kind int

const (
	// Interactive is a foreground command: Shared policy, run inline.
	Interactive Kind = iota
	// Request is a server-style handler unit: Snapshot policy, no
	// propagation by default.
	Request
	// Background is explicitly backgrounded work: Isolated policy,
	// address and output propagation by default.
	Background
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case Interactive:
		return "interactive"
	case Request:
		return "request"
	case Background:
		return "background"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) policy() session.Policy {
	switch k {
	case Request:
		return session.Snapshot
	case Background:
		return session.Isolated
	}
	return session.Shared
}

func (k Kind) defaultOptions() session.ContextOptions {
	opts := session.ContextOptions{Policy: k.policy()}
	if k == Background {
		opts.PropagateAddress = true
	}
	return opts
}

// Task is one unit of work. Run receives a cancellable context and the
// task context; it must check tc.Aborted() at safe points during long
// work, and must not retain tc after returning.
type Task struct {
	// Kind selects isolation policy and propagation defaults.
	Kind Kind

	// Name appears in logs. Optional.
	Name string

	// Run is the task body. Required.
	Run func(ctx context.Context, tc *session.Context) error

	// PropagateAddress overrides the kind's default when non-nil.
	PropagateAddress *bool

	// PropagateConfig overrides the kind's default when non-nil.
	PropagateConfig *bool
}

func (t Task) contextOptions() session.ContextOptions {
	opts := t.Kind.defaultOptions()
	if t.PropagateAddress != nil {
		opts.PropagateAddress = *t.PropagateAddress
	}
	if t.PropagateConfig != nil {
		opts.PropagateConfig = *t.PropagateConfig
	}
	return opts
}

// Config holds the parameters for creating a Scheduler.
type Config struct {
	// Session is the shared session every task context is created
	// from. Required.
	Session *session.Session

	// Workers is the worker pool size for Request and Background
	// tasks. Defaults to 4.
	Workers int

	// QueueDepth bounds the submission queue. Submit blocks when the
	// queue is full. Defaults to 64.
	QueueDepth int

	// CommitTimeout bounds the session lock wait during a task's
	// commit. Zero means wait indefinitely (the lock is held briefly,
	// so indefinite waits resolve quickly in practice).
	CommitTimeout time.Duration

	// Clock is the time source for task timing. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives task lifecycle messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Scheduler admits task submissions, assigns isolation policy per task
// kind, and serializes commits through the session lock. Safe for
// concurrent use. Close drains queued tasks before returning.
type Scheduler struct {
	session       *session.Session
	queue         chan *Handle
	commitTimeout time.Duration
	clock         clock.Clock
	logger        *slog.Logger

	// mu guards closed and, for submitters, the send on queue: a
	// Submit holds the read lock across the closed check and the
	// send, so Close cannot close the channel under a blocked or
	// in-flight send. Workers never take mu.
	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

// ErrSchedulerClosed is returned by Submit after Close.
var ErrSchedulerClosed = errors.New("schedule: scheduler is closed")

// New creates a scheduler and starts its worker pool.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("schedule: Session is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueDepth := cfg.QueueDepth
	if queueDepth <= 0 {
		queueDepth = 64
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Scheduler{
		session:       cfg.Session,
		queue:         make(chan *Handle, queueDepth),
		commitTimeout: cfg.CommitTimeout,
		clock:         timeSource,
		logger:        logger,
	}
	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.worker()
	}
	return s, nil
}

// Submit admits a task. Interactive tasks run inline and their handle
// is already done when Submit returns; Request and Background tasks
// are queued for the worker pool. Blocks when the queue is full.
func (s *Scheduler) Submit(task Task) (*Handle, error) {
	if task.Run == nil {
		return nil, fmt.Errorf("schedule: task %q has no body", task.Name)
	}
	handle := &Handle{
		id:   uuid.New(),
		task: task,
		done: make(chan struct{}),
	}

	if task.Kind == Interactive {
		// Inline execution does not touch the queue, so the read
		// lock covers only the closed check.
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed {
			return nil, ErrSchedulerClosed
		}
		s.execute(handle)
		return handle, nil
	}

	// The read lock is held across the send, even when the queue is
	// full and the send blocks: workers keep draining until Close
	// closes the channel, and Close cannot do that while any send is
	// pending.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSchedulerClosed
	}
	s.queue <- handle
	return handle, nil
}

// Close stops admitting tasks, drains the queue, and waits for workers
// to finish. Safe to call more than once. The write lock waits out any
// Submit currently sending (including one blocked on a full queue), so
// the channel only closes once no sender can touch it.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.queue)
	s.workers.Wait()
}

func (s *Scheduler) worker() {
	defer s.workers.Done()
	for handle := range s.queue {
		s.execute(handle)
	}
}

// execute runs one task: create the context, run the body, capture
// output, then commit or discard per the task's declared intent.
func (s *Scheduler) execute(handle *Handle) {
	task := handle.task
	opts := task.contextOptions()
	started := s.clock.Now()

	tc, err := s.session.NewContext(context.Background(), opts)
	if err != nil {
		handle.finish(fmt.Errorf("schedule: creating context for task %q: %w", task.Name, err))
		return
	}
	handle.attach(tc)

	runErr := task.Run(context.Background(), tc)

	// Capture buffered output before the flush empties the sink, so
	// the handle can return this task's output without fishing it out
	// of the interleaved shared console.
	if buffered := tc.Console().Buffered(); len(buffered) > 0 {
		handle.output = make([]byte, len(buffered))
		copy(handle.output, buffered)
	}

	commit := runErr == nil && !tc.Aborted() &&
		(opts.PropagateAddress || opts.PropagateConfig)

	var endErr error
	if commit {
		commitCtx, cancel := s.commitContext()
		endErr = tc.Commit(commitCtx)
		cancel()
	} else {
		endErr = tc.Discard()
	}

	result := runErr
	if result == nil {
		result = endErr
	}
	handle.finish(result)

	s.logger.Info("task finished",
		"task_id", handle.id,
		"name", task.Name,
		"kind", task.Kind.String(),
		"policy", opts.Policy.String(),
		"committed", commit && endErr == nil,
		"aborted", tc.Aborted(),
		"duration", s.clock.Now().Sub(started),
		"error", result,
	)
}

func (s *Scheduler) commitContext() (context.Context, context.CancelFunc) {
	if s.commitTimeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), s.commitTimeout)
}

// Handle tracks one submitted task. Create one with [Scheduler.Submit].
type Handle struct {
	id   uuid.UUID
	task Task
	done chan struct{}

	mu        sync.Mutex
	tc        *session.Context
	cancelled bool

	output []byte
	err    error
}

// ID returns the handle's task id.
func (h *Handle) ID() uuid.UUID { return h.id }

// Done returns a channel closed when the task has finished and its
// context is terminal.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes or ctx is done, returning the
// task's result error.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return fmt.Errorf("schedule: waiting for task %s: %w", h.id, ctx.Err())
	}
}

// Err returns the task's result error. Valid only after Done.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return fmt.Errorf("schedule: task %s still running", h.id)
	}
}

// Output returns the task's buffered console output. Valid only after
// Done; empty for Interactive tasks, whose output went to the console
// live.
func (h *Handle) Output() []byte {
	select {
	case <-h.done:
		return h.output
	default:
		return nil
	}
}

// Cancel sets the task's advisory abort flag. A body that checks
// tc.Aborted() at safe points stops early; its context is then
// discarded, never committed. Cancelling a task that has not started
// yet takes effect when it starts.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
	if h.tc != nil {
		h.tc.Cancel()
	}
}

func (h *Handle) attach(tc *session.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tc = tc
	if h.cancelled {
		tc.Cancel()
	}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}
