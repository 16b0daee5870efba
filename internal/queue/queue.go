// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package queue runs tasks strictly one after another in submission order.
//
// Submit never blocks. The first task error or panic fails the queue for good:
// the failure handler runs exactly once and every remaining or later task is
// skipped.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ManuGH/testgen/internal/log"
	"github.com/ManuGH/testgen/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("queue closed")
	// ErrPanic wraps a value recovered from a panicking task.
	ErrPanic = errors.New("task panicked")
)

// Task is one unit of ordered work.
type Task func(ctx context.Context) error

// FailureHandler receives the first task failure.
type FailureHandler func(err error)

// Option configures a Queue.
type Option func(*Queue)

// WithFailureHandler registers fn to be called once, from the worker goroutine,
// when the queue fails.
func WithFailureHandler(fn FailureHandler) Option {
	return func(q *Queue) {
		q.onFailure = fn
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// Queue is an unbounded FIFO drained by a single worker goroutine.
type Queue struct {
	ctx       context.Context
	onFailure FailureHandler
	logger    zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Task
	closed  bool
	err     error
	seq     uint64

	done chan struct{}
}

// New starts the worker. Tasks receive ctx; the queue itself never cancels it.
func New(ctx context.Context, opts ...Option) *Queue {
	if ctx == nil {
		ctx = context.Background()
	}
	q := &Queue{
		ctx:    ctx,
		logger: log.WithComponentFromContext(ctx, "queue"),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Submit appends task. After a failure the task is accepted and dropped.
func (q *Queue) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("submit: nil task")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.err != nil {
		metrics.RecordTask("skipped", 0)
		return nil
	}
	q.pending = append(q.pending, task)
	q.cond.Signal()
	return nil
}

// Close stops accepting tasks. Already queued tasks still run unless the queue
// has failed. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

// Wait blocks until the worker has exited, which happens after Close once the
// backlog is drained.
func (q *Queue) Wait() {
	<-q.done
}

// Done is closed when the worker exits.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Err returns the failure that halted the queue, if any.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Pending returns the number of tasks waiting to run.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.seq++
		seq := q.seq
		q.mu.Unlock()

		start := time.Now()
		err := q.execute(task)
		if err == nil {
			metrics.RecordTask("ok", time.Since(start))
			continue
		}

		outcome := "error"
		if errors.Is(err, ErrPanic) {
			outcome = "panic"
		}
		metrics.RecordTask(outcome, time.Since(start))
		q.fail(seq, err)
	}
}

func (q *Queue) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Str(log.FieldEvent, "queue.task_panic").
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("task panicked")
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return task(q.ctx)
}

func (q *Queue) fail(seq uint64, err error) {
	q.mu.Lock()
	q.err = err
	skipped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	for i := 0; i < skipped; i++ {
		metrics.RecordTask("skipped", 0)
	}
	q.logger.Error().
		Err(err).
		Str(log.FieldEvent, "queue.task_failed").
		Uint64(log.FieldTask, seq).
		Int(log.FieldPending, skipped).
		Msg("ordered task failed, queue halted")

	if q.onFailure != nil {
		q.onFailure(err)
	}
}
