// Package executor serializes all mail-session work onto one long-lived
// worker goroutine. The session handle underneath is only valid on the
// execution context that created it, so every session-touching operation
// is funneled through Submit and runs there, one at a time, in submission
// order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/droid-bg/Outlook-MCP-Server/internal/logger"
)

var (
	// ErrClosed is returned by Submit after Shutdown has begun.
	ErrClosed = errors.New("executor: closed")
	// ErrReentrantSubmit is returned when a task submits from inside the
	// worker. Waiting for the result would deadlock the queue.
	ErrReentrantSubmit = errors.New("executor: submit from worker task")
	// ErrShutdownTimeout is returned by Shutdown when the worker did not
	// drain in time and was abandoned.
	ErrShutdownTimeout = errors.New("executor: shutdown timed out")
)

// Task is one unit of session-touching work. The context it receives is
// the worker's context, not the submitter's: a caller abandoning its wait
// does not cancel work already in flight.
type Task func(ctx context.Context) (interface{}, error)

type workItem struct {
	task  Task
	reply chan outcome
}

type outcome struct {
	value interface{}
	err   error
}

type ctxKey struct{}

// FromWorker reports whether ctx belongs to the executor's worker
// goroutine. Components that must only run on the worker use this as a
// guard.
func FromWorker(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKey{}).(bool)
	return v
}

type Executor struct {
	tasks    chan workItem
	quitting chan struct{}
	done     chan struct{}
	logger   *logger.Logger

	init     func(ctx context.Context) error
	teardown func()
}

// Option configures the executor's worker.
type Option func(*Executor)

// WithInit runs fn once on the worker before the first task. An init
// failure is logged; tasks still run so callers see the real error from
// the session itself.
func WithInit(fn func(ctx context.Context) error) Option {
	return func(e *Executor) { e.init = fn }
}

// WithTeardown runs fn once on the worker after the queue drains.
func WithTeardown(fn func()) Option {
	return func(e *Executor) { e.teardown = fn }
}

// New starts the worker goroutine. The worker locks itself to an OS
// thread for the life of the process, mirroring the thread-affinity
// requirement of desktop automation session handles.
func New(log *logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		tasks:    make(chan workItem, 256),
		quitting: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   log,
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(e.done)

	ctx := context.WithValue(context.Background(), ctxKey{}, true)

	if e.init != nil {
		if err := e.init(ctx); err != nil {
			e.logger.Error("Worker init failed:", err)
		}
	}
	if e.teardown != nil {
		defer e.teardown()
	}

	for {
		select {
		case item := <-e.tasks:
			e.execute(ctx, item)
		case <-e.quitting:
			// Drain whatever was queued before shutdown, then stop.
			for {
				select {
				case item := <-e.tasks:
					e.execute(ctx, item)
				default:
					return
				}
			}
		}
	}
}

func (e *Executor) execute(ctx context.Context, item workItem) {
	defer func() {
		if r := recover(); r != nil {
			// One task's panic must not kill the worker; the queue
			// keeps moving.
			e.logger.Errorf("Task panicked: %v", r)
			item.reply <- outcome{err: fmt.Errorf("task panicked: %v", r)}
		}
	}()
	value, err := item.task(ctx)
	item.reply <- outcome{value: value, err: err}
}

// Submit enqueues task and blocks the caller until the worker has run it.
// It is safe to call from any number of goroutines; tasks execute strictly
// in submission order with no overlap. If ctx is done before the result
// arrives the caller unblocks with ctx.Err(), but the task itself still
// runs to completion.
func (e *Executor) Submit(ctx context.Context, task Task) (interface{}, error) {
	if FromWorker(ctx) {
		return nil, ErrReentrantSubmit
	}

	// Once shutdown has begun, fail before touching the queue. The tasks
	// channel is buffered, so a plain select between the send and the
	// quitting signal could pick the send and park the item in a queue
	// nobody will ever drain.
	select {
	case <-e.quitting:
		return nil, ErrClosed
	default:
	}

	item := workItem{task: task, reply: make(chan outcome, 1)}
	select {
	case e.tasks <- item:
	case <-e.quitting:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-item.reply:
		return res.value, res.err
	case <-e.done:
		// The worker exited. The reply channel is buffered, so if the
		// drain pass ran the task anyway its result is still there.
		select {
		case res := <-item.reply:
			return res.value, res.err
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown signals the worker to stop, waits up to timeout for it to
// drain the queue and run teardown, then abandons it. Safe to call once.
func (e *Executor) Shutdown(timeout time.Duration) error {
	close(e.quitting)
	select {
	case <-e.done:
		return nil
	case <-time.After(timeout):
		e.logger.Warn("Executor worker did not stop in time, abandoning")
		return ErrShutdownTimeout
	}
}
