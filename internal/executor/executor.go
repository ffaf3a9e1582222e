// Package executor implements a single-writer, FIFO-per-cache
// scheduler that serializes mutating
// operations (insert, invalidate, vacuum, index flush) so that, for a
// single client, insert(K,A); get(K) observes A regardless of whether A
// had reached disk.
package executor

import (
	"context"
	"sync"
)

type job struct {
	run  func()
	done chan struct{}
}

// Executor runs submitted jobs one at a time, in the order they were
// submitted. It never holds a lock across a suspension point other than
// its own turnstile: jobs run without any Executor-held lock,
// so a job's own filesystem/encryption call can block without stalling
// unrelated goroutines beyond the FIFO ordering guarantee itself.
type Executor struct {
	queue    chan job
	closing  chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates an Executor with the given queue depth. A depth of 0 makes
// Submit synchronous with the worker loop picking up each job immediately.
func New(queueDepth int) *Executor {
	if queueDepth < 0 {
		queueDepth = 0
	}
	e := &Executor{
		queue:   make(chan job, queueDepth),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go e.loop()
	return e
}

// loop never closes e.queue: Stop only ever closes e.closing, a channel
// nothing sends on, so a concurrent Submit's send case can never race a
// close of its own send target. Once closing fires, loop drains whatever
// is already buffered in queue before exiting, preserving "Stop drains
// admitted jobs" without risking a send-on-closed-channel panic for any
// Submit still racing to enqueue.
func (e *Executor) loop() {
	for {
		select {
		case j := <-e.queue:
			j.run()
			close(j.done)
		case <-e.closing:
			for {
				select {
				case j := <-e.queue:
					j.run()
					close(j.done)
				default:
					close(e.stopped)
					return
				}
			}
		}
	}
}

// Submit enqueues fn and blocks until either fn has completed or ctx is
// canceled. Once fn has entered the queue it always runs to completion in
// FIFO order, even if ctx is canceled while Submit is waiting for it to
// finish — dropping a caller never reorders or discards a mutation other
// submitters may be depending on. A ctx that is already canceled before fn reaches the queue causes
// Submit to return without enqueueing it at all: nothing else has
// observed or depends on a job that was never admitted. The same applies
// once Stop has been called: Submit returns a clean error instead of
// enqueueing behind a worker that is shutting down.
func (e *Executor) Submit(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.closing:
		return context.Canceled
	default:
	}

	j := job{run: fn, done: make(chan struct{})}
	select {
	case e.queue <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closing:
		return context.Canceled
	}

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closing:
		// j may already have been admitted and even run by the time
		// closing fired; loop's drain pass guarantees it runs to
		// completion if so, so only report cancellation if it hasn't.
		select {
		case <-j.done:
			return nil
		default:
			return context.Canceled
		}
	}
}

// Drain blocks until every job submitted before Drain was called has run.
// Used by flush(): index flushes are ordered after all
// inserts enqueued before them.
func (e *Executor) Drain(ctx context.Context) error {
	return e.Submit(ctx, func() {})
}

// Stop signals the worker to drain whatever is queued and exit, then
// waits for it. Safe to call more than once; later calls just wait on
// the same signal. Used by dispose() after the final synchronous index
// flush.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		close(e.closing)
	})
	<-e.stopped
}
