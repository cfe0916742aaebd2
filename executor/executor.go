// Package executor provides the serial, thread-safe work queue that every
// component is pinned to. An Executor accepts tasks from any goroutine via
// Enqueue and drains the batch observed at the instant of entry on a single
// call to Execute; callers must ensure Execute is never run concurrently
// with itself on the same Executor (the serial-queue guarantee is a
// contract the caller upholds, not something the Executor enforces).
package executor

import (
	"sync"
	"sync/atomic"
)

// Executor is a FIFO queue of tasks. Tasks enqueued before a given Execute
// call run, in order, during that call; tasks enqueued during a drain are
// deferred to the next Execute.
type Executor struct {
	mu         sync.Mutex
	queue      []func()
	backBuffer []func()
	contended  atomic.Int64
}

// New creates an empty Executor.
func New() *Executor {
	return &Executor{}
}

// Enqueue appends a task to the queue. Safe to call from any goroutine,
// concurrently with other Enqueue calls and with Execute. Enqueue is
// wait-free when it can acquire the queue mutex without contention;
// otherwise it blocks and records the contention in ContentionCount.
func (e *Executor) Enqueue(task func()) {
	if e.mu.TryLock() {
		e.queue = append(e.queue, task)
		e.mu.Unlock()
		return
	}

	e.contended.Add(1)
	e.mu.Lock()
	e.queue = append(e.queue, task)
	e.mu.Unlock()
}

// Execute drains the tasks observed at the instant of entry and runs them,
// in enqueue order, on the calling goroutine. Enqueues that happen during
// the run go into the next batch rather than being observed by this call.
//
// Execute must not be called concurrently with itself on the same
// Executor; doing so is a caller error, not something this type guards
// against (mirroring the serial-queue contract of the original design,
// where the executor's "one owning thread at a time" invariant is enforced
// by convention, not by a lock around Execute itself).
func (e *Executor) Execute() {
	e.mu.Lock()
	e.queue, e.backBuffer = e.backBuffer[:0], e.queue
	e.mu.Unlock()

	for _, task := range e.backBuffer {
		task()
	}

	clear(e.backBuffer)
	e.backBuffer = e.backBuffer[:0]
}

// ContentionCount reports how many times Enqueue had to block on the
// queue mutex instead of acquiring it immediately -- an observability
// signal, not an error condition.
func (e *Executor) ContentionCount() int64 {
	return e.contended.Load()
}

// Pending reports the number of tasks currently queued for the next
// Execute call. Intended for diagnostics and tests, not for flow control
// (this runtime has no backpressure).
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}
