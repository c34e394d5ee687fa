// Package exec provides the executors that carry work between the caller,
// the hardware I/O context and the state publication context.
package exec

import (
	"sync"

	"github.com/cjeanneret/WayGo/internal/debug"
)

// Executor runs submitted tasks. Submit never blocks the caller on the task.
type Executor interface {
	Submit(task func())
}

// Inline runs each task synchronously on the caller's goroutine. Tests use
// it to make controller transitions deterministic.
type Inline struct{}

// Submit implements Executor.
func (Inline) Submit(task func()) { task() }

// Queue runs tasks one at a time, in submission order, on a single worker
// goroutine. The backlog is unbounded so Submit returns immediately.
type Queue struct {
	name string

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}
}

// NewQueue starts a serial queue.
func NewQueue(name string) *Queue {
	q := &Queue{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit appends a task. Tasks submitted after Close are dropped.
func (q *Queue) Submit(task func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		debug.Trace("Exec[%s]: task dropped, queue closed", q.name)
		return
	}
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		task := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		task()
	}
}

// Close stops accepting tasks, runs what is already queued, and waits for
// the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}
