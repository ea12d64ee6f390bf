// Package queue defines the contract for enqueuing and consuming tasks.
//
// The write-behind queue is unbounded: Enqueue never blocks the request path
// and never rejects a task while the queue is open.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/pkg/metrics"
)

// Task represents the payload type flowing through the queue.
type Task = model.InteractionTask

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue appends a task. It returns ErrClosed after Close.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue returns a channel that receives tasks in FIFO order. The
	// channel is closed once the queue is closed and drained, or when ctx
	// is done.
	Dequeue(ctx context.Context) <-chan Task

	// Len returns the number of tasks not yet handed to a consumer.
	Len(ctx context.Context) int

	// Close stops accepting tasks. Pending tasks are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a mutex-guarded slice.
type InMemoryQueue struct {
	mu      sync.Mutex
	items   []Task
	handoff int // popped by a forwarder, not yet received
	closed  bool

	notify chan struct{}
	done   chan struct{}
	now    func() time.Time
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue appends t to the tail of the queue.
func (q *InMemoryQueue) Enqueue(_ context.Context, t Task) error { //nolint:gocritic // hugeParam: tasks are passed by value into the queue
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = q.now()
	}
	q.items = append(q.items, t)
	size := len(q.items) + q.handoff
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	metrics.RecordQueueEnqueue()
	metrics.UpdateQueueSize(size)
	return nil
}

// pop removes the head and marks it as in hand-off.
func (q *InMemoryQueue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Task{}, false
	}
	t := q.items[0]
	q.items[0] = Task{}
	q.items = q.items[1:]
	q.handoff++
	return t, true
}

// delivered completes a hand-off and returns the remaining length.
func (q *InMemoryQueue) delivered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handoff--
	return len(q.items) + q.handoff
}

// pushFront returns an undelivered task to the head of the queue.
func (q *InMemoryQueue) pushFront(t Task) { //nolint:gocritic // hugeParam: see Enqueue
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handoff--
	q.items = append([]Task{t}, q.items...)
}

func (q *InMemoryQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Dequeue returns a channel that will receive tasks as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Task {
	out := make(chan Task)
	go func() {
		defer close(out)
		for {
			t, ok := q.pop()
			if !ok {
				if q.drained() {
					return
				}
				select {
				case <-q.notify:
				case <-q.done:
				case <-ctx.Done():
					return
				}
				continue
			}

			select {
			case out <- t:
				size := q.delivered()
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(size)
				metrics.RecordQueueWaitLatency(float64(q.now().Sub(t.EnqueuedAt).Milliseconds()))
			case <-ctx.Done():
				q.pushFront(t)
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued tasks.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) + q.handoff
}

// Close stops accepting new tasks. Consumers drain what is left and then
// see their dequeue channel closed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
