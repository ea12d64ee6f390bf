// Package queue defines the contract for enqueuing and consuming tasks.
package queue

import "time"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithInitialCapacity preallocates room for n pending tasks. The queue is
// unbounded; this only avoids early slice growth.
func WithInitialCapacity(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.items = make([]Task, 0, n)
		}
	}
}

// WithClock overrides the time source used for wait latency.
func WithClock(now func() time.Time) Option {
	return func(q *InMemoryQueue) {
		if now != nil {
			q.now = now
		}
	}
}
