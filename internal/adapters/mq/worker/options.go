// Package worker drains the write-behind queue and commits tasks to the ledger.
package worker

import (
	"time"

	"github.com/okian/trustledger/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithPacing sets the minimum gap between two task submissions. Zero
// disables pacing.
func WithPacing(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d >= 0 {
			w.pacing = d
		}
	}
}

// WithSubmitTimeout bounds how long a single task may take.
func WithSubmitTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.submitTimeout = d
		}
	}
}

// WithDropStore records dropped task ids so callers can tell a dropped
// task from a pending one.
func WithDropStore(store DropStore) Option {
	return func(w *InMemoryWorker) {
		if store != nil {
			w.drops = store
		}
	}
}
