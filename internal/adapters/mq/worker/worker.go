// Package worker drains the write-behind queue and commits tasks to the ledger.
//
// Exactly one worker runs per process, so ledger submissions happen strictly
// one at a time in queue order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/pkg/logger"
	"github.com/okian/trustledger/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultPacing        = 100 * time.Millisecond
	defaultSubmitTimeout = 60 * time.Second
)

// Task abstracts what the worker reads off the queue.
type Task = model.InteractionTask

// Submitter writes one task to the ledger and returns its signature.
type Submitter interface {
	Submit(ctx context.Context, task Task) (string, error)
}

// ReceiptStore records signatures of committed tasks.
type ReceiptStore interface {
	Put(taskID, signature string)
	Len() int
}

// DropStore records the ids of tasks abandoned without a receipt, with the
// drop reason.
type DropStore interface {
	Put(taskID, reason string)
}

// Queue defines how the worker receives tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Task
}

// Worker processes tasks and commits them using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is
	// closed and drained.
	Run(ctx context.Context)

	// Shutdown closes the queue when it supports it and waits for the
	// remaining tasks to drain. When ctx expires first the in-flight task
	// is aborted.
	Shutdown(ctx context.Context) error

	// IsProcessing reports whether a task has been taken off the queue and
	// is not yet committed or dropped.
	IsProcessing() bool
}

// InMemoryWorker implements Worker for one queue.
type InMemoryWorker struct {
	queue     Queue
	submitter Submitter
	receipts  ReceiptStore
	drops     DropStore
	name      string

	pacing        time.Duration
	submitTimeout time.Duration
	limiter       *rate.Limiter

	processing atomic.Bool
	committed  atomic.Int64
	dropped    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, submitter Submitter, receipts ReceiptStore, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:         queue,
		submitter:     submitter,
		receipts:      receipts,
		name:          "worker",
		pacing:        defaultPacing,
		submitTimeout: defaultSubmitTimeout,
		done:          make(chan struct{}),
		logger:        logger.GetOrNop().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	limit := rate.Inf
	if w.pacing > 0 {
		limit = rate.Every(w.pacing)
	}
	w.limiter = rate.NewLimiter(limit, 1)

	return w
}

// Run starts the worker loop. It returns once the queue channel is closed
// or ctx is canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer cancel()

	w.logger.Info(runCtx, "worker started",
		logger.Duration("pacing", w.pacing),
		logger.Duration("submit_timeout", w.submitTimeout),
	)

	tasks := w.queue.Dequeue(runCtx)
	for {
		select {
		case <-runCtx.Done():
			return
		case task, ok := <-tasks:
			if !ok {
				w.logger.Info(runCtx, "queue drained, worker stopping",
					logger.Int64("committed", w.committed.Load()),
					logger.Int64("dropped", w.dropped.Load()),
				)
				return
			}

			// A received task counts as in flight through the pacing wait.
			w.setProcessing(true)
			if err := w.limiter.Wait(runCtx); err != nil {
				w.drop(runCtx, task, "aborted", err)
				w.setProcessing(false)
				return
			}
			w.processTask(runCtx, task)
			w.setProcessing(false)
		}
	}
}

// Shutdown closes the queue, then waits for the worker to drain it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	if closer, ok := w.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			w.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.mu.Lock()
		if w.cancel != nil {
			w.cancel()
		}
		w.mu.Unlock()
		w.logger.Warn(ctx, "shutdown timed out, aborting in-flight task")
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

// IsProcessing reports whether a task has been taken off the queue and is
// not yet committed or dropped.
func (w *InMemoryWorker) IsProcessing() bool {
	return w.processing.Load()
}

func (w *InMemoryWorker) setProcessing(v bool) {
	w.processing.Store(v)
	metrics.UpdateWorkerProcessing(v)
}

// Committed returns the number of tasks written to the ledger.
func (w *InMemoryWorker) Committed() int64 { return w.committed.Load() }

// Dropped returns the number of tasks abandoned after a failure.
func (w *InMemoryWorker) Dropped() int64 { return w.dropped.Load() }

// processTask submits one task. Failures are logged and the task is dropped;
// there is no retry.
func (w *InMemoryWorker) processTask(ctx context.Context, task Task) { //nolint:gocritic // hugeParam: tasks are passed by value off the queue
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(metrics.Since(start))
	}()

	sig, err := w.submit(ctx, task)
	if err != nil {
		w.drop(ctx, task, dropReason(err), err)
		return
	}

	w.receipts.Put(task.TaskID, sig)
	w.committed.Add(1)
	metrics.RecordTaskCommitted()
	metrics.UpdateReceiptCacheSize(w.receipts.Len())

	w.logger.Info(ctx, "task committed",
		logger.String("task_id", task.TaskID),
		logger.String("signature", sig),
		logger.Duration("latency", time.Since(start)),
	)
}

func (w *InMemoryWorker) submit(ctx context.Context, task Task) (sig string, err error) { //nolint:gocritic // hugeParam: see processTask
	taskCtx, cancel := context.WithTimeout(ctx, w.submitTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()

	return w.submitter.Submit(taskCtx, task)
}

func (w *InMemoryWorker) drop(ctx context.Context, task Task, reason string, err error) { //nolint:gocritic // hugeParam: see processTask
	w.dropped.Add(1)
	if w.drops != nil {
		w.drops.Put(task.TaskID, reason)
	}
	metrics.RecordTaskDropped(reason)
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", reason)
	w.logger.Warn(ctx, "task dropped",
		logger.String("task_id", task.TaskID),
		logger.String("identity", task.Identity),
		logger.String("reason", reason),
		logger.Error(err),
	)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrTaskPanic):
		return "panic"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "aborted"
	default:
		return "submit_error"
	}
}
