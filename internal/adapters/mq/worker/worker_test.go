package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/trustledger/internal/adapters/mq/queue"
	worker "github.com/okian/trustledger/internal/adapters/mq/worker"
	model "github.com/okian/trustledger/internal/domain/model"
	receipt "github.com/okian/trustledger/internal/domain/receipt"
	logging "github.com/okian/trustledger/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockSubmitter struct {
	mu       sync.Mutex
	delay    time.Duration
	errors   map[string]error
	panics   map[string]bool
	order    []string
	inFlight int
	maxSeen  int
	started  []time.Time
}

func newMockSubmitter() *mockSubmitter {
	return &mockSubmitter{
		errors: make(map[string]error),
		panics: make(map[string]bool),
	}
}

func (m *mockSubmitter) Submit(ctx context.Context, task worker.Task) (string, error) { //nolint:gocritic // hugeParam: matches interface
	m.mu.Lock()
	m.inFlight++
	m.maxSeen = max(m.maxSeen, m.inFlight)
	m.started = append(m.started, time.Now())
	delay := m.delay
	err := m.errors[task.TaskID]
	shouldPanic := m.panics[task.TaskID]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.order = append(m.order, task.TaskID)
		m.mu.Unlock()
	}()

	if shouldPanic {
		panic("boom")
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "sig-" + task.TaskID, nil
}

func (m *mockSubmitter) snapshot() (order []string, maxSeen int, started []time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...), m.maxSeen, append([]time.Time(nil), m.started...)
}

func newTask(id string) worker.Task {
	return worker.Task{TaskID: id, Identity: "user-" + id, Type: model.InteractionMatch, QualityScore: 75}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over an in-memory queue", t, func() {
		_ = logging.InitWithWriter(io.Discard, "text")

		q := queue.NewInMemoryQueue()
		sub := newMockSubmitter()
		receipts := receipt.New()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.Convey("When tasks are committed successfully", func() {
			w := worker.NewInMemoryWorker(q, sub, receipts, worker.WithPacing(0))
			go w.Run(ctx)

			for i := 0; i < 5; i++ {
				_ = q.Enqueue(ctx, newTask(fmt.Sprintf("t%d", i)))
			}

			convey.Convey("Then every signature should land in the receipt cache in order", func() {
				convey.So(waitFor(func() bool { return receipts.Len() == 5 }), convey.ShouldBeTrue)
				sig, ok := receipts.Get("t3")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(sig, convey.ShouldEqual, "sig-t3")

				order, maxSeen, _ := sub.snapshot()
				convey.So(order, convey.ShouldResemble, []string{"t0", "t1", "t2", "t3", "t4"})
				convey.So(maxSeen, convey.ShouldEqual, 1)
				convey.So(w.Committed(), convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When a submission fails", func() {
			sub.errors["bad"] = errors.New("rpc unavailable")
			drops := receipt.New()
			w := worker.NewInMemoryWorker(q, sub, receipts, worker.WithPacing(0), worker.WithDropStore(drops))
			go w.Run(ctx)

			_ = q.Enqueue(ctx, newTask("bad"))
			_ = q.Enqueue(ctx, newTask("good"))

			convey.Convey("Then the task should be dropped and the next one processed", func() {
				convey.So(waitFor(func() bool { return receipts.Len() == 1 }), convey.ShouldBeTrue)
				_, ok := receipts.Get("bad")
				convey.So(ok, convey.ShouldBeFalse)
				convey.So(w.Dropped(), convey.ShouldEqual, 1)

				order, _, _ := sub.snapshot()
				convey.So(order, convey.ShouldResemble, []string{"bad", "good"})

				reason, ok := drops.Get("bad")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(reason, convey.ShouldEqual, "submit_error")
				_, ok = drops.Get("good")
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a submission panics", func() {
			sub.panics["explode"] = true
			w := worker.NewInMemoryWorker(q, sub, receipts, worker.WithPacing(0))
			go w.Run(ctx)

			_ = q.Enqueue(ctx, newTask("explode"))
			_ = q.Enqueue(ctx, newTask("after"))

			convey.Convey("Then the worker should survive and continue", func() {
				convey.So(waitFor(func() bool { return receipts.Len() == 1 }), convey.ShouldBeTrue)
				_, ok := receipts.Get("after")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(w.Dropped(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a submission exceeds the task timeout", func() {
			sub.delay = time.Second
			w := worker.NewInMemoryWorker(q, sub, receipts,
				worker.WithPacing(0),
				worker.WithSubmitTimeout(30*time.Millisecond),
			)
			go w.Run(ctx)

			_ = q.Enqueue(ctx, newTask("slow"))

			convey.Convey("Then it should be dropped", func() {
				convey.So(waitFor(func() bool { return w.Dropped() == 1 }), convey.ShouldBeTrue)
				convey.So(receipts.Len(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When pacing is enabled", func() {
			w := worker.NewInMemoryWorker(q, sub, receipts, worker.WithPacing(50*time.Millisecond))
			go w.Run(ctx)

			for i := 0; i < 3; i++ {
				_ = q.Enqueue(ctx, newTask(fmt.Sprintf("p%d", i)))
			}

			convey.Convey("Then submissions should be spaced out", func() {
				convey.So(waitFor(func() bool { return receipts.Len() == 3 }), convey.ShouldBeTrue)
				_, _, started := sub.snapshot()
				convey.So(started, convey.ShouldHaveLength, 3)
				convey.So(started[2].Sub(started[0]), convey.ShouldBeGreaterThanOrEqualTo, 90*time.Millisecond)
			})
		})

		convey.Convey("When the next task is waiting out the pacing delay", func() {
			w := worker.NewInMemoryWorker(q, sub, receipts, worker.WithPacing(400*time.Millisecond))
			go w.Run(ctx)

			_ = q.Enqueue(ctx, newTask("first"))
			_ = q.Enqueue(ctx, newTask("second"))

			convey.Convey("Then the worker should still report it as processing", func() {
				convey.So(waitFor(func() bool { return receipts.Len() == 1 }), convey.ShouldBeTrue)
				time.Sleep(50 * time.Millisecond)

				convey.So(q.Len(ctx), convey.ShouldEqual, 0)
				convey.So(w.IsProcessing(), convey.ShouldBeTrue)
				_, committed := receipts.Get("second")
				convey.So(committed, convey.ShouldBeFalse)

				convey.So(waitFor(func() bool { return receipts.Len() == 2 }), convey.ShouldBeTrue)
				convey.So(waitFor(func() bool { return !w.IsProcessing() }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a task is in flight", func() {
			sub.delay = 100 * time.Millisecond
			w := worker.NewInMemoryWorker(q, sub, receipts, worker.WithPacing(0))
			go w.Run(ctx)

			_ = q.Enqueue(ctx, newTask("busy"))

			convey.Convey("Then IsProcessing should report it", func() {
				convey.So(waitFor(w.IsProcessing), convey.ShouldBeTrue)
				convey.So(waitFor(func() bool { return !w.IsProcessing() }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down with pending tasks", func() {
			sub.delay = 10 * time.Millisecond
			w := worker.NewInMemoryWorker(q, sub, receipts, worker.WithPacing(0))
			for i := 0; i < 4; i++ {
				_ = q.Enqueue(ctx, newTask(fmt.Sprintf("d%d", i)))
			}
			go w.Run(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then the queue should be drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(receipts.Len(), convey.ShouldEqual, 4)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutdown times out", func() {
			sub.delay = 5 * time.Second
			w := worker.NewInMemoryWorker(q, sub, receipts, worker.WithPacing(0))
			_ = q.Enqueue(ctx, newTask("stuck"))
			go w.Run(ctx)
			convey.So(waitFor(w.IsProcessing), convey.ShouldBeTrue)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer shutdownCancel()
			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it should report the timeout and abort the task", func() {
				convey.So(errors.Is(err, worker.ErrShutdownTimeout), convey.ShouldBeTrue)
				convey.So(waitFor(func() bool { return !w.IsProcessing() }), convey.ShouldBeTrue)
				convey.So(receipts.Len(), convey.ShouldEqual, 0)
			})
		})
	})
}
