// Package ledger writes interaction records to and reads reputation accounts
// from the Solana ledger. Two strategies are provided: a direct JSON-RPC
// client that signs transactions itself, and a shim around the solana CLI.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/pkg/logger"
	"github.com/okian/trustledger/pkg/metrics"
)

// Strategy names, also used as metric labels.
const (
	StrategyDirect = "direct"
	StrategyShim   = "shim"
)

// Task is one interaction to record.
type Task = model.InteractionTask

// Transport submits one task to the ledger and returns its signature.
type Transport interface {
	Submit(ctx context.Context, task Task) (string, error)
	Name() string
}

// Reader fetches the reputation account for an identity. A missing,
// short, or unreadable account is reported as absent.
type Reader interface {
	FetchRecord(ctx context.Context, identity string) (model.ReputationRecord, bool)
}

// AvailabilityChecker reports whether a strategy's backend is reachable.
type AvailabilityChecker interface {
	CheckAvailable(ctx context.Context) bool
}

// Timeouts bounds every external step of the direct strategy.
type Timeouts struct {
	Balance      time.Duration
	Blockhash    time.Duration
	Broadcast    time.Duration
	Confirmation time.Duration
	Read         time.Duration
}

// DefaultTimeouts returns the stock per-step budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Balance:      3 * time.Second,
		Blockhash:    5 * time.Second,
		Broadcast:    15 * time.Second,
		Confirmation: 30 * time.Second,
		Read:         3 * time.Second,
	}
}

// withTimeout runs fn under its own deadline and records latency and errors
// for strategy/op.
func withTimeout[T any](ctx context.Context, d time.Duration, strategy, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	start := time.Now()
	v, err := fn(ctx)
	metrics.RecordLedgerCall(strategy, op, metrics.Since(start))
	if err != nil {
		metrics.RecordLedgerError(strategy, op, errorType(err))
	}
	return v, err
}

func errorType(err error) string {
	var rpcErr *RPCError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &rpcErr):
		return "rpc"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNoSignature):
		return "no_signature"
	default:
		return "other"
	}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ShimMemo is the compact memo written by the CLI strategy:
// app:<id6>:<type>:<quality>:<unix>.
func ShimMemo(app string, task Task, now time.Time) string { //nolint:gocritic // hugeParam: tasks are passed by value
	return fmt.Sprintf("%s:%s:%s:%d:%d", app, prefix(task.Identity, 6), task.Type, task.QualityScore, now.Unix())
}

type directMemo struct {
	App   string `json:"app"`
	User  string `json:"user"`
	Type  string `json:"type"`
	Score int    `json:"score"`
	TS    int64  `json:"ts"`
}

// DirectMemo is the JSON memo written by the RPC strategy.
func DirectMemo(app string, task Task, now time.Time) []byte { //nolint:gocritic // hugeParam: tasks are passed by value
	b, _ := json.Marshal(directMemo{
		App:   app,
		User:  prefix(task.Identity, 8),
		Type:  string(task.Type),
		Score: task.QualityScore,
		TS:    now.Unix(),
	})
	return b
}

// degrading submits through primary and falls back to secondary when the
// primary has no signing credential.
type degrading struct {
	primary   Transport
	secondary Transport
	logger    logger.Logger
}

// WithCredentialFallback wraps primary so that ErrNoCredential degrades to
// secondary instead of dropping the task.
func WithCredentialFallback(primary, secondary Transport) Transport {
	return &degrading{primary: primary, secondary: secondary, logger: logger.GetOrNop().Named("ledger")}
}

func (d *degrading) Name() string { return d.primary.Name() }

func (d *degrading) Submit(ctx context.Context, task Task) (string, error) { //nolint:gocritic // hugeParam: see Transport
	sig, err := d.primary.Submit(ctx, task)
	if errors.Is(err, ErrNoCredential) && d.secondary != nil {
		d.logger.Debug(ctx, "no signing credential, using fallback transport",
			logger.String("task_id", task.TaskID),
			logger.String("fallback", d.secondary.Name()),
		)
		return d.secondary.Submit(ctx, task)
	}
	return sig, err
}

// FallbackReader tries each reader in order and returns the first record
// found.
type FallbackReader struct {
	readers []Reader
}

// NewFallbackReader builds a reader chain. Nil readers are skipped.
func NewFallbackReader(readers ...Reader) *FallbackReader {
	fr := &FallbackReader{}
	for _, r := range readers {
		if r != nil {
			fr.readers = append(fr.readers, r)
		}
	}
	return fr
}

// FetchRecord returns the first record any reader finds.
func (f *FallbackReader) FetchRecord(ctx context.Context, identity string) (model.ReputationRecord, bool) {
	for _, r := range f.readers {
		if ctx.Err() != nil {
			return model.ReputationRecord{}, false
		}
		if rec, ok := r.FetchRecord(ctx, identity); ok {
			return rec, true
		}
	}
	return model.ReputationRecord{}, false
}
