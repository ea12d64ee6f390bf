package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/trustledger/internal/adapters/ledger"
	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/internal/domain/types"
	"github.com/okian/trustledger/pkg/logger"
	"github.com/okian/trustledger/pkg/metrics"
)

const defaultReadTimeout = 12 * time.Second

// RecordGetter is the read side of the reputation cache.
type RecordGetter interface {
	Get(ctx context.Context, identity string) (model.ReputationRecord, bool)
}

type fetchResult struct {
	rec   model.ReputationRecord
	found bool
}

// Reconciler resolves a reputation read against the ledger and the local
// cache. The ledger answer wins when it arrives within the timeout.
type Reconciler struct {
	cache   RecordGetter
	reader  ledger.Reader
	timeout time.Duration
	flight  singleflight.Group
	logger  logger.Logger
}

// NewReconciler creates a reconciler. reader may be nil, in which case
// only the cache is consulted.
func NewReconciler(cache RecordGetter, reader ledger.Reader, timeout time.Duration, log logger.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if log == nil {
		log = logger.GetOrNop()
	}
	return &Reconciler{
		cache:   cache,
		reader:  reader,
		timeout: timeout,
		logger:  log.Named("reconciler"),
	}
}

// Resolve returns the best known record for identity. It never fails: an
// identity unknown to both sources gets the new-user default.
func (r *Reconciler) Resolve(ctx context.Context, identity string) types.DisplayRecord {
	cached, inCache := r.cache.Get(ctx, identity)

	if rec, ok := r.fetch(ctx, identity); ok {
		metrics.RecordReputationRead(string(types.SourceLedger))
		return toDisplay(rec, types.SourceLedger)
	}
	if inCache {
		metrics.RecordReputationRead(string(types.SourceCache))
		return toDisplay(cached, types.SourceCache)
	}

	metrics.RecordReputationRead(string(types.SourceDefault))
	return types.DisplayRecord{
		Initialized: false,
		BaseScore:   types.DefaultReadBaseScore,
		Source:      types.SourceDefault,
	}
}

// fetch races a ledger read against the timeout. Concurrent reads for the
// same identity share one round trip.
func (r *Reconciler) fetch(ctx context.Context, identity string) (model.ReputationRecord, bool) {
	if r.reader == nil {
		return model.ReputationRecord{}, false
	}

	ch := r.flight.DoChan(identity, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		rec, found := r.reader.FetchRecord(readCtx, identity)
		return fetchResult{rec: rec, found: found}, nil
	})

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		fr, _ := res.Val.(fetchResult)
		if res.Shared {
			r.logger.Debug(ctx, "shared ledger read", logger.String("identity", identity))
		}
		return fr.rec, fr.found
	case <-timer.C:
		r.logger.Warn(ctx, "ledger read timed out, using cache",
			logger.String("identity", identity),
			logger.Duration("timeout", r.timeout),
		)
		metrics.RecordErrorByComponent("reconciler", "timeout")
		return model.ReputationRecord{}, false
	case <-ctx.Done():
		return model.ReputationRecord{}, false
	}
}

func toDisplay(rec model.ReputationRecord, source types.Source) types.DisplayRecord { //nolint:gocritic // hugeParam: records are small value copies
	var lastActive int64
	if !rec.LastActive.IsZero() {
		lastActive = rec.LastActive.UnixMilli()
	}
	return types.DisplayRecord{
		Initialized:          true,
		BaseScore:            rec.BaseScore,
		TotalInteractions:    rec.TotalInteractions,
		PositiveInteractions: rec.PositiveInteractions,
		LearningStreak:       rec.LearningStreak,
		QualityRate:          rec.QualityRate(),
		LastActive:           lastActive,
		Source:               source,
	}
}
