// Package repository holds the local reputation cache, the authoritative
// source for immediate score responses.
package repository

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/pkg/metrics"
)

// DefaultInitialScore is the base score an identity starts from on its first
// interaction.
const DefaultInitialScore = 650

const defaultShardCount = 16

// Store provides read/write access to the cached reputation state.
type Store interface {
	// Get returns a copy of the record for identity, if present.
	Get(ctx context.Context, identity string) (model.ReputationRecord, bool)

	// ApplyInteraction folds one interaction's quality into the identity's
	// record, creating it when absent, and returns the updated copy.
	ApplyInteraction(ctx context.Context, identity string, quality int) (model.ReputationRecord, error)

	// Count returns the number of identities tracked.
	Count(ctx context.Context) int
}

type shard struct {
	mu      sync.RWMutex
	records map[string]*model.ReputationRecord
}

// ShardedStore is an in-memory Store split into independently locked shards.
// Updates to one identity are serialized; different identities proceed in
// parallel when they hash to different shards.
type ShardedStore struct {
	shards       []*shard
	shardCount   int
	initialScore int
	now          func() time.Time
	count        atomic.Int64
}

// NewShardedStore constructs a sharded store with configuration options.
func NewShardedStore(opts ...Option) *ShardedStore {
	s := &ShardedStore{
		shardCount:   defaultShardCount,
		initialScore: DefaultInitialScore,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]*model.ReputationRecord)}
	}
	return s
}

func (s *ShardedStore) shardFor(identity string) *shard {
	return s.shards[xxhash.Sum64String(identity)%uint64(len(s.shards))]
}

// Get returns a copy of the record for identity.
func (s *ShardedStore) Get(_ context.Context, identity string) (model.ReputationRecord, bool) {
	sh := s.shardFor(identity)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.records[identity]
	if !ok {
		return model.ReputationRecord{}, false
	}
	return *rec, true
}

// ApplyInteraction applies delta = floor((quality-50)/10) to the base score,
// clamped to [0,1000]. Total always increments and positive increments when
// quality >= 70.
func (s *ShardedStore) ApplyInteraction(_ context.Context, identity string, quality int) (model.ReputationRecord, error) {
	if identity == "" {
		metrics.RecordErrorByComponent("repository", "empty_identity")
		return model.ReputationRecord{}, ErrEmptyIdentity
	}
	if quality < model.MinQualityScore || quality > model.MaxQualityScore {
		metrics.RecordErrorByComponent("repository", "invalid_quality")
		return model.ReputationRecord{}, fmt.Errorf("%w: %d", ErrInvalidQuality, quality)
	}

	sh := s.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[identity]
	if !ok {
		rec = &model.ReputationRecord{Identity: identity, BaseScore: s.initialScore}
		sh.records[identity] = rec
		metrics.UpdateReputationRecords(int(s.count.Add(1)))
	}

	rec.BaseScore = model.ClampBaseScore(rec.BaseScore + Delta(quality))
	rec.TotalInteractions++
	if quality >= model.PositiveQualityThreshold {
		rec.PositiveInteractions++
	}
	rec.LastActive = s.now()

	return *rec, nil
}

// Count returns the number of identities tracked.
func (s *ShardedStore) Count(_ context.Context) int {
	return int(s.count.Load())
}

// Delta is the score change for one interaction: floor((quality-50)/10).
func Delta(quality int) int {
	return int(math.Floor(float64(quality-50) / 10))
}
