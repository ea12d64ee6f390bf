package repository

import "time"

// Option applies a configuration option to the ShardedStore.
type Option func(*ShardedStore)

// WithShardCount sets the number of lock shards. Values <= 0 are ignored.
func WithShardCount(n int) Option {
	return func(s *ShardedStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithInitialScore sets the base score a new identity starts from before its
// first delta is applied.
func WithInitialScore(score int) Option {
	return func(s *ShardedStore) {
		s.initialScore = score
	}
}

// WithClock overrides the time source used for LastActive.
func WithClock(now func() time.Time) Option {
	return func(s *ShardedStore) {
		if now != nil {
			s.now = now
		}
	}
}
