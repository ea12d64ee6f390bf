package loadgen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/trustledger/pkg/logger"
)

const (
	percentageMultiplier = 100
	taskCompleted        = "completed"
	taskDropped          = "dropped"
)

// ErrInvalidConfig is returned when a run is configured with no work.
var ErrInvalidConfig = errors.New("invalid load configuration")

// Run executes a complete load run and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.NumInteractions <= 0 || cfg.Identities <= 0 || cfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: interactions, identities and workers must be positive", ErrInvalidConfig)
	}

	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadgen")
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting trust ledger load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("interactions", cfg.NumInteractions),
		logger.Int("identities", cfg.Identities),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
		logger.Duration("pollTimeout", cfg.PollTimeout))

	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	interactions, err := generateInteractions(ctx, cfg, stats)
	if err != nil {
		return nil, fmt.Errorf("interaction generation failed: %w", err)
	}

	tasks, err := submitInteractions(ctx, cfg, client, interactions, stats)
	if err != nil {
		return nil, fmt.Errorf("interaction submission failed: %w", err)
	}

	pollReceipts(ctx, cfg, client, tasks, stats)

	if err := readReputations(ctx, cfg, client, interactions, stats); err != nil {
		return nil, fmt.Errorf("reputation read failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// submitInteractions posts every interaction with at most cfg.Workers in
// flight and returns the task ids that were queued for the ledger.
func submitInteractions(ctx context.Context, cfg *Config, client *Client, interactions []Interaction, stats *Stats) ([]string, error) {
	var (
		submitted, accepted, cached, failed int64
		mu                                  sync.Mutex
		tasks                               = make([]string, 0, len(interactions))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, in := range interactions {
		g.Go(func() error {
			res, err := client.Submit(gctx, in)
			atomic.AddInt64(&submitted, 1)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				if cfg.Verbose {
					logger.Get().Warn(gctx, "submit failed", logger.String("wallet", in.WalletAddress), logger.Error(err))
				}
				return nil
			}
			if !res.OnChain {
				atomic.AddInt64(&cached, 1)
				return nil
			}
			atomic.AddInt64(&accepted, 1)
			mu.Lock()
			tasks = append(tasks, res.TaskID)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.Submitted = int(submitted)
	stats.Accepted = int(accepted)
	stats.CachedOnly = int(cached)
	stats.Failed = int(failed)
	logger.Get().Info(ctx, "interaction submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("cachedOnly", stats.CachedOnly),
		logger.Int("failed", stats.Failed))
	return tasks, nil
}

// pollReceipts asks for each pending task until it is committed or dropped,
// or the poll timeout elapses. Tasks that never resolve are counted as pending.
func pollReceipts(ctx context.Context, cfg *Config, client *Client, tasks []string, stats *Stats) {
	pending := make(map[string]struct{}, len(tasks))
	for _, id := range tasks {
		pending[id] = struct{}{}
	}

	deadline := time.Now().Add(cfg.PollTimeout)
	for len(pending) > 0 && ctx.Err() == nil {
		for id := range pending {
			st, err := client.Task(ctx, id)
			if err != nil {
				continue
			}
			switch st.Status {
			case taskCompleted:
				delete(pending, id)
				stats.Confirmed++
			case taskDropped:
				delete(pending, id)
				stats.Dropped++
			}
		}
		if len(pending) == 0 || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(cfg.PollInterval):
		}
	}
	stats.Pending = len(pending)
}

// readReputations reads back every distinct wallet once.
func readReputations(ctx context.Context, cfg *Config, client *Client, interactions []Interaction, stats *Stats) error {
	seen := make(map[string]struct{})
	var reads int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, in := range interactions {
		if _, ok := seen[in.WalletAddress]; ok {
			continue
		}
		seen[in.WalletAddress] = struct{}{}
		wallet := in.WalletAddress
		g.Go(func() error {
			rec, err := client.Reputation(gctx, wallet)
			if err != nil {
				return err
			}
			atomic.AddInt64(&reads, 1)
			if cfg.Verbose {
				logger.Get().Info(gctx, "reputation",
					logger.String("wallet", wallet),
					logger.Int("baseScore", rec.BaseScore),
					logger.String("source", string(rec.Source)))
			}
			return nil
		})
	}
	err := g.Wait()
	stats.ReputationReads = int(reads)
	return err
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var acceptRate, perSecond float64
	if stats.Submitted > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Submitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("cachedOnly", stats.CachedOnly),
		logger.Int("failed", stats.Failed),
		logger.Int("confirmed", stats.Confirmed),
		logger.Int("dropped", stats.Dropped),
		logger.Int("pending", stats.Pending),
		logger.Int("reputationReads", stats.ReputationReads),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("submitsPerSecond", perSecond))
}
