// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/trustledger/internal/adapters/ledger"
	eventqueue "github.com/okian/trustledger/internal/adapters/mq/queue"
	workerpool "github.com/okian/trustledger/internal/adapters/mq/worker"
	"github.com/okian/trustledger/internal/adapters/repository"
	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/internal/domain/receipt"
	"github.com/okian/trustledger/internal/domain/scoring"
	"github.com/okian/trustledger/internal/domain/types"
	"github.com/okian/trustledger/pkg/logger"
	"github.com/okian/trustledger/pkg/metrics"
)

// AsyncSignaturePrefix marks the task reference returned before the ledger
// write happens.
const AsyncSignaturePrefix = "async_"

const checkTimeout = 5 * time.Second

// validate is shared by every request; it carries the custom address rule.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("solana_address", validateSolanaAddress)
	_ = validate.RegisterValidation("interaction_type", validateInteractionType)
}

// validateSolanaAddress accepts base58 strings that decode to 32 bytes.
func validateSolanaAddress(fl validator.FieldLevel) bool {
	_, err := ledger.ParsePublicKey(fl.Field().String())
	return err == nil
}

// validateInteractionType accepts the names model.ParseInteractionType knows.
func validateInteractionType(fl validator.FieldLevel) bool {
	_, err := model.ParseInteractionType(fl.Field().String())
	return err == nil
}

// InteractionRequest is the validated input of RecordInteraction.
type InteractionRequest struct {
	Identity     string `validate:"required,solana_address"`
	Type         string `validate:"required,interaction_type"`
	QualityScore int    `validate:"min=0,max=100"`
}

// Service implements the API dependencies for the trust score ledger.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      *repository.ShardedStore
	queue      *eventqueue.InMemoryQueue
	receipts   *receipt.Cache
	drops      *receipt.Cache
	scorer     *scoring.CompatibilityScorer
	worker     *workerpool.InMemoryWorker
	reconciler *Reconciler

	// Ledger
	transport ledger.Transport
	reader    ledger.Reader
	checkers  map[string]ledger.AvailabilityChecker

	// Configuration
	receiptCapacity int
	shardCount      int
	pacing          time.Duration
	submitTimeout   time.Duration
	readTimeout     time.Duration
	scorerOpts      []scoring.Option
	newID           func() string

	// State
	started bool
	stopped bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithTransport sets the strategy used by the background worker.
func WithTransport(t ledger.Transport) Option {
	return func(s *Service) {
		s.transport = t
	}
}

// WithReader sets the ledger reader used by GetReputation.
func WithReader(r ledger.Reader) Option {
	return func(s *Service) {
		s.reader = r
	}
}

// WithAvailabilityCheck registers a named availability check reported by GetStats.
func WithAvailabilityCheck(name string, p ledger.AvailabilityChecker) Option {
	return func(s *Service) {
		if p != nil {
			s.checkers[name] = p
		}
	}
}

// WithReceiptCapacity sets the number of signatures kept for lookup.
func WithReceiptCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.receiptCapacity = n
		}
	}
}

// WithShardCount sets the number of reputation cache shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithPacing sets the delay between ledger submissions.
func WithPacing(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.pacing = d
		}
	}
}

// WithSubmitTimeout bounds a single ledger submission.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}

// WithReadTimeout bounds the ledger read in GetReputation.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithScorerOptions configures the compatibility scorer.
func WithScorerOptions(opts ...scoring.Option) Option {
	return func(s *Service) {
		s.scorerOpts = append(s.scorerOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the task id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New constructs a new Service. Components are created eagerly; the worker
// only starts with Start.
func New(opts ...Option) *Service {
	s := &Service{
		checkers:        make(map[string]ledger.AvailabilityChecker),
		receiptCapacity: receipt.DefaultCapacity,
		pacing:          100 * time.Millisecond,
		submitTimeout:   60 * time.Second,
		readTimeout:     defaultReadTimeout,
		newID:           uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.GetOrNop()
	}

	storeOpts := []repository.Option{}
	if s.shardCount > 0 {
		storeOpts = append(storeOpts, repository.WithShardCount(s.shardCount))
	}
	s.store = repository.NewShardedStore(storeOpts...)
	s.queue = eventqueue.NewInMemoryQueue()
	s.receipts = receipt.New(receipt.WithCapacity(s.receiptCapacity))
	s.drops = receipt.New(receipt.WithCapacity(s.receiptCapacity))
	s.scorer = scoring.NewCompatibilityScorer(s.scorerOpts...)
	s.reconciler = NewReconciler(s.store, s.reader, s.readTimeout, s.logger)

	return s
}

// Start launches the write-behind worker. A stopped service cannot be
// restarted because its queue is closed.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	if s.transport == nil {
		return ErrNoTransport
	}

	s.logger.Info(ctx, "starting trust score service...")

	s.worker = workerpool.NewInMemoryWorker(s.queue, s.transport, s.receipts,
		workerpool.WithName(s.transport.Name()),
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithPacing(s.pacing),
		workerpool.WithSubmitTimeout(s.submitTimeout),
		workerpool.WithDropStore(s.drops),
	)
	// The worker outlives the request that started it; Stop ends it.
	go s.worker.Run(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "trust score service started",
		logger.String("transport", s.transport.Name()),
		logger.Int("receiptCapacity", s.receiptCapacity),
		logger.Duration("pacing", s.pacing),
		logger.Duration("readTimeout", s.readTimeout),
	)
	return nil
}

// Stop closes the queue and waits for the worker to drain it. When ctx
// expires first the in-flight task is aborted and the rest are lost.
// Status and stats reads do not wait for the drain.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.stopped = true
	w := s.worker
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping trust score service...", logger.Int("pending", s.queue.Len(ctx)))
	if err := w.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker did not drain", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "trust score service stopped",
		logger.Int64("committed", w.Committed()),
		logger.Int64("dropped", w.Dropped()),
	)
	return nil
}

// RecordInteraction applies the interaction to the local cache, queues the
// ledger write and returns at once. The returned signature is a task
// reference, not a ledger signature.
func (s *Service) RecordInteraction(ctx context.Context, identity, interactionType string, quality int) (types.InteractionResult, error) {
	req := InteractionRequest{
		Identity:     strings.TrimSpace(identity),
		Type:         strings.ToLower(strings.TrimSpace(interactionType)),
		QualityScore: quality,
	}
	if err := validate.Struct(req); err != nil {
		metrics.RecordErrorByComponent("service", "validation")
		return types.InteractionResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	rec, err := s.store.ApplyInteraction(ctx, req.Identity, req.QualityScore)
	if err != nil {
		return types.InteractionResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	metrics.RecordInteraction(req.Type)

	task := model.InteractionTask{
		TaskID:       s.newID(),
		Identity:     req.Identity,
		Type:         model.InteractionType(req.Type),
		QualityScore: req.QualityScore,
	}
	result := types.InteractionResult{
		TaskID:   task.TaskID,
		NewScore: rec.BaseScore,
	}

	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.logger.Warn(ctx, "ledger write not queued",
			logger.String("task_id", task.TaskID),
			logger.String("identity", task.Identity),
			logger.Error(err),
		)
		return result, nil
	}

	s.logger.Debug(ctx, "interaction queued",
		logger.String("task_id", task.TaskID),
		logger.String("identity", task.Identity),
		logger.String("type", req.Type),
		logger.Int("quality", req.QualityScore),
		logger.Int("newScore", rec.BaseScore),
	)

	result.Signature = AsyncSignaturePrefix + task.TaskID
	result.OnChain = true
	return result, nil
}

// GetReputation returns the reconciled reputation for identity.
func (s *Service) GetReputation(ctx context.Context, identity string) (types.DisplayRecord, error) {
	identity = strings.TrimSpace(identity)
	if err := validate.Var(identity, "required,solana_address"); err != nil {
		return types.DisplayRecord{}, fmt.Errorf("%w: identity: %w", ErrInvalidInput, err)
	}
	return s.reconciler.Resolve(ctx, identity), nil
}

// GetTaskState reports what is known about a task: committed with its
// signature, dropped, or pending. Evicted and unknown ids read as pending.
func (s *Service) GetTaskState(taskID string) (model.TaskState, string) {
	taskID = strings.TrimPrefix(taskID, AsyncSignaturePrefix)
	if sig, ok := s.receipts.Get(taskID); ok {
		return model.TaskCommitted, sig
	}
	if _, ok := s.drops.Get(taskID); ok {
		return model.TaskDropped, ""
	}
	return model.TaskPending, ""
}

// GetQueueStatus reports the write-behind pipeline state.
func (s *Service) GetQueueStatus(ctx context.Context) types.QueueStatus {
	n := s.queue.Len(ctx)
	processing := n > 0
	s.mu.RLock()
	if s.worker != nil && s.worker.IsProcessing() {
		processing = true
	}
	s.mu.RUnlock()

	return types.QueueStatus{
		QueueLength:      n,
		IsProcessing:     processing,
		CachedSignatures: s.receipts.Len(),
	}
}

// Compatibility scores two profiles.
func (s *Service) Compatibility(a, b scoring.Profile) int {
	return s.scorer.Score(a, b)
}

// RankCandidates scores candidates against current, sorts them by score
// and drops those below the thresholds. Negative thresholds use the
// configured defaults.
func (s *Service) RankCandidates(current scoring.Profile, candidates []scoring.Candidate, minMatchScore, minReputation int) []scoring.Candidate {
	return s.scorer.Filter(s.scorer.Rank(current, candidates), minMatchScore, minReputation)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	started := s.started
	w := s.worker
	s.mu.RUnlock()

	status := s.GetQueueStatus(ctx)
	records := s.store.Count(ctx)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(goroutines)
	metrics.UpdateReputationRecords(records)
	metrics.UpdateReceiptCacheSize(status.CachedSignatures)

	stats := map[string]interface{}{
		"started":           started,
		"queueLength":       status.QueueLength,
		"isProcessing":      status.IsProcessing,
		"cachedSignatures":  status.CachedSignatures,
		"receiptCapacity":   s.receipts.Capacity(),
		"reputationRecords": records,
		"goroutines":        goroutines,
		"memoryAlloc":       mem.Alloc,
	}
	if s.transport != nil {
		stats["transport"] = s.transport.Name()
	}
	if w != nil {
		stats["tasksCommitted"] = w.Committed()
		stats["tasksDropped"] = w.Dropped()
	}
	if len(s.checkers) > 0 {
		stats["ledger"] = s.checkAvailability(ctx)
	}
	return stats
}

// checkAvailability asks every registered backend concurrently.
func (s *Service) checkAvailability(ctx context.Context) map[string]bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var mu sync.Mutex
	out := make(map[string]bool, len(s.checkers))
	g, gctx := errgroup.WithContext(ctx)
	for name, p := range s.checkers {
		g.Go(func() error {
			ok := p.CheckAvailable(gctx)
			mu.Lock()
			out[name] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
