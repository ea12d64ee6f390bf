package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/trustledger/internal/adapters/http/api"
	"github.com/okian/trustledger/internal/adapters/http/swagger"
	"github.com/okian/trustledger/internal/adapters/ledger"
	app "github.com/okian/trustledger/internal/app"
	"github.com/okian/trustledger/internal/config"
	"github.com/okian/trustledger/internal/domain/scoring"
	"github.com/okian/trustledger/pkg/logger"
	"github.com/okian/trustledger/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	go metrics.RunSystemCollector(ctx, config.Millis(cfg.MetricsRefreshMS))

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	// The queue drain shares the shutdown budget with the HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Millis(cfg.ShutdownTimeoutMS))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "pending ledger writes lost", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newService wires the ledger strategies and the service from cfg.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	program, err := ledger.ParsePublicKey(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("%w: program_id: %w", config.ErrInvalidConfig, err)
	}

	rpc := ledger.NewRPCClient(cfg.RPCURLs)
	log.Info(ctx, "ledger endpoints configured",
		logger.Any("endpoints", rpc.Endpoints()),
		logger.String("program", program.String()),
	)

	directOpts := []ledger.DirectOption{
		ledger.WithProgramID(program),
		ledger.WithMemoApp(cfg.MemoApp),
		ledger.WithTimeouts(ledger.Timeouts{
			Balance:      config.Millis(cfg.BalanceTimeoutMS),
			Blockhash:    config.Millis(cfg.BlockhashTimeoutMS),
			Broadcast:    config.Millis(cfg.BroadcastTimeoutMS),
			Confirmation: config.Millis(cfg.ConfirmationTimeoutMS),
			Read:         config.Millis(cfg.DirectReadTimeoutMS),
		}),
	}
	shimOpts := []ledger.ShimOption{
		ledger.WithCLIPath(cfg.CLIPath),
		ledger.WithShimTimeout(config.Millis(cfg.ShimTimeoutMS)),
		ledger.WithShimProgramID(program),
		ledger.WithShimMemoApp(cfg.MemoApp),
	}

	// The credential is loaded once; without it the direct strategy runs
	// degraded and writes fall through to the shim.
	payer, err := ledger.LoadKeypair(cfg.PayerKeypairPath)
	if err != nil {
		log.Warn(ctx, "no signing credential, direct strategy degraded",
			logger.String("path", cfg.PayerKeypairPath),
			logger.Error(err),
		)
	} else {
		log.Info(ctx, "signing credential loaded", logger.String("payer", payer.PublicKey().String()))
		directOpts = append(directOpts, ledger.WithPayer(payer))
		shimOpts = append(shimOpts, ledger.WithShimPayer(payer.PublicKey()))
	}

	direct := ledger.NewDirectTransport(rpc, directOpts...)
	shim := ledger.NewShimTransport(cfg.PayerKeypairPath, cfg.RPCURLs[0], shimOpts...)

	var transport ledger.Transport = shim
	if cfg.Transport == config.TransportDirect {
		if !direct.HasCredential() {
			log.Warn(ctx, "direct transport has no credential, writes will go through the shim")
		}
		transport = ledger.WithCredentialFallback(direct, shim)
	}

	return app.New(
		app.WithLogger(log),
		app.WithTransport(transport),
		app.WithReader(ledger.NewFallbackReader(shim, direct)),
		app.WithAvailabilityCheck("rpc", rpc),
		app.WithAvailabilityCheck("cli", shim),
		app.WithReceiptCapacity(cfg.ReceiptCapacity),
		app.WithShardCount(cfg.ShardCount),
		app.WithPacing(config.Millis(cfg.TaskPacingMS)),
		app.WithSubmitTimeout(config.Millis(cfg.SubmitTimeoutMS)),
		app.WithReadTimeout(config.Millis(cfg.ReadTimeoutMS)),
		app.WithScorerOptions(
			scoring.WithReputationScale(cfg.ReputationScale),
			scoring.WithThresholds(cfg.MinMatchScore, cfg.MinReputation),
		),
	), nil
}
