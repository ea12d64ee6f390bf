// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file and TRUST_* env vars.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"time"
)

// Transport modes for ledger submissions.
const (
	TransportDirect = "direct"
	TransportShim   = "shim"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Transport selects the ledger submission strategy: direct or shim.
	Transport string `koanf:"transport"`

	// RPCURLs lists ledger JSON-RPC endpoints; the first is primary.
	RPCURLs []string `koanf:"rpc_urls"`

	// ProgramID is the base58 id of the trust-score program owning the
	// per-identity record accounts.
	ProgramID string `koanf:"program_id"`

	// PayerKeypairPath points at the signing credential (JSON byte array).
	// A missing file puts the direct strategy in degraded mode.
	PayerKeypairPath string `koanf:"payer_keypair_path"`

	// CLIPath is the ledger command-line tool used by the shim strategy.
	CLIPath string `koanf:"cli_path"`

	// MemoApp tags every memo written to the ledger.
	MemoApp string `koanf:"memo_app"`

	// Direct strategy per-step budgets, in milliseconds.
	BalanceTimeoutMS      int `koanf:"balance_timeout_ms"`
	BlockhashTimeoutMS    int `koanf:"blockhash_timeout_ms"`
	BroadcastTimeoutMS    int `koanf:"broadcast_timeout_ms"`
	ConfirmationTimeoutMS int `koanf:"confirmation_timeout_ms"`

	// ShimTimeoutMS bounds a single CLI invocation.
	ShimTimeoutMS int `koanf:"shim_timeout_ms"`

	// DirectReadTimeoutMS bounds the direct fallback ledger read.
	DirectReadTimeoutMS int `koanf:"direct_read_timeout_ms"`

	// ReadTimeoutMS is the total budget of a reputation read's ledger race.
	ReadTimeoutMS int `koanf:"read_timeout_ms"`

	// SubmitTimeoutMS bounds one write-behind task end to end.
	SubmitTimeoutMS int `koanf:"submit_timeout_ms"`

	// TaskPacingMS is the pause between consecutive ledger submissions.
	TaskPacingMS int `koanf:"task_pacing_ms"`

	// ReceiptCapacity bounds the receipt cache.
	ReceiptCapacity int `koanf:"receipt_capacity"`

	// ShardCount configures the number of shards in the reputation cache.
	ShardCount int `koanf:"shard_count"`

	// MinMatchScore and MinReputation are the candidate filter defaults.
	MinMatchScore int `koanf:"min_match_score"`
	MinReputation int `koanf:"min_reputation"`

	// ReputationScale normalizes reputations inside the compatibility score.
	ReputationScale float64 `koanf:"reputation_scale"`

	// ShutdownTimeoutMS bounds the queue drain on shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`

	// MetricsRefreshMS is how often the runtime gauges are sampled.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		Transport:             TransportShim,
		RPCURLs:               []string{"https://api.devnet.solana.com", "https://rpc.ankr.com/solana_devnet", "https://devnet.helius-rpc.com"},
		ProgramID:             "3FWDkwEPfVVZmxXS4f3pDaJpg4qf7GL5ir89DtXSwAjR",
		PayerKeypairPath:      "api-payer.json",
		CLIPath:               "solana",
		MemoApp:               "swiv",
		BalanceTimeoutMS:      3_000,
		BlockhashTimeoutMS:    5_000,
		BroadcastTimeoutMS:    15_000,
		ConfirmationTimeoutMS: 30_000,
		ShimTimeoutMS:         15_000,
		DirectReadTimeoutMS:   3_000,
		ReadTimeoutMS:         12_000,
		SubmitTimeoutMS:       60_000,
		TaskPacingMS:          100,
		ReceiptCapacity:       100,
		ShardCount:            16,
		MinMatchScore:         30,
		MinReputation:         20,
		ReputationScale:       1000,
		ShutdownTimeoutMS:     30_000,
		MetricsRefreshMS:      10_000,
	}
}

// Millis converts a millisecond config value to a time.Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
