package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	envPrefix     = "TRUST_"
	envConfigFile = "TRUST_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if TRUST_CONFIG is set
//  3. env (prefix TRUST_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like TRUST_QUEUE_SIZE -> queue_size (flat keys).
	// Comma separated values become lists for slice fields (TRUST_RPC_URLS).
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if key == "rpc_urls" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the service relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Transport != TransportDirect && c.Transport != TransportShim:
		return fmt.Errorf("%w: transport must be %q or %q, got %q", ErrInvalidConfig, TransportDirect, TransportShim, c.Transport)
	case len(c.RPCURLs) == 0:
		return fmt.Errorf("%w: at least one rpc url is required", ErrInvalidConfig)
	case strings.TrimSpace(c.ProgramID) == "":
		return fmt.Errorf("%w: program_id must not be empty", ErrInvalidConfig)
	case c.ReceiptCapacity <= 0:
		return fmt.Errorf("%w: receipt_capacity must be positive", ErrInvalidConfig)
	case c.ReadTimeoutMS <= 0 || c.SubmitTimeoutMS <= 0 || c.ShimTimeoutMS <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	case c.TaskPacingMS < 0:
		return fmt.Errorf("%w: task_pacing_ms must not be negative", ErrInvalidConfig)
	case c.ReputationScale <= 0:
		return fmt.Errorf("%w: reputation_scale must be positive", ErrInvalidConfig)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
