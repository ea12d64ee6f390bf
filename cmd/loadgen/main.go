package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/trustledger/internal/loadgen"
	"github.com/okian/trustledger/pkg/logger"
)

// Default configuration constants.
const (
	defaultInteractions = 1000
	defaultIdentities   = 50
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultPollTimeout  = 2 * time.Minute
	defaultPollInterval = time.Second
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &loadgen.Config{}
	var logFormat string

	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive a trust ledger service with synthetic interactions",
		Long: `Submit random interactions for a set of generated wallets, poll the
write-behind receipts until they commit or the poll timeout elapses, then
read every wallet's reputation back.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWithWriter(cmd.ErrOrStderr(), logFormat); err != nil {
				return err
			}
			if cfg.Verbose {
				_ = logger.SetLevelString("debug")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
			defer cancel()

			_, err := loadgen.Run(ctx, cfg)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVar(&cfg.NumInteractions, "interactions", defaultInteractions, "Number of interactions to submit")
	f.IntVar(&cfg.Identities, "identities", defaultIdentities, "Number of distinct wallets")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.PollTimeout, "poll-timeout", defaultPollTimeout, "How long to wait for ledger receipts")
	f.DurationVar(&cfg.PollInterval, "poll-interval", defaultPollInterval, "Delay between receipt polls")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Log every request")
	f.StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(newKeygenCommand())
	return cmd
}
