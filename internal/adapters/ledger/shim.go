package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/pkg/logger"
)

const (
	defaultCLIPath     = "solana"
	defaultShimTimeout = 15 * time.Second
	checkTimeout       = 5 * time.Second
)

// signaturePattern extracts the base58 signature the CLI prints.
var signaturePattern = regexp.MustCompile(`Signature:\s*([1-9A-HJ-NP-Za-km-z]{87,88})`)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ShimOption applies a configuration option to the ShimTransport.
type ShimOption func(*ShimTransport)

// WithCLIPath sets the solana binary.
func WithCLIPath(path string) ShimOption {
	return func(s *ShimTransport) {
		if path != "" {
			s.cli = path
		}
	}
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) ShimOption {
	return func(s *ShimTransport) {
		if r != nil {
			s.run = r
		}
	}
}

// WithShimTimeout bounds each CLI invocation.
func WithShimTimeout(d time.Duration) ShimOption {
	return func(s *ShimTransport) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithShimPayer supplies the payer address so it is not resolved through
// the CLI.
func WithShimPayer(pk PublicKey) ShimOption {
	return func(s *ShimTransport) {
		s.payerAddr = pk.String()
	}
}

// WithShimProgramID sets the trust score program used for reads.
func WithShimProgramID(pk PublicKey) ShimOption {
	return func(s *ShimTransport) {
		s.program = pk
	}
}

// WithShimMemoApp sets the application tag written into every memo.
func WithShimMemoApp(app string) ShimOption {
	return func(s *ShimTransport) {
		if app != "" {
			s.memoApp = app
		}
	}
}

// ShimTransport drives the solana CLI. It sends a zero-lamport self
// transfer carrying the interaction as a memo.
type ShimTransport struct {
	cli       string
	run       Runner
	payerPath string
	url       string
	program   PublicKey
	memoApp   string
	timeout   time.Duration
	now       func() time.Time
	logger    logger.Logger

	mu        sync.Mutex
	payerAddr string
}

// NewShimTransport creates a CLI strategy paying from the keypair at
// payerPath against the RPC url.
func NewShimTransport(payerPath, url string, opts ...ShimOption) *ShimTransport {
	s := &ShimTransport{
		cli:       defaultCLIPath,
		run:       ExecRunner,
		payerPath: payerPath,
		url:       url,
		program:   MustPublicKey(DefaultTrustScoreProgramID),
		memoApp:   defaultMemoApp,
		timeout:   defaultShimTimeout,
		now:       time.Now,
		logger:    logger.GetOrNop().Named("ledger.shim"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Transport.
func (s *ShimTransport) Name() string { return StrategyShim }

// payer resolves the payer address once, through `solana address -k`.
func (s *ShimTransport) payer(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payerAddr != "" {
		return s.payerAddr, nil
	}

	out, err := withTimeout(ctx, s.timeout, StrategyShim, "address", func(c context.Context) ([]byte, error) {
		return s.run(c, s.cli, "address", "-k", s.payerPath)
	})
	if err != nil {
		return "", fmt.Errorf("resolve payer address: %w: %s", err, strings.TrimSpace(string(out)))
	}
	pk, err := ParsePublicKey(strings.TrimSpace(string(out)))
	if err != nil {
		return "", err
	}
	s.payerAddr = pk.String()
	return s.payerAddr, nil
}

// Submit runs `solana transfer <payer> 0 --with-memo ...` and extracts the
// signature from the output.
func (s *ShimTransport) Submit(ctx context.Context, task Task) (string, error) { //nolint:gocritic // hugeParam: see Transport
	addr, err := s.payer(ctx)
	if err != nil {
		return "", err
	}

	args := []string{
		"transfer", addr, "0",
		"--from", s.payerPath,
		"--url", s.url,
		"--with-memo", ShimMemo(s.memoApp, task, s.now()),
		"--skip-seed-phrase-validation",
		"--allow-unfunded-recipient",
	}
	out, err := withTimeout(ctx, s.timeout, StrategyShim, "send", func(c context.Context) ([]byte, error) {
		return s.run(c, s.cli, args...)
	})
	if err != nil {
		return "", fmt.Errorf("solana transfer: %w: %s", err, strings.TrimSpace(string(out)))
	}

	sig, ok := ParseSignature(string(out))
	if !ok {
		s.logger.Warn(ctx, "could not extract signature", logger.String("task_id", task.TaskID), logger.String("output", string(out)))
		return "", ErrNoSignature
	}
	return sig, nil
}

// ParseSignature finds the "Signature: <base58>" line in CLI output.
func ParseSignature(out string) (string, bool) {
	m := signaturePattern.FindStringSubmatch(out)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

type cliAccount struct {
	Account struct {
		Lamports uint64   `json:"lamports"`
		Data     []string `json:"data"`
		Owner    string   `json:"owner"`
	} `json:"account"`
}

// FetchRecord runs `solana account <pda> --output json` and decodes the
// account data.
func (s *ShimTransport) FetchRecord(ctx context.Context, identity string) (model.ReputationRecord, bool) {
	owner, err := ParsePublicKey(identity)
	if err != nil {
		return model.ReputationRecord{}, false
	}
	addr, err := TrustScoreAddress(s.program, owner)
	if err != nil {
		return model.ReputationRecord{}, false
	}

	out, err := withTimeout(ctx, s.timeout, StrategyShim, "read", func(c context.Context) ([]byte, error) {
		return s.run(c, s.cli, "account", addr.String(), "--url", s.url, "--output", "json")
	})
	if err != nil {
		if !strings.Contains(string(out), "AccountNotFound") {
			s.logger.Debug(ctx, "account read failed", logger.String("address", addr.String()), logger.Error(err))
		}
		return model.ReputationRecord{}, false
	}

	var acc cliAccount
	if err := json.Unmarshal(out, &acc); err != nil || len(acc.Account.Data) == 0 {
		return model.ReputationRecord{}, false
	}
	data, err := base64.StdEncoding.DecodeString(acc.Account.Data[0])
	if err != nil {
		return model.ReputationRecord{}, false
	}
	return DecodeAccount(identity, data)
}

// CheckAvailable runs `solana --version`.
func (s *ShimTransport) CheckAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	out, err := s.run(ctx, s.cli, "--version")
	if err != nil {
		s.logger.Warn(ctx, "solana cli unavailable", logger.Error(err))
		return false
	}
	s.logger.Debug(ctx, "solana cli available", logger.String("version", strings.TrimSpace(string(out))))
	return true
}
