package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/pkg/logger"
)

const (
	defaultMemoApp      = "swiv"
	defaultPollInterval = 500 * time.Millisecond
)

// DirectOption applies a configuration option to the DirectTransport.
type DirectOption func(*DirectTransport)

// WithPayer sets the signing credential. Without one, Submit fails fast
// with ErrNoCredential.
func WithPayer(kp *Keypair) DirectOption {
	return func(d *DirectTransport) {
		d.payer = kp
	}
}

// WithProgramID sets the trust score program used to derive record
// addresses.
func WithProgramID(pk PublicKey) DirectOption {
	return func(d *DirectTransport) {
		d.program = pk
	}
}

// WithTimeouts sets the per-step budgets. Zero fields keep their defaults.
func WithTimeouts(t Timeouts) DirectOption {
	return func(d *DirectTransport) {
		def := d.timeouts
		d.timeouts = Timeouts{
			Balance:      orDefault(t.Balance, def.Balance),
			Blockhash:    orDefault(t.Blockhash, def.Blockhash),
			Broadcast:    orDefault(t.Broadcast, def.Broadcast),
			Confirmation: orDefault(t.Confirmation, def.Confirmation),
			Read:         orDefault(t.Read, def.Read),
		}
	}
}

// WithMemoApp sets the application tag written into every memo.
func WithMemoApp(app string) DirectOption {
	return func(d *DirectTransport) {
		if app != "" {
			d.memoApp = app
		}
	}
}

// WithPollInterval sets the confirmation polling interval.
func WithPollInterval(iv time.Duration) DirectOption {
	return func(d *DirectTransport) {
		if iv > 0 {
			d.pollInterval = iv
		}
	}
}

func orDefault(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// DirectTransport signs memo transactions locally and sends them over
// JSON-RPC.
type DirectTransport struct {
	rpc          *RPCClient
	payer        *Keypair
	program      PublicKey
	timeouts     Timeouts
	memoApp      string
	pollInterval time.Duration
	now          func() time.Time
	logger       logger.Logger
}

// NewDirectTransport creates a direct strategy on top of rpc.
func NewDirectTransport(rpc *RPCClient, opts ...DirectOption) *DirectTransport {
	d := &DirectTransport{
		rpc:          rpc,
		program:      MustPublicKey(DefaultTrustScoreProgramID),
		timeouts:     DefaultTimeouts(),
		memoApp:      defaultMemoApp,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		logger:       logger.GetOrNop().Named("ledger.direct"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements Transport.
func (d *DirectTransport) Name() string { return StrategyDirect }

// HasCredential reports whether a payer keypair is loaded.
func (d *DirectTransport) HasCredential() bool { return d.payer != nil }

// Submit records task as a memo transaction. Each step carries its own
// timeout. A balance check timeout is treated as funded; a confirmation
// timeout or on-chain failure still returns the signature.
func (d *DirectTransport) Submit(ctx context.Context, task Task) (string, error) { //nolint:gocritic // hugeParam: see Transport
	if d.payer == nil {
		return "", ErrNoCredential
	}
	payer := d.payer.PublicKey()

	balance, err := withTimeout(ctx, d.timeouts.Balance, StrategyDirect, "balance", func(c context.Context) (uint64, error) {
		return d.rpc.GetBalance(c, payer)
	})
	switch {
	case err == nil && balance == 0:
		return "", fmt.Errorf("%w: %s", ErrInsufficientFunds, payer)
	case err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		d.logger.Warn(ctx, "balance check timed out, assuming funded", logger.String("task_id", task.TaskID))
	case err != nil:
		return "", fmt.Errorf("balance check: %w", err)
	}

	blockhash, err := withTimeout(ctx, d.timeouts.Blockhash, StrategyDirect, "blockhash", d.rpc.GetLatestBlockhash)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}

	tx, sig, err := BuildMemoTransaction(d.payer, blockhash, DirectMemo(d.memoApp, task, d.now()))
	if err != nil {
		return "", err
	}

	sent, err := withTimeout(ctx, d.timeouts.Broadcast, StrategyDirect, "send", func(c context.Context) (string, error) {
		return d.rpc.SendTransaction(c, tx)
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	if sent != "" {
		sig = sent
	}

	d.confirm(ctx, task, sig)
	return sig, nil
}

// confirm polls the signature status until confirmed, failed, or the
// confirmation budget runs out. The outcome is logged only.
func (d *DirectTransport) confirm(ctx context.Context, task Task, sig string) { //nolint:gocritic // hugeParam: see Transport
	_, err := withTimeout(ctx, d.timeouts.Confirmation, StrategyDirect, "confirm", func(c context.Context) (struct{}, error) {
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		for {
			status, err := d.rpc.GetSignatureStatus(c, sig)
			switch {
			case err != nil && c.Err() != nil:
				return struct{}{}, c.Err()
			case status.Failed():
				d.logger.Warn(c, "transaction failed on chain",
					logger.String("task_id", task.TaskID),
					logger.String("signature", sig),
					logger.String("err", string(status.Err)),
				)
				return struct{}{}, nil
			case status.Confirmed():
				return struct{}{}, nil
			}

			select {
			case <-c.Done():
				return struct{}{}, c.Err()
			case <-ticker.C:
			}
		}
	})
	if err != nil {
		d.logger.Warn(ctx, "transaction not confirmed in time",
			logger.String("task_id", task.TaskID),
			logger.String("signature", sig),
			logger.Error(err),
		)
	}
}

// FetchRecord reads the identity's trust score account with getAccountInfo.
func (d *DirectTransport) FetchRecord(ctx context.Context, identity string) (model.ReputationRecord, bool) {
	owner, err := ParsePublicKey(identity)
	if err != nil {
		return model.ReputationRecord{}, false
	}
	addr, err := TrustScoreAddress(d.program, owner)
	if err != nil {
		return model.ReputationRecord{}, false
	}

	info, err := withTimeout(ctx, d.timeouts.Read, StrategyDirect, "read", func(c context.Context) (*AccountInfo, error) {
		return d.rpc.GetAccountInfo(c, addr)
	})
	if err != nil {
		d.logger.Debug(ctx, "account read failed", logger.String("address", addr.String()), logger.Error(err))
		return model.ReputationRecord{}, false
	}
	if info == nil {
		return model.ReputationRecord{}, false
	}
	return DecodeAccount(identity, info.Data)
}

// CheckAvailable pings the RPC endpoints.
func (d *DirectTransport) CheckAvailable(ctx context.Context) bool {
	return d.rpc.CheckAvailable(ctx)
}
