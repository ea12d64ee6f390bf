package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/okian/trustledger/pkg/logger"
)

const jsonRPCVersion = "2.0"

// DefaultRPCURLs are the devnet endpoints tried in order.
var DefaultRPCURLs = []string{
	"https://api.devnet.solana.com",
	"https://rpc.ankr.com/solana_devnet",
	"https://devnet.helius-rpc.com",
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCOption applies a configuration option to the RPCClient.
type RPCOption func(*RPCClient)

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(c *http.Client) RPCOption {
	return func(r *RPCClient) {
		if c != nil {
			r.http = c
		}
	}
}

// RPCClient is a JSON-RPC 2.0 client over HTTP. The first endpoint is the
// primary; the rest are tried in order when a call fails at the transport
// level. Errors returned by the node itself are not retried elsewhere.
type RPCClient struct {
	endpoints []string
	http      *http.Client
	nextID    atomic.Uint64
	logger    logger.Logger
}

// NewRPCClient creates a client for the given endpoints.
func NewRPCClient(endpoints []string, opts ...RPCOption) *RPCClient {
	r := &RPCClient{
		endpoints: append([]string(nil), endpoints...),
		http:      &http.Client{},
		logger:    logger.GetOrNop().Named("rpc"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Endpoints returns the configured endpoints, primary first.
func (r *RPCClient) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}

// Call invokes method and decodes the result into out.
func (r *RPCClient) Call(ctx context.Context, method string, params []any, out any) error {
	if len(r.endpoints) == 0 {
		return ErrNoEndpoint
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      r.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	var errs []error
	for _, url := range r.endpoints {
		err := r.callOne(ctx, url, body, out)
		if err == nil {
			return nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) || ctx.Err() != nil {
			return err
		}
		r.logger.Debug(ctx, "rpc endpoint failed", logger.String("url", url), logger.String("method", method), logger.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", url, err))
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, method, errors.Join(errs...))
}

func (r *RPCClient) callOne(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// GetBalance returns the lamport balance of pk.
func (r *RPCClient) GetBalance(ctx context.Context, pk PublicKey) (uint64, error) {
	var res struct {
		Value uint64 `json:"value"`
	}
	if err := r.Call(ctx, "getBalance", []any{pk.String(), map[string]string{"commitment": "confirmed"}}, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// GetLatestBlockhash returns the most recent confirmed blockhash.
func (r *RPCClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	var res struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := r.Call(ctx, "getLatestBlockhash", []any{map[string]string{"commitment": "confirmed"}}, &res); err != nil {
		return "", err
	}
	return res.Value.Blockhash, nil
}

// SendTransaction broadcasts a signed wire transaction and returns the
// node-reported signature.
func (r *RPCClient) SendTransaction(ctx context.Context, tx []byte) (string, error) {
	var sig string
	params := []any{
		base64.StdEncoding.EncodeToString(tx),
		map[string]string{"encoding": "base64", "preflightCommitment": "confirmed"},
	}
	if err := r.Call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

// SignatureStatus is the subset of getSignatureStatuses the transport needs.
type SignatureStatus struct {
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

// Confirmed reports whether the transaction reached confirmed or finalized.
func (s *SignatureStatus) Confirmed() bool {
	return s != nil && (s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized")
}

// Failed reports whether the transaction landed with an error.
func (s *SignatureStatus) Failed() bool {
	return s != nil && len(s.Err) > 0 && string(s.Err) != "null"
}

// GetSignatureStatus returns nil when the node has not seen sig yet.
func (r *RPCClient) GetSignatureStatus(ctx context.Context, sig string) (*SignatureStatus, error) {
	var res struct {
		Value []*SignatureStatus `json:"value"`
	}
	if err := r.Call(ctx, "getSignatureStatuses", []any{[]string{sig}}, &res); err != nil {
		return nil, err
	}
	if len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

// AccountInfo is a decoded getAccountInfo value.
type AccountInfo struct {
	Lamports uint64
	Owner    string
	Data     []byte
}

// GetAccountInfo returns nil when the account does not exist.
func (r *RPCClient) GetAccountInfo(ctx context.Context, pk PublicKey) (*AccountInfo, error) {
	var res struct {
		Value *struct {
			Data     []string `json:"data"`
			Lamports uint64   `json:"lamports"`
			Owner    string   `json:"owner"`
		} `json:"value"`
	}
	if err := r.Call(ctx, "getAccountInfo", []any{pk.String(), map[string]string{"encoding": "base64"}}, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, nil
	}
	info := &AccountInfo{Lamports: res.Value.Lamports, Owner: res.Value.Owner}
	if len(res.Value.Data) > 0 {
		data, err := base64.StdEncoding.DecodeString(res.Value.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		info.Data = data
	}
	return info, nil
}

// CheckAvailable pings the endpoints with getVersion.
func (r *RPCClient) CheckAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var res struct {
		SolanaCore string `json:"solana-core"`
	}
	if err := r.Call(ctx, "getVersion", nil, &res); err != nil {
		r.logger.Warn(ctx, "rpc unavailable", logger.Error(err))
		return false
	}
	return true
}
