package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/trustledger/internal/domain/types"
)

// Client talks to the trust ledger HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// SubmitResult mirrors the data block of POST /trust-score.
type SubmitResult struct {
	TaskID    string `json:"taskId"`
	Signature string `json:"signature"`
	NewScore  int    `json:"newScore"`
	OnChain   bool   `json:"onChain"`
	Mode      string `json:"mode"`
}

// TaskStatus mirrors GET /blockchain-status?taskId=.
type TaskStatus struct {
	TaskID    string `json:"taskId"`
	Signature string `json:"signature"`
	Status    string `json:"status"`
}

// Health checks that the service answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

// Submit posts one interaction.
func (c *Client) Submit(ctx context.Context, in Interaction) (SubmitResult, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("marshal interaction: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trust-score", bytes.NewReader(raw))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var env envelope[SubmitResult]
	if err := c.do(req, &env); err != nil {
		return SubmitResult{}, err
	}
	return env.Data, nil
}

// Reputation reads the reconciled record for wallet.
func (c *Client) Reputation(ctx context.Context, wallet string) (types.DisplayRecord, error) {
	var env envelope[types.DisplayRecord]
	if err := c.get(ctx, "/trust-score?wallet="+url.QueryEscape(wallet), &env); err != nil {
		return types.DisplayRecord{}, err
	}
	return env.Data, nil
}

// Task looks up the receipt for a task id.
func (c *Client) Task(ctx context.Context, taskID string) (TaskStatus, error) {
	var st TaskStatus
	err := c.get(ctx, "/blockchain-status?taskId="+url.QueryEscape(taskID), &st)
	return st, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
