package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient is a Transport speaking rippled's JSON-RPC dialect over HTTP.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	Method string           `json:"method"`
	Params []map[string]any `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
}

type rpcStatus struct {
	Status string `json:"status"`
	RPCError
}

// errPermanent marks failures that another attempt cannot fix.
var errPermanent = errors.New("permanent")

// Call performs one JSON-RPC call. Read-only methods are retried with
// exponential backoff on transport failures, 429 and 5xx; submissions are
// sent exactly once.
func (c *HTTPClient) Call(ctx context.Context, method string, params map[string]any, result any) error {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(rpcRequest{Method: method, Params: []map[string]any{params}})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	attempts := c.maxRetries
	if !retryable(method) {
		attempts = 0
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		raw, err := c.post(ctx, body)
		if err != nil {
			if errors.Is(err, errPermanent) || ctx.Err() != nil {
				return err
			}
			lastErr = err
			continue
		}
		return decodeResult(raw, result)
	}

	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited (429)")
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d: %s", errPermanent, resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %w", errPermanent, err)
	}
	return rpcResp.Result, nil
}

func (c *HTTPClient) Close() error { return nil }

// decodeResult turns a rippled result object into either result or an
// *RPCError.
func decodeResult(raw json.RawMessage, result any) error {
	if len(raw) == 0 {
		return errors.New("empty result")
	}
	var status rpcStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	if status.Status == "error" || status.Code != "" {
		rpcErr := status.RPCError
		return &rpcErr
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

func retryable(method string) bool {
	switch method {
	case "submit", "submit_multisigned", "sign_and_submit":
		return false
	}
	return true
}
