// Package aggregator is an HTTP client for the swap/bridge aggregator.
// Quote computation, routing and settlement all happen on the vendor's
// side; this package only moves requests and instructions across.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/retry"
)

// ErrNoQuotes is returned when the vendor has no route for a request.
var ErrNoQuotes = errors.New("aggregator: no quotes available")

// Config holds the connection settings for the aggregator API.
type Config struct {
	BaseURL string        // e.g. "https://ag.kanalabs.io"
	APIKey  string        // sent as X-API-KEY
	Timeout time.Duration // per HTTP request
	Retry   retry.Policy  // applied to idempotent quote lookups
}

// Client talks to the aggregator REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a client. Zero Timeout means 30s; zero Retry means retry.DefaultPolicy.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// APIError is a non-2xx response from the vendor.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator error (%d): %s", e.Status, e.Message)
}

// envelope is the vendor's response wrapper.
type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u, err := url.Parse(c.cfg.BaseURL + path)
	if err != nil {
		return retry.Permanent(fmt.Errorf("invalid URL: %w", err))
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal request body: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode >= 400 {
		msg := string(respBody)
		if decodeErr == nil && env.Message != "" {
			msg = env.Message
		}
		apiErr := &APIError{Status: resp.StatusCode, Message: msg}
		if retry.RetryableStatus(resp.StatusCode) {
			return apiErr
		}
		return retry.Permanent(apiErr)
	}
	if decodeErr != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", decodeErr))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return retry.Permanent(fmt.Errorf("decode response data: %w", err))
	}
	return nil
}

// get retries, post does not: instructions and submissions are not idempotent.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	err := c.cfg.Retry.Do(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, query, nil, out)
	})
	metrics.VendorCallsTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
	return err
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	err := retry.Unwrap(c.do(ctx, http.MethodPost, path, nil, body, out))
	metrics.VendorCallsTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
	return err
}

// SwapQuotes returns same-chain quotes, best first.
func (c *Client) SwapQuotes(ctx context.Context, r SwapQuoteRequest) ([]Quote, error) {
	q := url.Values{}
	q.Set("inputToken", r.InputToken)
	q.Set("outputToken", r.OutputToken)
	q.Set("amountIn", r.AmountIn)
	q.Set("slippage", strconv.FormatFloat(r.Slippage, 'f', -1, 64))
	q.Set("network", strconv.Itoa(r.Network))

	var quotes []Quote
	if err := c.get(ctx, "swap_quote", "/v1/swapQuote", q, &quotes); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}
	return quotes, nil
}

// SwapInstruction returns the transactions that execute quote for address.
func (c *Client) SwapInstruction(ctx context.Context, quote Quote, address string) ([]Instruction, error) {
	var out []Instruction
	err := c.post(ctx, "swap_instruction", "/v1/swapInstruction", map[string]any{
		"quote":   quote,
		"address": address,
	}, &out)
	return out, err
}

// CrossChainQuotes returns bridge quotes, best first.
func (c *Client) CrossChainQuotes(ctx context.Context, r CrossChainQuoteRequest) ([]Quote, error) {
	q := url.Values{}
	q.Set("sourceToken", r.SourceToken)
	q.Set("targetToken", r.TargetToken)
	q.Set("sourceChain", strconv.Itoa(r.SourceChain))
	q.Set("targetChain", strconv.Itoa(r.TargetChain))
	q.Set("amountIn", r.AmountIn)
	q.Set("sourceSlippage", strconv.FormatFloat(r.SourceSlippage, 'f', -1, 64))
	q.Set("targetSlippage", strconv.FormatFloat(r.TargetSlippage, 'f', -1, 64))

	var quotes []Quote
	if err := c.get(ctx, "cross_chain_quote", "/v1/crossChainQuote", q, &quotes); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}
	return quotes, nil
}

// TransferInstruction returns the source-chain transactions of a bridge.
func (c *Client) TransferInstruction(ctx context.Context, quote Quote, sourceAddress, targetAddress string) ([]Instruction, error) {
	var out []Instruction
	err := c.post(ctx, "transfer_instruction", "/v1/transfer", map[string]any{
		"quote":         quote,
		"sourceAddress": sourceAddress,
		"targetAddress": targetAddress,
	}, &out)
	return out, err
}

// ClaimInstruction returns the target-chain transactions that release
// bridged funds after the source transfer landed.
func (c *Client) ClaimInstruction(ctx context.Context, quote Quote, txHash, sourceAddress, targetAddress string) ([]Instruction, error) {
	var out []Instruction
	err := c.post(ctx, "claim_instruction", "/v1/claim", map[string]any{
		"quote":         quote,
		"txHash":        txHash,
		"sourceAddress": sourceAddress,
		"targetAddress": targetAddress,
	}, &out)
	return out, err
}

// RedeemInstruction returns the target-chain transactions that recover a
// bridge transfer whose claim never completed.
func (c *Client) RedeemInstruction(ctx context.Context, r RedeemRequest) ([]Instruction, error) {
	var out []Instruction
	err := c.post(ctx, "redeem_instruction", "/v1/redeem", r, &out)
	return out, err
}

// Submit relays a signed non-EVM payload and returns its transaction hash.
func (c *Client) Submit(ctx context.Context, s Signed) (string, error) {
	var out struct {
		TxHash string `json:"txHash"`
	}
	if err := c.post(ctx, "submit", "/v1/submit", s, &out); err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", errors.New("aggregator: submit returned no transaction hash")
	}
	return out.TxHash, nil
}
