// Package goldrush is an HTTP client for the GoldRush (Covalent) wallet
// data API: balances, transfers, NFTs, transactions and prices for an
// address across chains. Responses are passed through as the vendor's
// "data" object.
package goldrush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/retry"
)

// DefaultBaseURL is the public GoldRush endpoint.
const DefaultBaseURL = "https://api.covalenthq.com/v1"

// ErrInvalidSegment is returned for an argument that cannot be placed in
// the request path.
var ErrInvalidSegment = errors.New("goldrush: invalid path argument")

// EventTypes are the event kinds GasPrices accepts.
var EventTypes = []string{"erc20", "uniswapv3", "nativetokens"}

// chainNames maps chain slugs to GoldRush chain names. Anything else is
// passed through, so callers may use GoldRush names directly.
var chainNames = map[string]string{
	"ethereum":      "eth-mainnet",
	"polygon":       "matic-mainnet",
	"bsc":           "bsc-mainnet",
	"arbitrum":      "arbitrum-mainnet",
	"avalanche":     "avalanche-mainnet",
	"base":          "base-mainnet",
	"opbnb":         "bnb-opbnb-mainnet",
	"opbnb-testnet": "bnb-opbnb-testnet",
	"solana":        "solana-mainnet",
	"bitcoin":       "btc-mainnet",
}

// ChainName returns the GoldRush name for a chain slug or GoldRush name.
func ChainName(chain string) string {
	key := strings.ToLower(strings.TrimSpace(chain))
	if name, ok := chainNames[key]; ok {
		return name
	}
	return key
}

// Config holds the connection settings for the GoldRush API.
type Config struct {
	BaseURL string        // e.g. "https://api.covalenthq.com/v1"
	APIKey  string        // sent as a bearer token
	Timeout time.Duration // per HTTP request
	Retry   retry.Policy
}

// Client reads wallet data from GoldRush. Every call is a GET and is retried.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a client. Zero values fall back to DefaultBaseURL, 30s and
// retry.DefaultPolicy.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// APIError is an error reported by GoldRush, either as a non-2xx status
// or as an error flag in a 200 response.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 && e.Code != e.Status {
		return fmt.Sprintf("goldrush error (%d, code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("goldrush error (%d): %s", e.Status, e.Message)
}

type envelope struct {
	Data         json.RawMessage `json:"data"`
	Error        bool            `json:"error"`
	ErrorMessage string          `json:"error_message"`
	ErrorCode    int             `json:"error_code"`
}

// path joins segments into a request path, escaping each one and
// rejecting those that would change the path's shape.
func path(segments ...string) (string, error) {
	var b strings.Builder
	for _, s := range segments {
		if s == "" || strings.Trim(s, ".") == "" || strings.ContainsAny(s, "/?#") {
			return "", fmt.Errorf("%w: %q", ErrInvalidSegment, s)
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	b.WriteByte('/')
	return b.String(), nil
}

func (c *Client) do(ctx context.Context, p string, query url.Values) (json.RawMessage, error) {
	u := c.cfg.BaseURL + p
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && env.ErrorMessage != "" {
			msg = env.ErrorMessage
		}
		apiErr := &APIError{Status: resp.StatusCode, Code: env.ErrorCode, Message: msg}
		if retry.RetryableStatus(resp.StatusCode) {
			return nil, apiErr
		}
		return nil, retry.Permanent(apiErr)
	}
	if decodeErr != nil {
		return nil, retry.Permanent(fmt.Errorf("decode response: %w", decodeErr))
	}
	if env.Error {
		return nil, retry.Permanent(&APIError{Status: resp.StatusCode, Code: env.ErrorCode, Message: env.ErrorMessage})
	}
	return env.Data, nil
}

func (c *Client) get(ctx context.Context, op string, query url.Values, segments ...string) (json.RawMessage, error) {
	p, err := path(segments...)
	if err != nil {
		return nil, err
	}
	var data json.RawMessage
	err = c.cfg.Retry.Do(ctx, func() error {
		var err error
		data, err = c.do(ctx, p, query)
		return err
	})
	metrics.VendorCallsTotal.WithLabelValues("goldrush_"+op, metrics.Outcome(err)).Inc()
	return data, err
}

// MultichainBalances returns token balances for address on every chain
// GoldRush indexes.
func (c *Client) MultichainBalances(ctx context.Context, address string) (json.RawMessage, error) {
	return c.get(ctx, "multichain_balances", nil, "allchains", "address", address, "balances")
}

// MultichainTransactions returns recent transactions of address across chains.
func (c *Client) MultichainTransactions(ctx context.Context, address string) (json.RawMessage, error) {
	return c.get(ctx, "multichain_transactions", url.Values{"addresses": {address}}, "allchains", "transactions")
}

// Activity lists the chains address has been active on.
func (c *Client) Activity(ctx context.Context, address string) (json.RawMessage, error) {
	return c.get(ctx, "activity", nil, "address", address, "activity")
}

// TokenBalances returns the native and ERC-20 balances of address on chain.
func (c *Client) TokenBalances(ctx context.Context, chain, address string) (json.RawMessage, error) {
	return c.get(ctx, "token_balances", nil, ChainName(chain), "address", address, "balances_v2")
}

// NativeBalance returns the native balance of address on chain.
func (c *Client) NativeBalance(ctx context.Context, chain, address string) (json.RawMessage, error) {
	return c.get(ctx, "native_balance", nil, ChainName(chain), "address", address, "balances_native")
}

// NFTs returns the NFTs address holds on chain.
func (c *Client) NFTs(ctx context.Context, chain, address string) (json.RawMessage, error) {
	return c.get(ctx, "nfts", nil, ChainName(chain), "address", address, "balances_nft")
}

// ERC20Transfers returns the transfers in and out of address on chain,
// limited to one token contract when contract is set.
func (c *Client) ERC20Transfers(ctx context.Context, chain, address, contract string) (json.RawMessage, error) {
	var q url.Values
	if contract != "" {
		q = url.Values{"contract-address": {contract}}
	}
	return c.get(ctx, "erc20_transfers", q, ChainName(chain), "address", address, "transfers_v2")
}

// GasPrices returns gas price estimates on chain for one of EventTypes.
func (c *Client) GasPrices(ctx context.Context, chain, eventType string) (json.RawMessage, error) {
	return c.get(ctx, "gas_prices", nil, ChainName(chain), "event", eventType, "gas_prices")
}

// Transaction returns a decoded transaction by hash.
func (c *Client) Transaction(ctx context.Context, chain, txHash string) (json.RawMessage, error) {
	return c.get(ctx, "transaction", nil, ChainName(chain), "transaction_v2", txHash)
}

// HistoricalPrices returns daily USD prices of a token contract. from and
// to are optional YYYY-MM-DD bounds.
func (c *Client) HistoricalPrices(ctx context.Context, chain, contract, from, to string) (json.RawMessage, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	return c.get(ctx, "historical_prices", q, "pricing", "historical_by_addresses_v2", ChainName(chain), "USD", contract)
}

// BitcoinHDBalances returns balances of each active child address derived
// from an extended public key.
func (c *Client) BitcoinHDBalances(ctx context.Context, xpub string) (json.RawMessage, error) {
	return c.get(ctx, "btc_hd_balances", nil, "btc-mainnet", "address", xpub, "hd_wallets")
}
