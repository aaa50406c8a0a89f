// Package feeds reads spot prices from Pyth (Hermes REST API) and
// Chainlink (on-chain aggregator proxies).
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/retry"
	"github.com/DogukanGun/XReplyAgent/internal/units"
)

var (
	ErrUnknownFeed = errors.New("feeds: unknown price feed")
	ErrNoPrice     = errors.New("feeds: no price returned")
)

// PythFeeds maps pair symbols to Pyth price feed ids.
var PythFeeds = map[string]string{
	"BTC/USD":  "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	"ETH/USD":  "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	"SOL/USD":  "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
	"USDC/USD": "eaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
	"USDT/USD": "2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b",
	"LINK/USD": "8ac0c70fff57e9aefdf5edf44b51d62c2d433653cbb2cf5cc06bb115af04d221",
	"ADA/USD":  "2a01deaec9e51a579277b34b122399984d0bbf57e2458a7e42fecd2829867a0d",
	"FRAX/USD": "c96458d393fe9deb7a7d63a0ac41e2898a67a7750dbd166673279e06c868df0a",
}

// PythSymbols returns the known pair symbols, sorted.
func PythSymbols() []string {
	out := make([]string, 0, len(PythFeeds))
	for s := range PythFeeds {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Price is one feed reading.
type Price struct {
	Symbol      string    `json:"symbol,omitempty"`
	ID          string    `json:"id"`
	Price       string    `json:"price"`
	Confidence  string    `json:"confidence,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Pyth reads the latest prices from a Hermes endpoint.
type Pyth struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Policy
}

func NewPyth(baseURL string) *Pyth {
	return &Pyth{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.DefaultPolicy,
	}
}

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int    `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesResponse struct {
	Parsed []struct {
		ID    string      `json:"id"`
		Price hermesPrice `json:"price"`
	} `json:"parsed"`
}

// feedID accepts a pair symbol ("eth/usd") or a raw 32-byte hex feed id.
func feedID(s string) (id, symbol string, err error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if id, ok := PythFeeds[up]; ok {
		return id, up, nil
	}
	raw := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if len(raw) == 64 && strings.Trim(raw, "0123456789abcdef") == "" {
		for sym, known := range PythFeeds {
			if known == raw {
				return raw, sym, nil
			}
		}
		return raw, "", nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownFeed, s)
}

// Prices fetches the latest reading for each symbol or feed id, in order.
func (p *Pyth) Prices(ctx context.Context, feeds ...string) ([]Price, error) {
	if len(feeds) == 0 {
		return nil, fmt.Errorf("%w: no feeds requested", ErrUnknownFeed)
	}
	ids := make([]string, len(feeds))
	symbols := make(map[string]string, len(feeds))
	q := url.Values{}
	for i, f := range feeds {
		id, sym, err := feedID(f)
		if err != nil {
			return nil, err
		}
		ids[i] = id
		symbols[id] = sym
		q.Add("ids[]", id)
	}

	var resp hermesResponse
	err := p.retry.Do(ctx, func() error {
		return p.get(ctx, "/v2/updates/price/latest", q, &resp)
	})
	metrics.VendorCallsTotal.WithLabelValues("pyth_price", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Price, len(resp.Parsed))
	for _, item := range resp.Parsed {
		id := strings.ToLower(strings.TrimPrefix(item.ID, "0x"))
		price, err := scaled(item.Price.Price, item.Price.Expo)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", id, err)
		}
		conf, _ := scaled(item.Price.Conf, item.Price.Expo)
		byID[id] = Price{
			Symbol:      symbols[id],
			ID:          "0x" + id,
			Price:       price,
			Confidence:  conf,
			Source:      "pyth",
			PublishedAt: time.Unix(item.Price.PublishTime, 0).UTC(),
		}
	}

	out := make([]Price, 0, len(ids))
	for _, id := range ids {
		pr, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w for feed 0x%s", ErrNoPrice, id)
		}
		out = append(out, pr)
	}
	return out, nil
}

func (p *Pyth) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("hermes error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if retry.RetryableStatus(resp.StatusCode) {
			return err
		}
		return retry.Permanent(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// scaled renders an integer mantissa with a power-of-ten exponent as a
// decimal string.
func scaled(mantissa string, expo int) (string, error) {
	v, ok := new(big.Int).SetString(mantissa, 10)
	if !ok {
		return "", fmt.Errorf("invalid price %q", mantissa)
	}
	if expo >= 0 {
		return v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(expo)), nil)).String(), nil
	}
	return units.Format(v, -expo), nil
}
