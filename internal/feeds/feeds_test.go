package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/evm"
	"github.com/DogukanGun/XReplyAgent/internal/retry"
)

func hermes(t *testing.T, h http.HandlerFunc) *Pyth {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	p := NewPyth(ts.URL + "/")
	p.retry = retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}
	return p
}

func TestPyth_Prices(t *testing.T) {
	p := hermes(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/updates/price/latest", r.URL.Path)
		assert.Equal(t, []string{PythFeeds["ETH/USD"], PythFeeds["BTC/USD"]}, r.URL.Query()["ids[]"])
		_ = json.NewEncoder(w).Encode(map[string]any{"parsed": []map[string]any{
			{"id": PythFeeds["BTC/USD"], "price": map[string]any{"price": "6712345000000", "conf": "150000000", "expo": -8, "publish_time": 1700000000}},
			{"id": PythFeeds["ETH/USD"], "price": map[string]any{"price": "250012", "conf": "3", "expo": -2, "publish_time": 1700000001}},
		}})
	})

	prices, err := p.Prices(context.Background(), "eth/usd", "0x"+PythFeeds["BTC/USD"])
	require.NoError(t, err)
	require.Len(t, prices, 2)

	assert.Equal(t, "ETH/USD", prices[0].Symbol)
	assert.Equal(t, "2500.12", prices[0].Price)
	assert.Equal(t, "0.03", prices[0].Confidence)
	assert.Equal(t, "BTC/USD", prices[1].Symbol, "raw ids resolve back to their symbol")
	assert.Equal(t, "67123.45", prices[1].Price)
	assert.Equal(t, int64(1700000000), prices[1].PublishedAt.Unix())
	assert.Equal(t, "pyth", prices[1].Source)
}

func TestPyth_UnknownFeed(t *testing.T) {
	p := NewPyth("http://unused")
	_, err := p.Prices(context.Background(), "DOGE/EUR")
	assert.ErrorIs(t, err, ErrUnknownFeed)
	_, err = p.Prices(context.Background())
	assert.ErrorIs(t, err, ErrUnknownFeed)
}

func TestPyth_MissingFeedInResponse(t *testing.T) {
	p := hermes(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"parsed":[]}`))
	})
	_, err := p.Prices(context.Background(), "SOL/USD")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestPyth_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	p := hermes(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := p.Prices(context.Background(), "SOL/USD")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestScaled(t *testing.T) {
	tests := []struct {
		mantissa string
		expo     int
		want     string
	}{
		{"12345", -2, "123.45"},
		{"5", -3, "0.005"},
		{"100", -2, "1"},
		{"7", 2, "700"},
	}
	for _, tt := range tests {
		got, err := scaled(tt.mantissa, tt.expo)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := scaled("x", 0)
	assert.Error(t, err)
}

// aggregatorNode answers decimals and latestRoundData. Methods it does not
// override panic through the nil embedded interface.
type aggregatorNode struct {
	evm.Client
	decimals uint8
	answer   *big.Int
	empty    bool
	closed   bool
}

func (n *aggregatorNode) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if n.empty {
		return nil, nil
	}
	switch {
	case string(msg.Data[:4]) == string(aggregatorV3.Methods["decimals"].ID):
		return aggregatorV3.Methods["decimals"].Outputs.Pack(n.decimals)
	case string(msg.Data[:4]) == string(aggregatorV3.Methods["latestRoundData"].ID):
		return aggregatorV3.Methods["latestRoundData"].Outputs.Pack(
			big.NewInt(42), n.answer, big.NewInt(1700000000), big.NewInt(1700000050), big.NewInt(42),
		)
	}
	return nil, errors.New("unexpected call")
}

func (n *aggregatorNode) Close() { n.closed = true }

type nodeDialer struct{ node *aggregatorNode }

func (d nodeDialer) Dial(context.Context, chains.Chain) (evm.Client, error) { return d.node, nil }

func TestChainlink_Latest(t *testing.T) {
	node := &aggregatorNode{decimals: 8, answer: big.NewInt(312345678900)}
	eth, err := chains.Lookup("ethereum")
	require.NoError(t, err)

	r, err := NewChainlink(nodeDialer{node}).Latest(context.Background(), eth, "eth/usd")
	require.NoError(t, err)

	assert.Equal(t, "3123.456789", r.Price.Price)
	assert.Equal(t, "ETH/USD", r.Symbol)
	assert.Equal(t, "42", r.RoundID)
	assert.Equal(t, uint8(8), r.Decimals)
	assert.Equal(t, int64(1700000050), r.PublishedAt.Unix())
	assert.Equal(t, "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", r.Feed)
	assert.True(t, node.closed)
}

func TestChainlink_ByAddress(t *testing.T) {
	node := &aggregatorNode{decimals: 18, answer: big.NewInt(5e17)}
	bsc, err := chains.Lookup("bsc")
	require.NoError(t, err)

	r, err := NewChainlink(nodeDialer{node}).Latest(context.Background(), bsc, "0x0000000000000000000000000000000000000abc")
	require.NoError(t, err)
	assert.Equal(t, "0.5", r.Price.Price)
	assert.Empty(t, r.Symbol)
}

func TestChainlink_Errors(t *testing.T) {
	eth, err := chains.Lookup("ethereum")
	require.NoError(t, err)

	_, err = NewChainlink(nodeDialer{&aggregatorNode{}}).Latest(context.Background(), eth, "DOGE/USD")
	assert.ErrorIs(t, err, ErrUnknownFeed)

	_, err = NewChainlink(nodeDialer{&aggregatorNode{empty: true}}).Latest(context.Background(), eth, "ETH/USD")
	assert.ErrorIs(t, err, ErrUnknownFeed)

	_, err = NewChainlink(nodeDialer{&aggregatorNode{decimals: 8, answer: big.NewInt(0)}}).Latest(context.Background(), eth, "ETH/USD")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestChainlinkPairs(t *testing.T) {
	assert.Equal(t, []string{"BNB/USD", "BTC/USD", "ETH/USD"}, ChainlinkPairs("bsc"))
	assert.Empty(t, ChainlinkPairs("solana"))
}
