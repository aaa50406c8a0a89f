package feeds

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/evm"
	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/units"
)

const aggregatorV3ABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

var aggregatorV3 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABI))
	if err != nil {
		panic(fmt.Sprintf("parse aggregator abi: %v", err))
	}
	return parsed
}()

// ChainlinkFeeds maps chain slug and pair to the aggregator proxy address.
var ChainlinkFeeds = map[string]map[string]string{
	"ethereum": {
		"ETH/USD":  "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
		"BTC/USD":  "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c",
		"LINK/USD": "0x2c1d072e956AFFC0D435Cb7AC38EF18d24d9127c",
		"USDC/USD": "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6",
	},
	"bsc": {
		"BNB/USD": "0x0567F2323251f0Aab15c8dFb1967E4e8A7D42aeE",
		"BTC/USD": "0x264990fbd0A4796A3E3d8E37C4d5F87a3aCa5Ebf",
		"ETH/USD": "0x9ef1B8c0E4F7dc8bF5719Ea496883DC6401d5b2e",
	},
}

// ChainlinkPairs returns the known pairs on chain, sorted.
func ChainlinkPairs(chain string) []string {
	var out []string
	for pair := range ChainlinkFeeds[chain] {
		out = append(out, pair)
	}
	sort.Strings(out)
	return out
}

// Dialer opens an RPC client for a chain. *evm.Dialer satisfies it.
type Dialer interface {
	Dial(ctx context.Context, chain chains.Chain) (evm.Client, error)
}

// Round is the latest answer of an aggregator.
type Round struct {
	Price
	Chain    string `json:"chain"`
	Feed     string `json:"feed_address"`
	RoundID  string `json:"round_id"`
	Decimals uint8  `json:"decimals"`
}

// Chainlink reads aggregator proxies over JSON-RPC.
type Chainlink struct {
	dialer Dialer
}

func NewChainlink(d Dialer) *Chainlink {
	return &Chainlink{dialer: d}
}

// Latest reads the latest round for pair (or a proxy address) on chain.
func (c *Chainlink) Latest(ctx context.Context, chain chains.Chain, pair string) (r *Round, err error) {
	defer func() {
		metrics.VendorCallsTotal.WithLabelValues("chainlink_price", metrics.Outcome(err)).Inc()
	}()

	symbol := strings.ToUpper(strings.TrimSpace(pair))
	addr, ok := ChainlinkFeeds[chain.Slug][symbol]
	if !ok {
		if !common.IsHexAddress(pair) {
			return nil, fmt.Errorf("%w: %q on %s", ErrUnknownFeed, pair, chain.Slug)
		}
		addr, symbol = pair, ""
	}
	feed := common.HexToAddress(addr)

	client, err := c.dialer.Dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	out, err := call(ctx, client, feed, "decimals")
	if err != nil {
		return nil, err
	}
	decimals := *abi.ConvertType(out[0], new(uint8)).(*uint8)

	out, err = call(ctx, client, feed, "latestRoundData")
	if err != nil {
		return nil, err
	}
	roundID := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	answer := abi.ConvertType(out[1], new(big.Int)).(*big.Int)
	updatedAt := abi.ConvertType(out[3], new(big.Int)).(*big.Int)
	if answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: feed %s answered %s", ErrNoPrice, feed.Hex(), answer)
	}

	return &Round{
		Price: Price{
			Symbol:      symbol,
			ID:          feed.Hex(),
			Price:       units.Format(answer, int(decimals)),
			Source:      "chainlink",
			PublishedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
		},
		Chain:    chain.Slug,
		Feed:     feed.Hex(),
		RoundID:  roundID.String(),
		Decimals: decimals,
	}, nil
}

func call(ctx context.Context, client evm.Client, to common.Address, method string) ([]any, error) {
	data, err := aggregatorV3.Pack(method)
	if err != nil {
		return nil, err
	}
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s is not a price feed", ErrUnknownFeed, to.Hex())
	}
	out, err := aggregatorV3.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return out, nil
}
