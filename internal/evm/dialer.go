package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/circuitbreaker"
)

// ErrNoRPC is returned when no endpoint is configured for a chain.
var ErrNoRPC = errors.New("evm: no rpc endpoint configured")

// Dialer opens RPC clients per chain. Every call made through a dialed
// client is counted against that chain's circuit breaker, so a dead
// endpoint fails fast instead of hanging each invocation.
type Dialer struct {
	urls    map[string]string
	breaker *circuitbreaker.Breaker
	dial    func(ctx context.Context, url string) (Client, error)
}

// NewDialer returns a dialer for the given slug -> RPC URL map.
func NewDialer(urls map[string]string, breaker *circuitbreaker.Breaker) *Dialer {
	return &Dialer{
		urls:    urls,
		breaker: breaker,
		dial: func(ctx context.Context, url string) (Client, error) {
			return ethclient.DialContext(ctx, url)
		},
	}
}

// Dial connects to the chain's endpoint.
func (d *Dialer) Dial(ctx context.Context, chain chains.Chain) (Client, error) {
	if !chain.IsEVM() {
		return nil, fmt.Errorf("evm: %s is not an EVM chain", chain.Slug)
	}
	url := d.urls[chain.Slug]
	if url == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoRPC, chain.Slug)
	}

	var c Client
	err := d.breaker.Execute(chain.Slug, func() error {
		var err error
		c, err = d.dial(ctx, url)
		return err
	}, callerError)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", chain.Slug, err)
	}
	return &guarded{Client: c, key: chain.Slug, breaker: d.breaker}, nil
}

// Wallet dials the chain and binds key to it.
func (d *Dialer) Wallet(ctx context.Context, chain chains.Chain, key string) (*Wallet, error) {
	c, err := d.Dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	w, err := New(key, chain.ChainID, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return w, nil
}

// callerError reports errors that say nothing about endpoint health:
// cancellations, and errors the node itself returned (reverts, nonce
// problems, insufficient funds).
func callerError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ethereum.NotFound) {
		return true
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

type guarded struct {
	Client
	key     string
	breaker *circuitbreaker.Breaker
}

func (g *guarded) do(fn func() error) error {
	return g.breaker.Execute(g.key, fn, callerError)
}

func (g *guarded) PendingNonceAt(ctx context.Context, account common.Address) (n uint64, err error) {
	err = g.do(func() error { n, err = g.Client.PendingNonceAt(ctx, account); return err })
	return n, err
}

func (g *guarded) SuggestGasTipCap(ctx context.Context) (tip *big.Int, err error) {
	err = g.do(func() error { tip, err = g.Client.SuggestGasTipCap(ctx); return err })
	return tip, err
}

func (g *guarded) HeaderByNumber(ctx context.Context, number *big.Int) (h *types.Header, err error) {
	err = g.do(func() error { h, err = g.Client.HeaderByNumber(ctx, number); return err })
	return h, err
}

func (g *guarded) EstimateGas(ctx context.Context, call ethereum.CallMsg) (gas uint64, err error) {
	err = g.do(func() error { gas, err = g.Client.EstimateGas(ctx, call); return err })
	return gas, err
}

func (g *guarded) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return g.do(func() error { return g.Client.SendTransaction(ctx, tx) })
}

func (g *guarded) TransactionReceipt(ctx context.Context, txHash common.Hash) (r *types.Receipt, err error) {
	err = g.do(func() error { r, err = g.Client.TransactionReceipt(ctx, txHash); return err })
	return r, err
}

func (g *guarded) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (b *big.Int, err error) {
	err = g.do(func() error { b, err = g.Client.BalanceAt(ctx, account, blockNumber); return err })
	return b, err
}

func (g *guarded) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) (out []byte, err error) {
	err = g.do(func() error { out, err = g.Client.CallContract(ctx, call, blockNumber); return err })
	return out, err
}
