package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DogukanGun/XReplyAgent/internal/aggregator"
	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/evm"
	"github.com/DogukanGun/XReplyAgent/internal/identity"
)

const evmKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type node struct {
	sent   []*types.Transaction
	closed bool
}

func (n *node) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 1, nil
}

func (n *node) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (n *node) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(2)}, nil
}

func (n *node) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 90_000, nil
}

func (n *node) SendTransaction(_ context.Context, tx *types.Transaction) error {
	n.sent = append(n.sent, tx)
	return nil
}

func (n *node) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (n *node) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return new(big.Int), nil
}

func (n *node) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (n *node) Close() { n.closed = true }

type dialer struct {
	node *node
	err  error
}

func (d *dialer) Wallet(_ context.Context, chain chains.Chain, key string) (*evm.Wallet, error) {
	if d.err != nil {
		return nil, d.err
	}
	return evm.New(key, chain.ChainID, d.node)
}

type relay struct {
	got  []aggregator.Signed
	hash string
}

func (r *relay) Submit(_ context.Context, s aggregator.Signed) (string, error) {
	r.got = append(r.got, s)
	return r.hash, nil
}

func mustChain(t *testing.T, slug string) chains.Chain {
	t.Helper()
	c, err := chains.Lookup(slug)
	require.NoError(t, err)
	return c
}

func TestFactory_EVM(t *testing.T) {
	n := &node{}
	f := &Factory{Wallets: &dialer{node: n}}

	a, err := f.For(context.Background(), mustChain(t, "polygon"), evmKey)
	require.NoError(t, err)
	defer a.Close()

	hash, err := a.Execute(context.Background(), aggregator.Instruction{
		Network: 3,
		To:      "0x000000000000000000000000000000000000dEaD",
		Data:    "0xa9059cbb",
		Value:   "0x10",
	})
	require.NoError(t, err)
	require.Len(t, n.sent, 1)

	tx := n.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, big.NewInt(137), tx.ChainId())
	assert.Equal(t, big.NewInt(16), tx.Value())
	assert.Equal(t, uint64(90_000), tx.Gas())
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, tx.Data())

	a.Close()
	assert.True(t, n.closed)
}

func TestFactory_EVMDialError(t *testing.T) {
	f := &Factory{Wallets: &dialer{err: evm.ErrNoRPC}}
	_, err := f.For(context.Background(), mustChain(t, "base"), evmKey)
	assert.ErrorIs(t, err, evm.ErrNoRPC)

	_, err = (&Factory{}).For(context.Background(), mustChain(t, "base"), evmKey)
	assert.Error(t, err)
}

func TestEVMAdapter_RejectsBadInstruction(t *testing.T) {
	w, err := evm.New(evmKey, 1, &node{})
	require.NoError(t, err)
	a := &EVMAdapter{Wallet: w}

	tests := []aggregator.Instruction{
		{To: "not-an-address"},
		{To: "0x000000000000000000000000000000000000dEaD", Data: "0xzz"},
		{To: "0x000000000000000000000000000000000000dEaD", Value: "-5"},
	}
	for _, ins := range tests {
		_, err := a.Execute(context.Background(), ins)
		assert.ErrorIs(t, err, ErrInvalidInstruction, "instruction %+v", ins)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"", 0, true},
		{"0x", 0, true},
		{"1000", 1000, true},
		{"0xff", 255, true},
		{"abc", 0, false},
		{"-1", 0, false},
	}
	for _, tt := range tests {
		v, err := ParseValue(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, v.Int64(), tt.in)
	}
}

func TestEd25519_Solana(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	r := &relay{hash: "5sig"}

	a, err := (&Factory{Relay: r}).For(context.Background(), mustChain(t, "solana"), base58.Encode(priv))
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pub), a.Address())

	msg := []byte("serialized transaction")
	hash, err := a.Execute(context.Background(), aggregator.Instruction{Network: 1, Message: hex.EncodeToString(msg)})
	require.NoError(t, err)
	assert.Equal(t, "5sig", hash)

	require.Len(t, r.got, 1)
	sig, err := base58.Decode(r.got[0].Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, msg, sig))
	assert.Equal(t, 1, r.got[0].Network)
}

func TestEd25519_Aptos(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	r := &relay{hash: "0xaptos"}

	a, err := (&Factory{Relay: r}).For(context.Background(), mustChain(t, "aptos"), "0x"+hex.EncodeToString(priv.Seed()))
	require.NoError(t, err)
	assert.Equal(t, identity.AptosAddress(pub), a.Address())

	msg := []byte{0xb5, 0xe9, 0x7d, 0xb0}
	_, err = a.Execute(context.Background(), aggregator.Instruction{Network: 2, Message: "0xb5e97db0"})
	require.NoError(t, err)

	require.Len(t, r.got, 1)
	assert.True(t, strings.HasPrefix(r.got[0].Signature, "0x"))
	sig, err := hex.DecodeString(strings.TrimPrefix(r.got[0].Signature, "0x"))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, msg, sig))
	assert.Equal(t, "0x"+hex.EncodeToString(pub), r.got[0].PublicKey)
}

func TestEd25519_RejectsEmptyMessage(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	a := NewEd25519(priv, chains.FamilySolana, &relay{})

	_, err = a.Execute(context.Background(), aggregator.Instruction{})
	assert.ErrorIs(t, err, ErrInvalidInstruction)
	_, err = a.Execute(context.Background(), aggregator.Instruction{Message: "zz"})
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestParseKeys(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	k, err := ParseSolanaKey(base58.Encode(priv.Seed()))
	require.NoError(t, err)
	assert.True(t, priv.Equal(k))

	k, err = ParseAptosKey(hex.EncodeToString(priv))
	require.NoError(t, err)
	assert.True(t, priv.Equal(k))

	_, err = ParseSolanaKey("0OIl")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParseAptosKey("0xabcd")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParseAptosKey("nothex")
	assert.True(t, errors.Is(err, ErrInvalidKey))
}
