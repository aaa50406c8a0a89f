// Package signer turns a resolved credential into something that can
// execute aggregator instructions on one chain. The set of adapters is
// closed: EVM chains sign and broadcast themselves, ed25519 chains sign
// the vendor's payload and hand it back for relay.
package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/DogukanGun/XReplyAgent/internal/aggregator"
	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/evm"
	"github.com/DogukanGun/XReplyAgent/internal/identity"
)

var (
	ErrInvalidKey         = errors.New("signer: invalid private key")
	ErrInvalidInstruction = errors.New("signer: invalid instruction")
)

// Adapter executes instructions for one account on one chain.
type Adapter interface {
	Address() string
	Execute(ctx context.Context, ins aggregator.Instruction) (string, error)
	Close()
}

// Relayer broadcasts signed ed25519 payloads.
type Relayer interface {
	Submit(ctx context.Context, s aggregator.Signed) (string, error)
}

// WalletDialer opens an EVM wallet for a chain. *evm.Dialer satisfies it.
type WalletDialer interface {
	Wallet(ctx context.Context, chain chains.Chain, key string) (*evm.Wallet, error)
}

// Factory builds adapters from normalized credentials.
type Factory struct {
	Wallets WalletDialer
	Relay   Relayer
	// Confirm bounds how long EVM adapters wait for a receipt. Zero
	// returns as soon as the transaction is accepted by the node.
	Confirm time.Duration
}

// For returns the adapter for chain signing with key.
func (f *Factory) For(ctx context.Context, chain chains.Chain, key string) (Adapter, error) {
	switch chain.Family {
	case chains.FamilyEVM:
		if f.Wallets == nil {
			return nil, fmt.Errorf("signer: no rpc dialer for %s", chain.Slug)
		}
		w, err := f.Wallets.Wallet(ctx, chain, key)
		if err != nil {
			return nil, err
		}
		return &EVMAdapter{Wallet: w, Confirm: f.Confirm}, nil
	case chains.FamilySolana:
		priv, err := ParseSolanaKey(key)
		if err != nil {
			return nil, err
		}
		return NewEd25519(priv, chains.FamilySolana, f.Relay), nil
	case chains.FamilyAptos:
		priv, err := ParseAptosKey(key)
		if err != nil {
			return nil, err
		}
		return NewEd25519(priv, chains.FamilyAptos, f.Relay), nil
	}
	return nil, fmt.Errorf("signer: unsupported family %q", chain.Family)
}

// EVMAdapter signs and broadcasts instructions with a go-ethereum wallet.
type EVMAdapter struct {
	Wallet  *evm.Wallet
	Confirm time.Duration
}

func (a *EVMAdapter) Address() string { return a.Wallet.Address() }
func (a *EVMAdapter) Close()          { a.Wallet.Close() }

func (a *EVMAdapter) Execute(ctx context.Context, ins aggregator.Instruction) (string, error) {
	to, err := evm.ParseAddress(ins.To)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	data, err := evm.ParseData(ins.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	value, err := ParseValue(ins.Value)
	if err != nil {
		return "", err
	}

	res, err := a.Wallet.SendTransaction(ctx, evm.TxRequest{To: to, Data: data, Value: value})
	if err != nil {
		return "", err
	}
	if a.Confirm > 0 {
		if _, err := a.Wallet.WaitForConfirmation(ctx, res, a.Confirm); err != nil {
			return res.TxHash, err
		}
	}
	return res.TxHash, nil
}

// ParseValue reads a wei amount given in decimal or 0x hex. Empty means zero.
func ParseValue(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: value %q", ErrInvalidInstruction, s)
	}
	return v, nil
}

// Ed25519Adapter signs the vendor's serialized message and relays it.
type Ed25519Adapter struct {
	key     ed25519.PrivateKey
	family  chains.Family
	address string
	relay   Relayer
}

// NewEd25519 binds key to family; the family decides address and
// signature encodings.
func NewEd25519(key ed25519.PrivateKey, family chains.Family, relay Relayer) *Ed25519Adapter {
	pub := key.Public().(ed25519.PublicKey)
	addr := base58.Encode(pub)
	if family == chains.FamilyAptos {
		addr = identity.AptosAddress(pub)
	}
	return &Ed25519Adapter{key: key, family: family, address: addr, relay: relay}
}

func (a *Ed25519Adapter) Address() string { return a.address }
func (a *Ed25519Adapter) Close()          {}

func (a *Ed25519Adapter) Execute(ctx context.Context, ins aggregator.Instruction) (string, error) {
	msg, err := hex.DecodeString(strings.TrimPrefix(ins.Message, "0x"))
	if err != nil || len(msg) == 0 {
		return "", fmt.Errorf("%w: message must be non-empty hex", ErrInvalidInstruction)
	}
	if a.relay == nil {
		return "", errors.New("signer: no relay configured")
	}

	sig := ed25519.Sign(a.key, msg)
	pub := a.key.Public().(ed25519.PublicKey)
	signed := aggregator.Signed{Network: ins.Network, Message: ins.Message}
	if a.family == chains.FamilySolana {
		signed.Signature = base58.Encode(sig)
		signed.PublicKey = base58.Encode(pub)
	} else {
		signed.Signature = "0x" + hex.EncodeToString(sig)
		signed.PublicKey = "0x" + hex.EncodeToString(pub)
	}
	return a.relay.Submit(ctx, signed)
}

// ParseSolanaKey accepts a base58 64-byte keypair or 32-byte seed.
func ParseSolanaKey(s string) (ed25519.PrivateKey, error) {
	raw, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return fromBytes(raw)
}

// ParseAptosKey accepts a hex 32-byte seed or 64-byte key, with or without 0x.
func ParseAptosKey(s string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return fromBytes(raw)
}

func fromBytes(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(raw))
}
