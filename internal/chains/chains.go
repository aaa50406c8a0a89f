// Package chains describes the closed set of chains the tool servers can
// operate on, grouped into families that share key and address encodings.
package chains

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Family groups chains that share a key scheme and address encoding.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
	FamilyAptos  Family = "aptos"
)

// Families lists every supported family.
var Families = []Family{FamilyEVM, FamilySolana, FamilyAptos}

// ParseFamily validates a family name.
func ParseFamily(s string) (Family, error) {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FamilyEVM, FamilySolana, FamilyAptos:
		return f, nil
	}
	return "", fmt.Errorf("unknown chain family %q", s)
}

// ErrUnknownChain is returned by Lookup for slugs outside the supported set.
var ErrUnknownChain = errors.New("unknown chain")

// Chain is one network a tool can target.
type Chain struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Family  Family `json:"family"`
	ChainID int64  `json:"chain_id,omitempty"` // EVM only

	// NetworkID identifies the chain to the swap aggregator.
	NetworkID int `json:"network_id,omitempty"`

	NativeSymbol   string `json:"native_symbol"`
	NativeDecimals int    `json:"native_decimals"`
	// NativeToken is the aggregator's address for the native asset.
	NativeToken string `json:"native_token"`
}

// IsEVM reports whether the chain uses secp256k1 keys and EVM transactions.
func (c Chain) IsEVM() bool { return c.Family == FamilyEVM }

// Swappable reports whether the aggregator can route on this chain.
func (c Chain) Swappable() bool { return c.NetworkID != 0 }

const evmNative = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

var registry = map[string]Chain{
	"solana":        {Slug: "solana", Name: "Solana", Family: FamilySolana, NetworkID: 1, NativeSymbol: "SOL", NativeDecimals: 9, NativeToken: "So11111111111111111111111111111111111111112"},
	"aptos":         {Slug: "aptos", Name: "Aptos", Family: FamilyAptos, NetworkID: 2, NativeSymbol: "APT", NativeDecimals: 8, NativeToken: "0x1::aptos_coin::AptosCoin"},
	"polygon":       {Slug: "polygon", Name: "Polygon", Family: FamilyEVM, ChainID: 137, NetworkID: 3, NativeSymbol: "POL", NativeDecimals: 18, NativeToken: evmNative},
	"bsc":           {Slug: "bsc", Name: "BNB Smart Chain", Family: FamilyEVM, ChainID: 56, NetworkID: 4, NativeSymbol: "BNB", NativeDecimals: 18, NativeToken: evmNative},
	"ethereum":      {Slug: "ethereum", Name: "Ethereum", Family: FamilyEVM, ChainID: 1, NetworkID: 6, NativeSymbol: "ETH", NativeDecimals: 18, NativeToken: evmNative},
	"base":          {Slug: "base", Name: "Base", Family: FamilyEVM, ChainID: 8453, NetworkID: 7, NativeSymbol: "ETH", NativeDecimals: 18, NativeToken: evmNative},
	"avalanche":     {Slug: "avalanche", Name: "Avalanche C-Chain", Family: FamilyEVM, ChainID: 43114, NetworkID: 10, NativeSymbol: "AVAX", NativeDecimals: 18, NativeToken: evmNative},
	"arbitrum":      {Slug: "arbitrum", Name: "Arbitrum One", Family: FamilyEVM, ChainID: 42161, NetworkID: 11, NativeSymbol: "ETH", NativeDecimals: 18, NativeToken: evmNative},
	"opbnb":         {Slug: "opbnb", Name: "opBNB", Family: FamilyEVM, ChainID: 204, NativeSymbol: "BNB", NativeDecimals: 18, NativeToken: evmNative},
	"opbnb-testnet": {Slug: "opbnb-testnet", Name: "opBNB Testnet", Family: FamilyEVM, ChainID: 5611, NativeSymbol: "tBNB", NativeDecimals: 18, NativeToken: evmNative},
}

// Lookup returns the chain for a slug. EVM chains may also be referenced
// by their decimal chain id ("56").
func Lookup(slug string) (Chain, error) {
	key := strings.ToLower(strings.TrimSpace(slug))
	if c, ok := registry[key]; ok {
		return c, nil
	}
	for _, c := range registry {
		if c.ChainID != 0 && fmt.Sprint(c.ChainID) == key {
			return c, nil
		}
	}
	return Chain{}, fmt.Errorf("%w: %q", ErrUnknownChain, slug)
}

// IsKnown reports whether Lookup would succeed.
func IsKnown(slug string) bool {
	_, err := Lookup(slug)
	return err == nil
}

// All returns every supported chain sorted by slug.
func All() []Chain {
	out := make([]Chain, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Slugs returns the sorted slugs of every supported chain.
func Slugs() []string {
	all := All()
	out := make([]string, len(all))
	for i, c := range all {
		out[i] = c.Slug
	}
	return out
}

// SwapChains returns the chains the aggregator can route on.
func SwapChains() []Chain {
	var out []Chain
	for _, c := range All() {
		if c.Swappable() {
			out = append(out, c)
		}
	}
	return out
}
