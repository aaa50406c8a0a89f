package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/credentials"
	"github.com/DogukanGun/XReplyAgent/internal/evm"
	"github.com/DogukanGun/XReplyAgent/internal/feeds"
	"github.com/DogukanGun/XReplyAgent/internal/identity"
	"github.com/DogukanGun/XReplyAgent/internal/logging"
	"github.com/DogukanGun/XReplyAgent/internal/signer"
	"github.com/DogukanGun/XReplyAgent/internal/swap"
	"github.com/DogukanGun/XReplyAgent/internal/units"
)

// ErrNotEVM is returned by the wallet tools for non-EVM chains.
var ErrNotEVM = errors.New("only EVM chains are supported by this tool")

// Provisioner creates wallets. *identity.Provisioner satisfies it.
type Provisioner interface {
	CreateOrGet(ctx context.Context, externalID string) ([]*identity.Record, bool, error)
}

// WalletOpener binds a key to an EVM chain. *evm.Dialer satisfies it.
type WalletOpener interface {
	Wallet(ctx context.Context, chain chains.Chain, key string) (*evm.Wallet, error)
}

// Swapper runs aggregator operations. *swap.Service satisfies it.
type Swapper interface {
	Execute(ctx context.Context, op swap.Operation, req swap.Request) (*swap.Result, error)
}

// Asker forwards questions to the AI agent. *agent.Proxy satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// PriceReader reads Pyth prices. *feeds.Pyth satisfies it.
type PriceReader interface {
	Prices(ctx context.Context, ids ...string) ([]feeds.Price, error)
}

// RoundReader reads Chainlink rounds. *feeds.Chainlink satisfies it.
type RoundReader interface {
	Latest(ctx context.Context, chain chains.Chain, pair string) (*feeds.Round, error)
}

// WalletData reads indexed wallet data. *goldrush.Client satisfies it.
type WalletData interface {
	MultichainBalances(ctx context.Context, address string) (json.RawMessage, error)
	MultichainTransactions(ctx context.Context, address string) (json.RawMessage, error)
	Activity(ctx context.Context, address string) (json.RawMessage, error)
	TokenBalances(ctx context.Context, chain, address string) (json.RawMessage, error)
	NativeBalance(ctx context.Context, chain, address string) (json.RawMessage, error)
	NFTs(ctx context.Context, chain, address string) (json.RawMessage, error)
	ERC20Transfers(ctx context.Context, chain, address, contract string) (json.RawMessage, error)
	GasPrices(ctx context.Context, chain, eventType string) (json.RawMessage, error)
	Transaction(ctx context.Context, chain, txHash string) (json.RawMessage, error)
	HistoricalPrices(ctx context.Context, chain, contract, from, to string) (json.RawMessage, error)
	BitcoinHDBalances(ctx context.Context, xpub string) (json.RawMessage, error)
}

// Deps are the collaborators behind the tools. A nil collaborator leaves
// its toolset unregistered.
type Deps struct {
	Resolver    *credentials.Resolver
	Provisioner Provisioner
	Wallets     WalletOpener
	Swaps       Swapper
	Agent       Asker
	Pyth        PriceReader
	Chainlink   RoundReader
	GoldRush    WalletData

	// Confirm bounds the wait for a receipt after a transfer. Zero
	// returns as soon as the transaction is submitted.
	Confirm time.Duration
	// Timeout bounds every tool invocation end to end.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handlers{deps: deps}
}

// --- results ---

type WalletInfo struct {
	Family  chains.Family `json:"family"`
	Address string        `json:"address"`
}

type CreateWalletResult struct {
	TwitterID string       `json:"twitter_id"`
	Created   bool         `json:"created"`
	Wallets   []WalletInfo `json:"wallets"`
}

type BalanceResult struct {
	Address  string `json:"address"`
	Chain    string `json:"chain"`
	Token    string `json:"token,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Balance  string `json:"balance"`
	Raw      string `json:"raw"`
	Decimals int    `json:"decimals"`
}

type TransferResult struct {
	*evm.TxResult
	Chain  string `json:"chain"`
	Amount string `json:"amount"`
	Token  string `json:"token,omitempty"`
}

// --- wallet toolset ---

// CreateWallet provisions the caller's wallets. It is the one tool that
// runs without a stored credential.
func (h *Handlers) CreateWallet(ctx context.Context, p CreateWalletParams) (*CreateWalletResult, error) {
	id := identity.NormalizeExternalID(p.TwitterID)
	if id == "" {
		return nil, &credentials.ResolutionError{Kind: credentials.ErrMissingIdentity, Field: credentials.FieldIdentity}
	}

	recs, created, err := h.deps.Provisioner.CreateOrGet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	out := &CreateWalletResult{TwitterID: id, Created: created}
	for _, rec := range recs {
		addr := rec.PublicKey
		if ft, err := chains.FormatFor(rec.Family); err == nil {
			if norm, err := ft.Address(addr); err == nil {
				addr = norm
			}
		}
		out.Wallets = append(out.Wallets, WalletInfo{Family: rec.Family, Address: addr})
	}
	logging.L(ctx).Info("tool call", "tool", ToolCreateWallet.Name, "external_id", id, "created", created)
	return out, nil
}

// ReadWallet returns the caller's address for a family.
func (h *Handlers) ReadWallet(_ context.Context, p ReadWalletParams, cred credentials.Credential) (*WalletInfo, error) {
	return &WalletInfo{Family: p.Family(), Address: cred.Address}, nil
}

func (h *Handlers) WalletBalance(ctx context.Context, p BalanceParams, cred credentials.Credential) (*BalanceResult, error) {
	chain, w, err := h.open(ctx, p.Chain, cred)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	if p.TokenAddress != "" {
		token, err := evm.ParseAddress(p.TokenAddress)
		if err != nil {
			return nil, err
		}
		bal, dec, err := w.TokenBalance(ctx, token)
		if err != nil {
			return nil, err
		}
		return &BalanceResult{
			Address:  w.Address(),
			Chain:    chain.Slug,
			Token:    token.Hex(),
			Balance:  units.Format(bal, int(dec)),
			Raw:      bal.String(),
			Decimals: int(dec),
		}, nil
	}

	bal, err := w.Balance(ctx)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{
		Address:  w.Address(),
		Chain:    chain.Slug,
		Symbol:   chain.NativeSymbol,
		Balance:  units.Format(bal, chain.NativeDecimals),
		Raw:      bal.String(),
		Decimals: chain.NativeDecimals,
	}, nil
}

func (h *Handlers) SignTransaction(ctx context.Context, p SignParams, cred credentials.Credential) (*evm.TxResult, error) {
	to, err := evm.ParseAddress(p.ToAddress)
	if err != nil {
		return nil, err
	}
	data, err := evm.ParseData(p.Data)
	if err != nil {
		return nil, err
	}
	value, err := signer.ParseValue(p.Value)
	if err != nil {
		return nil, err
	}

	_, w, err := h.open(ctx, p.Chain, cred)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	return w.SendTransaction(ctx, evm.TxRequest{To: to, Data: data, Value: value})
}

func (h *Handlers) TransferAsset(ctx context.Context, p TransferParams, cred credentials.Credential) (*TransferResult, error) {
	to, err := evm.ParseAddress(p.ToAddress)
	if err != nil {
		return nil, err
	}
	chain, w, err := h.open(ctx, p.Chain, cred)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	var res *evm.TxResult
	if p.TokenAddress == "" {
		amount, err := units.ParsePositive(p.Amount, chain.NativeDecimals)
		if err != nil {
			return nil, err
		}
		if res, err = w.Transfer(ctx, to, amount); err != nil {
			return nil, err
		}
	} else {
		token, err := evm.ParseAddress(p.TokenAddress)
		if err != nil {
			return nil, err
		}
		_, dec, err := w.TokenBalance(ctx, token)
		if err != nil {
			return nil, err
		}
		amount, err := units.ParsePositive(p.Amount, int(dec))
		if err != nil {
			return nil, err
		}
		if res, err = w.TransferToken(ctx, token, to, amount); err != nil {
			return nil, err
		}
	}

	if h.deps.Confirm > 0 {
		confirmed, err := w.WaitForConfirmation(ctx, res, h.deps.Confirm)
		if err != nil {
			return nil, fmt.Errorf("transfer %s submitted but not confirmed: %w", res.TxHash, err)
		}
		res = confirmed
	}
	return &TransferResult{TxResult: res, Chain: chain.Slug, Amount: p.Amount, Token: p.TokenAddress}, nil
}

func (h *Handlers) open(ctx context.Context, slug string, cred credentials.Credential) (chains.Chain, *evm.Wallet, error) {
	chain, err := chains.Lookup(slug)
	if err != nil {
		return chains.Chain{}, nil, err
	}
	if !chain.IsEVM() {
		return chains.Chain{}, nil, fmt.Errorf("%w: %s", ErrNotEVM, chain.Slug)
	}
	w, err := h.deps.Wallets.Wallet(ctx, chain, cred.PrivateKey)
	if err != nil {
		return chains.Chain{}, nil, err
	}
	return chain, w, nil
}

// --- swap toolset ---

type SupportedChainsResult struct {
	Chains []chains.Chain `json:"chains"`
}

func (h *Handlers) SupportedChains(context.Context, SupportedChainsParams) (*SupportedChainsResult, error) {
	return &SupportedChainsResult{Chains: chains.SwapChains()}, nil
}

func (h *Handlers) SameChainSwap(ctx context.Context, p SameChainSwapParams, cred credentials.Credential) (*swap.Result, error) {
	chain, err := chains.Lookup(p.Chain)
	if err != nil {
		return nil, err
	}
	amount, err := units.ParsePositive(p.AmountIn, decimalsOr(p.Decimals, chain.NativeDecimals))
	if err != nil {
		return nil, err
	}
	return h.deps.Swaps.Execute(ctx,
		swap.Operation{Kind: swap.KindSameChain, Source: chain, Target: chain},
		swap.Request{
			SourceToken: p.InputToken,
			TargetToken: p.OutputToken,
			Amount:      amount,
			Slippage:    floatOr(p.Slippage, swap.SameChainSlippage),
			SenderKey:   cred.PrivateKey,
			ReceiverKey: cred.PrivateKey,
		})
}

func (h *Handlers) CrossChainSwap(ctx context.Context, p CrossChainSwapParams, pair credentials.Pair) (*swap.Result, error) {
	src, err := chains.Lookup(p.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := chains.Lookup(p.TargetChain)
	if err != nil {
		return nil, err
	}
	amount, err := units.ParsePositive(p.Amount, decimalsOr(p.Decimals, src.NativeDecimals))
	if err != nil {
		return nil, err
	}
	return h.deps.Swaps.Execute(ctx,
		swap.Operation{Kind: swap.KindCrossChain, Source: src, Target: dst},
		swap.Request{
			SourceToken:   p.SourceToken,
			TargetToken:   p.TargetToken,
			Amount:        amount,
			Slippage:      floatOr(p.Slippage, swap.CrossChainSlippage),
			SenderKey:     pair.SenderKey,
			ReceiverKey:   pair.ReceiverKey,
			TargetAddress: p.DestinationAddress,
		})
}

func (h *Handlers) Redeem(ctx context.Context, p RedeemParams, cred credentials.Credential) (*swap.Result, error) {
	src, err := chains.Lookup(p.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := chains.Lookup(p.TargetChain)
	if err != nil {
		return nil, err
	}
	return h.deps.Swaps.Execute(ctx,
		swap.Operation{Kind: swap.KindRedeem, Source: src, Target: dst},
		swap.Request{
			ReceiverKey:   cred.PrivateKey,
			TargetAddress: cred.Address,
			SourceHash:    strings.TrimSpace(p.TxHash),
			BridgeID:      p.BridgeID,
		})
}

func decimalsOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// --- agent toolset ---

type AskResult struct {
	Answer string `json:"answer"`
}

func (h *Handlers) AskAI(ctx context.Context, p AskParams) (*AskResult, error) {
	answer, err := h.deps.Agent.Ask(ctx, p.Question)
	if err != nil {
		return nil, err
	}
	return &AskResult{Answer: answer}, nil
}

// --- feeds toolset ---

type PricesResult struct {
	Prices []feeds.Price `json:"prices"`
}

func (h *Handlers) PythPrice(ctx context.Context, p PythParams) (*PricesResult, error) {
	var ids []string
	for _, s := range strings.Split(p.Symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, s)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("symbols must name at least one feed")
	}
	prices, err := h.deps.Pyth.Prices(ctx, ids...)
	if err != nil {
		return nil, err
	}
	return &PricesResult{Prices: prices}, nil
}

func (h *Handlers) ChainlinkPrice(ctx context.Context, p ChainlinkParams) (*feeds.Round, error) {
	chain, err := chains.Lookup(p.Chain)
	if err != nil {
		return nil, err
	}
	if !chain.IsEVM() {
		return nil, fmt.Errorf("%w: %s", ErrNotEVM, chain.Slug)
	}
	return h.deps.Chainlink.Latest(ctx, chain, p.Pair)
}

// --- goldrush toolset ---

// WalletDataResult carries the vendor's data object unchanged.
type WalletDataResult struct {
	Chain string          `json:"chain,omitempty"`
	Data  json.RawMessage `json:"data"`
}

func walletData(chain string, raw json.RawMessage, err error) (*WalletDataResult, error) {
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return &WalletDataResult{Chain: chain, Data: raw}, nil
}

func (h *Handlers) MultichainBalances(ctx context.Context, p WalletAddressParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.MultichainBalances(ctx, p.WalletAddress)
	return walletData("", raw, err)
}

func (h *Handlers) MultichainTransactions(ctx context.Context, p WalletAddressParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.MultichainTransactions(ctx, p.WalletAddress)
	return walletData("", raw, err)
}

func (h *Handlers) Activity(ctx context.Context, p WalletAddressParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.Activity(ctx, p.WalletAddress)
	return walletData("", raw, err)
}

func (h *Handlers) TokenBalances(ctx context.Context, p ChainWalletParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.TokenBalances(ctx, p.ChainName, p.WalletAddress)
	return walletData(p.ChainName, raw, err)
}

func (h *Handlers) NativeBalance(ctx context.Context, p ChainWalletParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.NativeBalance(ctx, p.ChainName, p.WalletAddress)
	return walletData(p.ChainName, raw, err)
}

func (h *Handlers) NFTs(ctx context.Context, p ChainWalletParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.NFTs(ctx, p.ChainName, p.WalletAddress)
	return walletData(p.ChainName, raw, err)
}

func (h *Handlers) ERC20Transfers(ctx context.Context, p TransfersParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.ERC20Transfers(ctx, p.ChainName, p.WalletAddress, p.ContractAddress)
	return walletData(p.ChainName, raw, err)
}

func (h *Handlers) GasPrices(ctx context.Context, p GasPricesParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.GasPrices(ctx, p.ChainName, p.EventType)
	return walletData(p.ChainName, raw, err)
}

func (h *Handlers) HistoricalPrices(ctx context.Context, p HistoricalPricesParams) (*WalletDataResult, error) {
	if p.From != "" && p.To != "" && p.From > p.To {
		return nil, fmt.Errorf("from (%s) is after to (%s)", p.From, p.To)
	}
	raw, err := h.deps.GoldRush.HistoricalPrices(ctx, p.ChainName, p.ContractAddress, p.From, p.To)
	return walletData(p.ChainName, raw, err)
}

func (h *Handlers) Transaction(ctx context.Context, p TransactionParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.Transaction(ctx, p.ChainName, p.TxHash)
	return walletData(p.ChainName, raw, err)
}

func (h *Handlers) BitcoinHDBalances(ctx context.Context, p WalletAddressParams) (*WalletDataResult, error) {
	raw, err := h.deps.GoldRush.BitcoinHDBalances(ctx, p.WalletAddress)
	return walletData("btc-mainnet", raw, err)
}
