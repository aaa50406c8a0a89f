package mcpserver

import (
	"github.com/DogukanGun/XReplyAgent/internal/chains"
)

// Tool parameters. Identity fields carry no validate tags: the credential
// middleware owns that check so a missing id reports as such.

// familyOf returns the family of a chain slug, or "" for unknown slugs.
func familyOf(slug string) chains.Family {
	c, err := chains.Lookup(slug)
	if err != nil {
		return ""
	}
	return c.Family
}

type CreateWalletParams struct {
	TwitterID string `json:"twitter_id"`
}

type ReadWalletParams struct {
	TwitterID   string `json:"twitter_id"`
	ChainFamily string `json:"family" validate:"omitempty,family"`
}

func (p ReadWalletParams) ExternalID() string { return p.TwitterID }

func (p ReadWalletParams) Family() chains.Family {
	if p.ChainFamily == "" {
		return chains.FamilyEVM
	}
	f, _ := chains.ParseFamily(p.ChainFamily)
	return f
}

type BalanceParams struct {
	TwitterID    string `json:"twitter_id"`
	Chain        string `json:"chain" validate:"required,evmchain"`
	TokenAddress string `json:"token_address" validate:"omitempty,evmaddr"`
}

func (p BalanceParams) ExternalID() string    { return p.TwitterID }
func (p BalanceParams) Family() chains.Family { return familyOf(p.Chain) }

type SignParams struct {
	TwitterID string `json:"twitter_id"`
	Chain     string `json:"chain" validate:"required,evmchain"`
	ToAddress string `json:"to_address" validate:"required,evmaddr"`
	Data      string `json:"data" validate:"omitempty,hexdata"`
	Value     string `json:"value" validate:"omitempty,max=80"`
}

func (p SignParams) ExternalID() string    { return p.TwitterID }
func (p SignParams) Family() chains.Family { return familyOf(p.Chain) }

type TransferParams struct {
	TwitterID    string `json:"twitter_id"`
	Chain        string `json:"chain" validate:"required,evmchain"`
	ToAddress    string `json:"to_address" validate:"required,evmaddr"`
	Amount       string `json:"amount" validate:"required,amount"`
	TokenAddress string `json:"token_address" validate:"omitempty,evmaddr"`
}

func (p TransferParams) ExternalID() string    { return p.TwitterID }
func (p TransferParams) Family() chains.Family { return familyOf(p.Chain) }

type SupportedChainsParams struct{}

type SameChainSwapParams struct {
	TwitterID   string   `json:"twitter_id"`
	Chain       string   `json:"chain" validate:"required,chain"`
	InputToken  string   `json:"input_token" validate:"required,max=128"`
	OutputToken string   `json:"output_token" validate:"required,max=128"`
	AmountIn    string   `json:"amount_in" validate:"required,amount"`
	Decimals    *int     `json:"decimals" validate:"omitempty,gte=0,lte=36"`
	Slippage    *float64 `json:"slippage" validate:"omitempty,gt=0,lte=50"`
}

func (p SameChainSwapParams) ExternalID() string    { return p.TwitterID }
func (p SameChainSwapParams) Family() chains.Family { return familyOf(p.Chain) }

type CrossChainSwapParams struct {
	SenderTwitterID    string   `json:"sender_twitter_id"`
	ReceiverTwitterID  string   `json:"receiver_twitter_id"`
	SourceChain        string   `json:"source_chain" validate:"required,chain"`
	TargetChain        string   `json:"target_chain" validate:"required,chain,nefield=SourceChain"`
	SourceToken        string   `json:"source_token" validate:"required,max=128"`
	TargetToken        string   `json:"target_token" validate:"required,max=128"`
	Amount             string   `json:"amount" validate:"required,amount"`
	Decimals           *int     `json:"decimals" validate:"omitempty,gte=0,lte=36"`
	DestinationAddress string   `json:"destination_address" validate:"omitempty,max=128"`
	Slippage           *float64 `json:"slippage" validate:"omitempty,gt=0,lte=50"`
}

func (p CrossChainSwapParams) SenderID() string              { return p.SenderTwitterID }
func (p CrossChainSwapParams) ReceiverID() string            { return p.ReceiverTwitterID }
func (p CrossChainSwapParams) SenderFamily() chains.Family   { return familyOf(p.SourceChain) }
func (p CrossChainSwapParams) ReceiverFamily() chains.Family { return familyOf(p.TargetChain) }

// RedeemParams resolve the caller's credential on the target chain, where
// the redeem transaction is signed.
type RedeemParams struct {
	TwitterID   string `json:"twitter_id"`
	TxHash      string `json:"tx_hash" validate:"required,max=128"`
	SourceChain string `json:"source_chain" validate:"required,chain"`
	TargetChain string `json:"target_chain" validate:"required,chain,nefield=SourceChain"`
	BridgeID    string `json:"bridge_id" validate:"omitempty,max=32"`
}

func (p RedeemParams) ExternalID() string    { return p.TwitterID }
func (p RedeemParams) Family() chains.Family { return familyOf(p.TargetChain) }

type AskParams struct {
	Question string `json:"question" validate:"required,max=4000"`
}

type PythParams struct {
	Symbols string `json:"symbols" validate:"required,max=2000"`
}

type ChainlinkParams struct {
	Chain string `json:"chain" validate:"required,evmchain"`
	Pair  string `json:"pair" validate:"required,max=64"`
}

// GoldRush parameters end up in the request path, so each one must be a
// single path segment.

type WalletAddressParams struct {
	WalletAddress string `json:"wallet_address" validate:"required,max=128,pathseg"`
}

type ChainWalletParams struct {
	ChainName     string `json:"chain_name" validate:"required,max=64,pathseg"`
	WalletAddress string `json:"wallet_address" validate:"required,max=128,pathseg"`
}

type TransfersParams struct {
	ChainName       string `json:"chain_name" validate:"required,max=64,pathseg"`
	WalletAddress   string `json:"wallet_address" validate:"required,max=128,pathseg"`
	ContractAddress string `json:"contract_address" validate:"omitempty,max=128,pathseg"`
}

type GasPricesParams struct {
	ChainName string `json:"chain_name" validate:"required,max=64,pathseg"`
	EventType string `json:"event_type" validate:"required,oneof=erc20 uniswapv3 nativetokens"`
}

type HistoricalPricesParams struct {
	ChainName       string `json:"chain_name" validate:"required,max=64,pathseg"`
	ContractAddress string `json:"contract_address" validate:"required,max=128,pathseg"`
	From            string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To              string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

type TransactionParams struct {
	ChainName string `json:"chain_name" validate:"required,max=64,pathseg"`
	TxHash    string `json:"tx_hash" validate:"required,max=128,pathseg"`
}
