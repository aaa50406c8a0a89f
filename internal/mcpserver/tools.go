package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/credentials"
	"github.com/DogukanGun/XReplyAgent/internal/goldrush"
)

// Tool definitions for the XReply MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

func identityArg(name string) mcp.ToolOption {
	return mcp.WithString(name,
		mcp.Required(),
		mcp.Description("Twitter (X) account id of the user. Wallets are looked up by this id."))
}

func chainArg(name, desc string, slugs []string) mcp.ToolOption {
	return mcp.WithString(name, mcp.Required(), mcp.Description(desc), mcp.Enum(slugs...))
}

func swapSlugs() []string {
	var out []string
	for _, c := range chains.SwapChains() {
		out = append(out, c.Slug)
	}
	return out
}

func evmSlugs() []string {
	var out []string
	for _, c := range chains.All() {
		if c.IsEVM() {
			out = append(out, c.Slug)
		}
	}
	return out
}

// --- wallet toolset ---

var ToolCreateWallet = mcp.NewTool("create_wallet",
	mcp.WithDescription(
		"Create EVM, Solana and Aptos wallets for a Twitter user. "+
			"Returns the existing wallets unchanged if the user already has them."),
	identityArg(credentials.FieldIdentity),
)

var ToolReadWallet = mcp.NewTool("read_wallet",
	mcp.WithDescription("Show the wallet address a Twitter user holds for a chain family."),
	identityArg(credentials.FieldIdentity),
	mcp.WithString("family",
		mcp.Description("Chain family. Defaults to 'evm'."),
		mcp.Enum("evm", "solana", "aptos")),
)

var ToolWalletBalance = mcp.NewTool("wallet_balance",
	mcp.WithDescription(
		"Get the native balance of a user's wallet on an EVM chain, "+
			"or an ERC-20 balance when token_address is given."),
	identityArg(credentials.FieldIdentity),
	chainArg("chain", "EVM chain to query", evmSlugs()),
	mcp.WithString("token_address",
		mcp.Description("ERC-20 contract address (0x...). Omit for the native asset.")),
)

var ToolSignTransaction = mcp.NewTool("sign_transaction",
	mcp.WithDescription(
		"Sign and submit an EIP-1559 transaction from the user's wallet. "+
			"Nonce, gas and fees are taken from the chain."),
	identityArg(credentials.FieldIdentity),
	chainArg("chain", "EVM chain to submit on", evmSlugs()),
	mcp.WithString("to_address",
		mcp.Required(),
		mcp.Description("Recipient or contract address (0x...)")),
	mcp.WithString("data",
		mcp.Description("Hex encoded calldata (0x...). Omit for a plain transfer.")),
	mcp.WithString("value",
		mcp.Description("Value in wei, decimal or 0x hex. Defaults to 0.")),
)

var ToolTransferAsset = mcp.NewTool("transfer_asset",
	mcp.WithDescription(
		"Send the native asset, or an ERC-20 token when token_address is given, "+
			"from the user's wallet. Amounts are human readable (e.g. '0.05')."),
	identityArg(credentials.FieldIdentity),
	chainArg("chain", "EVM chain to transfer on", evmSlugs()),
	mcp.WithString("to_address",
		mcp.Required(),
		mcp.Description("Recipient address (0x...)")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount to send as a decimal string (e.g. '1.5')")),
	mcp.WithString("token_address",
		mcp.Description("ERC-20 contract address (0x...). Omit for the native asset.")),
)

// --- swap toolset ---

var ToolSupportedChains = mcp.NewTool("supported_chains",
	mcp.WithDescription("List the chains swaps and bridges can be routed on."),
)

var ToolSameChainSwap = mcp.NewTool("same_chain_swap",
	mcp.WithDescription(
		"Swap one token for another on a single chain using the aggregator's best quote. "+
			"Signed with the user's wallet for that chain."),
	identityArg(credentials.FieldIdentity),
	chainArg("chain", "Chain to swap on", swapSlugs()),
	mcp.WithString("input_token",
		mcp.Required(),
		mcp.Description("Address of the token to sell")),
	mcp.WithString("output_token",
		mcp.Required(),
		mcp.Description("Address of the token to buy")),
	mcp.WithString("amount_in",
		mcp.Required(),
		mcp.Description("Amount of input_token to sell as a decimal string")),
	mcp.WithNumber("decimals",
		mcp.Description("Decimals of input_token. Defaults to the chain's native decimals.")),
	mcp.WithNumber("slippage",
		mcp.Description("Maximum slippage in percent. Defaults to 0.5.")),
)

var ToolCrossChainSwap = mcp.NewTool("cross_chain_swap",
	mcp.WithDescription(
		"Bridge tokens from one chain to another. The sender signs on the source chain; "+
			"the receiver claims (or redeems, if the transfer fails) on the target chain."),
	identityArg(credentials.FieldSender),
	identityArg(credentials.FieldReceiver),
	chainArg("source_chain", "Chain the tokens leave from", swapSlugs()),
	chainArg("target_chain", "Chain the tokens arrive on", swapSlugs()),
	mcp.WithString("source_token",
		mcp.Required(),
		mcp.Description("Token address on the source chain")),
	mcp.WithString("target_token",
		mcp.Required(),
		mcp.Description("Token address on the target chain")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount of source_token as a decimal string")),
	mcp.WithNumber("decimals",
		mcp.Description("Decimals of source_token. Defaults to the source chain's native decimals.")),
	mcp.WithString("destination_address",
		mcp.Description("Deliver to this address instead of the receiver's own wallet")),
	mcp.WithNumber("slippage",
		mcp.Description("Maximum slippage in percent. Defaults to 2.")),
)

var ToolRedeem = mcp.NewTool("redeem_cross_chain_transaction",
	mcp.WithDescription(
		"Redeem a bridge transfer on the target chain when the automatic claim did not happen. "+
			"Signed with the user's wallet on the target chain."),
	identityArg(credentials.FieldIdentity),
	mcp.WithString("tx_hash",
		mcp.Required(),
		mcp.Description("Hash of the transfer transaction on the source chain")),
	chainArg("source_chain", "Chain the transfer was sent from", swapSlugs()),
	chainArg("target_chain", "Chain to redeem on", swapSlugs()),
	mcp.WithString("bridge_id",
		mcp.Description("Bridge used by the transfer. Defaults to 'cctp'.")),
)

// --- agent toolset ---

var ToolAskAI = mcp.NewTool("ask_ai",
	mcp.WithDescription(
		"Ask the BNB Chain documentation agent a question. Returns its answer as text."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question to ask")),
)

// --- feeds toolset ---

var ToolPythPrice = mcp.NewTool("pyth_price",
	mcp.WithDescription(
		"Get the latest Pyth prices for one or more pairs (e.g. 'BTC/USD,ETH/USD') or raw feed ids."),
	mcp.WithString("symbols",
		mcp.Required(),
		mcp.Description("Comma separated pairs or Pyth feed ids")),
)

var ToolChainlinkPrice = mcp.NewTool("chainlink_price",
	mcp.WithDescription(
		"Read the latest Chainlink round for a pair (e.g. 'ETH/USD') or an aggregator proxy address."),
	chainArg("chain", "Chain the aggregator lives on", evmSlugs()),
	mcp.WithString("pair",
		mcp.Required(),
		mcp.Description("Pair symbol or aggregator proxy address")),
)

// --- goldrush toolset ---

func walletAddressArg() mcp.ToolOption {
	return mcp.WithString("wallet_address",
		mcp.Required(),
		mcp.Description("Wallet address to query. ENS and other resolvable names are accepted."))
}

func chainNameArg() mcp.ToolOption {
	return mcp.WithString("chain_name",
		mcp.Required(),
		mcp.Description("Chain to query: a slug such as 'bsc' or 'ethereum', or a GoldRush chain name such as 'hyperevm-mainnet'."))
}

var ToolMultichainBalances = mcp.NewTool("get_multichain_balances",
	mcp.WithDescription("Get token balances of a wallet address across all chains."),
	walletAddressArg(),
)

var ToolMultichainTransactions = mcp.NewTool("get_multichain_transactions",
	mcp.WithDescription("Get recent transactions of a wallet address across all chains."),
	walletAddressArg(),
)

var ToolActivity = mcp.NewTool("get_activity_across_all_chains",
	mcp.WithDescription("List the chains a wallet address has been active on."),
	walletAddressArg(),
)

var ToolTokenBalances = mcp.NewTool("get_token_balance_for_address",
	mcp.WithDescription("Get native and ERC-20 token balances of a wallet address on one chain, with USD quotes."),
	chainNameArg(),
	walletAddressArg(),
)

var ToolNativeBalance = mcp.NewTool("get_native_token_balance_for_address",
	mcp.WithDescription("Get the native token balance of a wallet address on one chain."),
	chainNameArg(),
	walletAddressArg(),
)

var ToolNFTs = mcp.NewTool("get_nfts_for_address",
	mcp.WithDescription("Get the NFTs a wallet address holds on one chain."),
	chainNameArg(),
	walletAddressArg(),
)

var ToolERC20Transfers = mcp.NewTool("get_erc20_token_transfer_for_address",
	mcp.WithDescription(
		"Get ERC-20 transfers in and out of a wallet address on one chain, "+
			"with historical prices at the time of each transfer."),
	chainNameArg(),
	walletAddressArg(),
	mcp.WithString("contract_address",
		mcp.Description("Only return transfers of this token contract")),
)

var ToolGasPrices = mcp.NewTool("get_gas_prices",
	mcp.WithDescription("Get current gas price estimates on a chain for a kind of transaction."),
	chainNameArg(),
	mcp.WithString("event_type",
		mcp.Required(),
		mcp.Description("Kind of transaction to price"),
		mcp.Enum(goldrush.EventTypes...)),
)

var ToolHistoricalPrices = mcp.NewTool("get_historical_token_prices",
	mcp.WithDescription("Get daily USD prices of a token contract, optionally between two dates."),
	chainNameArg(),
	mcp.WithString("contract_address",
		mcp.Required(),
		mcp.Description("Token contract address")),
	mcp.WithString("from",
		mcp.Description("First day, YYYY-MM-DD")),
	mcp.WithString("to",
		mcp.Description("Last day, YYYY-MM-DD")),
)

var ToolTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription("Get the decoded details of a transaction by hash on one chain."),
	chainNameArg(),
	mcp.WithString("tx_hash",
		mcp.Required(),
		mcp.Description("Transaction hash")),
)

var ToolBitcoinHDBalances = mcp.NewTool("get_bitcoin_balances_for_hd_address",
	mcp.WithDescription("Get balances of each active child address derived from a Bitcoin HD wallet's extended public key."),
	mcp.WithString("wallet_address",
		mcp.Required(),
		mcp.Description("Extended public key (xpub, ypub or zpub)")),
)
