package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/DogukanGun/XReplyAgent/internal/config"
	"github.com/DogukanGun/XReplyAgent/internal/credentials"
)

const (
	serverName    = "xreply-mcp"
	serverVersion = "1.0.0"
)

// NewMCPServer creates a configured MCP server with the tools of every
// enabled toolset registered. Panics inside a tool are recovered and
// reported as that call's error.
func NewMCPServer(deps Deps, toolsets ...string) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range NewHandlers(deps).Tools(toolsets...) {
		s.AddTool(t.Tool, t.Handler)
	}
	return s
}

// Tools returns the instrumented tools of the named toolsets. Toolsets
// whose collaborators are missing from Deps are skipped.
func (h *Handlers) Tools(toolsets ...string) []server.ServerTool {
	var out []server.ServerTool
	r := h.deps.Resolver
	for _, ts := range toolsets {
		switch ts {
		case config.ToolsetWallet:
			if r == nil || h.deps.Provisioner == nil || h.deps.Wallets == nil {
				continue
			}
			out = append(out,
				h.tool(ToolCreateWallet, bind(h.CreateWallet)),
				h.tool(ToolReadWallet, bind(credentials.Wrap(r, ToolReadWallet.Name, h.ReadWallet))),
				h.tool(ToolWalletBalance, bind(credentials.Wrap(r, ToolWalletBalance.Name, h.WalletBalance))),
				h.tool(ToolSignTransaction, bind(credentials.Wrap(r, ToolSignTransaction.Name, h.SignTransaction))),
				h.tool(ToolTransferAsset, bind(credentials.Wrap(r, ToolTransferAsset.Name, h.TransferAsset))),
			)

		case config.ToolsetSwap:
			if r == nil || h.deps.Swaps == nil {
				continue
			}
			out = append(out,
				h.tool(ToolSupportedChains, bind(h.SupportedChains)),
				h.tool(ToolSameChainSwap, bind(credentials.Wrap(r, ToolSameChainSwap.Name, h.SameChainSwap))),
				h.tool(ToolCrossChainSwap, bind(credentials.WrapPair(r, ToolCrossChainSwap.Name, h.CrossChainSwap))),
				h.tool(ToolRedeem, bind(credentials.Wrap(r, ToolRedeem.Name, h.Redeem))),
			)

		case config.ToolsetAgent:
			if h.deps.Agent != nil {
				out = append(out, h.tool(ToolAskAI, bind(h.AskAI)))
			}

		case config.ToolsetFeeds:
			if h.deps.Pyth != nil {
				out = append(out, h.tool(ToolPythPrice, bind(h.PythPrice)))
			}
			if h.deps.Chainlink != nil {
				out = append(out, h.tool(ToolChainlinkPrice, bind(h.ChainlinkPrice)))
			}

		case config.ToolsetGoldRush:
			if h.deps.GoldRush == nil {
				continue
			}
			out = append(out,
				h.tool(ToolMultichainBalances, bind(h.MultichainBalances)),
				h.tool(ToolMultichainTransactions, bind(h.MultichainTransactions)),
				h.tool(ToolActivity, bind(h.Activity)),
				h.tool(ToolTokenBalances, bind(h.TokenBalances)),
				h.tool(ToolNativeBalance, bind(h.NativeBalance)),
				h.tool(ToolNFTs, bind(h.NFTs)),
				h.tool(ToolERC20Transfers, bind(h.ERC20Transfers)),
				h.tool(ToolGasPrices, bind(h.GasPrices)),
				h.tool(ToolHistoricalPrices, bind(h.HistoricalPrices)),
				h.tool(ToolTransaction, bind(h.Transaction)),
				h.tool(ToolBitcoinHDBalances, bind(h.BitcoinHDBalances)),
			)
		}
	}
	return out
}

func (h *Handlers) tool(t mcp.Tool, fn server.ToolHandlerFunc) server.ServerTool {
	return server.ServerTool{Tool: t, Handler: h.instrument(t.Name, fn)}
}
