// Package evm signs and submits transactions on EVM chains for a single
// resolved credential.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrInvalidPrivateKey = errors.New("evm: invalid private key")
	ErrInvalidAddress    = errors.New("evm: invalid address")
	ErrInvalidData       = errors.New("evm: invalid calldata")
	ErrTransactionFailed = errors.New("evm: transaction reverted")
	ErrTimeout           = errors.New("evm: operation timed out")
)

// TxError wraps a failed step of a transaction with its hash, if known.
type TxError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *TxError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("evm: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("evm: %s failed: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// Client abstracts the go-ethereum RPC client for testing.
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

const (
	// TransferGasLimit is used for plain value transfers; no estimate needed.
	TransferGasLimit = uint64(21000)

	// ConfirmationPollInterval between receipt checks.
	ConfirmationPollInterval = 2 * time.Second
)

var erc20 = mustABI(erc20ABI)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// TxRequest describes a transaction to sign. Data and Value may be empty.
type TxRequest struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// TxResult is what a tool returns after a transaction is submitted.
type TxResult struct {
	TxHash      string `json:"tx_hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value_wei"`
	ChainID     int64  `json:"chain_id"`
	Nonce       uint64 `json:"nonce"`
	GasLimit    uint64 `json:"gas_limit"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
}

// Wallet holds one signing key bound to one chain.
type Wallet struct {
	client     Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	poll       time.Duration
}

// New parses key (hex, with or without 0x) and binds it to chainID.
func New(key string, chainID int64, client Client) (*Wallet, error) {
	hexKey := strings.TrimPrefix(key, "0x")
	if len(hexKey) != 64 {
		return nil, fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	if chainID == 0 {
		return nil, errors.New("evm: chain id required")
	}

	return &Wallet{
		client:     client,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    big.NewInt(chainID),
		poll:       ConfirmationPollInterval,
	}, nil
}

// ParseAddress validates a 0x-prefixed 20-byte hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseData decodes hex calldata. Empty input and a bare "0x" mean no data.
func ParseData(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	data, err := hexutil.Decode("0x" + s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return data, nil
}

// Address returns the wallet's checksummed address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// Balance returns the native balance in wei.
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := w.client.BalanceAt(ctx, w.address, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: balance: %w", err)
	}
	return bal, nil
}

// TokenBalance returns an ERC-20 balance and the token's decimals.
func (w *Wallet) TokenBalance(ctx context.Context, token common.Address) (*big.Int, uint8, error) {
	out, err := w.call(ctx, token, "balanceOf", w.address)
	if err != nil {
		return nil, 0, err
	}
	bal := new(big.Int).SetBytes(out)

	out, err = w.call(ctx, token, "decimals")
	if err != nil {
		return nil, 0, err
	}
	vals, err := erc20.Unpack("decimals", out)
	if err != nil || len(vals) != 1 {
		return nil, 0, fmt.Errorf("evm: decode decimals: %v", err)
	}
	dec, _ := vals[0].(uint8)
	return bal, dec, nil
}

func (w *Wallet) call(ctx context.Context, to common.Address, method string, args ...any) ([]byte, error) {
	data, err := erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("evm: pack %s: %w", method, err)
	}
	out, err := w.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: call %s: %w", method, err)
	}
	return out, nil
}

// SendTransaction signs req as an EIP-1559 transaction and submits it.
// Nonce, tip, fee cap and gas limit come from the node.
func (w *Wallet) SendTransaction(ctx context.Context, req TxRequest) (*TxResult, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, &TxError{Op: "nonce", Err: err}
	}

	tip, err := w.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, &TxError{Op: "gas_tip", Err: err}
	}
	head, err := w.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, &TxError{Op: "header", Err: err}
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gasLimit := TransferGasLimit
	if len(req.Data) > 0 {
		to := req.To
		gasLimit, err = w.client.EstimateGas(ctx, ethereum.CallMsg{
			From:  w.address,
			To:    &to,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return nil, &TxError{Op: "estimate_gas", Err: err}
		}
	}

	to := req.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.privateKey)
	if err != nil {
		return nil, &TxError{Op: "sign", Err: err}
	}

	if err := w.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, &TxError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
	}

	return &TxResult{
		TxHash:   signedTx.Hash().Hex(),
		From:     w.address.Hex(),
		To:       to.Hex(),
		Value:    value.String(),
		ChainID:  w.chainID.Int64(),
		Nonce:    nonce,
		GasLimit: gasLimit,
	}, nil
}

// Transfer sends native currency with empty calldata.
func (w *Wallet) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*TxResult, error) {
	return w.SendTransaction(ctx, TxRequest{To: to, Value: amount})
}

// TransferToken sends an ERC-20 token.
func (w *Wallet) TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (*TxResult, error) {
	data, err := erc20.Pack("transfer", to, amount)
	if err != nil {
		return nil, &TxError{Op: "pack", Err: err}
	}
	return w.SendTransaction(ctx, TxRequest{To: token, Data: data})
}

// WaitForConfirmation polls for the receipt until it arrives, the
// transaction reverts, or timeout elapses.
func (w *Wallet) WaitForConfirmation(ctx context.Context, res *TxResult, timeout time.Duration) (*TxResult, error) {
	hash := common.HexToHash(res.TxHash)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for tx %s", ErrTimeout, res.TxHash)
			}
			return nil, ctx.Err()

		case <-ticker.C:
			receipt, err := w.client.TransactionReceipt(ctx, hash)
			if err != nil {
				// not mined yet
				continue
			}
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, &TxError{Op: "confirm", TxHash: res.TxHash, Err: ErrTransactionFailed}
			}
			out := *res
			out.BlockNumber = receipt.BlockNumber.Uint64()
			out.GasUsed = receipt.GasUsed
			return &out, nil
		}
	}
}

// Close releases the RPC connection.
func (w *Wallet) Close() {
	if w.client != nil {
		w.client.Close()
	}
}
