// Package swap executes aggregator operations between any two supported
// chains. One Service covers every {source, target, kind} combination;
// chain differences live in the signer adapters.
package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/DogukanGun/XReplyAgent/internal/aggregator"
	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/logging"
	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/signer"
	"github.com/DogukanGun/XReplyAgent/internal/traces"
)

// Kind names a vendor operation.
type Kind string

const (
	KindSameChain  Kind = "same_chain_swap"
	KindCrossChain Kind = "cross_chain_swap"
	KindRedeem     Kind = "redeem"
)

// Default slippage in percent.
const (
	SameChainSlippage  = 0.5
	CrossChainSlippage = 2.0
)

var (
	ErrInvalidOperation = errors.New("swap: invalid operation")
	ErrTimeout          = errors.New("swap: operation timed out")
)

// Operation selects what to run and where.
type Operation struct {
	Kind   Kind
	Source chains.Chain
	Target chains.Chain
}

// Validate checks that both chains are routable and that same-chain
// operations stay on one chain while the others cross.
func (o Operation) Validate() error {
	switch o.Kind {
	case KindSameChain, KindCrossChain, KindRedeem:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, o.Kind)
	}
	if !o.Source.Swappable() {
		return fmt.Errorf("%w: %q is not supported by the aggregator", ErrInvalidOperation, o.Source.Slug)
	}
	if !o.Target.Swappable() {
		return fmt.Errorf("%w: %q is not supported by the aggregator", ErrInvalidOperation, o.Target.Slug)
	}
	same := o.Source.Slug == o.Target.Slug
	if o.Kind == KindSameChain && !same {
		return fmt.Errorf("%w: same-chain swap needs one chain, got %s and %s", ErrInvalidOperation, o.Source.Slug, o.Target.Slug)
	}
	if o.Kind != KindSameChain && same {
		return fmt.Errorf("%w: %s needs two different chains", ErrInvalidOperation, o.Kind)
	}
	return nil
}

// Request carries the already-resolved inputs of one operation.
type Request struct {
	SourceToken string
	TargetToken string
	Amount      *big.Int // base units of SourceToken
	Slippage    float64  // percent; zero picks the kind's default

	SenderKey   string // signs on Source
	ReceiverKey string // signs on Target (claim, redeem)

	// TargetAddress overrides the receiver's own address as destination.
	TargetAddress string

	// Redeem only.
	SourceHash string
	BridgeID   string
}

// Result reports what was submitted.
type Result struct {
	Operation    Kind     `json:"operation"`
	SourceChain  string   `json:"source_chain"`
	TargetChain  string   `json:"target_chain"`
	From         string   `json:"from,omitempty"`
	To           string   `json:"to,omitempty"`
	AmountIn     string   `json:"amount_in,omitempty"`
	AmountOut    string   `json:"amount_out,omitempty"`
	Bridge       string   `json:"bridge,omitempty"`
	TxHashes     []string `json:"tx_hashes,omitempty"`
	ClaimHashes  []string `json:"claim_tx_hashes,omitempty"`
	Redeemed     bool     `json:"redeemed,omitempty"`
	RedeemHashes []string `json:"redeem_tx_hashes,omitempty"`
}

// Vendor is the part of the aggregator client the service drives.
type Vendor interface {
	SwapQuotes(ctx context.Context, r aggregator.SwapQuoteRequest) ([]aggregator.Quote, error)
	SwapInstruction(ctx context.Context, quote aggregator.Quote, address string) ([]aggregator.Instruction, error)
	CrossChainQuotes(ctx context.Context, r aggregator.CrossChainQuoteRequest) ([]aggregator.Quote, error)
	TransferInstruction(ctx context.Context, quote aggregator.Quote, sourceAddress, targetAddress string) ([]aggregator.Instruction, error)
	ClaimInstruction(ctx context.Context, quote aggregator.Quote, txHash, sourceAddress, targetAddress string) ([]aggregator.Instruction, error)
	RedeemInstruction(ctx context.Context, r aggregator.RedeemRequest) ([]aggregator.Instruction, error)
}

// Signers builds chain adapters. *signer.Factory satisfies it.
type Signers interface {
	For(ctx context.Context, chain chains.Chain, key string) (signer.Adapter, error)
}

// Timeouts bound each kind end to end.
type Timeouts struct {
	SameChain  time.Duration
	CrossChain time.Duration
	Redeem     time.Duration
}

func (t Timeouts) For(k Kind) time.Duration {
	switch k {
	case KindSameChain:
		return t.SameChain
	case KindCrossChain:
		return t.CrossChain
	}
	return t.Redeem
}

// StepError reports the step that failed and whatever was already
// submitted before it, so callers can follow up on chain.
type StepError struct {
	Step     string
	TxHashes []string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Context exposes the submitted hashes in error envelopes.
func (e *StepError) Context() map[string]any {
	ctx := map[string]any{"step": e.Step}
	if len(e.TxHashes) > 0 {
		ctx["tx_hashes"] = e.TxHashes
	}
	return ctx
}

// Service runs vendor operations.
type Service struct {
	vendor   Vendor
	signers  Signers
	timeouts Timeouts
	logger   *slog.Logger
}

func NewService(vendor Vendor, signers Signers, timeouts Timeouts, logger *slog.Logger) *Service {
	return &Service{vendor: vendor, signers: signers, timeouts: timeouts, logger: logger}
}

// Execute validates op and runs it under the kind's timeout.
func (s *Service) Execute(ctx context.Context, op Operation, req Request) (res *Result, err error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	if d := s.timeouts.For(op.Kind); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ctx, span := traces.StartSpan(ctx, "swap.execute",
		traces.Operation(string(op.Kind)),
		traces.Chain(op.Source.Slug),
	)
	start := time.Now()
	defer func() {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s after %s: %w", ErrTimeout, op.Kind, s.timeouts.For(op.Kind), err)
		}
		traces.End(span, err)
		metrics.VendorCallsTotal.WithLabelValues(string(op.Kind), metrics.Outcome(err)).Inc()
		s.log(ctx).Info("vendor operation",
			"operation", op.Kind,
			"source_chain", op.Source.Slug,
			"target_chain", op.Target.Slug,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", errString(err),
		)
	}()

	switch op.Kind {
	case KindSameChain:
		return s.sameChain(ctx, op, req)
	case KindCrossChain:
		return s.crossChain(ctx, op, req)
	default:
		return s.redeem(ctx, op, req)
	}
}

func (s *Service) sameChain(ctx context.Context, op Operation, req Request) (*Result, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidOperation)
	}
	src, err := s.signers.For(ctx, op.Source, req.SenderKey)
	if err != nil {
		return nil, &StepError{Step: "signer", Err: err}
	}
	defer src.Close()

	quotes, err := s.vendor.SwapQuotes(ctx, aggregator.SwapQuoteRequest{
		InputToken:  req.SourceToken,
		OutputToken: req.TargetToken,
		AmountIn:    req.Amount.String(),
		Slippage:    orDefault(req.Slippage, SameChainSlippage),
		Network:     op.Source.NetworkID,
	})
	if err != nil {
		return nil, &StepError{Step: "quote", Err: err}
	}
	best := quotes[0]

	ins, err := s.vendor.SwapInstruction(ctx, best, src.Address())
	if err != nil {
		return nil, &StepError{Step: "swap_instruction", Err: err}
	}
	hashes, err := execute(ctx, src, ins)
	if err != nil {
		return nil, &StepError{Step: "swap", TxHashes: hashes, Err: err}
	}

	return &Result{
		Operation:   op.Kind,
		SourceChain: op.Source.Slug,
		TargetChain: op.Target.Slug,
		From:        src.Address(),
		To:          src.Address(),
		AmountIn:    req.Amount.String(),
		AmountOut:   best.AmountOut,
		TxHashes:    hashes,
	}, nil
}

func (s *Service) crossChain(ctx context.Context, op Operation, req Request) (*Result, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidOperation)
	}
	src, err := s.signers.For(ctx, op.Source, req.SenderKey)
	if err != nil {
		return nil, &StepError{Step: "signer", Err: err}
	}
	defer src.Close()
	dst, err := s.signers.For(ctx, op.Target, req.ReceiverKey)
	if err != nil {
		return nil, &StepError{Step: "signer", Err: err}
	}
	defer dst.Close()

	target := req.TargetAddress
	if target == "" {
		target = dst.Address()
	}
	slippage := orDefault(req.Slippage, CrossChainSlippage)

	quotes, err := s.vendor.CrossChainQuotes(ctx, aggregator.CrossChainQuoteRequest{
		SourceToken:    req.SourceToken,
		TargetToken:    req.TargetToken,
		SourceChain:    op.Source.NetworkID,
		TargetChain:    op.Target.NetworkID,
		AmountIn:       req.Amount.String(),
		SourceSlippage: slippage,
		TargetSlippage: slippage,
	})
	if err != nil {
		return nil, &StepError{Step: "quote", Err: err}
	}
	best := quotes[0]

	res := &Result{
		Operation:   op.Kind,
		SourceChain: op.Source.Slug,
		TargetChain: op.Target.Slug,
		From:        src.Address(),
		To:          target,
		AmountIn:    req.Amount.String(),
		AmountOut:   best.AmountOut,
		Bridge:      best.Bridge,
	}

	ins, err := s.vendor.TransferInstruction(ctx, best, src.Address(), target)
	if err != nil {
		return nil, &StepError{Step: "transfer_instruction", Err: err}
	}
	res.TxHashes, err = execute(ctx, src, ins)
	if err != nil {
		// Nothing reached the chain: nothing to recover.
		if len(res.TxHashes) == 0 {
			return nil, &StepError{Step: "transfer", Err: err}
		}
		s.log(ctx).Warn("bridge transfer failed, redeeming on target",
			"source_chain", op.Source.Slug,
			"target_chain", op.Target.Slug,
			"tx_hash", res.TxHashes[len(res.TxHashes)-1],
			"error", err,
		)
		redeemHashes, rerr := s.redeemWith(ctx, op, dst, aggregator.RedeemRequest{
			SourceChain:   op.Source.NetworkID,
			TargetChain:   op.Target.NetworkID,
			SourceHash:    res.TxHashes[len(res.TxHashes)-1],
			TargetAddress: target,
			BridgeID:      best.Bridge,
		})
		if rerr != nil {
			return nil, &StepError{Step: "redeem", TxHashes: res.TxHashes, Err: errors.Join(err, rerr)}
		}
		res.Redeemed = true
		res.RedeemHashes = redeemHashes
		return res, nil
	}

	if best.Bridge == aggregator.BridgeCCTP {
		return res, nil
	}
	claim, err := s.vendor.ClaimInstruction(ctx, best, res.TxHashes[len(res.TxHashes)-1], src.Address(), target)
	if err != nil {
		return nil, &StepError{Step: "claim_instruction", TxHashes: res.TxHashes, Err: err}
	}
	res.ClaimHashes, err = execute(ctx, dst, claim)
	if err != nil {
		return nil, &StepError{Step: "claim", TxHashes: append(res.TxHashes, res.ClaimHashes...), Err: err}
	}
	return res, nil
}

func (s *Service) redeem(ctx context.Context, op Operation, req Request) (*Result, error) {
	if req.SourceHash == "" {
		return nil, fmt.Errorf("%w: source transaction hash is required", ErrInvalidOperation)
	}
	dst, err := s.signers.For(ctx, op.Target, req.ReceiverKey)
	if err != nil {
		return nil, &StepError{Step: "signer", Err: err}
	}
	defer dst.Close()

	target := req.TargetAddress
	if target == "" {
		target = dst.Address()
	}
	bridge := req.BridgeID
	if bridge == "" {
		bridge = aggregator.BridgeCCTP
	}

	hashes, err := s.redeemWith(ctx, op, dst, aggregator.RedeemRequest{
		SourceChain:   op.Source.NetworkID,
		TargetChain:   op.Target.NetworkID,
		SourceHash:    req.SourceHash,
		TargetAddress: target,
		BridgeID:      bridge,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Operation:    op.Kind,
		SourceChain:  op.Source.Slug,
		TargetChain:  op.Target.Slug,
		To:           target,
		Bridge:       bridge,
		Redeemed:     true,
		RedeemHashes: hashes,
	}, nil
}

func (s *Service) redeemWith(ctx context.Context, op Operation, dst signer.Adapter, r aggregator.RedeemRequest) ([]string, error) {
	ins, err := s.vendor.RedeemInstruction(ctx, r)
	if err != nil {
		return nil, &StepError{Step: "redeem_instruction", Err: err}
	}
	hashes, err := execute(ctx, dst, ins)
	if err != nil {
		return nil, &StepError{Step: "redeem", TxHashes: hashes, Err: err}
	}
	return hashes, nil
}

// execute runs instructions in order and stops at the first failure.
// The hashes of everything submitted so far are returned either way.
func execute(ctx context.Context, a signer.Adapter, ins []aggregator.Instruction) ([]string, error) {
	if len(ins) == 0 {
		return nil, errors.New("aggregator returned no instructions")
	}
	hashes := make([]string, 0, len(ins))
	for _, in := range ins {
		hash, err := a.Execute(ctx, in)
		if hash != "" {
			hashes = append(hashes, hash)
		}
		if err != nil {
			return hashes, err
		}
	}
	return hashes, nil
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	if id := logging.InvocationID(ctx); id != "" {
		return s.logger.With("invocation_id", id)
	}
	return s.logger
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
