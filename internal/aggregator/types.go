package aggregator

import "encoding/json"

// BridgeCCTP is the bridge id that settles without a separate claim.
const BridgeCCTP = "cctp"

// SwapQuoteRequest asks for same-chain routes. AmountIn is in base units.
type SwapQuoteRequest struct {
	InputToken  string
	OutputToken string
	AmountIn    string
	Slippage    float64 // percent
	Network     int
}

// CrossChainQuoteRequest asks for bridge routes. AmountIn is in base units.
type CrossChainQuoteRequest struct {
	SourceToken    string
	TargetToken    string
	SourceChain    int
	TargetChain    int
	AmountIn       string
	SourceSlippage float64
	TargetSlippage float64
}

// RedeemRequest recovers a bridge transfer on the target chain.
type RedeemRequest struct {
	SourceChain   int    `json:"sourceChain"`
	TargetChain   int    `json:"targetChain"`
	SourceHash    string `json:"sourceHash"`
	TargetAddress string `json:"targetAddress"`
	BridgeID      string `json:"bridgeId"`
}

// Quote is an opaque vendor quote. The fields below are read for display
// and flow control; the original document is sent back verbatim.
type Quote struct {
	AmountIn  string `json:"amountIn,omitempty"`
	AmountOut string `json:"amountOut,omitempty"`
	Bridge    string `json:"bridge,omitempty"`

	raw json.RawMessage
}

func (q *Quote) UnmarshalJSON(b []byte) error {
	type plain Quote
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*q = Quote(p)
	q.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (q Quote) MarshalJSON() ([]byte, error) {
	if len(q.raw) > 0 {
		return q.raw, nil
	}
	type plain Quote
	return json.Marshal(plain(q))
}

// Instruction is one transaction the caller must sign. EVM instructions
// carry To/Data/Value; ed25519 chains carry a hex Message to sign.
type Instruction struct {
	Network int    `json:"network"`
	To      string `json:"to,omitempty"`
	Data    string `json:"data,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// Signed is a signed ed25519 payload relayed through Submit.
type Signed struct {
	Network   int    `json:"network"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}
