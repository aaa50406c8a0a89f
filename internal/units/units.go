// Package units converts between human-readable decimal amounts and
// on-chain base units for tokens of arbitrary precision.
//
// Amounts are carried as decimal strings at the tool boundary ("1.5") and
// as *big.Int base units below it (1500000 for a 6-decimal token).
package units

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Common token precisions.
const (
	EtherDecimals = 18
	USDCDecimals  = 6
	SOLDecimals   = 9
	APTDecimals   = 8
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more fractional digits than the token supports")
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// IsDecimal reports whether s is a non-negative decimal string like "12" or "0.25".
func IsDecimal(s string) bool {
	return decimalPattern.MatchString(s)
}

// Parse converts a decimal string to base units. Fractional digits beyond
// decimals are rejected rather than truncated.
func Parse(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}
	if !IsDecimal(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w (%d)", ErrTooPrecise, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return out, nil
}

// ParsePositive is Parse that also rejects zero.
func ParsePositive(s string, decimals int) (*big.Int, error) {
	v, err := Parse(s, decimals)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return v, nil
}

// Format renders base units as a decimal string with trailing zeros trimmed
// ("1500000", 6 -> "1.5").
func Format(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
		s = whole
		if frac != "" {
			s += "." + frac
		}
	}
	if neg {
		s = "-" + s
	}
	return s
}
