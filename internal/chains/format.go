package chains

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when a stored value cannot be brought into canonical form.
var ErrMalformed = errors.New("malformed credential value")

// Format describes the canonical encoding a family's signers expect.
// A zero AddressWidth disables padding; empty prefixes disable prefixing.
type Format struct {
	KeyPrefix     string
	AddressPrefix string
	AddressWidth  int
}

// Formats maps each family to its canonical credential encoding.
var Formats = map[Family]Format{
	FamilyAptos:  {KeyPrefix: "0x", AddressPrefix: "0x", AddressWidth: 64},
	FamilyEVM:    {KeyPrefix: "0x", AddressPrefix: "0x", AddressWidth: 40},
	FamilySolana: {},
}

// FormatFor returns the encoding for f, or an error for unknown families.
func FormatFor(f Family) (Format, error) {
	ft, ok := Formats[f]
	if !ok {
		return Format{}, fmt.Errorf("no credential format for family %q", f)
	}
	return ft, nil
}

// PrivateKey returns key carrying exactly one KeyPrefix. A key that already
// starts with the prefix is returned unchanged.
func (f Format) PrivateKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || key == f.KeyPrefix {
		return "", fmt.Errorf("%w: empty private key", ErrMalformed)
	}
	if f.KeyPrefix == "" || strings.HasPrefix(key, f.KeyPrefix) {
		return key, nil
	}
	return f.KeyPrefix + key, nil
}

// Address strips any prefix, left-pads the digits with '0' to AddressWidth
// and re-attaches the prefix. Values wider than AddressWidth are rejected
// instead of being truncated.
func (f Format) Address(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	digits := addr
	if f.AddressPrefix != "" {
		digits = strings.TrimPrefix(addr, f.AddressPrefix)
	}
	if digits == "" {
		return "", fmt.Errorf("%w: empty address", ErrMalformed)
	}
	if f.AddressWidth > 0 {
		if len(digits) > f.AddressWidth {
			return "", fmt.Errorf("%w: address has %d digits, want at most %d", ErrMalformed, len(digits), f.AddressWidth)
		}
		digits = strings.Repeat("0", f.AddressWidth-len(digits)) + digits
	}
	return f.AddressPrefix + digits, nil
}
