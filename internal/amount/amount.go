// Package amount parses and formats on-chain token amounts.
//
// Amounts travel as decimal strings of base units and are held as big.Int.
// A valid amount is an unsigned 256-bit integer.
package amount

import (
	"errors"
	"math/big"
	"strings"
)

var (
	ErrInvalid  = errors.New("amount: not an unsigned integer")
	ErrOverflow = errors.New("amount: exceeds uint256")
)

// MaxUint256 is 2^256 - 1.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseUint256 parses a base-unit amount. Decimal digits are expected; a 0x
// prefix selects hex.
func ParseUint256(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalid
	}

	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	if digits == "" || strings.ContainsAny(digits[:1], "+-") {
		return nil, ErrInvalid
	}

	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, ErrInvalid
	}
	if v.Cmp(MaxUint256) > 0 {
		return nil, ErrOverflow
	}
	return v, nil
}

// ParseUnits converts a human decimal string (e.g. "1.50") into base units
// for a token with the given decimals. Extra fractional digits are rejected
// rather than truncated.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, ErrInvalid
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, ErrInvalid
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
		if frac == "" {
			return nil, ErrInvalid
		}
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, ErrInvalid
	}
	frac += strings.Repeat("0", decimals-len(frac))

	return ParseUint256(whole + frac)
}

// FormatUnits renders base units as a decimal string with exactly decimals
// fractional digits (e.g. 1500000 with 6 decimals is "1.500000").
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		v = new(big.Int)
	}
	neg := v.Sign() < 0
	s := new(big.Int).Abs(v).String()
	if decimals == 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	for len(s) < decimals+1 {
		s = "0" + s
	}
	point := len(s) - decimals
	out := s[:point] + "." + s[point:]
	if neg {
		out = "-" + out
	}
	return out
}
