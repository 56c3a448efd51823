// Package money provides shared decimal-amount parsing and formatting.
//
// Amounts travel through the API as decimal strings with two fraction
// digits ("1234.50") and are stored as big.Int cents internally
// (1 unit of currency = 100 cents).
package money

import (
	"math/big"
	"strings"
)

const Decimals = 2

// Parse converts a decimal string (e.g. "1234.50") to its cent
// big.Int representation (123450). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 2 decimal places
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a cent big.Int to a decimal string with exactly
// two fraction digits (e.g. "1234.50").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.00"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// Cmp compares two decimal strings. Returns -1, 0, or +1 like big.Int.Cmp,
// and false if either side does not parse.
func Cmp(a, b string) (int, bool) {
	ab, ok := Parse(a)
	if !ok {
		return 0, false
	}
	bb, ok := Parse(b)
	if !ok {
		return 0, false
	}
	return ab.Cmp(bb), true
}

// Add returns the formatted sum of two decimal strings.
// Returns ("", false) if either side does not parse.
func Add(a, b string) (string, bool) {
	ab, ok := Parse(a)
	if !ok {
		return "", false
	}
	bb, ok := Parse(b)
	if !ok {
		return "", false
	}
	return Format(new(big.Int).Add(ab, bb)), true
}

// Float converts a decimal string to float64 for advisory arithmetic
// (risk ratios). Not for ledger math.
func Float(s string) (float64, bool) {
	cents, ok := Parse(s)
	if !ok {
		return 0, false
	}
	f, _ := new(big.Float).SetInt(cents).Float64()
	return f / 100, true
}
