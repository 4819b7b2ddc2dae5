// Package money provides decimal amount parsing and arithmetic helpers.
//
// Amounts travel through the system as decimal strings (e.g. "0.03") and
// are converted to big.Int in the smallest unit for math. Six decimal
// places, matching USDC precision (1 unit = 0.000001).
package money

import (
	"math/big"
	"strings"
)

const Decimals = 6

// DefaultCurrency is assumed when an order omits the currency code.
const DefaultCurrency = "USDC"

// Accepted currency codes for orders.
var acceptedCurrencies = map[string]bool{
	"USDC": true,
	"USD":  true,
}

// AcceptedCurrency reports whether code is a currency the pipeline settles.
func AcceptedCurrency(code string) bool {
	return acceptedCurrencies[strings.ToUpper(code)]
}

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation (1500000). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 6 decimal places
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

// ParsePositive is Parse restricted to amounts strictly greater than zero.
func ParsePositive(s string) (*big.Int, bool) {
	v, ok := Parse(s)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

// Format converts a smallest-unit big.Int to a decimal string with exactly
// six decimal places (e.g. "1.500000").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.000000"
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

// Add returns a+b as a new big.Int.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// Sub returns a-b as a new big.Int.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// Fraction returns numerator/denominator applied to amount using integer
// math (amount * num / den). Used for percentage-of-ceiling comparisons.
func Fraction(amount *big.Int, num, den int64) *big.Int {
	r := new(big.Int).Mul(amount, big.NewInt(num))
	return r.Div(r, big.NewInt(den))
}
