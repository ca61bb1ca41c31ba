// Package core provides the currency domain types and conversion arithmetic.
//
// This file contains amount parsing and the conversion engine. Amounts are
// handled as decimals so user input such as "10,5" converts without binary
// rounding surprises.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// maxAmountLen bounds the raw input so parsing stays cheap.
	maxAmountLen = 64
	// maxAmountMagnitude bounds the digits of an amount on either side of the
	// point, keeping every result finite as a float64.
	maxAmountMagnitude = 100
)

// ParseAmount parses raw user input into a decimal.
//
// A decimal comma is accepted in place of the decimal point and surrounding
// whitespace is ignored. Inputs longer than maxAmountLen characters, or
// with more than 100 integer or fractional digits once the exponent is
// applied, are rejected.
//
// Examples:
//
//	ParseAmount("12.5")  -> 12.5, true
//	ParseAmount("12,5")  -> 12.5, true
//	ParseAmount("abc")   -> 0, false
//	ParseAmount("1e400") -> 0, false
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if s == "" || len(s) > maxAmountLen {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	exp := int(d.Exponent())
	if exp < -maxAmountMagnitude || d.NumDigits()+exp > maxAmountMagnitude {
		return decimal.Zero, false
	}
	return d, true
}

// Convert returns amountRaw expressed in the target currency, where both rates
// are relative to the same base. Unparsable amounts, non-positive source
// rates and results that do not fit a float64 yield 0.
func Convert(amountRaw string, fromRate, toRate float64) float64 {
	if fromRate <= 0 {
		return 0
	}
	amount, ok := ParseAmount(amountRaw)
	if !ok {
		return 0
	}
	result := amount.
		Mul(decimal.NewFromFloat(toRate)).
		Div(decimal.NewFromFloat(fromRate))
	f, _ := result.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

// Convert looks up both rates in the table and converts amountRaw.
// A missing rate yields 0.
func (t *RateTable) Convert(amountRaw, from, to string) float64 {
	fromRate, ok := t.Rate(from)
	if !ok {
		return 0
	}
	toRate, ok := t.Rate(to)
	if !ok {
		return 0
	}
	return Convert(amountRaw, fromRate, toRate)
}

// FormatAmount renders v with two decimals, half away from zero.
// Infinities and NaN are rendered as strconv does.
func FormatAmount(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}
