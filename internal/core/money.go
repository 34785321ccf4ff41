// Package core provides the transaction model and the pure computations
// derived from a transaction collection.
//
// This file contains amount parsing and the conversion of amounts into the
// decimal domain used for every sum.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input into a signed amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted, as is a
// leading sign. Empty, non-numeric and non-finite input is rejected with
// ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("-45,75") -> -45.75, nil
//	ParseAmount("abc")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	// ParseFloat also understands "NaN", "Inf" and hex floats; only plain
	// decimal notation is allowed here.
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
		case (r == '-' || r == '+') && i == 0:
		default:
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(v) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// toDecimal lifts a finite amount into the decimal domain. The boolean is
// false for NaN and infinities, which decimal cannot represent.
func toDecimal(amount float64) (decimal.Decimal, bool) {
	if !isFinite(amount) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(amount), true
}
