// Package units converts between decimal token amounts and integer base units.
//
// All arithmetic is done on math/big integers. Amounts never pass through
// float64, which cannot represent 18-decimal values exactly.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// EtherDecimals is the number of decimals between ETH and wei
	EtherDecimals = 18
	// GweiDecimals is the number of decimals between gwei and wei
	GweiDecimals = 9
)

// ErrInvalidAmount is returned for amounts that are not non-negative base-10 decimals
var ErrInvalidAmount = errors.New("invalid amount")

// ParseUnits converts a decimal string such as "1.25" into base units with the
// given number of decimals. Negative values, exponents and fractional digits
// beyond the precision of the unit are rejected.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if hasDot && intPart == "" && fracPart == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return nil, fmt.Errorf("%w: %q is not a non-negative decimal", ErrInvalidAmount, amount)
	}

	// Trailing zeros carry no value, so "1.500" is fine for a 2-decimal unit
	fracPart = strings.TrimRight(fracPart, "0")
	if len(fracPart) > decimals {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, amount, decimals)
	}

	digits := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(big.Int), nil
	}

	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return value, nil
}

// FormatUnits renders base units as a decimal string with trailing zeros stripped.
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	sign := ""
	abs := new(big.Int).Set(value)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	digits := abs.String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}

	split := len(digits) - decimals
	intPart, fracPart := digits[:split], strings.TrimRight(digits[split:], "0")
	if fracPart == "" {
		return sign + intPart
	}
	return sign + intPart + "." + fracPart
}

// ParseEther converts an ETH-denominated decimal string into wei
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, EtherDecimals)
}

// FormatEther converts wei into an ETH-denominated decimal string
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, EtherDecimals)
}

// ParseGwei converts a gwei-denominated decimal string into wei
func ParseGwei(amount string) (*big.Int, error) {
	return ParseUnits(amount, GweiDecimals)
}

// FormatGwei converts wei into a gwei-denominated decimal string
func FormatGwei(wei *big.Int) string {
	return FormatUnits(wei, GweiDecimals)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
