// Package gas decides whether a transaction may go out at the current network gas price.
package gas

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/speedrun-hq/cachekeeper/pkg/units"
)

// ErrGasPriceTooHigh is returned by Policy.Check when the network price is above the ceiling
var ErrGasPriceTooHigh = errors.New("gas price too high")

// IsAcceptable reports whether currentGwei <= ceilingGwei. Both values are decimal
// gwei strings; anything unparseable is rejected.
func IsAcceptable(currentGwei, ceilingGwei string) bool {
	current, err := units.ParseGwei(currentGwei)
	if err != nil {
		return false
	}
	ceiling, err := units.ParseGwei(ceilingGwei)
	if err != nil {
		return false
	}
	return current.Cmp(ceiling) <= 0
}

// Policy is the gas configuration attached to a transaction at preparation time.
type Policy struct {
	MaxGasPrice *big.Int // wei
	GasLimit    uint64
}

// NewPolicy creates a policy from a ceiling expressed in gwei
func NewPolicy(maxGasPriceGwei string, gasLimit uint64) (Policy, error) {
	ceiling, err := units.ParseGwei(maxGasPriceGwei)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid gas ceiling: %w", err)
	}
	return Policy{MaxGasPrice: ceiling, GasLimit: gasLimit}, nil
}

// Allows reports whether a gas price in wei is within the ceiling. A nil price or a
// policy without a ceiling rejects.
func (p Policy) Allows(gasPrice *big.Int) bool {
	if gasPrice == nil || p.MaxGasPrice == nil || gasPrice.Sign() < 0 {
		return false
	}
	return gasPrice.Cmp(p.MaxGasPrice) <= 0
}

// Check is the blocking use of the policy: a rejected price becomes an error
// and the caller must not submit.
func (p Policy) Check(gasPrice *big.Int) error {
	if p.Allows(gasPrice) {
		return nil
	}
	return fmt.Errorf("%w: current %s gwei, maximum %s gwei",
		ErrGasPriceTooHigh, formatPrice(gasPrice), formatPrice(p.MaxGasPrice))
}

// Advisory is the non-blocking use of the policy. The caller may still submit.
type Advisory struct {
	Exceeded    bool
	GasPrice    *big.Int
	MaxGasPrice *big.Int
}

// Advise evaluates the same predicate as Check but returns a warning instead of an error
func (p Policy) Advise(gasPrice *big.Int) Advisory {
	return Advisory{
		Exceeded:    !p.Allows(gasPrice),
		GasPrice:    gasPrice,
		MaxGasPrice: p.MaxGasPrice,
	}
}

// Message returns a human readable warning, or "" when the price is acceptable
func (a Advisory) Message() string {
	if !a.Exceeded {
		return ""
	}
	return fmt.Sprintf("network gas price %s gwei is above the configured maximum of %s gwei",
		formatPrice(a.GasPrice), formatPrice(a.MaxGasPrice))
}

func formatPrice(wei *big.Int) string {
	if wei == nil {
		return "unknown"
	}
	return units.FormatGwei(wei)
}
