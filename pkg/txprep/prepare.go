// Package txprep turns a high-level transaction intent into a call descriptor
// ready to hand to a chain provider.
package txprep

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/cachekeeper/pkg/gas"
	"github.com/speedrun-hq/cachekeeper/pkg/units"
)

var (
	// ErrInvalidAmount is returned when the intent value is not a non-negative decimal
	ErrInvalidAmount = units.ErrInvalidAmount
	// ErrInvalidAddress is returned when the target is not a hex account address
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidCall is returned when the ABI, function or arguments do not line up
	ErrInvalidCall = errors.New("invalid contract call")
)

// Intent describes a desired contract call. It is treated as immutable once created.
type Intent struct {
	Address  string        `json:"address"`
	ABI      string        `json:"abi"`
	Function string        `json:"function"`
	Args     []interface{} `json:"args,omitempty"`
	// Value is an ETH amount as a decimal string, empty for none
	Value string `json:"value,omitempty"`
	// MaxGasPriceGwei overrides the policy ceiling when set
	MaxGasPriceGwei string `json:"max_gas_price_gwei,omitempty"`
	// GasLimit overrides the policy gas limit when non-zero
	GasLimit uint64 `json:"gas_limit,omitempty"`
}

// Descriptor is a fully resolved contract call
type Descriptor struct {
	To       common.Address
	Function string
	Data     []byte
	Value    *big.Int // wei
	Gas      gas.Policy
}

// Prepare validates the intent and resolves it against the default gas policy.
// Nothing here touches the network.
func Prepare(intent Intent, defaults gas.Policy) (Descriptor, error) {
	if !common.IsHexAddress(intent.Address) {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidAddress, intent.Address)
	}

	value := new(big.Int)
	if strings.TrimSpace(intent.Value) != "" {
		parsed, err := units.ParseEther(intent.Value)
		if err != nil {
			return Descriptor{}, err
		}
		value = parsed
	}

	parsedABI, err := abi.JSON(strings.NewReader(intent.ABI))
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: failed to parse ABI: %v", ErrInvalidCall, err)
	}

	method, exists := parsedABI.Methods[intent.Function]
	if !exists {
		return Descriptor{}, fmt.Errorf("%w: function %s not found in ABI", ErrInvalidCall, intent.Function)
	}
	if value.Sign() > 0 && !method.IsPayable() {
		return Descriptor{}, fmt.Errorf("%w: function %s is not payable", ErrInvalidCall, intent.Function)
	}

	data, err := parsedABI.Pack(intent.Function, intent.Args...)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: failed to pack %s: %v", ErrInvalidCall, intent.Function, err)
	}

	policy := gas.Policy{GasLimit: defaults.GasLimit}
	if defaults.MaxGasPrice != nil {
		policy.MaxGasPrice = new(big.Int).Set(defaults.MaxGasPrice)
	}
	if intent.MaxGasPriceGwei != "" {
		ceiling, err := units.ParseGwei(intent.MaxGasPriceGwei)
		if err != nil {
			return Descriptor{}, fmt.Errorf("invalid gas ceiling override: %w", err)
		}
		policy.MaxGasPrice = ceiling
	}
	if intent.GasLimit != 0 {
		policy.GasLimit = intent.GasLimit
	}

	return Descriptor{
		To:       common.HexToAddress(intent.Address),
		Function: intent.Function,
		Data:     data,
		Value:    value,
		Gas:      policy,
	}, nil
}
