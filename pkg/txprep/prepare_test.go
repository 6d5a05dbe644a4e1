package txprep

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/cachekeeper/pkg/contracts"
	"github.com/speedrun-hq/cachekeeper/pkg/gas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cacheManager = "0x51dEDBD2f190E0696AFbEE5E60bFdE96d86464ec"
	program      = "0x1111111111111111111111111111111111111111"
)

func defaultPolicy() gas.Policy {
	return gas.Policy{MaxGasPrice: big.NewInt(100_000_000), GasLimit: 1_500_000}
}

func placeBidIntent(value string) Intent {
	return Intent{
		Address:  cacheManager,
		ABI:      contracts.CacheManagerABI,
		Function: contracts.PlaceBidMethod,
		Args:     []interface{}{common.HexToAddress(program)},
		Value:    value,
	}
}

func TestPrepare(t *testing.T) {
	desc, err := Prepare(placeBidIntent("0.000123456789012345"), defaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(cacheManager), desc.To)
	assert.Equal(t, contracts.PlaceBidMethod, desc.Function)
	assert.Equal(t, "123456789012345", desc.Value.String())
	assert.Equal(t, uint64(1_500_000), desc.Gas.GasLimit)
	assert.Equal(t, "100000000", desc.Gas.MaxGasPrice.String())
	assert.Len(t, desc.Data, 4+32)
}

func TestPrepareWithoutValue(t *testing.T) {
	desc, err := Prepare(placeBidIntent(""), defaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 0, desc.Value.Sign())
}

func TestPrepareOverrides(t *testing.T) {
	intent := placeBidIntent("1")
	intent.MaxGasPriceGwei = "0.5"
	intent.GasLimit = 42

	defaults := defaultPolicy()
	desc, err := Prepare(intent, defaults)
	require.NoError(t, err)

	assert.Equal(t, "500000000", desc.Gas.MaxGasPrice.String())
	assert.Equal(t, uint64(42), desc.Gas.GasLimit)
	assert.Equal(t, "100000000", defaults.MaxGasPrice.String(), "defaults must not be mutated")
}

func TestPrepareErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Intent)
		expected error
	}{
		{name: "bad value", mutate: func(i *Intent) { i.Value = "1.2.3" }, expected: ErrInvalidAmount},
		{name: "negative value", mutate: func(i *Intent) { i.Value = "-1" }, expected: ErrInvalidAmount},
		{name: "bad address", mutate: func(i *Intent) { i.Address = "0xnothex" }, expected: ErrInvalidAddress},
		{name: "unknown function", mutate: func(i *Intent) { i.Function = "withdraw" }, expected: ErrInvalidCall},
		{name: "bad abi", mutate: func(i *Intent) { i.ABI = "{" }, expected: ErrInvalidCall},
		{name: "wrong args", mutate: func(i *Intent) { i.Args = []interface{}{"nope"} }, expected: ErrInvalidCall},
		{
			name: "value on non-payable",
			mutate: func(i *Intent) {
				i.Function = "getMinBid"
			},
			expected: ErrInvalidCall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := placeBidIntent("0.1")
			tt.mutate(&intent)

			_, err := Prepare(intent, defaultPolicy())
			assert.True(t, errors.Is(err, tt.expected), "expected %v, got %v", tt.expected, err)
		})
	}
}
