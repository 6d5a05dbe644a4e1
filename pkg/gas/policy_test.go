package gas

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAcceptable(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		ceiling  string
		expected bool
	}{
		{name: "below", current: "0.01", ceiling: "0.1", expected: true},
		{name: "equal", current: "0.1", ceiling: "0.1", expected: true},
		{name: "above", current: "0.100000001", ceiling: "0.1", expected: false},
		{name: "unparseable current", current: "NaN", ceiling: "0.1", expected: false},
		{name: "empty current", current: "", ceiling: "0.1", expected: false},
		{name: "negative current", current: "-1", ceiling: "0.1", expected: false},
		{name: "unparseable ceiling", current: "0.01", ceiling: "high", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsAcceptable(tt.current, tt.ceiling))
		})
	}
}

func TestIsAcceptableMatchesComparison(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("IsAcceptable(g, c) == (g <= c)", prop.ForAll(
		func(g, c uint32) bool {
			gs := fmt.Sprintf("%d.%03d", g/1000, g%1000)
			cs := fmt.Sprintf("%d.%03d", c/1000, c%1000)
			return IsAcceptable(gs, cs) == (g <= c)
		},
		gen.UInt32Range(0, 1_000_000),
		gen.UInt32Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}

func TestPolicyCheck(t *testing.T) {
	policy, err := NewPolicy("0.1", 1_500_000)
	require.NoError(t, err)

	assert.NoError(t, policy.Check(big.NewInt(100_000_000)))
	assert.NoError(t, policy.Check(big.NewInt(1)))

	err = policy.Check(big.NewInt(100_000_001))
	assert.True(t, errors.Is(err, ErrGasPriceTooHigh))
	assert.Contains(t, err.Error(), "0.100000001")

	err = policy.Check(nil)
	assert.True(t, errors.Is(err, ErrGasPriceTooHigh), "unknown gas price must fail closed")
}

func TestPolicyAdvise(t *testing.T) {
	policy := Policy{MaxGasPrice: big.NewInt(100_000_000), GasLimit: 1}

	ok := policy.Advise(big.NewInt(50_000_000))
	assert.False(t, ok.Exceeded)
	assert.Empty(t, ok.Message())

	high := policy.Advise(big.NewInt(200_000_000))
	assert.True(t, high.Exceeded)
	assert.Equal(t, "network gas price 0.2 gwei is above the configured maximum of 0.1 gwei", high.Message())
}

func TestNewPolicyRejectsBadCeiling(t *testing.T) {
	_, err := NewPolicy("ten", 1)
	assert.Error(t, err)
}

func TestPolicyWithoutCeilingRejects(t *testing.T) {
	assert.False(t, Policy{}.Allows(big.NewInt(0)))
}
