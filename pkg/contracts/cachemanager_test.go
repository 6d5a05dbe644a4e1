package contracts

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheManagerABI(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(CacheManagerABI))
	require.NoError(t, err)

	placeBid, ok := parsed.Methods[PlaceBidMethod]
	require.True(t, ok)
	assert.True(t, placeBid.IsPayable())

	for _, name := range []string{"getMinBid", "cacheSize", "queueSize", "decay", "isPaused"} {
		method, ok := parsed.Methods[name]
		require.True(t, ok, name)
		assert.True(t, method.IsConstant(), name)
	}

	data, err := parsed.Pack(PlaceBidMethod, common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)
	assert.Len(t, data, 4+32)
}

func TestNewCacheManagerCaller(t *testing.T) {
	caller, err := NewCacheManagerCaller(common.HexToAddress("0x51dEDBD2f190E0696AFbEE5E60bFdE96d86464ec"), nil)
	require.NoError(t, err)
	assert.NotNil(t, caller)
}
