package chainclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/speedrun-hq/cachekeeper/pkg/contracts"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/metrics"
	"github.com/speedrun-hq/cachekeeper/pkg/txlifecycle"
	"github.com/speedrun-hq/cachekeeper/pkg/txprep"
	"github.com/speedrun-hq/cachekeeper/pkg/units"
)

// ErrNoSigner means the client was created without a private key
var ErrNoSigner = errors.New("no signing key configured")

const (
	rpcTimeout                 = 10 * time.Second
	defaultReceiptPollInterval = time.Second
	defaultMinBidTTL           = 30 * time.Second
)

// RPC is the subset of *ethclient.Client the client needs
type RPC interface {
	bind.ContractCaller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client is the chain provider for one chain and one signing key. It implements
// txlifecycle.Provider.
type Client struct {
	ChainID             int
	RPCURL              string
	CacheManagerAddress common.Address

	rpc          RPC
	chainID      *big.Int
	key          *ecdsa.PrivateKey
	from         common.Address
	nonces       *NonceTracker
	cacheManager *contracts.CacheManagerCaller
	minBids      *MinBidCache
	logger       logger.Logger

	receiptPollInterval time.Duration
}

var _ txlifecycle.Provider = (*Client)(nil)

// New dials rpcURL and creates a client. privateKey may be empty for a read-only client.
func New(ctx context.Context, chainID int, rpcURL, cacheManagerAddress, privateKey string, log logger.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d: %w", chainID, err)
	}
	client, err := NewWithRPC(ctx, rpc, chainID, cacheManagerAddress, privateKey, log)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	client.RPCURL = rpcURL
	return client, nil
}

// NewWithRPC creates a client over an existing connection
func NewWithRPC(ctx context.Context, rpc RPC, chainID int, cacheManagerAddress, privateKey string, log logger.Logger) (*Client, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if !common.IsHexAddress(cacheManagerAddress) {
		return nil, fmt.Errorf("invalid cache manager address: %q", cacheManagerAddress)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	remoteID, err := rpc.ChainID(timeoutCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if remoteID.Cmp(big.NewInt(int64(chainID))) != 0 {
		return nil, fmt.Errorf("RPC serves chain %s, expected %d", remoteID, chainID)
	}

	address := common.HexToAddress(cacheManagerAddress)
	cacheManager, err := contracts.NewCacheManagerCaller(address, rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache manager: %w", err)
	}

	c := &Client{
		ChainID:             chainID,
		CacheManagerAddress: address,
		rpc:                 rpc,
		chainID:             remoteID,
		cacheManager:        cacheManager,
		minBids:             NewMinBidCache(defaultMinBidTTL),
		logger:              log,
		receiptPollInterval: defaultReceiptPollInterval,
	}

	if privateKey != "" {
		key, err := crypto.HexToECDSA(trimHexPrefix(privateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
		c.nonces = NewNonceTracker(rpc, c.from, log)
	}

	return c, nil
}

// From returns the signing address, or the zero address for a read-only client
func (c *Client) From() common.Address {
	return c.from
}

// PrivateKey returns the signing key, or nil
func (c *Client) PrivateKey() *ecdsa.PrivateKey {
	return c.key
}

// CanSign reports whether the client has a key
func (c *Client) CanSign() bool {
	return c.key != nil
}

// GasPrice returns the current network gas price and publishes it as a gauge
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	gasPrice, err := c.rpc.SuggestGasPrice(timeoutCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if gwei, err := strconv.ParseFloat(units.FormatGwei(gasPrice), 64); err == nil {
		metrics.GasPrice.WithLabelValues(strconv.Itoa(c.ChainID)).Set(gwei)
	}
	return gasPrice, nil
}

// SendCall signs the call with the client key and broadcasts it
func (c *Client) SendCall(ctx context.Context, call txprep.Descriptor) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrNoSigner
	}

	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	// never sign above the ceiling the lifecycle admitted
	if ceiling := call.Gas.MaxGasPrice; ceiling != nil && gasPrice.Cmp(ceiling) > 0 {
		gasPrice = new(big.Int).Set(ceiling)
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit := call.Gas.GasLimit
	if gasLimit == 0 {
		to := call.To
		gasLimit, err = c.rpc.EstimateGas(ctx, ethereum.CallMsg{
			From:     c.from,
			To:       &to,
			GasPrice: gasPrice,
			Value:    value,
			Data:     call.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	nonce, err := c.nonces.Next(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	to := call.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     call.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		c.nonces.Release(nonce)
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		c.nonces.Release(nonce)
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.nonces.Track(nonce, signed.Hash())
	c.logger.DebugWithChain(c.ChainID, "Sent %s to %s with nonce %d, gas %d at %s gwei",
		signed.Hash().Hex(), call.To.Hex(), nonce, gasLimit, units.FormatGwei(gasPrice))
	return signed.Hash(), nil
}

// WaitReceipt polls for the receipt until it exists or ctx ends
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil {
			if c.nonces != nil {
				c.nonces.Confirm(hash)
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.DebugWithChain(c.ChainID, "Receipt lookup for %s failed: %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetLatestBlockNumber gets the latest block number from the chain
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
