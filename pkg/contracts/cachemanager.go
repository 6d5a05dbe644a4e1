package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// CacheManagerABI is the ABI of the Stylus CacheManager contract
const CacheManagerABI = `[
	{
		"inputs": [{"internalType": "address", "name": "program", "type": "address"}],
		"name": "placeBid",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "program", "type": "address"}],
		"name": "getMinBid",
		"outputs": [{"internalType": "uint192", "name": "min", "type": "uint192"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "cacheSize",
		"outputs": [{"internalType": "uint64", "name": "", "type": "uint64"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "queueSize",
		"outputs": [{"internalType": "uint64", "name": "", "type": "uint64"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decay",
		"outputs": [{"internalType": "uint64", "name": "", "type": "uint64"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "isPaused",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "codehash", "type": "bytes32"},
			{"indexed": false, "internalType": "address", "name": "program", "type": "address"},
			{"indexed": false, "internalType": "uint192", "name": "bid", "type": "uint192"},
			{"indexed": false, "internalType": "uint64", "name": "size", "type": "uint64"}
		],
		"name": "InsertBid",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "codehash", "type": "bytes32"},
			{"indexed": false, "internalType": "uint192", "name": "bid", "type": "uint192"},
			{"indexed": false, "internalType": "uint64", "name": "size", "type": "uint64"}
		],
		"name": "DeleteBid",
		"type": "event"
	}
]`

// PlaceBidMethod is the payable CacheManager method that bids for a program
const PlaceBidMethod = "placeBid"

// CacheManagerCaller is a read-only Go binding around the CacheManager contract.
type CacheManagerCaller struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// NewCacheManagerCaller creates a new read-only instance of CacheManager, bound to a specific deployed contract.
func NewCacheManagerCaller(address common.Address, caller bind.ContractCaller) (*CacheManagerCaller, error) {
	contract, err := bindCacheManager(address, caller, nil, nil)
	if err != nil {
		return nil, err
	}
	return &CacheManagerCaller{contract: contract}, nil
}

// bindCacheManager binds a generic wrapper to an already deployed contract.
func bindCacheManager(address common.Address, caller bind.ContractCaller, transactor bind.ContractTransactor, filterer bind.ContractFilterer) (*bind.BoundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(CacheManagerABI))
	if err != nil {
		return nil, err
	}
	return bind.NewBoundContract(address, parsed, caller, transactor, filterer), nil
}

// GetMinBid is a free data retrieval call binding the contract method getMinBid(address program).
//
// Solidity: function getMinBid(address program) view returns(uint192 min)
func (_CacheManager *CacheManagerCaller) GetMinBid(opts *bind.CallOpts, program common.Address) (*big.Int, error) {
	var out []interface{}
	err := _CacheManager.contract.Call(opts, &out, "getMinBid", program)
	if err != nil {
		return new(big.Int), err
	}

	out0 := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return out0, err
}

// CacheSize is a free data retrieval call binding the contract method cacheSize().
//
// Solidity: function cacheSize() view returns(uint64)
func (_CacheManager *CacheManagerCaller) CacheSize(opts *bind.CallOpts) (uint64, error) {
	return _CacheManager.callUint64(opts, "cacheSize")
}

// QueueSize is a free data retrieval call binding the contract method queueSize().
//
// Solidity: function queueSize() view returns(uint64)
func (_CacheManager *CacheManagerCaller) QueueSize(opts *bind.CallOpts) (uint64, error) {
	return _CacheManager.callUint64(opts, "queueSize")
}

// Decay is a free data retrieval call binding the contract method decay().
//
// Solidity: function decay() view returns(uint64)
func (_CacheManager *CacheManagerCaller) Decay(opts *bind.CallOpts) (uint64, error) {
	return _CacheManager.callUint64(opts, "decay")
}

// IsPaused is a free data retrieval call binding the contract method isPaused().
//
// Solidity: function isPaused() view returns(bool)
func (_CacheManager *CacheManagerCaller) IsPaused(opts *bind.CallOpts) (bool, error) {
	var out []interface{}
	err := _CacheManager.contract.Call(opts, &out, "isPaused")
	if err != nil {
		return false, err
	}

	out0 := *abi.ConvertType(out[0], new(bool)).(*bool)
	return out0, err
}

func (_CacheManager *CacheManagerCaller) callUint64(opts *bind.CallOpts, method string) (uint64, error) {
	var out []interface{}
	err := _CacheManager.contract.Call(opts, &out, method)
	if err != nil {
		return 0, err
	}

	out0 := *abi.ConvertType(out[0], new(uint64)).(*uint64)
	return out0, err
}
