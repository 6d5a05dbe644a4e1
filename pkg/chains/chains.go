package chains

// ChainList contains the list of chains that run a CacheManager contract
var ChainList = []int{
	42161,  // Arbitrum One
	42170,  // Arbitrum Nova
	421614, // Arbitrum Sepolia
}

// chainNames maps chain IDs to their names
var chainNames = map[int]string{
	42161:  "ARBITRUM_ONE",
	42170:  "ARBITRUM_NOVA",
	421614: "ARBITRUM_SEPOLIA",
}

// defaultRPCURLs maps chain IDs to public RPC endpoints
var defaultRPCURLs = map[int]string{
	42161:  "https://arb1.arbitrum.io/rpc",
	42170:  "https://nova.arbitrum.io/rpc",
	421614: "https://sepolia-rollup.arbitrum.io/rpc",
}

// cacheManagerAddresses maps chain IDs to the deployed CacheManager contract
var cacheManagerAddresses = map[int]string{
	42161:  "0x51dEDBD2f190E0696AFbEE5E60bFdE96d86464ec",
	42170:  "0x20586F83bF11a7cee0A550C53B9DC9A5887de1b7",
	421614: "0x0C9043D042aB52cFa8d0207459260040Cca54253",
}

// PlaceBidDefaultGasLimit is the default gas limit for placeBid transactions per chain
// Exposed for use by other packages
var PlaceBidDefaultGasLimit = map[int]uint64{
	42161:  1500000, // Arbitrum One
	42170:  1500000, // Arbitrum Nova
	421614: 1500000, // Arbitrum Sepolia
}

// IsSupported reports whether a chain ID has a known CacheManager deployment
func IsSupported(chainID int) bool {
	_, exists := cacheManagerAddresses[chainID]
	return exists
}

// GetChainName returns the name of the chain for a given chain ID
func GetChainName(chainID int) string {
	name, exists := chainNames[chainID]
	if !exists {
		return ""
	}
	return name
}

// GetDefaultRPCURL returns the public RPC endpoint for a given chain ID
func GetDefaultRPCURL(chainID int) string {
	return defaultRPCURLs[chainID]
}

// GetCacheManagerAddress returns the CacheManager address for a given chain ID
func GetCacheManagerAddress(chainID int) string {
	return cacheManagerAddresses[chainID]
}
