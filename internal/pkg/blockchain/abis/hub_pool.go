package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetHubPoolABI covers the liquidity events and the per-token pool views.
// exchangeRateCurrent and liquidityUtilizationCurrent are non-view in the
// contract; they are only ever reached through eth_call.
func GetHubPoolABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"anonymous": false,
			"inputs": [
				{"indexed": true, "name": "l1Token", "type": "address"},
				{"indexed": false, "name": "amount", "type": "uint256"},
				{"indexed": false, "name": "lpTokensMinted", "type": "uint256"},
				{"indexed": true, "name": "liquidityProvider", "type": "address"}
			],
			"name": "LiquidityAdded",
			"type": "event"
		},
		{
			"anonymous": false,
			"inputs": [
				{"indexed": true, "name": "l1Token", "type": "address"},
				{"indexed": false, "name": "amount", "type": "uint256"},
				{"indexed": false, "name": "lpTokensBurnt", "type": "uint256"},
				{"indexed": true, "name": "liquidityProvider", "type": "address"}
			],
			"name": "LiquidityRemoved",
			"type": "event"
		},
		{
			"inputs": [{"name": "", "type": "address"}],
			"name": "pooledTokens",
			"outputs": [
				{"name": "lpToken", "type": "address"},
				{"name": "isEnabled", "type": "bool"},
				{"name": "lastLpFeeUpdate", "type": "uint32"},
				{"name": "utilizedReserves", "type": "int256"},
				{"name": "liquidReserves", "type": "uint256"},
				{"name": "undistributedLpFees", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "l1Token", "type": "address"}],
			"name": "exchangeRateCurrent",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "l1Token", "type": "address"}],
			"name": "liquidityUtilizationCurrent",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
}
