package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetAcceleratingDistributorABI covers the staking contract LP tokens are
// deposited into.
func GetAcceleratingDistributorABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [
				{"name": "stakedToken", "type": "address"},
				{"name": "account", "type": "address"}
			],
			"name": "getUserStake",
			"outputs": [
				{
					"components": [
						{"name": "cumulativeBalance", "type": "uint256"},
						{"name": "averageDepositTime", "type": "uint256"},
						{"name": "rewardsAccumulatedPerToken", "type": "uint256"},
						{"name": "rewardsOutstanding", "type": "uint256"}
					],
					"name": "",
					"type": "tuple"
				}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}

// GetMerkleDistributorABI covers the airdrop claims.
func GetMerkleDistributorABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"anonymous": false,
			"inputs": [
				{"indexed": true, "name": "caller", "type": "address"},
				{"indexed": false, "name": "windowIndex", "type": "uint256"},
				{"indexed": true, "name": "account", "type": "address"},
				{"indexed": false, "name": "accountIndex", "type": "uint256"},
				{"indexed": false, "name": "amount", "type": "uint256"},
				{"indexed": true, "name": "rewardToken", "type": "address"}
			],
			"name": "Claimed",
			"type": "event"
		}
	]`)
}
