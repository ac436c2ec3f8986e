package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

func GetConfigStoreABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"name": "", "type": "address"}],
			"name": "l1TokenConfig",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
