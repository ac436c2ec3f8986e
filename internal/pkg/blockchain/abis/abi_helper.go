// Package abis holds the contract ABIs the pool state reader calls or decodes
// logs from.
package abis

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}
	return &parsed, nil
}

// EventABIs returns every ABI that declares an event the ledger reader decodes.
func EventABIs() ([]*abi.ABI, error) {
	loaders := []func() (*abi.ABI, error){
		GetHubPoolABI,
		GetERC20ABI,
		GetMerkleDistributorABI,
	}
	out := make([]*abi.ABI, 0, len(loaders))
	for _, load := range loaders {
		parsed, err := load()
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}
