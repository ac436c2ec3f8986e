package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

// txHash derives a deterministic transaction hash for a key.
func txHash(key entity.EventKey) common.Hash {
	return crypto.Keccak256Hash([]byte(key.String()))
}

// LiquidityAddedLog builds a decoded LiquidityAdded log.
func LiquidityAddedLog(hubPool common.Address, key entity.EventKey, asset, provider common.Address, amount int64) entity.LogEvent {
	return entity.LogEvent{
		Key:     key,
		Address: hubPool,
		TxHash:  txHash(key),
		Name:    entity.EventLiquidityAdded,
		Args: map[string]any{
			"l1Token":           asset,
			"liquidityProvider": provider,
			"amount":            big.NewInt(amount),
			"lpTokensMinted":    big.NewInt(amount),
		},
	}
}

// LiquidityRemovedLog builds a decoded LiquidityRemoved log.
func LiquidityRemovedLog(hubPool common.Address, key entity.EventKey, asset, provider common.Address, amount int64) entity.LogEvent {
	return entity.LogEvent{
		Key:     key,
		Address: hubPool,
		TxHash:  txHash(key),
		Name:    entity.EventLiquidityRemoved,
		Args: map[string]any{
			"l1Token":           asset,
			"liquidityProvider": provider,
			"amount":            big.NewInt(amount),
			"lpTokensBurnt":     big.NewInt(amount),
		},
	}
}

// TransferLog builds a decoded ERC20 Transfer log.
func TransferLog(token common.Address, key entity.EventKey, from, to common.Address, value int64) entity.LogEvent {
	return entity.LogEvent{
		Key:     key,
		Address: token,
		TxHash:  txHash(key),
		Name:    entity.EventTransfer,
		Args: map[string]any{
			"from":  from,
			"to":    to,
			"value": big.NewInt(value),
		},
	}
}

// Claim builds a merkle distributor claim.
func Claim(key entity.EventKey, account, rewardToken common.Address, amount *big.Int) entity.ClaimEvent {
	return entity.ClaimEvent{
		Key:         key,
		TxHash:      txHash(key),
		Account:     account,
		RewardToken: rewardToken,
		Amount:      amount,
	}
}

// Ether returns n * 1e18.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), entity.WeiPerEther)
}
