package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time check that DistributorReader implements outbound.DistributorReader
var _ outbound.DistributorReader = (*DistributorReader)(nil)

type DistributorConfig struct {
	// AcceleratingDistributor is the staking contract.
	AcceleratingDistributor common.Address

	// MerkleDistributor pays out reward claims. Leave zero when the chain has
	// none; users then have no claims.
	MerkleDistributor common.Address

	// DeployBlock is where claim scans start.
	DeployBlock uint64
}

type DistributorReader struct {
	config      DistributorConfig
	multicaller outbound.Multicaller
	ledger      outbound.LedgerReader
	abi         *abi.ABI
}

func NewDistributorReader(config DistributorConfig, multicaller outbound.Multicaller, ledger outbound.LedgerReader) (*DistributorReader, error) {
	if multicaller == nil {
		return nil, errors.New("multicaller is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger reader is required")
	}
	if config.AcceleratingDistributor == (common.Address{}) {
		return nil, errors.New("accelerating distributor address is required")
	}
	parsed, err := abis.GetAcceleratingDistributorABI()
	if err != nil {
		return nil, err
	}
	return &DistributorReader{config: config, multicaller: multicaller, ledger: ledger, abi: parsed}, nil
}

type userDeposit struct {
	CumulativeBalance          *big.Int
	AverageDepositTime         *big.Int
	RewardsAccumulatedPerToken *big.Int
	RewardsOutstanding         *big.Int
}

func (r *DistributorReader) CumulativeStake(ctx context.Context, lpToken, user common.Address, block uint64) (*big.Int, error) {
	data, err := r.abi.Pack("getUserStake", lpToken, user)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getUserStake: %w", err)
	}
	results, err := r.multicaller.Execute(ctx, []outbound.Call{{Target: r.config.AcceleratingDistributor, CallData: data}}, new(big.Int).SetUint64(block))
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected 1 result, got %d", len(results))
	}

	out, err := r.abi.Unpack("getUserStake", results[0].ReturnData)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getUserStake: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getUserStake returned %d values, want 1", len(out))
	}
	deposit, ok := abi.ConvertType(out[0], new(userDeposit)).(*userDeposit)
	if !ok || deposit.CumulativeBalance == nil {
		return nil, fmt.Errorf("unexpected getUserStake output %T", out[0])
	}
	return deposit.CumulativeBalance, nil
}

// Claims scans Claimed events of user for rewardToken from the deploy block.
func (r *DistributorReader) Claims(ctx context.Context, user, rewardToken common.Address, toBlock uint64) ([]entity.ClaimEvent, error) {
	if r.config.MerkleDistributor == (common.Address{}) || toBlock < r.config.DeployBlock {
		return nil, nil
	}

	logs, err := r.ledger.QueryEvents(ctx, outbound.EventFilter{
		Contract: r.config.MerkleDistributor,
		Event:    entity.EventClaimed,
		Indexed:  map[string]common.Address{"account": user, "rewardToken": rewardToken},
	}, r.config.DeployBlock, toBlock)
	if err != nil {
		return nil, err
	}

	claims := make([]entity.ClaimEvent, 0, len(logs))
	for _, log := range logs {
		claim, err := entity.NewClaimEvent(log)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *claim)
	}
	return claims, nil
}
