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

// Compile-time check that HubPoolReader implements outbound.PoolReader
var _ outbound.PoolReader = (*HubPoolReader)(nil)

// HubPoolReader reads pool state through multicall so that every value of a
// snapshot comes from the same block.
type HubPoolReader struct {
	multicaller outbound.Multicaller
	hubPool     common.Address
	hubABI      *abi.ABI
	erc20ABI    *abi.ABI
}

func NewHubPoolReader(multicaller outbound.Multicaller, hubPool common.Address) (*HubPoolReader, error) {
	if multicaller == nil {
		return nil, errors.New("multicaller is required")
	}
	if hubPool == (common.Address{}) {
		return nil, errors.New("hub pool address is required")
	}
	hubABI, err := abis.GetHubPoolABI()
	if err != nil {
		return nil, err
	}
	erc20ABI, err := abis.GetERC20ABI()
	if err != nil {
		return nil, err
	}
	return &HubPoolReader{
		multicaller: multicaller,
		hubPool:     hubPool,
		hubABI:      hubABI,
		erc20ABI:    erc20ABI,
	}, nil
}

// PoolState reads pooledTokens, exchangeRateCurrent and
// liquidityUtilizationCurrent in one round trip. The rate and utilization
// calls revert for tokens the hub pool never enabled; such an asset comes back
// with a zero LPToken.
func (r *HubPoolReader) PoolState(ctx context.Context, asset common.Address, block uint64) (entity.PoolReads, error) {
	calls := make([]outbound.Call, 0, 3)
	for _, method := range []string{"pooledTokens", "exchangeRateCurrent", "liquidityUtilizationCurrent"} {
		data, err := r.hubABI.Pack(method, asset)
		if err != nil {
			return entity.PoolReads{}, fmt.Errorf("failed to pack %s: %w", method, err)
		}
		calls = append(calls, outbound.Call{Target: r.hubPool, AllowFailure: method != "pooledTokens", CallData: data})
	}

	results, err := r.multicaller.Execute(ctx, calls, new(big.Int).SetUint64(block))
	if err != nil {
		return entity.PoolReads{}, err
	}
	if len(results) != len(calls) {
		return entity.PoolReads{}, fmt.Errorf("expected %d results, got %d", len(calls), len(results))
	}

	reads, err := r.unpackPooledToken(results[0].ReturnData)
	if err != nil {
		return entity.PoolReads{}, err
	}
	reads.Block = block
	if reads.LPToken == (common.Address{}) {
		return reads, nil
	}

	if !results[1].Success || !results[2].Success {
		return entity.PoolReads{}, fmt.Errorf("hub pool rate reads of %s reverted at block %d", asset.Hex(), block)
	}
	if reads.ExchangeRate, err = r.unpackUint(r.hubABI, "exchangeRateCurrent", results[1].ReturnData); err != nil {
		return entity.PoolReads{}, err
	}
	if reads.LiquidityUtilization, err = r.unpackUint(r.hubABI, "liquidityUtilizationCurrent", results[2].ReturnData); err != nil {
		return entity.PoolReads{}, err
	}
	return reads, nil
}

func (r *HubPoolReader) ExchangeRateAt(ctx context.Context, asset common.Address, block uint64) (*big.Int, error) {
	data, err := r.hubABI.Pack("exchangeRateCurrent", asset)
	if err != nil {
		return nil, fmt.Errorf("failed to pack exchangeRateCurrent: %w", err)
	}
	return r.single(ctx, r.hubPool, r.hubABI, "exchangeRateCurrent", data, block)
}

func (r *HubPoolReader) BalanceOf(ctx context.Context, token, account common.Address, block uint64) (*big.Int, error) {
	data, err := r.erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}
	return r.single(ctx, token, r.erc20ABI, "balanceOf", data, block)
}

func (r *HubPoolReader) single(ctx context.Context, target common.Address, contract *abi.ABI, method string, data []byte, block uint64) (*big.Int, error) {
	results, err := r.multicaller.Execute(ctx, []outbound.Call{{Target: target, CallData: data}}, new(big.Int).SetUint64(block))
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected 1 result, got %d", len(results))
	}
	return r.unpackUint(contract, method, results[0].ReturnData)
}

func (r *HubPoolReader) unpackPooledToken(data []byte) (entity.PoolReads, error) {
	out, err := r.hubABI.Unpack("pooledTokens", data)
	if err != nil {
		return entity.PoolReads{}, fmt.Errorf("failed to unpack pooledTokens: %w", err)
	}
	if len(out) != 6 {
		return entity.PoolReads{}, fmt.Errorf("pooledTokens returned %d values, want 6", len(out))
	}

	lpToken, ok1 := out[0].(common.Address)
	isEnabled, ok2 := out[1].(bool)
	utilized, ok3 := out[3].(*big.Int)
	liquid, ok4 := out[4].(*big.Int)
	fees, ok5 := out[5].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return entity.PoolReads{}, errors.New("unexpected pooledTokens output types")
	}

	return entity.PoolReads{
		LPToken:             lpToken,
		IsEnabled:           isEnabled,
		LiquidReserves:      liquid,
		UtilizedReserves:    utilized,
		UndistributedLpFees: fees,
	}, nil
}

func (r *HubPoolReader) unpackUint(contract *abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := contract.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s returned %d values, want 1", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, want uint256", method, out[0])
	}
	return v, nil
}
