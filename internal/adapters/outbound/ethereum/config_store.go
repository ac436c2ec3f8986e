package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time check that ConfigStoreRateModels implements outbound.RateModelProvider
var _ outbound.RateModelProvider = (*ConfigStoreRateModels)(nil)

// ConfigStoreRateModels reads rate models from the JSON blob the config store
// keeps per L1 token.
type ConfigStoreRateModels struct {
	multicaller outbound.Multicaller
	configStore common.Address
	abi         *abi.ABI
}

func NewConfigStoreRateModels(multicaller outbound.Multicaller, configStore common.Address) (*ConfigStoreRateModels, error) {
	if multicaller == nil {
		return nil, errors.New("multicaller is required")
	}
	if configStore == (common.Address{}) {
		return nil, errors.New("config store address is required")
	}
	parsed, err := abis.GetConfigStoreABI()
	if err != nil {
		return nil, err
	}
	return &ConfigStoreRateModels{multicaller: multicaller, configStore: configStore, abi: parsed}, nil
}

// tokenConfig is the part of l1TokenConfig the reader uses. Values are 1e18
// fixed point decimal strings.
type tokenConfig struct {
	RateModel *struct {
		UBar string `json:"UBar"`
		R0   string `json:"R0"`
		R1   string `json:"R1"`
		R2   string `json:"R2"`
	} `json:"rateModel"`
}

// RateModel reads the latest configured rate model of asset.
func (s *ConfigStoreRateModels) RateModel(ctx context.Context, asset common.Address) (entity.RateModel, error) {
	data, err := s.abi.Pack("l1TokenConfig", asset)
	if err != nil {
		return entity.RateModel{}, fmt.Errorf("failed to pack l1TokenConfig: %w", err)
	}
	results, err := s.multicaller.Execute(ctx, []outbound.Call{{Target: s.configStore, CallData: data}}, nil)
	if err != nil {
		return entity.RateModel{}, err
	}
	if len(results) != 1 {
		return entity.RateModel{}, fmt.Errorf("expected 1 result, got %d", len(results))
	}

	out, err := s.abi.Unpack("l1TokenConfig", results[0].ReturnData)
	if err != nil {
		return entity.RateModel{}, fmt.Errorf("failed to unpack l1TokenConfig: %w", err)
	}
	raw, ok := out[0].(string)
	if !ok {
		return entity.RateModel{}, fmt.Errorf("l1TokenConfig returned %T, want string", out[0])
	}
	return ParseRateModel(raw)
}

// ParseRateModel parses an l1TokenConfig JSON blob.
func ParseRateModel(raw string) (entity.RateModel, error) {
	if strings.TrimSpace(raw) == "" {
		return entity.RateModel{}, errors.New("token has no config")
	}
	var cfg tokenConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return entity.RateModel{}, fmt.Errorf("failed to decode token config: %w", err)
	}
	if cfg.RateModel == nil {
		return entity.RateModel{}, errors.New("token config has no rate model")
	}

	values := make([]*big.Int, 4)
	for i, field := range []struct{ name, value string }{
		{"UBar", cfg.RateModel.UBar},
		{"R0", cfg.RateModel.R0},
		{"R1", cfg.RateModel.R1},
		{"R2", cfg.RateModel.R2},
	} {
		v, ok := new(big.Int).SetString(field.value, 10)
		if !ok {
			return entity.RateModel{}, fmt.Errorf("rate model %s %q is not an integer", field.name, field.value)
		}
		values[i] = v
	}

	model, err := entity.NewRateModel(values[0], values[1], values[2], values[3])
	if err != nil {
		return entity.RateModel{}, err
	}
	return *model, nil
}
