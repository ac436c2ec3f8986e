// Package tracking loads the tracking file: which contracts to read and which
// pools and depositors to refresh.
//
// Example:
//
//	chain_id: 1
//	hub_pool: "0xc186fA914353c44b2E33eBE05f21846F1048bEda"
//	accelerating_distributor: "0x9040e41eF5E8b281535a96D9a48aCb8cfaBD9a48"
//	merkle_distributor: "0xE50b2cEAC4f60E840Ae513924033E753e2366487"
//	config_store: "0x3B03509645713718B78951126E0A6de6f10043f5"
//	deploy_block: 14819537
//	block_delta: 7200
//	archive_access: true
//	poll_interval: 5m
//	assets:
//	  - "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
//	users:
//	  - "${TRACKED_USER}"
//
// Environment variables in the file are expanded before parsing.
package tracking

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	ChainID                 int64    `yaml:"chain_id"`
	HubPool                 string   `yaml:"hub_pool"`
	AcceleratingDistributor string   `yaml:"accelerating_distributor"`
	MerkleDistributor       string   `yaml:"merkle_distributor,omitempty"`
	ConfigStore             string   `yaml:"config_store,omitempty"`
	DeployBlock             uint64   `yaml:"deploy_block"`
	BlockDelta              uint64   `yaml:"block_delta,omitempty"`
	ArchiveAccess           bool     `yaml:"archive_access"`
	PollInterval            string   `yaml:"poll_interval,omitempty"`
	Assets                  []string `yaml:"assets"`
	Users                   []string `yaml:"users,omitempty"`
}

// Config is a validated tracking file. Optional contracts are zero when absent.
type Config struct {
	ChainID                 int64
	HubPool                 common.Address
	AcceleratingDistributor common.Address
	MerkleDistributor       common.Address
	ConfigStore             common.Address
	DeployBlock             uint64
	BlockDelta              uint64
	ArchiveAccess           bool
	PollInterval            time.Duration
	Assets                  []common.Address
	Users                   []common.Address
}

// Load reads and validates the tracking file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking file: %w", err)
	}
	return Parse(data)
}

// Parse validates a tracking file held in memory. Unknown keys are rejected so
// that a misspelled key fails loudly.
func Parse(data []byte) (*Config, error) {
	var raw fileFormat
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse tracking file: %w", err)
	}

	var errs []error
	addr := func(field, value string, required bool) common.Address {
		if value == "" {
			if required {
				errs = append(errs, fmt.Errorf("%s is required", field))
			}
			return common.Address{}
		}
		if !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s: %q is not an address", field, value))
			return common.Address{}
		}
		return common.HexToAddress(value)
	}

	cfg := &Config{
		ChainID:                 raw.ChainID,
		HubPool:                 addr("hub_pool", raw.HubPool, true),
		AcceleratingDistributor: addr("accelerating_distributor", raw.AcceleratingDistributor, true),
		MerkleDistributor:       addr("merkle_distributor", raw.MerkleDistributor, false),
		ConfigStore:             addr("config_store", raw.ConfigStore, false),
		DeployBlock:             raw.DeployBlock,
		BlockDelta:              raw.BlockDelta,
		ArchiveAccess:           raw.ArchiveAccess,
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 1
	}

	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("poll_interval: %q is not a positive duration", raw.PollInterval))
		}
		cfg.PollInterval = d
	}

	if len(raw.Assets) == 0 {
		errs = append(errs, errors.New("at least one asset is required"))
	}
	cfg.Assets = addresses("assets", raw.Assets, &errs, addr)
	cfg.Users = addresses("users", raw.Users, &errs, addr)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// addresses parses a list, dropping duplicates.
func addresses(field string, values []string, errs *[]error, addr func(string, string, bool) common.Address) []common.Address {
	seen := make(map[common.Address]bool, len(values))
	var out []common.Address
	for i, v := range values {
		a := addr(fmt.Sprintf("%s[%d]", field, i), v, true)
		if a == (common.Address{}) || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
