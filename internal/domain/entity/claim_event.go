package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const EventClaimed = "Claimed"

// ClaimEvent is a reward claim paid out by the merkle distributor.
type ClaimEvent struct {
	Key         EventKey
	TxHash      common.Hash
	Account     common.Address
	RewardToken common.Address
	Amount      *big.Int
}

// NewClaimEvent converts a decoded Claimed log.
func NewClaimEvent(log LogEvent) (*ClaimEvent, error) {
	if log.Name != EventClaimed {
		return nil, fmt.Errorf("unexpected event %q for claim event", log.Name)
	}
	e := &ClaimEvent{Key: log.Key, TxHash: log.TxHash}

	var err error
	if e.Account, err = log.AddressArg("account"); err != nil {
		return nil, err
	}
	if e.RewardToken, err = log.AddressArg("rewardToken"); err != nil {
		return nil, err
	}
	if e.Amount, err = log.BigIntArg("amount"); err != nil {
		return nil, err
	}
	return e, nil
}

func (e ClaimEvent) EventKey() EventKey { return e.Key }

func (e ClaimEvent) SameAs(other ClaimEvent) bool {
	return e.Key == other.Key &&
		e.TxHash == other.TxHash &&
		e.Account == other.Account &&
		e.RewardToken == other.RewardToken &&
		bigEqual(e.Amount, other.Amount)
}
