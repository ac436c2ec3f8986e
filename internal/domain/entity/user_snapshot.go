package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UserSnapshot is the derived position of one depositor in one asset's pool.
// Values are in the underlying asset's base units except LPTokenBalance and
// StakedBalance, which are pool shares.
type UserSnapshot struct {
	User                  common.Address
	Asset                 common.Address
	Block                 uint64
	LPTokenBalance        *big.Int
	StakedBalance         *big.Int
	PositionValue         *big.Int
	TotalDeposited        *big.Int
	AirdropBalance        *big.Int
	TransferValue         *big.Int
	NetBalanceTransferred *big.Int
	FeesEarned            *big.Int
	UpdatedAt             time.Time
}
