package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const EventTransfer = "Transfer"

// TransferEvent is an ERC20 Transfer of pool LP tokens.
type TransferEvent struct {
	Key    EventKey
	TxHash common.Hash
	Token  common.Address
	From   common.Address
	To     common.Address
	Value  *big.Int
}

// NewTransferEvent converts a decoded Transfer log.
func NewTransferEvent(log LogEvent) (*TransferEvent, error) {
	if log.Name != EventTransfer {
		return nil, fmt.Errorf("unexpected event %q for transfer event", log.Name)
	}
	e := &TransferEvent{Key: log.Key, TxHash: log.TxHash, Token: log.Address}

	var err error
	if e.From, err = log.AddressArg("from"); err != nil {
		return nil, err
	}
	if e.To, err = log.AddressArg("to"); err != nil {
		return nil, err
	}
	if e.Value, err = log.BigIntArg("value"); err != nil {
		return nil, err
	}
	if e.Value.Sign() < 0 {
		return nil, fmt.Errorf("transfer event %s: value must be non-negative, got %s", e.Key, e.Value)
	}
	return e, nil
}

func (e TransferEvent) EventKey() EventKey { return e.Key }

func (e TransferEvent) SameAs(other TransferEvent) bool {
	return e.Key == other.Key &&
		e.TxHash == other.TxHash &&
		e.Token == other.Token &&
		e.From == other.From &&
		e.To == other.To &&
		bigEqual(e.Value, other.Value)
}

// SignedValue returns the transfer value from user's point of view: positive
// when user receives, negative when user sends, zero otherwise.
func (e TransferEvent) SignedValue(user common.Address) *big.Int {
	switch {
	case e.To == user && e.From != user:
		return new(big.Int).Set(e.Value)
	case e.From == user && e.To != user:
		return new(big.Int).Neg(e.Value)
	default:
		return new(big.Int)
	}
}
