package entity

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
)

// LogEvent is a decoded contract log. Args holds the event arguments keyed by
// their ABI names, indexed and non-indexed alike.
type LogEvent struct {
	Key     EventKey
	Address common.Address
	TxHash  common.Hash
	Name    string
	Args    map[string]any
}

// EventKey returns the log's identity key.
func (e LogEvent) EventKey() EventKey { return e.Key }

// SameAs reports whether two logs carry identical content.
func (e LogEvent) SameAs(other LogEvent) bool {
	return e.Key == other.Key &&
		e.Address == other.Address &&
		e.TxHash == other.TxHash &&
		e.Name == other.Name &&
		reflect.DeepEqual(e.Args, other.Args)
}

// AddressArg returns the named argument as an address.
func (e LogEvent) AddressArg(name string) (common.Address, error) {
	raw, ok := e.Args[name]
	if !ok {
		return common.Address{}, fmt.Errorf("event %s at %s: missing argument %q", e.Name, e.Key, name)
	}
	addr, ok := raw.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("event %s at %s: argument %q is %T, not an address", e.Name, e.Key, name, raw)
	}
	return addr, nil
}

// BigIntArg returns a copy of the named argument as a big integer.
func (e LogEvent) BigIntArg(name string) (*big.Int, error) {
	raw, ok := e.Args[name]
	if !ok {
		return nil, fmt.Errorf("event %s at %s: missing argument %q", e.Name, e.Key, name)
	}
	v, ok := raw.(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("event %s at %s: argument %q is %T, not an integer", e.Name, e.Key, name, raw)
	}
	return new(big.Int).Set(v), nil
}

// BlockInfo is the subset of a block header the engine needs.
type BlockInfo struct {
	Number    uint64
	Timestamp uint64
}

// Receipt is a mined transaction reduced to its decoded logs.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Logs        []LogEvent
}
