// Package entity holds the domain types of the pool state engine: decoded
// hub pool events, pool and user snapshots and refresh results.
package entity

import "fmt"

// EventKey identifies a log within one contract's log stream and defines its
// position in the total order of that stream.
type EventKey struct {
	BlockNumber uint64
	TxIndex     uint32
	LogIndex    uint32
}

// Compare returns -1, 0 or 1 ordering keys by block, then transaction index,
// then log index.
func (k EventKey) Compare(other EventKey) int {
	switch {
	case k.BlockNumber < other.BlockNumber:
		return -1
	case k.BlockNumber > other.BlockNumber:
		return 1
	case k.TxIndex < other.TxIndex:
		return -1
	case k.TxIndex > other.TxIndex:
		return 1
	case k.LogIndex < other.LogIndex:
		return -1
	case k.LogIndex > other.LogIndex:
		return 1
	default:
		return 0
	}
}

// Less reports whether k sorts before other.
func (k EventKey) Less(other EventKey) bool {
	return k.Compare(other) < 0
}

func (k EventKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k.BlockNumber, k.TxIndex, k.LogIndex)
}
