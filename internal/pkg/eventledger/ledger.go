// Package eventledger keeps an ordered, deduplicated sequence of events from
// one contract's log stream.
//
// Events are ordered by entity.EventKey (block, transaction index, log index).
// Inserting an event whose key is already present is a no-op when the two
// events are identical and an ErrKeyCollision otherwise: two different events
// sharing a key means the source is corrupt.
package eventledger

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

// ErrKeyCollision is returned when two different events share an identity key.
var ErrKeyCollision = errors.New("event key collision")

// Event is an element a Ledger can hold.
type Event[T any] interface {
	EventKey() entity.EventKey
	SameAs(other T) bool
}

// Ledger is not safe for concurrent use; owners serialize access.
type Ledger[T Event[T]] struct {
	events []T
	seen   map[entity.EventKey]struct{}
}

// New returns an empty ledger.
func New[T Event[T]]() *Ledger[T] {
	return &Ledger[T]{seen: make(map[entity.EventKey]struct{})}
}

// Has reports whether an event with key has been inserted.
func (l *Ledger[T]) Has(key entity.EventKey) bool {
	_, ok := l.seen[key]
	return ok
}

// Insert adds event at its ordered position. It reports whether the ledger
// changed.
func (l *Ledger[T]) Insert(event T) (bool, error) {
	key := event.EventKey()
	if existing, ok := l.Get(key); ok {
		if !existing.SameAs(event) {
			return false, fmt.Errorf("%w at %s", ErrKeyCollision, key)
		}
		return false, nil
	}

	i := l.indexOf(key)
	var zero T
	l.events = append(l.events, zero)
	copy(l.events[i+1:], l.events[i:])
	l.events[i] = event
	l.seen[key] = struct{}{}
	return true, nil
}

// InsertAll inserts events and returns how many were new. Input order does
// not affect the result. If any event collides with the ledger or with another
// event in the batch, nothing is inserted.
func (l *Ledger[T]) InsertAll(events []T) (int, error) {
	batch := make(map[entity.EventKey]T, len(events))
	for _, e := range events {
		key := e.EventKey()
		if prev, ok := batch[key]; ok {
			if !prev.SameAs(e) {
				return 0, fmt.Errorf("%w at %s", ErrKeyCollision, key)
			}
			continue
		}
		if existing, ok := l.Get(key); ok && !existing.SameAs(e) {
			return 0, fmt.Errorf("%w at %s", ErrKeyCollision, key)
		}
		batch[key] = e
	}

	added := 0
	for _, e := range events {
		ok, err := l.Insert(e)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Get returns the event stored under key.
func (l *Ledger[T]) Get(key entity.EventKey) (T, bool) {
	if _, ok := l.seen[key]; !ok {
		var zero T
		return zero, false
	}
	return l.events[l.indexOf(key)], true
}

// Events returns a copy of the ledger in ascending key order.
func (l *Ledger[T]) Events() []T {
	out := make([]T, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Ledger[T]) Len() int {
	return len(l.events)
}

// Last returns the event with the greatest key.
func (l *Ledger[T]) Last() (T, bool) {
	if len(l.events) == 0 {
		var zero T
		return zero, false
	}
	return l.events[len(l.events)-1], true
}

// EventsThrough returns a copy of the events in blocks up to and including
// block, in ascending key order.
func (l *Ledger[T]) EventsThrough(block uint64) []T {
	end := len(l.events)
	if block < math.MaxUint64 {
		end = l.indexOf(entity.EventKey{BlockNumber: block + 1})
	}
	out := make([]T, end)
	copy(out, l.events[:end])
	return out
}

// indexOf returns the position of key, or where it would be inserted.
func (l *Ledger[T]) indexOf(key entity.EventKey) int {
	i, _ := slices.BinarySearchFunc(l.events, key, func(e T, k entity.EventKey) int {
		return e.EventKey().Compare(k)
	})
	return i
}
