package ethereum

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// EventDecoder turns raw logs into named events and event filters into topic
// filters. Event names must be unique across the ABIs it is built from.
type EventDecoder struct {
	byName map[string]abi.Event
	byID   map[common.Hash]abi.Event
}

// NewEventDecoder indexes the events declared by the given ABIs.
func NewEventDecoder(contracts ...*abi.ABI) (*EventDecoder, error) {
	d := &EventDecoder{
		byName: make(map[string]abi.Event),
		byID:   make(map[common.Hash]abi.Event),
	}
	for _, contract := range contracts {
		for name, event := range contract.Events {
			if _, ok := d.byName[name]; ok {
				return nil, fmt.Errorf("event %s declared by more than one abi", name)
			}
			d.byName[name] = event
			d.byID[event.ID] = event
		}
	}
	return d, nil
}

// NewDefaultEventDecoder knows the hub pool, ERC20 and merkle distributor events.
func NewDefaultEventDecoder() (*EventDecoder, error) {
	contracts, err := abis.EventABIs()
	if err != nil {
		return nil, err
	}
	return NewEventDecoder(contracts...)
}

// Topics builds the topic filter for an event filter: the event signature
// first, then one position per indexed input, constrained when the filter names
// it and wildcarded otherwise.
func (d *EventDecoder) Topics(filter outbound.EventFilter) ([][]common.Hash, error) {
	event, ok := d.byName[filter.Event]
	if !ok {
		return nil, fmt.Errorf("unknown event %q", filter.Event)
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}

	used := 0
	query := make([][]interface{}, len(indexed))
	for i, input := range indexed {
		if value, ok := filter.Indexed[input.Name]; ok {
			query[i] = []interface{}{value}
			used++
		}
	}
	if used != len(filter.Indexed) {
		return nil, fmt.Errorf("event %s: filter names an argument that is not indexed", filter.Event)
	}

	rest, err := abi.MakeTopics(query...)
	if err != nil {
		return nil, fmt.Errorf("event %s: failed to build topics: %w", filter.Event, err)
	}

	topics := append([][]common.Hash{{event.ID}}, rest...)
	for len(topics) > 1 && len(topics[len(topics)-1]) == 0 {
		topics = topics[:len(topics)-1]
	}
	return topics, nil
}

// Decode decodes a log. ok is false when the log's signature is unknown.
func (d *EventDecoder) Decode(log types.Log) (entity.LogEvent, bool, error) {
	if len(log.Topics) == 0 {
		return entity.LogEvent{}, false, nil
	}
	event, ok := d.byID[log.Topics[0]]
	if !ok {
		return entity.LogEvent{}, false, nil
	}

	key := entity.EventKey{
		BlockNumber: log.BlockNumber,
		TxIndex:     uint32(log.TxIndex),
		LogIndex:    uint32(log.Index),
	}

	args := make(map[string]any, len(event.Inputs))
	if err := event.Inputs.NonIndexed().UnpackIntoMap(args, log.Data); err != nil {
		return entity.LogEvent{}, false, fmt.Errorf("event %s at %s: failed to unpack data: %w", event.Name, key, err)
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return entity.LogEvent{}, false, fmt.Errorf("event %s at %s: %d topics for %d indexed inputs",
			event.Name, key, len(log.Topics)-1, len(indexed))
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return entity.LogEvent{}, false, fmt.Errorf("event %s at %s: failed to parse topics: %w", event.Name, key, err)
	}

	return entity.LogEvent{
		Key:     key,
		Address: log.Address,
		TxHash:  log.TxHash,
		Name:    event.Name,
		Args:    args,
	}, true, nil
}
