package dex

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolscope/internal/model"
)

var (
	// ErrRemovedLog marks a log dropped by a reorg.
	ErrRemovedLog = errors.New("log removed by reorg")
	// ErrIncompleteLog marks a PoolCreated log missing a required field.
	ErrIncompleteLog = errors.New("incomplete pool created log")
)

// PoolCreatedDecoder turns factory PoolCreated logs into pool records.
type PoolCreatedDecoder struct {
	event abi.Event
}

func NewPoolCreatedDecoder() (*PoolCreatedDecoder, error) {
	parsed, err := factoryABI.get()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	event, ok := parsed.Events["PoolCreated"]
	if !ok {
		return nil, fmt.Errorf("factory abi missing PoolCreated event")
	}
	return &PoolCreatedDecoder{event: event}, nil
}

// Topic0 is the PoolCreated event signature hash.
func (d *PoolCreatedDecoder) Topic0() common.Hash {
	return d.event.ID
}

type poolCreatedTopics struct {
	Token0 common.Address
	Token1 common.Address
	Fee    *big.Int
}

// Decode validates one log and returns the pool it announces.
func (d *PoolCreatedDecoder) Decode(chainID uint64, log types.Log) (model.Pool, error) {
	if log.Removed {
		return model.Pool{}, ErrRemovedLog
	}
	if len(log.Topics) != 4 {
		return model.Pool{}, fmt.Errorf("%w: expected 4 topics, got %d", ErrIncompleteLog, len(log.Topics))
	}
	if log.Topics[0] != d.event.ID {
		return model.Pool{}, fmt.Errorf("topic0 mismatch: %s", log.Topics[0].Hex())
	}

	var topics poolCreatedTopics
	if err := abi.ParseTopics(&topics, indexedArguments(d.event.Inputs), log.Topics[1:]); err != nil {
		return model.Pool{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.Pool{}, fmt.Errorf("unpack data: %w", err)
	}
	if len(values) != 2 {
		return model.Pool{}, fmt.Errorf("%w: expected 2 data values, got %d", ErrIncompleteLog, len(values))
	}
	address, err := asAddress(values[1])
	if err != nil {
		return model.Pool{}, fmt.Errorf("pool address: %w", err)
	}

	if topics.Token0 == (common.Address{}) || topics.Token1 == (common.Address{}) || address == (common.Address{}) {
		return model.Pool{}, ErrIncompleteLog
	}
	if topics.Fee == nil || !topics.Fee.IsUint64() {
		return model.Pool{}, fmt.Errorf("%w: fee", ErrIncompleteLog)
	}

	return model.NewPool(chainID, &address, topics.Token0, topics.Token1, model.FeeAmount(topics.Fee.Uint64()))
}
