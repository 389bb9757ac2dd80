package model

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrUnsortedTokens is returned when a pool is built from a pair that is not in canonical order.
var ErrUnsortedTokens = errors.New("pool tokens are not sorted")

// Pool is a concentrated-liquidity pool. Token0 always sorts before Token1.
// SqrtRatioX96, Liquidity and TickCurrent are only set when the pool state was read from chain.
type Pool struct {
	ChainID      uint64          `json:"chainId"`
	Address      *common.Address `json:"address,omitempty"`
	Token0       common.Address  `json:"token0"`
	Token1       common.Address  `json:"token1"`
	Fee          FeeAmount       `json:"feeRate"`
	SqrtRatioX96 *uint256.Int    `json:"sqrtRatioX96,omitempty"`
	Liquidity    *uint256.Int    `json:"liquidity,omitempty"`
	TickCurrent  int32           `json:"tickCurrent,omitempty"`
}

// NewPool validates the canonical ordering and fee tier of a pool record.
func NewPool(chainID uint64, address *common.Address, token0, token1 common.Address, fee FeeAmount) (Pool, error) {
	if bytes.Compare(token0.Bytes(), token1.Bytes()) >= 0 {
		return Pool{}, fmt.Errorf("%w: %s >= %s", ErrUnsortedTokens, token0.Hex(), token1.Hex())
	}
	if !fee.Valid() {
		return Pool{}, fmt.Errorf("%w: %d", ErrUnknownFee, fee)
	}
	return Pool{
		ChainID: chainID,
		Address: address,
		Token0:  token0,
		Token1:  token1,
		Fee:     fee,
	}, nil
}

// WithState returns a copy carrying the live slot0/liquidity values.
func (p Pool) WithState(sqrtRatioX96, liquidity *uint256.Int, tick int32) Pool {
	p.SqrtRatioX96 = sqrtRatioX96
	p.Liquidity = liquidity
	p.TickCurrent = tick
	return p
}

// Key is the lower-cased pool address, empty for address-derived pools.
func (p Pool) Key() string {
	if p.Address == nil {
		return ""
	}
	return AddressKey(*p.Address)
}

func (p Pool) TickSpacing() int32 {
	return p.Fee.TickSpacing()
}

func (p Pool) UsableMinTick() int32 {
	return NearestUsableTick(MinTick, p.TickSpacing())
}

func (p Pool) UsableMaxTick() int32 {
	return NearestUsableTick(MaxTick, p.TickSpacing())
}

// HasToken reports whether token is one side of the pool.
func (p Pool) HasToken(token common.Address) bool {
	return p.Token0 == token || p.Token1 == token
}

// Involves reports whether the pool trades exactly the pair a/b in either order.
func (p Pool) Involves(a, b common.Address) bool {
	return (p.Token0 == a && p.Token1 == b) || (p.Token0 == b && p.Token1 == a)
}

// OtherToken returns the side of the pool that is not token.
func (p Pool) OtherToken(token common.Address) common.Address {
	if p.Token0 == token {
		return p.Token1
	}
	return p.Token0
}

// SameMetadata compares the immutable fields used for conflict detection.
func (p Pool) SameMetadata(other Pool) bool {
	return p.Token0 == other.Token0 && p.Token1 == other.Token1 && p.Fee == other.Fee
}
