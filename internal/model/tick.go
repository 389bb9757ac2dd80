package model

import "math/big"

// Tick bounds of a concentrated-liquidity pool.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio is the sqrt ratio at MinTick.
	MinSqrtRatio = big.NewInt(4295128739)
	// MaxSqrtRatio is the sqrt ratio at MaxTick.
	MaxSqrtRatio = mustBigInt("1461446703485210103287273052203988822378723970342")
	// Q96 is 2^96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Q192 is 2^192.
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)
)

func mustBigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid big int constant: " + s)
	}
	return n
}

// NearestUsableTick rounds tick to a multiple of spacing that stays within the global bounds.
func NearestUsableTick(tick, spacing int32) int32 {
	if spacing <= 0 {
		return tick
	}
	rounded := tick / spacing * spacing
	rem := tick % spacing
	if rem*2 >= spacing {
		rounded += spacing
	} else if rem*2 <= -spacing {
		rounded -= spacing
	}
	if rounded < MinTick {
		return rounded + spacing
	}
	if rounded > MaxTick {
		return rounded - spacing
	}
	return rounded
}
