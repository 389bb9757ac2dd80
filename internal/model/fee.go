package model

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ErrUnknownFee is returned for fee tiers outside the enumerated set.
var ErrUnknownFee = errors.New("unknown fee tier")

// FeeAmount is a pool fee in hundredths of a bip (1e-6).
type FeeAmount uint32

const (
	FeeLowest FeeAmount = 100
	FeeLow    FeeAmount = 500
	FeeMedium FeeAmount = 3000
	FeeHigh   FeeAmount = 10000
)

// FeeDenominator is the scale of FeeAmount.
const FeeDenominator = 1_000_000

var tickSpacings = map[FeeAmount]int32{
	FeeLowest: 1,
	FeeLow:    10,
	FeeMedium: 60,
	FeeHigh:   200,
}

// FeeAmounts lists the supported fee tiers in ascending order.
func FeeAmounts() []FeeAmount {
	return []FeeAmount{FeeLowest, FeeLow, FeeMedium, FeeHigh}
}

// Valid reports whether the fee belongs to the enumerated set.
func (f FeeAmount) Valid() bool {
	_, ok := tickSpacings[f]
	return ok
}

// TickSpacing returns the tick spacing of the fee tier, 0 when unknown.
func (f FeeAmount) TickSpacing() int32 {
	return tickSpacings[f]
}

// Rate returns the fee as a fraction, e.g. 3000 -> 3000/1e6.
func (f FeeAmount) Rate() *big.Rat {
	return big.NewRat(int64(f), FeeDenominator)
}

func (f FeeAmount) String() string {
	return strconv.FormatUint(uint64(f), 10)
}

// ParseFeeAmount parses a decimal fee tier and checks it is supported.
func ParseFeeAmount(raw string) (FeeAmount, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse fee %q: %w", raw, err)
	}
	fee := FeeAmount(value)
	if !fee.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFee, value)
	}
	return fee, nil
}
