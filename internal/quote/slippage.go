package quote

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MinimumOutput is floor(amountOut * (100 - slippage) / 100).
func MinimumOutput(amountOut *big.Int, slippage decimal.Decimal) *big.Int {
	if amountOut == nil {
		return nil
	}
	return decimal.NewFromBigInt(amountOut, 0).
		Mul(hundred.Sub(slippage)).
		Shift(-2).
		Floor().
		BigInt()
}

// MaximumInput is ceil(amountIn * (100 + slippage) / 100).
func MaximumInput(amountIn *big.Int, slippage decimal.Decimal) *big.Int {
	if amountIn == nil {
		return nil
	}
	return decimal.NewFromBigInt(amountIn, 0).
		Mul(hundred.Add(slippage)).
		Shift(-2).
		Ceil().
		BigInt()
}

// validSlippage accepts percentages in [0, 100).
func validSlippage(slippage decimal.Decimal) bool {
	return !slippage.IsNegative() && slippage.LessThan(hundred)
}

// PoolFee is the fee a pool takes from amountIn at the given rate, rounded up.
func PoolFee(amountIn *big.Int, fee uint32) *big.Int {
	if amountIn == nil {
		return nil
	}
	numerator := new(big.Int).Mul(amountIn, big.NewInt(int64(fee)))
	denominator := big.NewInt(1_000_000)
	quotient, remainder := new(big.Int).QuoRem(numerator, denominator, new(big.Int))
	if remainder.Sign() > 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}
