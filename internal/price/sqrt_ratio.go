package price

import (
	"math/big"

	"github.com/shopspring/decimal"

	"poolscope/internal/model"
)

var q192Decimal = decimal.NewFromBigInt(model.Q192, 0)

// FromSqrtRatio converts a Q64.96 sqrt ratio of token1/token0 into the price of base in quote,
// where base is token0 and quote is token1.
func FromSqrtRatio(base, quote model.Token, sqrtRatioX96 *big.Int) Price {
	if sqrtRatioX96 == nil {
		return Unknown(base, quote)
	}
	ratioX192 := new(big.Int).Mul(sqrtRatioX96, sqrtRatioX96)
	value := decimal.NewFromBigInt(ratioX192, 0).
		DivRound(q192Decimal, DivisionPrecision).
		Shift(int32(base.Decimals) - int32(quote.Decimals))
	return New(base, quote, value)
}

// SqrtRatioX96 converts the price back into a Q64.96 sqrt ratio. The square root is rounded down
// and the result is clamped to [MinSqrtRatio, MaxSqrtRatio]. An unknown price gives zero.
func (p Price) SqrtRatioX96() *big.Int {
	if p.Quote.SortsBefore(p.Base) {
		return p.Invert().SqrtRatioX96()
	}
	if !p.Value.Valid {
		return new(big.Int)
	}

	ratioX192 := p.Value.Decimal.
		Shift(int32(p.Quote.Decimals) - int32(p.Base.Decimals)).
		Mul(q192Decimal).
		BigInt()
	if ratioX192.Sign() <= 0 {
		return new(big.Int).Set(model.MinSqrtRatio)
	}

	return clampSqrtRatio(new(big.Int).Sqrt(ratioX192))
}

func clampSqrtRatio(sqrtRatioX96 *big.Int) *big.Int {
	if sqrtRatioX96.Cmp(model.MaxSqrtRatio) > 0 {
		return new(big.Int).Set(model.MaxSqrtRatio)
	}
	if sqrtRatioX96.Cmp(model.MinSqrtRatio) < 0 {
		return new(big.Int).Set(model.MinSqrtRatio)
	}
	return sqrtRatioX96
}

// Token0Price prices token0 in token1 from the pool's current sqrt ratio.
func Token0Price(pool model.Pool, token0, token1 model.Token) Price {
	if pool.SqrtRatioX96 == nil {
		return Unknown(token0, token1)
	}
	return FromSqrtRatio(token0, token1, pool.SqrtRatioX96.ToBig())
}

// Token1Price prices token1 in token0.
func Token1Price(pool model.Pool, token0, token1 model.Token) Price {
	return Token0Price(pool, token0, token1).Invert()
}
