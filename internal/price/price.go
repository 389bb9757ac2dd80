// Package price converts between human-decimal prices and the Q64.96 square-root ratio used by pools.
package price

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"poolscope/internal/model"
)

// DivisionPrecision is the number of fractional digits kept by every decimal division in this package.
const DivisionPrecision int32 = 96

// ZeroInverse is the value Invert returns for a zero price.
var ZeroInverse = decimal.New(1, 32)

// Price is the amount of Quote paid for one Base, in human units. An invalid Value means the
// price is unknown, which is distinct from a zero price.
type Price struct {
	Base  model.Token
	Quote model.Token
	Value decimal.NullDecimal
}

// New builds a known price.
func New(base, quote model.Token, value decimal.Decimal) Price {
	return Price{Base: base, Quote: quote, Value: decimal.NewNullDecimal(value)}
}

// Unknown builds a price without a value.
func Unknown(base, quote model.Token) Price {
	return Price{Base: base, Quote: quote}
}

// Known reports whether the price carries a value.
func (p Price) Known() bool {
	return p.Value.Valid
}

// IsSorted reports whether Base orders before Quote, i.e. Base is the pool's token0.
func (p Price) IsSorted() bool {
	return p.Base.SortsBefore(p.Quote)
}

// SortedPair returns the two tokens as (token0, token1).
func (p Price) SortedPair() (model.Token, model.Token) {
	if p.IsSorted() {
		return p.Base, p.Quote
	}
	return p.Quote, p.Base
}

// Invert swaps base and quote. A zero value inverts to ZeroInverse instead of failing.
func (p Price) Invert() Price {
	out := Price{Base: p.Quote, Quote: p.Base}
	if !p.Value.Valid {
		return out
	}
	if p.Value.Decimal.IsZero() {
		out.Value = decimal.NewNullDecimal(ZeroInverse)
		return out
	}
	out.Value = decimal.NewNullDecimal(decimal.NewFromInt(1).DivRound(p.Value.Decimal, DivisionPrecision))
	return out
}

// MultipliedBy scales the value, keeping both currencies.
func (p Price) MultipliedBy(multiplier decimal.Decimal) Price {
	out := Price{Base: p.Base, Quote: p.Quote}
	if p.Value.Valid {
		out.Value = decimal.NewNullDecimal(p.Value.Decimal.Mul(multiplier))
	}
	return out
}

// Clone returns an equal price.
func (p Price) Clone() Price {
	return Price{Base: p.Base, Quote: p.Quote, Value: p.Value}
}

// Compare orders two prices. ok is false when either value is unknown.
func (p Price) Compare(other Price) (cmp int, ok bool) {
	if !p.Value.Valid || !other.Value.Valid {
		return 0, false
	}
	return p.Value.Decimal.Cmp(other.Value.Decimal), true
}

func (p Price) GreaterThan(other Price) bool {
	cmp, ok := p.Compare(other)
	return ok && cmp > 0
}

func (p Price) LessThan(other Price) bool {
	cmp, ok := p.Compare(other)
	return ok && cmp < 0
}

// TokenPairEquals reports whether both prices are over the same unordered pair.
func (p Price) TokenPairEquals(other Price) bool {
	a0, a1 := p.SortedPair()
	b0, b1 := other.SortedPair()
	return a0.Equal(b0) && a1.Equal(b1)
}

// Unit describes the price, e.g. "USDC per WETH".
func (p Price) Unit() string {
	return fmt.Sprintf("%s per %s", p.Quote.DisplaySymbol(), p.Base.DisplaySymbol())
}

// String prints the full value, or "" when unknown.
func (p Price) String() string {
	if !p.Value.Valid {
		return ""
	}
	return p.Value.Decimal.String()
}

// StringFixed prints the value with a fixed number of decimal places, or "" when unknown.
func (p Price) StringFixed(places int32) string {
	if !p.Value.Valid {
		return ""
	}
	return p.Value.Decimal.StringFixed(places)
}

// FromAmounts prices baseAmount of base against quoteAmount of quote, both in raw units.
// A zero base amount yields a zero price.
func FromAmounts(base, quote model.Token, baseAmount, quoteAmount *big.Int) Price {
	if baseAmount == nil || quoteAmount == nil {
		return Unknown(base, quote)
	}
	if baseAmount.Sign() == 0 {
		return New(base, quote, decimal.Zero)
	}
	baseHuman := decimal.NewFromBigInt(baseAmount, -int32(base.Decimals))
	quoteHuman := decimal.NewFromBigInt(quoteAmount, -int32(quote.Decimals))
	return New(base, quote, quoteHuman.DivRound(baseHuman, DivisionPrecision))
}
