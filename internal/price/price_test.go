package price

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"poolscope/internal/model"
)

var (
	weth = model.Token{ChainID: 88, Address: common.HexToAddress("0x1111111111111111111111111111111111111111"), Decimals: 18, Symbol: "WETH"}
	usdc = model.Token{ChainID: 88, Address: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), Decimals: 6, Symbol: "USDC"}
	dai  = model.Token{ChainID: 88, Address: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"), Decimals: 18, Symbol: "DAI"}
)

func assertClose(t *testing.T, got, want decimal.Decimal, tolerance decimal.Decimal) {
	t.Helper()
	if want.IsZero() {
		if !got.IsZero() {
			t.Fatalf("expected zero, got %s", got)
		}
		return
	}
	rel := got.Sub(want).Abs().DivRound(want.Abs(), 40)
	if rel.Cmp(tolerance) > 0 {
		t.Fatalf("value %s not within %s of %s (rel %s)", got, tolerance, want, rel)
	}
}

func TestSqrtRatioOfUnitPrice(t *testing.T) {
	p := New(weth, dai, decimal.NewFromInt(1))
	if got := p.SqrtRatioX96(); got.Cmp(model.Q96) != 0 {
		t.Fatalf("expected 2^96, got %s", got)
	}
}

func TestRoundTripSorted(t *testing.T) {
	values := []string{"2000.5", "0.000001234", "1", "98765432.1", "0.5"}
	for _, raw := range values {
		want := decimal.RequireFromString(raw)
		p := New(weth, usdc, want)
		back := FromSqrtRatio(weth, usdc, p.SqrtRatioX96())
		assertClose(t, back.Value.Decimal, want, decimal.New(1, -12))
	}
}

func TestRoundTripUnsorted(t *testing.T) {
	want := decimal.RequireFromString("0.0005")
	p := New(usdc, weth, want)
	if p.IsSorted() {
		t.Fatalf("usdc/weth should not be sorted")
	}
	back := FromSqrtRatio(weth, usdc, p.SqrtRatioX96()).Invert()
	assertClose(t, back.Value.Decimal, want, decimal.New(1, -12))
	if !back.Base.Equal(usdc) || !back.Quote.Equal(weth) {
		t.Fatalf("currencies not restored")
	}
}

func TestSqrtRatioClamped(t *testing.T) {
	huge := New(weth, dai, decimal.New(1, 80))
	if got := huge.SqrtRatioX96(); got.Cmp(model.MaxSqrtRatio) != 0 {
		t.Fatalf("expected max sqrt ratio, got %s", got)
	}
	tiny := New(weth, dai, decimal.New(1, -80))
	if got := tiny.SqrtRatioX96(); got.Cmp(model.MinSqrtRatio) != 0 {
		t.Fatalf("expected min sqrt ratio, got %s", got)
	}
	zero := New(weth, dai, decimal.Zero)
	if got := zero.SqrtRatioX96(); got.Cmp(model.MinSqrtRatio) != 0 {
		t.Fatalf("expected min sqrt ratio for zero, got %s", got)
	}
	for _, raw := range []string{"1e-30", "1e-10", "3", "1e12", "1e30"} {
		got := New(weth, usdc, decimal.RequireFromString(raw)).SqrtRatioX96()
		if got.Cmp(model.MinSqrtRatio) < 0 || got.Cmp(model.MaxSqrtRatio) > 0 {
			t.Fatalf("%s: sqrt ratio %s out of bounds", raw, got)
		}
	}
}

func TestInvertZeroIsSentinel(t *testing.T) {
	inv := New(weth, dai, decimal.Zero).Invert()
	if !inv.Known() || !inv.Value.Decimal.Equal(ZeroInverse) {
		t.Fatalf("expected 1e32 sentinel, got %+v", inv.Value)
	}
	if !inv.Base.Equal(dai) || !inv.Quote.Equal(weth) {
		t.Fatalf("currencies not swapped")
	}
}

func TestInvertTwice(t *testing.T) {
	want := decimal.RequireFromString("1234.5678")
	got := New(weth, usdc, want).Invert().Invert()
	assertClose(t, got.Value.Decimal, want, decimal.New(1, -30))
}

func TestUnknownPropagates(t *testing.T) {
	p := Unknown(weth, usdc)
	if p.Invert().Known() || p.MultipliedBy(decimal.NewFromInt(2)).Known() || p.Clone().Known() {
		t.Fatalf("unknown price became known")
	}
	if p.SqrtRatioX96().Sign() != 0 {
		t.Fatalf("unknown price should have zero sqrt ratio")
	}
	if p.String() != "" {
		t.Fatalf("unknown price should print empty")
	}
	if _, ok := p.Compare(New(weth, usdc, decimal.Zero)); ok {
		t.Fatalf("comparison with unknown should not be ok")
	}
	zero := New(weth, usdc, decimal.Zero)
	if !zero.Known() {
		t.Fatalf("zero price must be known")
	}
}

func TestMultipliedBy(t *testing.T) {
	p := New(weth, usdc, decimal.NewFromInt(2000)).MultipliedBy(decimal.RequireFromString("1.5"))
	if !p.Value.Decimal.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("unexpected value %s", p)
	}
	if !p.Base.Equal(weth) || !p.Quote.Equal(usdc) {
		t.Fatalf("currencies changed")
	}
}

func TestFromAmounts(t *testing.T) {
	oneEth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	p := FromAmounts(weth, usdc, oneEth, big.NewInt(2_500_000_000))
	if !p.Value.Decimal.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("unexpected price %s", p)
	}
	if got := FromAmounts(weth, usdc, big.NewInt(0), big.NewInt(5)); !got.Value.Decimal.IsZero() {
		t.Fatalf("zero base amount should give zero price")
	}
}

func TestComparisons(t *testing.T) {
	a := New(weth, usdc, decimal.NewFromInt(2))
	b := New(weth, usdc, decimal.NewFromInt(3))
	if !a.LessThan(b) || !b.GreaterThan(a) {
		t.Fatalf("comparison failed")
	}
	if !a.TokenPairEquals(New(usdc, weth, decimal.NewFromInt(1))) {
		t.Fatalf("pair equality should ignore direction")
	}
	if a.Unit() != "USDC per WETH" {
		t.Fatalf("unexpected unit %q", a.Unit())
	}
}

func TestToken0Price(t *testing.T) {
	pool, err := model.NewPool(88, nil, weth.Address, usdc.Address, model.FeeMedium)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if Token0Price(pool, weth, usdc).Known() {
		t.Fatalf("pool without state should have unknown price")
	}
	sqrt := New(weth, usdc, decimal.NewFromInt(1800)).SqrtRatioX96()
	state := pool.WithState(mustUint256(t, sqrt), nil, 0)
	assertClose(t, Token0Price(state, weth, usdc).Value.Decimal, decimal.NewFromInt(1800), decimal.New(1, -12))
	assertClose(t, Token1Price(state, weth, usdc).Value.Decimal, decimal.NewFromInt(1).DivRound(decimal.NewFromInt(1800), 40), decimal.New(1, -12))
}

func mustUint256(t *testing.T, value *big.Int) *uint256.Int {
	t.Helper()
	out, overflow := uint256.FromBig(value)
	if overflow {
		t.Fatalf("uint256 overflow: %s", value)
	}
	return out
}
