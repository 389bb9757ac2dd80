package quote

import (
	"context"
	"errors"
	"math"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolscope/internal/model"
)

const testChainID = 1

var (
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	daiAddr  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")

	weth = model.Token{ChainID: testChainID, Address: wethAddr, Decimals: 18, Symbol: "WETH"}
	usdc = model.Token{ChainID: testChainID, Address: usdcAddr, Decimals: 6, Symbol: "USDC"}
	dai  = model.Token{ChainID: testChainID, Address: daiAddr, Decimals: 18, Symbol: "DAI"}
)

type fakeResolver struct {
	tokens map[common.Address]model.Token
	calls  int
}

func (f *fakeResolver) Resolve(_ context.Context, address common.Address) (model.Token, error) {
	f.calls++
	token, ok := f.tokens[address]
	if !ok {
		return model.Token{}, errors.New("execution reverted")
	}
	return token, nil
}

type fakeBackend struct {
	name     string
	types    []TradeType
	quote    *Quote
	err      error
	calls    int
	lastSeen Resolved
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Supports(t TradeType) bool {
	for _, supported := range f.types {
		if supported == t {
			return true
		}
	}
	return false
}

func (f *fakeBackend) Quote(_ context.Context, req Resolved) (*Quote, error) {
	f.calls++
	f.lastSeen = req
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.quote
	return &copied, nil
}

func newTestRouter(resolver *fakeResolver, backends ...Backend) *Router {
	router := NewRouter([]Chain{{
		ChainID:       testChainID,
		WrappedNative: weth,
		Tokens:        resolver,
	}}, backends, nil)
	fixed := time.Unix(1_700_000_000, 0)
	router.now = func() time.Time { return fixed }
	return router
}

func newResolver() *fakeResolver {
	return &fakeResolver{tokens: map[common.Address]model.Token{
		wethAddr: weth,
		usdcAddr: usdc,
		daiAddr:  dai,
	}}
}

func baseRequest() Request {
	return Request{
		TokenInChainID:  testChainID,
		TokenOutChainID: testChainID,
		TokenIn:         usdcAddr.Hex(),
		TokenOut:        daiAddr.Hex(),
		Type:            ExactInput,
		Amount:          big.NewInt(1_000_000),
		Slippage:        decimal.RequireFromString("0.5"),
		Deadline:        600,
	}
}

func codeOf(t *testing.T, err error) Code {
	t.Helper()
	var qerr *Error
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	return qerr.Code
}

func TestQuoteRejectsIdenticalTokensBeforeLookup(t *testing.T) {
	resolver := newResolver()
	backend := &fakeBackend{name: "onchain", types: []TradeType{ExactInput, ExactOutput}}
	router := newTestRouter(resolver, backend)

	req := baseRequest()
	req.TokenOut = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	_, err := router.Quote(context.Background(), req)
	if code := codeOf(t, err); code != CodeInvalidTokenPair {
		t.Fatalf("expected %s, got %s", CodeInvalidTokenPair, code)
	}
	if resolver.calls != 0 || backend.calls != 0 {
		t.Fatalf("expected no lookups, got resolver=%d backend=%d", resolver.calls, backend.calls)
	}
}

func TestQuoteValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Request)
		want   Code
	}{
		{"different chains", func(r *Request) { r.TokenOutChainID = 56 }, CodeInvalidChainID},
		{"unknown chain", func(r *Request) { r.TokenInChainID, r.TokenOutChainID = 56, 56 }, CodeInvalidChainID},
		{"malformed token", func(r *Request) { r.TokenIn = "0x1234" }, CodeInvalidTokenPair},
		{"zero address token", func(r *Request) { r.TokenOut = common.Address{}.Hex() }, CodeInvalidTokenPair},
		{"both native", func(r *Request) { r.TokenIn, r.TokenOut = "ETH", "eth" }, CodeInvalidTokenPair},
		{"nil amount", func(r *Request) { r.Amount = nil }, CodeAmountIsZero},
		{"zero amount", func(r *Request) { r.Amount = big.NewInt(0) }, CodeAmountIsZero},
		{"negative amount", func(r *Request) { r.Amount = big.NewInt(-1) }, CodeInvalidAmount},
		{"slippage 100", func(r *Request) { r.Slippage = decimal.NewFromInt(100) }, CodeInvalidSlippage},
		{"negative slippage", func(r *Request) { r.Slippage = decimal.NewFromInt(-1) }, CodeInvalidSlippage},
		{"malformed swapper", func(r *Request) { r.Swapper = "alice" }, CodeInvalidSwapper},
		{"zero swapper", func(r *Request) { r.Swapper = common.Address{}.Hex() }, CodeInvalidSwapper},
		{"unknown type", func(r *Request) { r.Type = "EXACT_SOMETHING" }, CodeInvalidTradeType},
		{"deadline overflow", func(r *Request) { r.Deadline = math.MaxUint64 }, CodeInvalidDeadline},
		{"deadline above a year", func(r *Request) { r.Deadline = MaxDeadline + 1 }, CodeInvalidDeadline},
	}

	for _, tc := range cases {
		resolver := newResolver()
		backend := &fakeBackend{name: "onchain", types: []TradeType{ExactInput, ExactOutput}}
		router := newTestRouter(resolver, backend)

		req := baseRequest()
		tc.mutate(&req)
		_, err := router.Quote(context.Background(), req)
		if code := codeOf(t, err); code != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, code)
		}
		if resolver.calls != 0 || backend.calls != 0 {
			t.Fatalf("%s: validation performed lookups", tc.name)
		}
	}
}

func TestQuoteUnknownTokenIsInvalidPair(t *testing.T) {
	resolver := newResolver()
	backend := &fakeBackend{name: "onchain", types: []TradeType{ExactInput}}
	router := newTestRouter(resolver, backend)

	req := baseRequest()
	req.TokenOut = "0x1111111111111111111111111111111111111111"
	_, err := router.Quote(context.Background(), req)
	if code := codeOf(t, err); code != CodeInvalidTokenPair {
		t.Fatalf("expected %s, got %s", CodeInvalidTokenPair, code)
	}
	if backend.calls != 0 {
		t.Fatalf("backend should not run for unknown tokens")
	}
}

func sampleQuote() *Quote {
	pool := common.HexToAddress("0x5777d92f208679DB4b9778590Fa3CAB3aC9e2168")
	return &Quote{
		AmountIn:  big.NewInt(1_000_000),
		AmountOut: new(big.Int).Mul(big.NewInt(999_000), big.NewInt(1_000_000_000_000)),
		Route: [][]Leg{{{
			Type:     LegTypeV3Pool,
			Address:  pool,
			TokenIn:  usdcAddr,
			TokenOut: daiAddr,
			Fee:      model.FeeLowest,
			AmountIn: big.NewInt(1_000_000),
		}}},
		RouteCount: 1,
	}
}

func TestQuoteFallsBackToAggregatorForExactInput(t *testing.T) {
	primary := &fakeBackend{name: "onchain", types: []TradeType{ExactInput, ExactOutput}, err: newError(CodeNoRoute, "no route found", nil)}
	secondary := &fakeBackend{name: "aggregator", types: []TradeType{ExactInput}, quote: sampleQuote()}
	router := newTestRouter(newResolver(), primary, secondary)

	req := baseRequest()
	req.WithPoolFee = true
	fromSecondary, err := router.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("expected both backends once, got %d and %d", primary.calls, secondary.calls)
	}
	if fromSecondary.Source != "aggregator" {
		t.Fatalf("expected aggregator source, got %s", fromSecondary.Source)
	}

	direct := &fakeBackend{name: "onchain", types: []TradeType{ExactInput, ExactOutput}, quote: sampleQuote()}
	fromPrimary, err := newTestRouter(newResolver(), direct).Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("primary quote: %v", err)
	}

	for _, r := range []*Result{fromSecondary, fromPrimary} {
		r.Source = ""
		r.RequestID = ""
		r.Stats = Stats{}
	}
	if !reflect.DeepEqual(fromSecondary, fromPrimary) {
		t.Fatalf("results differ in shape:\n%+v\n%+v", fromSecondary, fromPrimary)
	}
	if len(fromPrimary.PoolFeeAmounts) != 1 || fromPrimary.PoolFeeAmounts[0].Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected pool fees: %+v", fromPrimary.PoolFeeAmounts)
	}
}

func TestQuoteDoesNotFallBackForExactOutput(t *testing.T) {
	primary := &fakeBackend{name: "onchain", types: []TradeType{ExactInput, ExactOutput}, err: newError(CodeNoRoute, "no route found", nil)}
	secondary := &fakeBackend{name: "aggregator", types: []TradeType{ExactInput}, quote: sampleQuote()}
	router := newTestRouter(newResolver(), primary, secondary)

	req := baseRequest()
	req.Type = ExactOutput
	_, err := router.Quote(context.Background(), req)
	if code := codeOf(t, err); code != CodeNoRoute {
		t.Fatalf("expected %s, got %s", CodeNoRoute, code)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary must not serve exact output")
	}
}

func TestQuoteAppliesSlippageAndDeadline(t *testing.T) {
	backend := &fakeBackend{name: "onchain", types: []TradeType{ExactInput, ExactOutput}, quote: &Quote{
		AmountIn:  big.NewInt(1_000_000),
		AmountOut: big.NewInt(1_000),
	}}
	router := newTestRouter(newResolver(), backend)

	req := baseRequest()
	result, err := router.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if result.MinimumAmountOut.Cmp(big.NewInt(995)) != 0 {
		t.Fatalf("expected minimum 995, got %s", result.MinimumAmountOut)
	}
	if result.Deadline.Cmp(big.NewInt(1_700_000_600)) != 0 {
		t.Fatalf("unexpected deadline %s", result.Deadline)
	}
	if backend.lastSeen.DeadlineAt.Cmp(result.Deadline) != 0 {
		t.Fatalf("backend saw deadline %s", backend.lastSeen.DeadlineAt)
	}

	req.Deadline = MaxDeadline
	result, err = router.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote with longest deadline: %v", err)
	}
	if want := big.NewInt(1_700_000_000 + MaxDeadline); result.Deadline.Cmp(want) != 0 {
		t.Fatalf("expected deadline %s, got %s", want, result.Deadline)
	}
	req.Deadline = 600

	backend.quote = &Quote{AmountIn: big.NewInt(1_001), AmountOut: big.NewInt(5)}
	req.Type = ExactOutput
	req.Amount = big.NewInt(5)
	req.Slippage = decimal.NewFromInt(1)
	result, err = router.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if result.MaximumAmountIn.Cmp(big.NewInt(1_012)) != 0 {
		t.Fatalf("expected maximum 1012, got %s", result.MaximumAmountIn)
	}
	if result.AmountOut.Cmp(req.Amount) != 0 {
		t.Fatalf("exact output must keep the requested amount, got %s", result.AmountOut)
	}
}

func TestQuoteWrapShortCircuit(t *testing.T) {
	resolver := newResolver()
	backend := &fakeBackend{name: "onchain", types: []TradeType{ExactInput, ExactOutput}}
	router := newTestRouter(resolver, backend)

	req := baseRequest()
	req.TokenIn = "ETH"
	req.TokenOut = wethAddr.Hex()
	req.Amount = big.NewInt(7)
	result, err := router.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if backend.calls != 0 {
		t.Fatalf("wrap must not call backends")
	}
	if result.Source != sourceWrap || result.AmountIn.Cmp(result.AmountOut) != 0 {
		t.Fatalf("unexpected wrap result: %+v", result)
	}
	if result.MethodParameters == nil || result.MethodParameters.To != wethAddr || result.MethodParameters.ValueInt().Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected wrap tx: %+v", result.MethodParameters)
	}
	if !result.TokenIn.Native || result.QuotePrice.StringFixed(0) != "1" {
		t.Fatalf("unexpected wrap price %s", result.QuotePrice)
	}

	req.TokenIn, req.TokenOut = wethAddr.Hex(), "eth"
	result, err = router.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("unwrap quote: %v", err)
	}
	if result.MethodParameters.ValueInt().Sign() != 0 || !result.TokenOut.Native {
		t.Fatalf("unwrap should send no value: %+v", result.MethodParameters)
	}
}

func TestQuoteInternalErrorHidesCause(t *testing.T) {
	backend := &fakeBackend{name: "onchain", types: []TradeType{ExactInput}, err: errors.New("dial tcp 10.0.0.1:8545: connection refused")}
	router := newTestRouter(newResolver(), backend)

	_, err := router.Quote(context.Background(), baseRequest())
	var qerr *Error
	if !errors.As(err, &qerr) || qerr.Code != CodeInternalServerError {
		t.Fatalf("expected internal error, got %v", err)
	}
	if qerr.PublicMessage() != internalMessage || qerr.HTTPStatus() != 500 {
		t.Fatalf("internal error leaked detail: %q %d", qerr.PublicMessage(), qerr.HTTPStatus())
	}
}

func TestFinalErrorPrecedence(t *testing.T) {
	noRoute := newError(CodeNoRoute, "no route found", nil)
	liquidity := newError(CodeNotEnoughLiquidity, "not enough liquidity", nil)
	internal := errors.New("boom")

	cases := []struct {
		failures []error
		want     Code
	}{
		{nil, CodeNoRoute},
		{[]error{internal}, CodeInternalServerError},
		{[]error{internal, noRoute}, CodeNoRoute},
		{[]error{noRoute, liquidity}, CodeNotEnoughLiquidity},
		{[]error{liquidity, internal}, CodeNotEnoughLiquidity},
	}
	for i, tc := range cases {
		if got := finalError(tc.failures).Code; got != tc.want {
			t.Fatalf("case %d: expected %s, got %s", i, tc.want, got)
		}
	}
}
