package quote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolscope/internal/dex"
	"poolscope/internal/model"
)

var (
	poolA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	poolB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	poolC = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	poolD = common.HexToAddress("0x00000000000000000000000000000000000000d4")

	swapRouterAddr = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
)

func mkPool(t *testing.T, address, a, b common.Address, fee model.FeeAmount) model.Pool {
	t.Helper()
	token0, token1 := model.SortTokens(a, b)
	addr := address
	pool, err := model.NewPool(testChainID, &addr, token0, token1, fee)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool
}

type fakeLookup struct {
	index model.PoolIndex
}

func (f fakeLookup) PairPools(_ context.Context, a, b common.Address) []model.Pool {
	return f.index.PairPools(a, b)
}

// fakeQuoter answers by the input-ordered token and fee sequence of the path.
type fakeQuoter struct {
	exactIn  map[string]*big.Int
	exactOut map[string]*big.Int
}

func pathKey(tokens []common.Address, fees []model.FeeAmount) string {
	parts := make([]string, 0, len(tokens)+len(fees))
	for i, token := range tokens {
		parts = append(parts, strings.ToLower(token.Hex()))
		if i < len(fees) {
			parts = append(parts, fees[i].String())
		}
	}
	return strings.Join(parts, "/")
}

func (f *fakeQuoter) answer(table map[string]*big.Int, path []byte, reverse bool) (dex.QuoterResult, error) {
	tokens, fees, err := dex.DecodePath(path)
	if err != nil {
		return dex.QuoterResult{}, err
	}
	if reverse {
		for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
			tokens[i], tokens[j] = tokens[j], tokens[i]
		}
		for i, j := 0, len(fees)-1; i < j; i, j = i+1, j-1 {
			fees[i], fees[j] = fees[j], fees[i]
		}
	}
	amount, ok := table[pathKey(tokens, fees)]
	if !ok {
		return dex.QuoterResult{}, errors.New("execution reverted: SPL")
	}
	return dex.QuoterResult{Amount: amount, GasEstimate: big.NewInt(120_000)}, nil
}

func (f *fakeQuoter) QuoteExactInput(_ context.Context, path []byte, _ *big.Int) (dex.QuoterResult, error) {
	return f.answer(f.exactIn, path, false)
}

func (f *fakeQuoter) QuoteExactOutput(_ context.Context, path []byte, _ *big.Int) (dex.QuoterResult, error) {
	return f.answer(f.exactOut, path, true)
}

func testPools(t *testing.T) fakeLookup {
	return fakeLookup{index: model.PoolIndex{Pools: []model.Pool{
		mkPool(t, poolA, usdcAddr, daiAddr, model.FeeLowest),
		mkPool(t, poolB, usdcAddr, daiAddr, model.FeeLow),
		mkPool(t, poolC, usdcAddr, wethAddr, model.FeeLow),
		mkPool(t, poolD, wethAddr, daiAddr, model.FeeMedium),
	}}}
}

func resolvedRequest(t TradeType, amount int64) Resolved {
	req := baseRequest()
	req.Type = t
	req.Amount = big.NewInt(amount)
	return Resolved{
		Request:    req,
		ChainID:    testChainID,
		TokenIn:    usdc,
		TokenOut:   dai,
		WrappedIn:  usdc,
		WrappedOut: dai,
		DeadlineAt: big.NewInt(1_700_000_600),
	}
}

func TestFindRoutes(t *testing.T) {
	lookup := testPools(t)
	routes := FindRoutes(context.Background(), lookup, usdcAddr, daiAddr, []common.Address{wethAddr}, 2)
	if len(routes) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(routes))
	}
	last := routes[2]
	if len(last.Pools) != 2 || last.Tokens[1] != wethAddr || *last.Pools[0].Address != poolC || *last.Pools[1].Address != poolD {
		t.Fatalf("unexpected two-hop route: %+v", last)
	}
	legs := last.Legs()
	if legs[1].TokenIn != wethAddr || legs[1].TokenOut != daiAddr || legs[1].Fee != model.FeeMedium {
		t.Fatalf("unexpected legs: %+v", legs)
	}

	if direct := FindRoutes(context.Background(), lookup, usdcAddr, daiAddr, []common.Address{wethAddr}, 1); len(direct) != 2 {
		t.Fatalf("expected 2 direct routes, got %d", len(direct))
	}
	if none := FindRoutes(context.Background(), lookup, usdcAddr, common.HexToAddress("0x1"), nil, 2); len(none) != 0 {
		t.Fatalf("expected no routes, got %d", len(none))
	}
}

func newTestOnChain(lookup PoolLookup, quoter PathQuoter) *OnChainBackend {
	return NewOnChainBackend(map[uint64]OnChainConfig{
		testChainID: {
			Pools:      lookup,
			Quoter:     quoter,
			SwapRouter: swapRouterAddr,
			BaseTokens: []common.Address{wethAddr},
		},
	}, 2, 2, nil)
}

func TestOnChainPicksBestRoute(t *testing.T) {
	quoter := &fakeQuoter{
		exactIn: map[string]*big.Int{
			pathKey([]common.Address{usdcAddr, daiAddr}, []model.FeeAmount{model.FeeLowest}):                         big.NewInt(990),
			pathKey([]common.Address{usdcAddr, wethAddr, daiAddr}, []model.FeeAmount{model.FeeLow, model.FeeMedium}): big.NewInt(995),
			pathKey([]common.Address{usdcAddr, wethAddr}, []model.FeeAmount{model.FeeLow}):                           big.NewInt(400),
		},
		exactOut: map[string]*big.Int{
			pathKey([]common.Address{usdcAddr, daiAddr}, []model.FeeAmount{model.FeeLowest}):                         big.NewInt(1003),
			pathKey([]common.Address{usdcAddr, wethAddr, daiAddr}, []model.FeeAmount{model.FeeLow, model.FeeMedium}): big.NewInt(1005),
		},
	}
	backend := newTestOnChain(testPools(t), quoter)

	req := resolvedRequest(ExactInput, 1_000_000)
	req.WithPoolFee = true
	q, err := backend.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("exact input: %v", err)
	}
	if q.AmountOut.Cmp(big.NewInt(995)) != 0 || q.RouteCount != 3 {
		t.Fatalf("unexpected best quote: out=%s routes=%d", q.AmountOut, q.RouteCount)
	}
	legs := q.Route[0]
	if len(legs) != 2 || legs[0].Address != poolC {
		t.Fatalf("unexpected route: %+v", legs)
	}
	if legs[0].AmountIn.Cmp(big.NewInt(1_000_000)) != 0 || legs[1].AmountIn.Cmp(big.NewInt(400)) != 0 || legs[1].AmountOut.Cmp(big.NewInt(995)) != 0 {
		t.Fatalf("unexpected hop amounts: %+v", legs)
	}
	if q.Tx != nil {
		t.Fatalf("no calldata expected without a recipient")
	}

	q, err = backend.Quote(context.Background(), resolvedRequest(ExactOutput, 1_000))
	if err != nil {
		t.Fatalf("exact output: %v", err)
	}
	if q.AmountIn.Cmp(big.NewInt(1003)) != 0 || q.Route[0][0].Address != poolA {
		t.Fatalf("expected the cheapest input through pool A, got %s via %+v", q.AmountIn, q.Route[0])
	}
}

func TestOnChainEncodesCalldataForRecipient(t *testing.T) {
	quoter := &fakeQuoter{exactIn: map[string]*big.Int{
		pathKey([]common.Address{usdcAddr, daiAddr}, []model.FeeAmount{model.FeeLowest}): big.NewInt(1_000),
	}}
	backend := newTestOnChain(testPools(t), quoter)

	req := resolvedRequest(ExactInput, 1_000_000)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	req.Recipient = &recipient
	req.Slippage = decimal.RequireFromString("0.5")

	q, err := backend.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Tx == nil || q.Tx.To != swapRouterAddr || q.Tx.ValueInt().Sign() != 0 {
		t.Fatalf("unexpected tx: %+v", q.Tx)
	}
	parsed, err := dex.SwapRouterABI()
	if err != nil {
		t.Fatalf("router abi: %v", err)
	}
	if !bytes.Equal(q.Tx.Data[:4], parsed.Methods["exactInput"].ID) {
		t.Fatalf("expected exactInput calldata, got selector %x", q.Tx.Data[:4])
	}
}

func TestOnChainFailures(t *testing.T) {
	backend := newTestOnChain(testPools(t), &fakeQuoter{})
	_, err := backend.Quote(context.Background(), resolvedRequest(ExactInput, 1))
	if code := codeOf(t, err); code != CodeNotEnoughLiquidity {
		t.Fatalf("all reverts: expected %s, got %s", CodeNotEnoughLiquidity, code)
	}

	empty := newTestOnChain(fakeLookup{}, &fakeQuoter{})
	_, err = empty.Quote(context.Background(), resolvedRequest(ExactInput, 1))
	if code := codeOf(t, err); code != CodeNoRoute {
		t.Fatalf("no pools: expected %s, got %s", CodeNoRoute, code)
	}

	broken := newTestOnChain(testPools(t), errQuoter{err: fmt.Errorf("rpc timeout")})
	_, err = broken.Quote(context.Background(), resolvedRequest(ExactInput, 1))
	if err == nil || AsError(err).Code != CodeInternalServerError {
		t.Fatalf("transport failure: expected internal error, got %v", err)
	}
}

func TestOnChainWithoutQuoterIsNoRoute(t *testing.T) {
	backend := NewOnChainBackend(map[uint64]OnChainConfig{}, 2, 4, nil)
	_, err := backend.Quote(context.Background(), resolvedRequest(ExactOutput, 1))
	if code := codeOf(t, err); code != CodeNoRoute {
		t.Fatalf("unconfigured chain: expected %s, got %s", CodeNoRoute, code)
	}

	router := newTestRouter(newResolver(), backend)
	req := baseRequest()
	req.Type = ExactOutput
	_, err = router.Quote(context.Background(), req)
	if qerr := AsError(err); qerr == nil || qerr.Code != CodeNoRoute || qerr.HTTPStatus() != 400 {
		t.Fatalf("expected a 400 %s, got %v", CodeNoRoute, err)
	}
}

type errQuoter struct {
	err error
}

func (e errQuoter) QuoteExactInput(context.Context, []byte, *big.Int) (dex.QuoterResult, error) {
	return dex.QuoterResult{}, e.err
}

func (e errQuoter) QuoteExactOutput(context.Context, []byte, *big.Int) (dex.QuoterResult, error) {
	return dex.QuoterResult{}, e.err
}
