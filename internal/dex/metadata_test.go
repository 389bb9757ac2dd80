package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolscope/internal/model"
)

// fakeCaller answers eth_call by method selector.
type fakeCaller struct {
	parsed  abi.ABI
	outputs map[string][]interface{}
	fail    map[string]error
	calls   int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	method, err := f.parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	if err := f.fail[method.Name]; err != nil {
		return nil, err
	}
	return method.Outputs.Pack(f.outputs[method.Name]...)
}

func TestTokenResolverCaches(t *testing.T) {
	parsed, err := erc20StringABI.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	caller := &fakeCaller{
		parsed: parsed,
		outputs: map[string][]interface{}{
			"decimals": {uint8(6)},
			"symbol":   {"USDC"},
		},
	}
	resolver := NewTokenResolver(1, caller, nil, nil)

	token, err := resolver.Resolve(context.Background(), usdc)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if token.Decimals != 6 || token.Symbol != "USDC" || token.ChainID != 1 || token.Address != usdc {
		t.Fatalf("unexpected token: %+v", token)
	}
	calls := caller.calls
	if _, err := resolver.Resolve(context.Background(), usdc); err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if caller.calls != calls {
		t.Fatalf("second resolve should hit the cache")
	}
}

func TestFetchTokenRequiresDecimals(t *testing.T) {
	parsed, err := erc20StringABI.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	caller := &fakeCaller{
		parsed: parsed,
		fail:   map[string]error{"decimals": errors.New("execution reverted")},
	}
	if _, err := FetchToken(context.Background(), caller, 1, usdc, nil); err == nil {
		t.Fatalf("expected error when decimals fails")
	}
}

func TestFetchPoolState(t *testing.T) {
	parsed, err := poolABI.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	sqrt, _ := new(big.Int).SetString("1461446703485210103287273052203988822378723970341", 10)
	caller := &fakeCaller{
		parsed: parsed,
		outputs: map[string][]interface{}{
			"slot0":     {sqrt, big.NewInt(-201000), uint16(1), uint16(2), uint16(3), uint8(0), true},
			"liquidity": {big.NewInt(123456789)},
		},
	}

	token0, token1 := model.SortTokens(usdc, weth)
	address := weth
	pool, err := model.NewPool(1, &address, token0, token1, model.FeeLow)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	state, err := FetchPoolState(context.Background(), caller, pool, nil)
	if err != nil {
		t.Fatalf("fetch state: %v", err)
	}
	if state.SqrtRatioX96.ToBig().Cmp(sqrt) != 0 {
		t.Fatalf("sqrt mismatch: %s", state.SqrtRatioX96)
	}
	if state.Liquidity.Uint64() != 123456789 || state.TickCurrent != -201000 {
		t.Fatalf("state mismatch: %+v", state)
	}

	pool.Address = nil
	if _, err := FetchPoolState(context.Background(), caller, pool, nil); err == nil {
		t.Fatalf("expected error for pool without address")
	}
}

func TestQuoterExactInput(t *testing.T) {
	parsed, err := QuoterABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	caller := &fakeCaller{
		parsed: parsed,
		outputs: map[string][]interface{}{
			"quoteExactInput": {big.NewInt(987), []*big.Int{big.NewInt(1)}, []uint32{2}, big.NewInt(90000)},
		},
	}
	path, err := EncodePath([]common.Address{usdc, weth}, []model.FeeAmount{model.FeeLow})
	if err != nil {
		t.Fatalf("encode path: %v", err)
	}
	result, err := NewQuoter(caller, common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")).
		QuoteExactInput(context.Background(), path, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if result.Amount.Int64() != 987 || result.GasEstimate.Int64() != 90000 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.TicksCrossed) != 1 || result.TicksCrossed[0] != 2 {
		t.Fatalf("ticks crossed mismatch: %v", result.TicksCrossed)
	}

	caller.fail = map[string]error{"quoteExactInput": errors.New("execution reverted: SPL")}
	_, err = NewQuoter(caller, common.Address{}).QuoteExactInput(context.Background(), path, big.NewInt(1))
	if !IsRevert(err) {
		t.Fatalf("expected revert classification, got %v", err)
	}
	if IsRevert(errors.New("dial tcp: connection refused")) {
		t.Fatalf("transport errors are not reverts")
	}
}
