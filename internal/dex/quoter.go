package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// QuoterResult is the decoded QuoterV2 response for one path.
type QuoterResult struct {
	// Amount is amountOut for exact input, amountIn for exact output.
	Amount            *big.Int
	SqrtPriceX96After []*big.Int
	TicksCrossed      []uint32
	GasEstimate       *big.Int
}

// Quoter calls QuoterV2 through eth_call.
type Quoter struct {
	caller  ContractCaller
	address common.Address
}

func NewQuoter(caller ContractCaller, address common.Address) *Quoter {
	return &Quoter{caller: caller, address: address}
}

// QuoteExactInput quotes amountIn along an input-ordered path.
func (q *Quoter) QuoteExactInput(ctx context.Context, path []byte, amountIn *big.Int) (QuoterResult, error) {
	return q.quote(ctx, "quoteExactInput", path, amountIn)
}

// QuoteExactOutput quotes amountOut along an output-first path.
func (q *Quoter) QuoteExactOutput(ctx context.Context, path []byte, amountOut *big.Int) (QuoterResult, error) {
	return q.quote(ctx, "quoteExactOutput", path, amountOut)
}

func (q *Quoter) quote(ctx context.Context, method string, path []byte, amount *big.Int) (QuoterResult, error) {
	parsed, err := quoterABI.get()
	if err != nil {
		return QuoterResult{}, fmt.Errorf("parse quoter abi: %w", err)
	}
	values, err := callMethod(ctx, q.caller, q.address, parsed, method, nil, path, amount)
	if err != nil {
		return QuoterResult{}, err
	}
	if len(values) != 4 {
		return QuoterResult{}, fmt.Errorf("%s: expected 4 values, got %d", method, len(values))
	}

	result := QuoterResult{}
	if result.Amount, err = asBigInt(values[0]); err != nil {
		return QuoterResult{}, fmt.Errorf("%s amount: %w", method, err)
	}
	if after, ok := values[1].([]*big.Int); ok {
		result.SqrtPriceX96After = after
	}
	if crossed, ok := values[2].([]uint32); ok {
		result.TicksCrossed = crossed
	}
	if result.GasEstimate, err = asBigInt(values[3]); err != nil {
		return QuoterResult{}, fmt.Errorf("%s gas estimate: %w", method, err)
	}
	return result, nil
}

// IsRevert reports whether err is an execution revert from eth_call, which the quoter
// produces when a pool cannot fill the requested amount.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
