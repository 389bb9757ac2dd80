package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolscope/internal/model"
)

// Balance read modes reported next to pool balances.
const (
	BalancesAtBlock = "block"
	BalancesLatest  = "latest"
)

// PoolBalances are the token0 and token1 balances held by a pool contract.
type PoolBalances struct {
	Balance0 *big.Int
	Balance1 *big.Int
	Method   string
}

// FetchPoolBalances reads balanceOf(pool) on both tokens at blockNumber. When that fails
// (pruned state on the node) it retries at the latest block. A nil blockNumber reads latest.
func FetchPoolBalances(ctx context.Context, caller ContractCaller, pool model.Pool, blockNumber *big.Int) (PoolBalances, error) {
	if caller == nil {
		return PoolBalances{}, fmt.Errorf("contract caller is nil")
	}
	if pool.Address == nil {
		return PoolBalances{}, fmt.Errorf("pool %s/%s has no address", pool.Token0.Hex(), pool.Token1.Hex())
	}

	if blockNumber != nil {
		bal0, bal1, err := pairBalances(ctx, caller, pool, blockNumber)
		if err == nil {
			return PoolBalances{Balance0: bal0, Balance1: bal1, Method: BalancesAtBlock}, nil
		}
	}
	bal0, bal1, err := pairBalances(ctx, caller, pool, nil)
	if err != nil {
		return PoolBalances{}, err
	}
	return PoolBalances{Balance0: bal0, Balance1: bal1, Method: BalancesLatest}, nil
}

func pairBalances(ctx context.Context, caller ContractCaller, pool model.Pool, block *big.Int) (*big.Int, *big.Int, error) {
	bal0, err := balanceOf(ctx, caller, pool.Token0, *pool.Address, block)
	if err != nil {
		return nil, nil, fmt.Errorf("token0 balance: %w", err)
	}
	bal1, err := balanceOf(ctx, caller, pool.Token1, *pool.Address, block)
	if err != nil {
		return nil, nil, fmt.Errorf("token1 balance: %w", err)
	}
	return bal0, bal1, nil
}

func balanceOf(ctx context.Context, caller ContractCaller, token, owner common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := erc20BalanceABI.get()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 balance abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "balanceOf", block, owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}
