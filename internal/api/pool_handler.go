package api

import (
	"context"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poolscope/internal/dex"
	"poolscope/internal/model"
	"poolscope/internal/price"
	"poolscope/internal/quote"
)

// PoolIndexReader is the read side of a chain's discovery cache.
type PoolIndexReader interface {
	Pools(ctx context.Context) []model.Pool
	PairPools(ctx context.Context, a, b common.Address) []model.Pool
	Snapshot() *model.PoolIndex
}

// PoolChain wires the pool endpoint for one chain. Caller enables live state, InitCodeHash enables
// address-derived pools for fee tiers not yet discovered.
type PoolChain struct {
	ChainID      uint64
	Index        PoolIndexReader
	Caller       dex.ContractCaller
	Tokens       quote.TokenResolver
	Factory      common.Address
	InitCodeHash common.Hash
}

func badRequest(c *gin.Context, code quote.Code, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{ErrorCode: string(code), Message: message})
}

func (s *Server) getPools(c *gin.Context) {
	chainID, err := strconv.ParseUint(c.Param("chainId"), 10, 64)
	if err != nil {
		badRequest(c, quote.CodeInvalidChainID, "chainId must be an integer")
		return
	}
	chain, ok := s.pools[chainID]
	if !ok || chain.Index == nil {
		badRequest(c, quote.CodeInvalidChainID, "unsupported chain "+c.Param("chainId"))
		return
	}

	rawA, rawB := c.Query("tokenA"), c.Query("tokenB")
	withState := c.Query("state") == "true"
	derive := c.Query("derive") == "true"
	hasPair := rawA != "" || rawB != ""
	if !hasPair && (withState || derive) {
		badRequest(c, quote.CodeInvalidTokenPair, "state and derive need tokenA and tokenB")
		return
	}

	ctx := c.Request.Context()
	var pools []model.Pool
	var tokenA, tokenB common.Address
	if hasPair {
		if !common.IsHexAddress(rawA) || !common.IsHexAddress(rawB) {
			badRequest(c, quote.CodeInvalidTokenPair, "tokenA and tokenB must be addresses")
			return
		}
		tokenA, tokenB = common.HexToAddress(rawA), common.HexToAddress(rawB)
		if tokenA == tokenB {
			badRequest(c, quote.CodeInvalidTokenPair, "tokenA and tokenB must differ")
			return
		}
		pools = chain.Index.PairPools(ctx, tokenA, tokenB)
	} else {
		pools = chain.Index.Pools(ctx)
	}

	derived := map[string]bool{}
	if derive && chain.InitCodeHash != (common.Hash{}) {
		for _, pool := range deriveMissingPools(chain, tokenA, tokenB, pools) {
			derived[pool.Key()] = true
			pools = append(pools, pool)
		}
	}

	resp := poolsResponse{ChainID: chainID, LastBlock: "0", Pools: make([]poolResponse, 0, len(pools))}
	var balanceBlock *big.Int
	if snap := chain.Index.Snapshot(); snap != nil {
		resp.LastBlock = formatBlock(snap.LastBlock)
		if snap.LastBlock > 0 {
			balanceBlock = new(big.Int).SetUint64(snap.LastBlock)
		}
	}

	var balances map[string]dex.PoolBalances
	if withState && chain.Caller != nil {
		pools, balances = s.withState(ctx, chain, pools, balanceBlock)
	}

	var token0, token1 model.Token
	var tokensOK bool
	if withState && chain.Tokens != nil {
		token0, token1, tokensOK = s.resolvePair(ctx, chain, tokenA, tokenB)
	}
	for _, pool := range pools {
		out := toPoolResponse(pool)
		out.Derived = derived[pool.Key()]
		if bal, ok := balances[pool.Key()]; ok {
			out.Balance0 = bal.Balance0.String()
			out.Balance1 = bal.Balance1.String()
			out.BalancesAt = bal.Method
		}
		if tokensOK && pool.SqrtRatioX96 != nil {
			out.Token0Price = price.Token0Price(pool, token0, token1).String()
			out.Token1Price = price.Token1Price(pool, token0, token1).String()
		}
		resp.Pools = append(resp.Pools, out)
	}
	resp.Count = len(resp.Pools)
	c.JSON(http.StatusOK, resp)
}

// deriveMissingPools computes the CREATE2 address of every fee tier the index has no pool for.
func deriveMissingPools(chain PoolChain, a, b common.Address, known []model.Pool) []model.Pool {
	have := make(map[model.FeeAmount]bool, len(known))
	for _, pool := range known {
		have[pool.Fee] = true
	}
	token0, token1 := model.SortTokens(a, b)
	var out []model.Pool
	for _, fee := range model.FeeAmounts() {
		if have[fee] {
			continue
		}
		address := dex.ComputePoolAddress(chain.Factory, chain.InitCodeHash, token0, token1, fee)
		pool, err := model.NewPool(chain.ChainID, &address, token0, token1, fee)
		if err != nil {
			continue
		}
		out = append(out, pool)
	}
	return out
}

// withState attaches live slot0 and liquidity to every addressed pool, plus the token
// balances the pool holds at balanceBlock. Pools whose reads fail are returned unchanged.
func (s *Server) withState(ctx context.Context, chain PoolChain, pools []model.Pool, balanceBlock *big.Int) ([]model.Pool, map[string]dex.PoolBalances) {
	out := make([]model.Pool, 0, len(pools))
	balances := make(map[string]dex.PoolBalances, len(pools))
	for _, pool := range pools {
		if pool.Address == nil {
			out = append(out, pool)
			continue
		}
		if bal, err := dex.FetchPoolBalances(ctx, chain.Caller, pool, balanceBlock); err == nil {
			balances[pool.Key()] = bal
		} else {
			s.logger.Debug("pool balances unavailable", zap.Uint64("chain_id", chain.ChainID), zap.String("pool", pool.Key()), zap.Error(err))
		}
		live, err := dex.FetchPoolState(ctx, chain.Caller, pool, nil)
		if err != nil {
			s.logger.Debug("pool state unavailable", zap.Uint64("chain_id", chain.ChainID), zap.String("pool", pool.Key()), zap.Error(err))
			out = append(out, pool)
			continue
		}
		out = append(out, live)
	}
	return out, balances
}

func (s *Server) resolvePair(ctx context.Context, chain PoolChain, a, b common.Address) (model.Token, model.Token, bool) {
	address0, address1 := model.SortTokens(a, b)
	token0, err := chain.Tokens.Resolve(ctx, address0)
	if err != nil {
		s.logger.Debug("token metadata unavailable", zap.String("token", address0.Hex()), zap.Error(err))
		return model.Token{}, model.Token{}, false
	}
	token1, err := chain.Tokens.Resolve(ctx, address1)
	if err != nil {
		s.logger.Debug("token metadata unavailable", zap.String("token", address1.Hex()), zap.Error(err))
		return model.Token{}, model.Token{}, false
	}
	return token0, token1, true
}
