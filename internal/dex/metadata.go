package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolscope/internal/model"
)

// ContractCaller is the eth_call surface used for token, pool and quoter reads.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenMetaCache caches token metadata by address for a single chain.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.Token
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.Token)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.Token, bool) {
	c.mu.RLock()
	token, ok := c.data[address]
	c.mu.RUnlock()
	return token, ok
}

func (c *TokenMetaCache) Set(token model.Token) {
	c.mu.Lock()
	c.data[token.Address] = token
	c.mu.Unlock()
}

// TokenResolver resolves ERC20 metadata through a cache backed by eth_call.
type TokenResolver struct {
	chainID uint64
	caller  ContractCaller
	cache   *TokenMetaCache
	logger  *zap.Logger
}

func NewTokenResolver(chainID uint64, caller ContractCaller, cache *TokenMetaCache, logger *zap.Logger) *TokenResolver {
	if cache == nil {
		cache = NewTokenMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenResolver{chainID: chainID, caller: caller, cache: cache, logger: logger}
}

// Resolve returns cached metadata or fetches it. Failed fetches are not cached.
func (r *TokenResolver) Resolve(ctx context.Context, address common.Address) (model.Token, error) {
	if token, ok := r.cache.Get(address); ok {
		return token, nil
	}
	token, err := FetchToken(ctx, r.caller, r.chainID, address, r.logger)
	if err != nil {
		return model.Token{}, err
	}
	r.cache.Set(token)
	return token, nil
}

// FetchToken loads token metadata via ERC20 calls. Decimals are required, the symbol is best effort.
func FetchToken(ctx context.Context, caller ContractCaller, chainID uint64, address common.Address, logger *zap.Logger) (model.Token, error) {
	token := model.Token{ChainID: chainID, Address: address}
	if caller == nil {
		return token, fmt.Errorf("contract caller is nil")
	}

	stringABI, err := erc20StringABI.get()
	if err != nil {
		return token, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		return token, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, address, stringABI, "decimals", nil)
	if err != nil {
		return token, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return token, fmt.Errorf("decimals: %w", err)
	}
	token.Decimals = decimals

	if values, err := callMethod(ctx, caller, address, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			token.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, caller, address, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			token.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", address.Hex()), zap.Error(err))
	}

	return token, nil
}

// FetchPoolState reads slot0 and liquidity and returns the pool carrying them.
// A nil blockNumber reads the latest state.
func FetchPoolState(ctx context.Context, caller ContractCaller, pool model.Pool, blockNumber *big.Int) (model.Pool, error) {
	if caller == nil {
		return pool, fmt.Errorf("contract caller is nil")
	}
	if pool.Address == nil {
		return pool, fmt.Errorf("pool %s/%s has no address", pool.Token0.Hex(), pool.Token1.Hex())
	}

	parsed, err := poolABI.get()
	if err != nil {
		return pool, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, caller, *pool.Address, parsed, "slot0", blockNumber)
	if err != nil {
		return pool, err
	}
	if len(values) < 2 {
		return pool, fmt.Errorf("slot0: expected at least 2 values, got %d", len(values))
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return pool, fmt.Errorf("slot0 sqrtPriceX96: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return pool, fmt.Errorf("slot0 tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return pool, fmt.Errorf("slot0 tick: %w", err)
	}

	values, err = callMethod(ctx, caller, *pool.Address, parsed, "liquidity", blockNumber)
	if err != nil {
		return pool, err
	}
	liq, err := asBigInt(values[0])
	if err != nil {
		return pool, fmt.Errorf("liquidity: %w", err)
	}

	sqrtU, overflow := uint256.FromBig(sqrt)
	if overflow {
		return pool, fmt.Errorf("slot0 sqrtPriceX96 overflows uint256")
	}
	liqU, overflow := uint256.FromBig(liq)
	if overflow {
		return pool, fmt.Errorf("liquidity overflows uint256")
	}
	return pool.WithState(sqrtU, liqU, tick), nil
}

func callMethod(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}
