package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolscope/internal/api"
	"poolscope/internal/chain"
	"poolscope/internal/config"
	"poolscope/internal/dex"
	"poolscope/internal/discovery"
	"poolscope/internal/model"
	"poolscope/internal/quote"
	"poolscope/internal/storage"
	"poolscope/internal/storage/postgres"
	"poolscope/internal/storage/redis"
	"poolscope/internal/subgraph"
)

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.CacheBackend {
	case config.BackendFile:
		return storage.NewFileStore(cfg.CacheDir)
	case config.BackendRedis:
		return redis.NewStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case config.BackendPostgres:
		return postgres.NewStore(ctx, cfg.PGDSN)
	default:
		return storage.NewMemoryStore(), nil
	}
}

// chainRuntime is everything one chain needs for discovery and quoting.
type chainRuntime struct {
	cfg        config.ChainConfig
	client     *chain.Client
	cache      *discovery.Cache
	tokens     *dex.TokenResolver
	wrapped    model.Token
	factory    common.Address
	baseTokens []common.Address
}

func newChainRuntime(ctx context.Context, cc config.ChainConfig, index *storage.PoolIndexStore, logger *zap.Logger) (*chainRuntime, error) {
	factory, err := config.ParseAddress(cc.Factory)
	if err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}
	wrappedAddress, err := config.ParseAddress(cc.WrappedNative)
	if err != nil {
		return nil, fmt.Errorf("wrapped-native: %w", err)
	}
	baseTokens, err := config.ParseAddresses(cc.BaseTokens)
	if err != nil {
		return nil, fmt.Errorf("base-tokens: %w", err)
	}

	client, err := chain.NewClient(ctx, cc.RPC, cc.ChainID)
	if err != nil {
		return nil, fmt.Errorf("connect rpc for chain %d: %w", cc.ChainID, err)
	}

	var source discovery.PoolSource
	if cc.Subgraph != "" {
		source = subgraph.NewClient(cc.Subgraph, cc.ChainID, cc.SubgraphPageSize, &http.Client{Timeout: 60 * time.Second}, logger)
	}

	cache, err := discovery.NewCache(cc.ChainID, client, source, index, discovery.Options{
		FactoryAddress: factory,
		ChunkSize:      cc.ChunkSize,
		PollInterval:   cc.PollInterval,
		ResyncInterval: cc.ResyncInterval,
		Confirmations:  cc.Confirmations,
		MaxRetries:     cc.MaxRetries,
		RetryBackoff:   cc.RetryBackoff,
	}, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	tokens := dex.NewTokenResolver(cc.ChainID, client, nil, logger)
	wrapped, err := tokens.Resolve(ctx, wrappedAddress)
	if err != nil {
		logger.Warn("wrapped native metadata unavailable, assuming 18 decimals",
			zap.Uint64("chain_id", cc.ChainID),
			zap.String("token", wrappedAddress.Hex()),
			zap.Error(err),
		)
		wrapped = model.Token{ChainID: cc.ChainID, Address: wrappedAddress, Decimals: 18, Symbol: "W" + cc.NativeSymbol}
	}

	return &chainRuntime{
		cfg:        cc,
		client:     client,
		cache:      cache,
		tokens:     tokens,
		wrapped:    wrapped,
		factory:    factory,
		baseTokens: baseTokens,
	}, nil
}

func openChains(ctx context.Context, cfg config.Config, index *storage.PoolIndexStore, only uint64, logger *zap.Logger) ([]*chainRuntime, error) {
	var runtimes []*chainRuntime
	for _, cc := range cfg.Chains {
		if only != 0 && cc.ChainID != only {
			continue
		}
		rt, err := newChainRuntime(ctx, cc, index, logger)
		if err != nil {
			closeChains(runtimes)
			return nil, err
		}
		runtimes = append(runtimes, rt)
	}
	if len(runtimes) == 0 {
		return nil, fmt.Errorf("no chain matches %d", only)
	}
	return runtimes, nil
}

func closeChains(runtimes []*chainRuntime) {
	for _, rt := range runtimes {
		rt.client.Close()
	}
}

func newRouter(cfg config.Config, runtimes []*chainRuntime, logger *zap.Logger) *quote.Router {
	chains := make([]quote.Chain, 0, len(runtimes))
	onchain := make(map[uint64]quote.OnChainConfig, len(runtimes))
	for _, rt := range runtimes {
		chains = append(chains, quote.Chain{
			ChainID:       rt.cfg.ChainID,
			NativeSymbol:  rt.cfg.NativeSymbol,
			WrappedNative: rt.wrapped,
			Tokens:        rt.tokens,
		})
		if rt.cfg.Quoter == "" {
			continue
		}
		quoterAddress, _ := config.ParseAddress(rt.cfg.Quoter)
		swapRouter, _ := config.ParseAddress(rt.cfg.SwapRouter)
		onchain[rt.cfg.ChainID] = quote.OnChainConfig{
			Pools:      rt.cache,
			Quoter:     dex.NewQuoter(rt.client, quoterAddress),
			SwapRouter: swapRouter,
			BaseTokens: rt.baseTokens,
		}
	}

	backends := []quote.Backend{quote.NewOnChainBackend(onchain, cfg.MaxHops, cfg.QuoteConcurrency, logger)}
	if cfg.AggregatorURL != "" {
		backends = append(backends, quote.NewAggregatorBackend(cfg.AggregatorURL, cfg.AggregatorTimeout, nil, logger))
	}
	return quote.NewRouter(chains, backends, logger)
}

func poolChains(runtimes []*chainRuntime) []api.PoolChain {
	out := make([]api.PoolChain, 0, len(runtimes))
	for _, rt := range runtimes {
		pc := api.PoolChain{
			ChainID: rt.cfg.ChainID,
			Index:   rt.cache,
			Caller:  rt.client,
			Tokens:  rt.tokens,
			Factory: rt.factory,
		}
		if rt.cfg.PoolInitCodeHash != "" {
			pc.InitCodeHash, _ = config.ParseHash(rt.cfg.PoolInitCodeHash)
		}
		out = append(out, pc)
	}
	return out
}
