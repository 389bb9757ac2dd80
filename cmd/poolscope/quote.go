package main

import (
	"fmt"
	"math/big"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"poolscope/internal/api"
	"poolscope/internal/quote"
	"poolscope/internal/storage"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	flags := cmd.Flags()
	chainID, _ := flags.GetUint64("quote-chain")
	tokenIn, _ := flags.GetString("token-in")
	tokenOut, _ := flags.GetString("token-out")
	rawAmount, _ := flags.GetString("amount")
	tradeType, _ := flags.GetString("type")
	rawSlippage, _ := flags.GetString("slippage")
	deadline, _ := flags.GetUint64("deadline")
	swapper, _ := flags.GetString("swapper")
	withPoolFee, _ := flags.GetBool("with-pool-fee")

	if chainID == 0 {
		if len(cfg.Chains) != 1 {
			return fmt.Errorf("--quote-chain is required with %d configured chains", len(cfg.Chains))
		}
		chainID = cfg.Chains[0].ChainID
	}
	amount, ok := new(big.Int).SetString(rawAmount, 10)
	if !ok {
		return fmt.Errorf("invalid --amount %q", rawAmount)
	}
	slippage, err := decimal.NewFromString(rawSlippage)
	if err != nil {
		return fmt.Errorf("invalid --slippage %q: %w", rawSlippage, err)
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	index := storage.NewPoolIndexStore(store, cfg.CacheTTL)

	runtimes, err := openChains(ctx, cfg, index, chainID, logger)
	if err != nil {
		return err
	}
	defer closeChains(runtimes)

	// A one-shot process has no resync loop, so an empty store is seeded inline.
	rt := runtimes[0]
	if len(rt.cache.Pools(ctx)) == 0 {
		if err := rt.cache.Seed(ctx); err != nil {
			return fmt.Errorf("seed pools for chain %d: %w", chainID, err)
		}
	}

	router := newRouter(cfg, runtimes, logger)
	result, err := router.Quote(ctx, quote.Request{
		TokenInChainID:  chainID,
		TokenOutChainID: chainID,
		TokenIn:         tokenIn,
		TokenOut:        tokenOut,
		Type:            quote.TradeType(tradeType),
		Amount:          amount,
		Slippage:        slippage,
		Deadline:        deadline,
		Swapper:         swapper,
		WithPoolFee:     withPoolFee,
	})
	if err != nil {
		qerr := quote.AsError(err)
		return fmt.Errorf("%s: %s", qerr.Code, qerr.PublicMessage())
	}

	out, err := api.MarshalQuote(result)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}
