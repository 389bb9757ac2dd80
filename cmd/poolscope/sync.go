package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolscope/internal/storage"
)

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	only, _ := cmd.Flags().GetUint64("only-chain")

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	index := storage.NewPoolIndexStore(store, cfg.CacheTTL)

	runtimes, err := openChains(ctx, cfg, index, only, logger)
	if err != nil {
		return err
	}
	defer closeChains(runtimes)

	var failed int
	for _, rt := range runtimes {
		if err := syncChain(cmd, rt); err != nil {
			failed++
			continue
		}
		snap := rt.cache.Snapshot()
		if snap == nil {
			continue
		}
		logger.Info("chain synced",
			zap.Uint64("chain_id", rt.cfg.ChainID),
			zap.Int("pools", snap.Len()),
			zap.Uint64("last_block", snap.LastBlock),
		)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d chains failed to sync", failed, len(runtimes))
	}
	return nil
}

// syncChain runs one seed and then either initializes the tail or catches it up.
func syncChain(cmd *cobra.Command, rt *chainRuntime) error {
	ctx := cmd.Context()
	seedErr := rt.cache.Seed(ctx)
	if snap := rt.cache.Snapshot(); snap == nil || snap.LastBlock == 0 {
		if err := rt.cache.TailInit(ctx); err != nil {
			return err
		}
		return seedErr
	}
	if err := rt.cache.Tail(ctx); err != nil {
		return err
	}
	return seedErr
}
