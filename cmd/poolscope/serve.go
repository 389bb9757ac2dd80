package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolscope/internal/api"
	"poolscope/internal/storage"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	index := storage.NewPoolIndexStore(store, cfg.CacheTTL)

	runtimes, err := openChains(ctx, cfg, index, 0, logger)
	if err != nil {
		return err
	}
	defer closeChains(runtimes)

	router := newRouter(cfg, runtimes, logger)
	server := api.NewServer(router, poolChains(runtimes), logger)

	logger.Info("poolscope starting",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Int("chains", len(runtimes)),
		zap.Bool("aggregator", cfg.AggregatorURL != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, rt := range runtimes {
		cache := rt.cache
		g.Go(func() error {
			return cache.Run(gctx)
		})
	}
	g.Go(func() error {
		return server.Run(gctx, cfg.HTTPAddr)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("poolscope stopped")
	return nil
}
