package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolscope/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("load .env: " + err.Error() + "\n")
	}

	root := &cobra.Command{
		Use:          "poolscope",
		Short:        "AMM pool discovery cache and quote router",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("cache-backend", config.BackendMemory, "pool index store (memory, file, redis, postgres)")
	root.PersistentFlags().String("cache-dir", "./data/cache", "directory for the file cache backend")
	root.PersistentFlags().String("redis-addr", "localhost:6379", "redis address")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().Duration("cache-ttl", 2629800*time.Second, "pool index TTL")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run discovery loops for every chain and serve the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("aggregator-url", "", "fallback aggregator base URL")
	serveCmd.Flags().Duration("aggregator-timeout", 5*time.Second, "aggregator request timeout")
	serveCmd.Flags().Int("quote-concurrency", 8, "concurrent quoter calls per request")
	serveCmd.Flags().Int("max-hops", 2, "maximum pools per route")
	root.AddCommand(serveCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one seed and tail pass per chain and exit",
		RunE:  runSync,
	}
	syncCmd.Flags().Uint64("only-chain", 0, "sync a single chain id, 0 means all")
	root.AddCommand(syncCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Print a single quote as JSON",
		RunE:  runQuote,
	}
	quoteCmd.Flags().Uint64("quote-chain", 0, "chain id of both tokens")
	quoteCmd.Flags().String("token-in", "", "input token address or native symbol")
	quoteCmd.Flags().String("token-out", "", "output token address or native symbol")
	quoteCmd.Flags().String("amount", "", "amount in base units")
	quoteCmd.Flags().String("type", "EXACT_INPUT", "EXACT_INPUT or EXACT_OUTPUT")
	quoteCmd.Flags().String("slippage", "0.5", "slippage tolerance in percent")
	quoteCmd.Flags().Uint64("deadline", 1800, "deadline in seconds from now")
	quoteCmd.Flags().String("swapper", "", "recipient address; enables calldata")
	quoteCmd.Flags().Bool("with-pool-fee", false, "include per-pool fee amounts")
	quoteCmd.Flags().String("aggregator-url", "", "fallback aggregator base URL")
	quoteCmd.Flags().Int("max-hops", 2, "maximum pools per route")
	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
