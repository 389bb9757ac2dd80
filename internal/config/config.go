package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cache backends accepted by cache-backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ChainConfig describes one chain served by discovery and quoting.
type ChainConfig struct {
	ChainID          uint64        `mapstructure:"chain-id"`
	RPC              string        `mapstructure:"rpc"`
	Subgraph         string        `mapstructure:"subgraph"`
	Factory          string        `mapstructure:"factory"`
	Quoter           string        `mapstructure:"quoter"`
	SwapRouter       string        `mapstructure:"swap-router"`
	WrappedNative    string        `mapstructure:"wrapped-native"`
	NativeSymbol     string        `mapstructure:"native-symbol"`
	PoolInitCodeHash string        `mapstructure:"pool-init-code-hash"`
	BaseTokens       []string      `mapstructure:"base-tokens"`
	PollInterval     time.Duration `mapstructure:"poll-interval"`
	ResyncInterval   time.Duration `mapstructure:"resync-interval"`
	ChunkSize        uint64        `mapstructure:"chunk-size"`
	Confirmations    uint64        `mapstructure:"confirmations"`
	SubgraphPageSize int           `mapstructure:"subgraph-page-size"`
	MaxRetries       int           `mapstructure:"max-retries"`
	RetryBackoff     time.Duration `mapstructure:"retry-backoff"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel          string
	HTTPAddr          string
	CacheBackend      string
	CacheDir          string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	PGDSN             string
	CacheTTL          time.Duration
	AggregatorURL     string
	AggregatorTimeout time.Duration
	QuoteConcurrency  int
	MaxHops           int
	Chains            []ChainConfig
}

// Load merges config file, environment variables, and flags into Config.
// Without a chains list, the top-level chain keys (rpc, chain-id, factory, ...) describe a single chain.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("http-addr", ":8080")
	v.SetDefault("cache-backend", BackendMemory)
	v.SetDefault("cache-dir", "./data/cache")
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-db", 0)
	v.SetDefault("cache-ttl", 2629800*time.Second)
	v.SetDefault("aggregator-timeout", 5*time.Second)
	v.SetDefault("quote-concurrency", 8)
	v.SetDefault("max-hops", 2)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:          v.GetString("log-level"),
		HTTPAddr:          v.GetString("http-addr"),
		CacheBackend:      strings.ToLower(v.GetString("cache-backend")),
		CacheDir:          v.GetString("cache-dir"),
		RedisAddr:         v.GetString("redis-addr"),
		RedisPassword:     v.GetString("redis-password"),
		RedisDB:           v.GetInt("redis-db"),
		PGDSN:             v.GetString("pg-dsn"),
		CacheTTL:          v.GetDuration("cache-ttl"),
		AggregatorURL:     v.GetString("aggregator-url"),
		AggregatorTimeout: v.GetDuration("aggregator-timeout"),
		QuoteConcurrency:  v.GetInt("quote-concurrency"),
		MaxHops:           v.GetInt("max-hops"),
	}

	if v.IsSet("chains") {
		if err := v.UnmarshalKey("chains", &cfg.Chains); err != nil {
			return Config{}, fmt.Errorf("decode chains: %w", err)
		}
	} else if v.GetString("rpc") != "" {
		cfg.Chains = []ChainConfig{singleChain(v)}
	}
	for i := range cfg.Chains {
		cfg.Chains[i] = cfg.Chains[i].withDefaults()
	}

	return cfg, nil
}

func singleChain(v *viper.Viper) ChainConfig {
	return ChainConfig{
		ChainID:          v.GetUint64("chain-id"),
		RPC:              v.GetString("rpc"),
		Subgraph:         v.GetString("subgraph"),
		Factory:          v.GetString("factory"),
		Quoter:           v.GetString("quoter"),
		SwapRouter:       v.GetString("swap-router"),
		WrappedNative:    v.GetString("wrapped-native"),
		NativeSymbol:     v.GetString("native-symbol"),
		PoolInitCodeHash: v.GetString("pool-init-code-hash"),
		BaseTokens:       getStringSlice(v, "base-tokens"),
		PollInterval:     v.GetDuration("poll-interval"),
		ResyncInterval:   v.GetDuration("resync-interval"),
		ChunkSize:        v.GetUint64("chunk-size"),
		Confirmations:    v.GetUint64("confirmations"),
		SubgraphPageSize: v.GetInt("subgraph-page-size"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
	}
}

func (c ChainConfig) withDefaults() ChainConfig {
	if c.NativeSymbol == "" {
		c.NativeSymbol = "ETH"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = time.Minute
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 300
	}
	if c.SubgraphPageSize <= 0 {
		c.SubgraphPageSize = 1000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	c.BaseTokens = cleanStrings(c.BaseTokens)
	return c
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	switch c.CacheBackend {
	case BackendMemory, BackendFile, BackendRedis:
	case BackendPostgres:
		if c.PGDSN == "" {
			return errors.New("pg-dsn is required for the postgres cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	if len(c.Chains) == 0 {
		return errors.New("at least one chain is required")
	}
	seen := make(map[uint64]bool, len(c.Chains))
	for _, chain := range c.Chains {
		if err := chain.Validate(); err != nil {
			return fmt.Errorf("chain %d: %w", chain.ChainID, err)
		}
		if seen[chain.ChainID] {
			return fmt.Errorf("chain %d configured twice", chain.ChainID)
		}
		seen[chain.ChainID] = true
	}
	return nil
}

// Validate checks one chain's addresses and required endpoints.
func (c ChainConfig) Validate() error {
	if c.ChainID == 0 {
		return errors.New("chain-id is required")
	}
	if c.RPC == "" {
		return errors.New("rpc url is required")
	}
	if _, err := ParseAddress(c.Factory); err != nil {
		return fmt.Errorf("factory: %w", err)
	}
	if _, err := ParseAddress(c.WrappedNative); err != nil {
		return fmt.Errorf("wrapped-native: %w", err)
	}
	for key, value := range map[string]string{"quoter": c.Quoter, "swap-router": c.SwapRouter} {
		if value == "" {
			continue
		}
		if _, err := ParseAddress(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Quoter != "" && c.SwapRouter == "" {
		return errors.New("swap-router is required when quoter is set")
	}
	if c.PoolInitCodeHash != "" {
		if _, err := ParseHash(c.PoolInitCodeHash); err != nil {
			return fmt.Errorf("pool-init-code-hash: %w", err)
		}
	}
	if _, err := ParseAddresses(c.BaseTokens); err != nil {
		return fmt.Errorf("base-tokens: %w", err)
	}
	return nil
}

// Chain returns the configuration of chainID.
func (c Config) Chain(chainID uint64) (ChainConfig, bool) {
	for _, chain := range c.Chains {
		if chain.ChainID == chainID {
			return chain, true
		}
	}
	return ChainConfig{}, false
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
