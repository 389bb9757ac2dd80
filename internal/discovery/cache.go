// Package discovery keeps a per-chain pool index fresh from a subgraph seed and an
// on-chain PoolCreated tail, and publishes immutable snapshots for readers.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolscope/internal/dex"
	"poolscope/internal/metrics"
	"poolscope/internal/model"
	"poolscope/internal/storage"
)

const (
	loopSeed     = "seed"
	loopTailInit = "tail_init"
	loopTail     = "tail"
	loopResync   = "resync"

	statusOK      = "ok"
	statusSkipped = "skipped"
	statusError   = "error"
)

// ChainReader is the RPC surface the tail needs.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// PoolSource lists every pool known to an indexer, usually a subgraph.
type PoolSource interface {
	FetchPools(ctx context.Context) ([]model.Pool, error)
}

// IndexStore persists the pool index per chain.
type IndexStore interface {
	Load(ctx context.Context, chainID uint64) (model.PoolIndex, bool, error)
	Save(ctx context.Context, chainID uint64, idx model.PoolIndex) error
}

// Options tunes one chain's discovery loops.
type Options struct {
	FactoryAddress common.Address
	ChunkSize      uint64
	PollInterval   time.Duration
	ResyncInterval time.Duration
	Confirmations  uint64
	MaxRetries     int
	RetryBackoff   time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = 300
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.ResyncInterval <= 0 {
		o.ResyncInterval = time.Minute
	}
	return o
}

// Cache owns all writes to one chain's pool index. Writes are serialized by writeMu;
// readers use the atomically published snapshot and never block on writers.
type Cache struct {
	chainID    uint64
	chainLabel string
	chain      ChainReader
	source     PoolSource
	store      IndexStore
	decoder    *dex.PoolCreatedDecoder
	opts       Options
	retry      retryPolicy
	logger     *zap.Logger

	writeMu      sync.Mutex
	snapshot     atomic.Pointer[model.PoolIndex]
	seedRequests chan struct{}
}

func NewCache(chainID uint64, chain ChainReader, source PoolSource, store IndexStore, opts Options, logger *zap.Logger) (*Cache, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain reader is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("index store is nil")
	}
	if opts.FactoryAddress == (common.Address{}) {
		return nil, fmt.Errorf("factory address is required")
	}
	decoder, err := dex.NewPoolCreatedDecoder()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Cache{
		chainID:      chainID,
		chainLabel:   strconv.FormatUint(chainID, 10),
		chain:        chain,
		source:       source,
		store:        store,
		decoder:      decoder,
		opts:         opts,
		retry:        retryPolicy{maxRetries: opts.MaxRetries, backoff: opts.RetryBackoff},
		logger:       logger.With(zap.Uint64("chain_id", chainID)),
		seedRequests: make(chan struct{}, 1),
	}, nil
}

// ChainID returns the chain this cache serves.
func (c *Cache) ChainID() uint64 {
	return c.chainID
}

// tickReport carries the structural context logged for every tick.
type tickReport struct {
	status    string
	prevCount int
	count     int
	prevBlock uint64
	lastBlock uint64
}

func reportFrom(prev model.PoolIndex) tickReport {
	return tickReport{
		status:    statusSkipped,
		prevCount: prev.Len(),
		count:     prev.Len(),
		prevBlock: prev.LastBlock,
		lastBlock: prev.LastBlock,
	}
}

func (r *tickReport) wrote(next model.PoolIndex) {
	r.status = statusOK
	r.count = next.Len()
	r.lastBlock = next.LastBlock
}

// Seed merges the subgraph pool list into the cache when the subgraph knows more pools.
func (c *Cache) Seed(ctx context.Context) error {
	return c.runTick(ctx, loopSeed, c.seedLocked)
}

// Resync repeats Seed to catch pools the tail missed.
func (c *Cache) Resync(ctx context.Context) error {
	return c.runTick(ctx, loopResync, c.seedLocked)
}

// TailInit moves lastBlock up to the current safe head without scanning history.
func (c *Cache) TailInit(ctx context.Context) error {
	return c.runTick(ctx, loopTailInit, c.tailInitLocked)
}

// Tail scans the blocks after lastBlock for PoolCreated logs and merges the new pools.
func (c *Cache) Tail(ctx context.Context) error {
	return c.runTick(ctx, loopTail, c.tailLocked)
}

func (c *Cache) runTick(ctx context.Context, loop string, fn func(context.Context, string) (tickReport, error)) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	start := time.Now()
	report, err := fn(ctx, loop)
	elapsed := time.Since(start)
	if err != nil {
		report.status = statusError
	}
	metrics.DiscoveryTicks.WithLabelValues(c.chainLabel, loop, report.status).Inc()
	metrics.DiscoveryTickDuration.WithLabelValues(c.chainLabel, loop).Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("caller", loop),
		zap.Int("prev_count", report.prevCount),
		zap.Int("count", report.count),
		zap.Uint64("prev_block", report.prevBlock),
		zap.Uint64("last_block", report.lastBlock),
		zap.Duration("elapsed", elapsed),
	}
	switch {
	case err != nil:
		c.logger.Error("discovery tick failed", append(fields, zap.String("event", "discovery_tick_failed"), zap.Error(err))...)
	case report.status == statusOK:
		c.logger.Info("discovery tick", fields...)
	default:
		c.logger.Debug("discovery tick skipped", fields...)
	}
	return err
}

// load returns the stored index, falling back to the published snapshot when the store
// has lost the entry so a TTL expiry never drops known pools. A corrupt entry counts as
// lost; the next write replaces it.
func (c *Cache) load(ctx context.Context) (model.PoolIndex, error) {
	idx, ok, err := c.store.Load(ctx, c.chainID)
	if errors.Is(err, storage.ErrCorrupt) {
		metrics.CorruptIndexReads.WithLabelValues(c.chainLabel).Inc()
		c.logger.Error("cached pool index is corrupt, treating as miss",
			zap.String("event", "pool_index_corrupt"),
			zap.Error(err),
		)
		ok, err = false, nil
	}
	if err != nil {
		return model.PoolIndex{}, err
	}
	if ok {
		return idx, nil
	}
	if snap := c.snapshot.Load(); snap != nil {
		return snap.Clone(), nil
	}
	return model.PoolIndex{}, nil
}

func (c *Cache) save(ctx context.Context, idx model.PoolIndex) error {
	if err := c.store.Save(ctx, c.chainID, idx); err != nil {
		return err
	}
	c.publish(idx)
	return nil
}

func (c *Cache) publish(idx model.PoolIndex) {
	snap := idx.Clone()
	c.snapshot.Store(&snap)
	metrics.PoolCount.WithLabelValues(c.chainLabel).Set(float64(snap.Len()))
	metrics.LastBlock.WithLabelValues(c.chainLabel).Set(float64(snap.LastBlock))
}

// publishIfEmpty publishes what was read from the store when nothing was published yet.
func (c *Cache) publishIfEmpty(idx model.PoolIndex) {
	if c.snapshot.Load() == nil {
		c.publish(idx)
	}
}

func (c *Cache) reportConflicts(loop string, conflicts []model.Conflict) {
	if len(conflicts) == 0 {
		return
	}
	metrics.PoolConflicts.WithLabelValues(c.chainLabel).Add(float64(len(conflicts)))
	for _, conflict := range conflicts {
		c.logger.Error("pool metadata conflict",
			zap.String("event", "pool_metadata_conflict"),
			zap.String("caller", loop),
			zap.String("pool", conflict.Address),
			zap.String("prev_token0", conflict.Previous.Token0.Hex()),
			zap.String("prev_token1", conflict.Previous.Token1.Hex()),
			zap.Uint32("prev_fee", uint32(conflict.Previous.Fee)),
			zap.String("token0", conflict.Incoming.Token0.Hex()),
			zap.String("token1", conflict.Incoming.Token1.Hex()),
			zap.Uint32("fee", uint32(conflict.Incoming.Fee)),
		)
	}
}

func (c *Cache) seedLocked(ctx context.Context, loop string) (tickReport, error) {
	cached, err := c.load(ctx)
	if err != nil {
		return tickReport{status: statusError}, fmt.Errorf("load cached index: %w", err)
	}
	report := reportFrom(cached)
	if c.source == nil {
		c.publishIfEmpty(cached)
		return report, nil
	}

	pools, err := c.source.FetchPools(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch subgraph pools: %w", err)
	}
	if len(pools) <= cached.Len() {
		c.publishIfEmpty(cached)
		return report, nil
	}

	merged, conflicts := cached.Merge(pools)
	c.reportConflicts(loop, conflicts)
	if err := c.save(ctx, merged); err != nil {
		return report, fmt.Errorf("save seeded index: %w", err)
	}
	report.wrote(merged)
	return report, nil
}

func (c *Cache) safeHead(ctx context.Context) (uint64, error) {
	var latest uint64
	err := c.retry.do(ctx, func(ctx context.Context) error {
		var err error
		latest, err = c.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	if latest < c.opts.Confirmations {
		return 0, nil
	}
	return latest - c.opts.Confirmations, nil
}

func (c *Cache) tailInitLocked(ctx context.Context, _ string) (tickReport, error) {
	cached, err := c.load(ctx)
	if err != nil {
		return tickReport{status: statusError}, fmt.Errorf("load cached index: %w", err)
	}
	report := reportFrom(cached)

	head, err := c.safeHead(ctx)
	if err != nil {
		return report, err
	}
	next := cached.WithLastBlock(head)
	if err := c.save(ctx, next); err != nil {
		return report, fmt.Errorf("save tail init: %w", err)
	}
	report.wrote(next)
	return report, nil
}

func (c *Cache) tailLocked(ctx context.Context, loop string) (tickReport, error) {
	cached, err := c.load(ctx)
	if err != nil {
		return tickReport{status: statusError}, fmt.Errorf("load cached index: %w", err)
	}
	if cached.LastBlock == 0 {
		return c.tailInitLocked(ctx, loop)
	}
	report := reportFrom(cached)

	head, err := c.safeHead(ctx)
	if err != nil {
		return report, err
	}
	if head <= cached.LastBlock {
		c.publishIfEmpty(cached)
		return report, nil
	}

	found, err := c.scan(ctx, cached.LastBlock+1, head)
	if err != nil {
		return report, err
	}

	merged, conflicts := cached.Merge(found)
	c.reportConflicts(loop, conflicts)
	next := merged.WithLastBlock(head)
	if err := c.save(ctx, next); err != nil {
		return report, fmt.Errorf("save tailed index: %w", err)
	}
	report.wrote(next)
	return report, nil
}

// scan walks [from, to] in chunks and returns every decodable PoolCreated pool.
// Any chunk failure aborts the whole scan so nothing partial is written.
func (c *Cache) scan(ctx context.Context, from, to uint64) ([]model.Pool, error) {
	ranges, err := SplitRange(from, to, c.opts.ChunkSize)
	if err != nil {
		return nil, err
	}

	addresses := []common.Address{c.opts.FactoryAddress}
	topic0 := []common.Hash{c.decoder.Topic0()}
	seen := make(map[string]struct{})
	var found []model.Pool

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var logs []types.Log
		err := c.retry.do(ctx, func(ctx context.Context) error {
			var err error
			logs, err = c.chain.FilterLogs(ctx, blockRange.From, blockRange.To, addresses, topic0)
			if err != nil {
				c.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		for _, log := range logs {
			id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			pool, err := c.decoder.Decode(c.chainID, log)
			if err != nil {
				metrics.DroppedLogs.WithLabelValues(c.chainLabel).Inc()
				c.logger.Debug("drop pool created log", zap.Uint64("block_number", log.BlockNumber), zap.String("tx_hash", log.TxHash.Hex()), zap.Error(err))
				continue
			}
			found = append(found, pool)
		}
		c.logger.Debug("chunk scanned", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Int("logs", len(logs)))
	}
	return found, nil
}

// Run seeds, initializes the tail and then runs the tail and resync loops until ctx ends.
// Tick failures are logged and retried on the next interval.
func (c *Cache) Run(ctx context.Context) error {
	_ = c.Seed(ctx)
	_ = c.TailInit(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.loop(ctx, c.opts.PollInterval, c.Tail, nil)
		return nil
	})
	g.Go(func() error {
		c.loop(ctx, c.opts.ResyncInterval, c.Resync, c.seedRequests)
		return nil
	})
	return g.Wait()
}

// loop runs tick on every interval and on every extra signal. A tick runs to completion
// before the next one is taken, so ticks of one loop never overlap.
func (c *Cache) loop(ctx context.Context, interval time.Duration, tick func(context.Context) error, extra <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-extra:
		}
		if ctx.Err() != nil {
			return
		}
		_ = tick(ctx)
	}
}

// Snapshot returns the last published index, nil before the first publish.
// The returned index must not be modified.
func (c *Cache) Snapshot() *model.PoolIndex {
	return c.snapshot.Load()
}

// Pools returns a copy of the known pools. Without a snapshot it falls back to the store;
// on a miss it asks the resync loop for a seed without waiting and returns nothing.
func (c *Cache) Pools(ctx context.Context) []model.Pool {
	return c.index(ctx).Clone().Pools
}

// PairPools returns the known pools trading a against b.
func (c *Cache) PairPools(ctx context.Context, a, b common.Address) []model.Pool {
	return c.index(ctx).PairPools(a, b)
}

func (c *Cache) index(ctx context.Context) model.PoolIndex {
	if snap := c.snapshot.Load(); snap != nil {
		return *snap
	}
	idx, ok, err := c.store.Load(ctx, c.chainID)
	if err != nil {
		c.logger.Warn("read pool index failed", zap.Error(err))
		c.RequestSeed()
		return model.PoolIndex{}
	}
	if !ok {
		c.RequestSeed()
		return model.PoolIndex{}
	}
	snap := idx.Clone()
	c.snapshot.CompareAndSwap(nil, &snap)
	return idx
}

// RequestSeed asks the resync loop for an immediate seed. It never blocks; a pending
// request absorbs further ones.
func (c *Cache) RequestSeed() {
	select {
	case c.seedRequests <- struct{}{}:
	default:
	}
}
