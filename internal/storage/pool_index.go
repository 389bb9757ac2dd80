package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"

	"poolscope/internal/metrics"
	"poolscope/internal/model"
)

// DefaultPoolIndexTTL keeps seeded pool data for about a month. Freshness comes from tailing, not expiry.
const DefaultPoolIndexTTL = 2629800 * time.Second

// storedPoolIndex is the cache blob. lastBlock is a decimal string so 64-bit heights survive any JSON reader.
type storedPoolIndex struct {
	LastBlock string       `json:"lastBlock"`
	Pools     []model.Pool `json:"pools"`
}

// PoolIndexKey is the chain-scoped cache key.
func PoolIndexKey(chainID uint64) string {
	return "pools:" + strconv.FormatUint(chainID, 10)
}

// EncodePoolIndex renders the cache blob.
func EncodePoolIndex(idx model.PoolIndex) ([]byte, error) {
	pools := idx.Pools
	if pools == nil {
		pools = []model.Pool{}
	}
	return sonic.Marshal(storedPoolIndex{
		LastBlock: strconv.FormatUint(idx.LastBlock, 10),
		Pools:     pools,
	})
}

// DecodePoolIndex parses the cache blob for chainID. A missing lastBlock reads as 0. Pools
// without a chain id are stamped with chainID. Pools of another chain, without an address,
// with unsorted tokens or with an unknown fee tier are dropped and counted. Undecodable
// blobs return an error wrapping ErrCorrupt.
func DecodePoolIndex(chainID uint64, data []byte) (model.PoolIndex, int, error) {
	var stored storedPoolIndex
	if err := sonic.Unmarshal(data, &stored); err != nil {
		return model.PoolIndex{}, 0, fmt.Errorf("%w: parse pool index: %v", ErrCorrupt, err)
	}
	var lastBlock uint64
	if stored.LastBlock != "" {
		parsed, err := strconv.ParseUint(stored.LastBlock, 10, 64)
		if err != nil {
			return model.PoolIndex{}, 0, fmt.Errorf("%w: parse last block %q: %v", ErrCorrupt, stored.LastBlock, err)
		}
		lastBlock = parsed
	}

	pools := make([]model.Pool, 0, len(stored.Pools))
	dropped := 0
	for _, pool := range stored.Pools {
		checked, ok := checkStoredPool(chainID, pool)
		if !ok {
			dropped++
			continue
		}
		pools = append(pools, checked)
	}
	return model.PoolIndex{LastBlock: lastBlock, Pools: pools}, dropped, nil
}

func checkStoredPool(chainID uint64, pool model.Pool) (model.Pool, bool) {
	if pool.ChainID != 0 && pool.ChainID != chainID {
		return model.Pool{}, false
	}
	if pool.Address == nil || *pool.Address == (common.Address{}) {
		return model.Pool{}, false
	}
	checked, err := model.NewPool(chainID, pool.Address, pool.Token0, pool.Token1, pool.Fee)
	if err != nil {
		return model.Pool{}, false
	}
	checked.SqrtRatioX96 = pool.SqrtRatioX96
	checked.Liquidity = pool.Liquidity
	checked.TickCurrent = pool.TickCurrent
	return checked, true
}

// PoolIndexStore reads and writes per-chain pool indexes on top of a Store.
type PoolIndexStore struct {
	store Store
	ttl   time.Duration
}

func NewPoolIndexStore(store Store, ttl time.Duration) *PoolIndexStore {
	if ttl <= 0 {
		ttl = DefaultPoolIndexTTL
	}
	return &PoolIndexStore{store: store, ttl: ttl}
}

// Load returns the cached index and whether one was present. A blob that cannot be decoded
// returns an error wrapping ErrCorrupt.
func (s *PoolIndexStore) Load(ctx context.Context, chainID uint64) (model.PoolIndex, bool, error) {
	data, err := s.store.Get(ctx, PoolIndexKey(chainID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.PoolIndex{}, false, nil
		}
		return model.PoolIndex{}, false, fmt.Errorf("load pool index: %w", err)
	}
	idx, dropped, err := DecodePoolIndex(chainID, data)
	if err != nil {
		return model.PoolIndex{}, false, err
	}
	if dropped > 0 {
		metrics.DroppedCachedPools.WithLabelValues(strconv.FormatUint(chainID, 10)).Add(float64(dropped))
	}
	return idx, true, nil
}

// Save overwrites the cached index for the chain.
func (s *PoolIndexStore) Save(ctx context.Context, chainID uint64, idx model.PoolIndex) error {
	data, err := EncodePoolIndex(idx)
	if err != nil {
		return fmt.Errorf("encode pool index: %w", err)
	}
	if err := s.store.Set(ctx, PoolIndexKey(chainID), data, s.ttl); err != nil {
		return fmt.Errorf("save pool index: %w", err)
	}
	return nil
}
