package model

import "github.com/ethereum/go-ethereum/common"

// PoolIndex is the cached set of known pools for one chain and the block height it is synced to.
// Values are treated as immutable once published; Merge and WithLastBlock return new indexes.
type PoolIndex struct {
	LastBlock uint64 `json:"lastBlock"`
	Pools     []Pool `json:"pools"`
}

// Conflict records two pool records for the same address with different metadata.
type Conflict struct {
	Address  string
	Previous Pool
	Incoming Pool
}

// Len returns the number of pools.
func (idx PoolIndex) Len() int {
	return len(idx.Pools)
}

// Clone copies the pool slice so the result can be modified freely.
func (idx PoolIndex) Clone() PoolIndex {
	pools := make([]Pool, len(idx.Pools))
	copy(pools, idx.Pools)
	return PoolIndex{LastBlock: idx.LastBlock, Pools: pools}
}

// WithLastBlock advances LastBlock. A lower block leaves the index unchanged.
func (idx PoolIndex) WithLastBlock(block uint64) PoolIndex {
	out := idx.Clone()
	if block > out.LastBlock {
		out.LastBlock = block
	}
	return out
}

// Merge adds incoming pools deduplicated by lower-cased address. Existing pools keep their
// position and new ones are appended. On duplicate addresses the incoming record wins; records
// whose token0/token1/fee disagree are reported as conflicts. Pools without an address are skipped.
func (idx PoolIndex) Merge(incoming []Pool) (PoolIndex, []Conflict) {
	pools := make([]Pool, 0, len(idx.Pools)+len(incoming))
	positions := make(map[string]int, len(idx.Pools)+len(incoming))
	var conflicts []Conflict

	add := func(pool Pool, fromIncoming bool) {
		key := pool.Key()
		if key == "" {
			return
		}
		pos, ok := positions[key]
		if !ok {
			positions[key] = len(pools)
			pools = append(pools, pool)
			return
		}
		if fromIncoming && !pools[pos].SameMetadata(pool) {
			conflicts = append(conflicts, Conflict{Address: key, Previous: pools[pos], Incoming: pool})
		}
		pools[pos] = pool
	}

	for _, pool := range idx.Pools {
		add(pool, false)
	}
	for _, pool := range incoming {
		add(pool, true)
	}

	return PoolIndex{LastBlock: idx.LastBlock, Pools: pools}, conflicts
}

// PairPools returns pools trading a against b in either order.
func (idx PoolIndex) PairPools(a, b common.Address) []Pool {
	out := make([]Pool, 0)
	for _, pool := range idx.Pools {
		if pool.Involves(a, b) {
			out = append(out, pool)
		}
	}
	return out
}
