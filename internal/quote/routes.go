package quote

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"poolscope/internal/model"
)

const maxCandidateRoutes = 64

// Route is a path of pools from the first token to the last. len(Tokens) == len(Pools)+1.
type Route struct {
	Tokens []common.Address
	Pools  []model.Pool
}

func (r Route) Fees() []model.FeeAmount {
	fees := make([]model.FeeAmount, len(r.Pools))
	for i, pool := range r.Pools {
		fees[i] = pool.Fee
	}
	return fees
}

// Legs describes the route hop by hop.
func (r Route) Legs() []Leg {
	legs := make([]Leg, len(r.Pools))
	for i, pool := range r.Pools {
		leg := Leg{
			Type:     LegTypeV3Pool,
			TokenIn:  r.Tokens[i],
			TokenOut: r.Tokens[i+1],
			Fee:      pool.Fee,
		}
		if pool.Address != nil {
			leg.Address = *pool.Address
		}
		legs[i] = leg
	}
	return legs
}

// FindRoutes enumerates paths from in to out of at most maxHops pools. Intermediate tokens are
// restricted to baseTokens and no token is visited twice. At most maxCandidateRoutes are returned.
func FindRoutes(ctx context.Context, lookup PoolLookup, in, out common.Address, baseTokens []common.Address, maxHops int) []Route {
	if lookup == nil || in == out {
		return nil
	}
	if maxHops < 1 {
		maxHops = 1
	}

	var routes []Route
	var walk func(tokens []common.Address, pools []model.Pool)
	walk = func(tokens []common.Address, pools []model.Pool) {
		if len(routes) >= maxCandidateRoutes || ctx.Err() != nil {
			return
		}
		current := tokens[len(tokens)-1]
		remaining := maxHops - len(pools)

		candidates := []common.Address{out}
		if remaining > 1 {
			for _, base := range baseTokens {
				if base != out && !containsAddress(tokens, base) {
					candidates = append(candidates, base)
				}
			}
		}

		for _, next := range candidates {
			for _, pool := range lookup.PairPools(ctx, current, next) {
				if len(routes) >= maxCandidateRoutes {
					return
				}
				nextTokens := append(append([]common.Address(nil), tokens...), next)
				nextPools := append(append([]model.Pool(nil), pools...), pool)
				if next == out {
					routes = append(routes, Route{Tokens: nextTokens, Pools: nextPools})
					continue
				}
				walk(nextTokens, nextPools)
			}
		}
	}
	walk([]common.Address{in}, nil)
	return routes
}

func containsAddress(list []common.Address, address common.Address) bool {
	for _, item := range list {
		if item == address {
			return true
		}
	}
	return false
}
