package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolscope/internal/dex"
	"poolscope/internal/model"
)

const (
	defaultMaxHops     = 2
	defaultConcurrency = 8
)

// PathQuoter quotes encoded paths, as QuoterV2 does.
type PathQuoter interface {
	QuoteExactInput(ctx context.Context, path []byte, amountIn *big.Int) (dex.QuoterResult, error)
	QuoteExactOutput(ctx context.Context, path []byte, amountOut *big.Int) (dex.QuoterResult, error)
}

// OnChainConfig is the per-chain wiring of the on-chain backend.
type OnChainConfig struct {
	Pools      PoolLookup
	Quoter     PathQuoter
	SwapRouter common.Address
	BaseTokens []common.Address
}

// OnChainBackend searches routes over the discovered pools and quotes them with the on-chain quoter.
type OnChainBackend struct {
	chains      map[uint64]OnChainConfig
	maxHops     int
	concurrency int
	logger      *zap.Logger
}

func NewOnChainBackend(chains map[uint64]OnChainConfig, maxHops, concurrency int, logger *zap.Logger) *OnChainBackend {
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnChainBackend{chains: chains, maxHops: maxHops, concurrency: concurrency, logger: logger}
}

func (b *OnChainBackend) Name() string {
	return "onchain"
}

func (b *OnChainBackend) Supports(t TradeType) bool {
	return t.Valid()
}

type routeQuote struct {
	route  Route
	result dex.QuoterResult
	err    error
}

func (b *OnChainBackend) Quote(ctx context.Context, req Resolved) (*Quote, error) {
	chain, ok := b.chains[req.ChainID]
	if !ok || chain.Pools == nil || chain.Quoter == nil {
		return nil, newError(CodeNoRoute, fmt.Sprintf("no on-chain quoter for chain %d", req.ChainID), nil)
	}

	routes := FindRoutes(ctx, chain.Pools, req.WrappedIn.Address, req.WrappedOut.Address, chain.BaseTokens, b.maxHops)
	if len(routes) == 0 {
		return nil, newError(CodeNoRoute, "no route found", nil)
	}

	quotes := make([]routeQuote, len(routes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, route := range routes {
		g.Go(func() error {
			result, err := quoteRoute(gctx, chain.Quoter, route, req.Type, req.Amount)
			quotes[i] = routeQuote{route: route, result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()

	best, err := bestQuote(quotes, req.Type)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	out := &Quote{
		GasEstimate: best.result.GasEstimate,
		RouteCount:  len(routes),
	}
	if req.Type == ExactInput {
		out.AmountIn = new(big.Int).Set(req.Amount)
		out.AmountOut = best.result.Amount
	} else {
		out.AmountIn = best.result.Amount
		out.AmountOut = new(big.Int).Set(req.Amount)
	}

	legs := best.route.Legs()
	if req.WithPoolFee {
		ins, err := hopInputs(ctx, chain.Quoter, best.route, req.Type, out.AmountIn, out.AmountOut)
		if err != nil {
			b.logger.Warn("hop amounts unavailable", zap.Uint64("chain_id", req.ChainID), zap.Error(err))
		} else {
			for i := range legs {
				legs[i].AmountIn = ins[i]
				if i+1 < len(legs) {
					legs[i].AmountOut = ins[i+1]
				} else {
					legs[i].AmountOut = out.AmountOut
				}
			}
		}
	}
	out.Route = [][]Leg{legs}

	if req.Recipient != nil {
		tx, err := b.encodeSwap(chain.SwapRouter, best.route, req, out)
		if err != nil {
			return nil, err
		}
		out.Tx = &tx
	}
	return out, nil
}

func quoteRoute(ctx context.Context, quoter PathQuoter, route Route, t TradeType, amount *big.Int) (dex.QuoterResult, error) {
	if t == ExactInput {
		path, err := dex.EncodePath(route.Tokens, route.Fees())
		if err != nil {
			return dex.QuoterResult{}, err
		}
		return quoter.QuoteExactInput(ctx, path, amount)
	}
	path, err := dex.EncodeReversePath(route.Tokens, route.Fees())
	if err != nil {
		return dex.QuoterResult{}, err
	}
	return quoter.QuoteExactOutput(ctx, path, amount)
}

// bestQuote picks the largest output for exact input and the smallest input for exact output.
// Reverts mean a pool could not fill the amount, so a set of only failed quotes with at least one
// revert is a liquidity failure.
func bestQuote(quotes []routeQuote, t TradeType) (routeQuote, error) {
	var best *routeQuote
	var firstErr error
	reverted := false
	for i := range quotes {
		q := &quotes[i]
		if q.err != nil {
			if dex.IsRevert(q.err) {
				reverted = true
			} else if firstErr == nil {
				firstErr = q.err
			}
			continue
		}
		if q.result.Amount == nil || q.result.Amount.Sign() <= 0 {
			reverted = true
			continue
		}
		if best == nil {
			best = q
			continue
		}
		cmp := q.result.Amount.Cmp(best.result.Amount)
		if (t == ExactInput && cmp > 0) || (t == ExactOutput && cmp < 0) {
			best = q
		}
	}
	if best != nil {
		return *best, nil
	}
	if reverted {
		return routeQuote{}, newError(CodeNotEnoughLiquidity, "not enough liquidity", firstErr)
	}
	if firstErr == nil {
		firstErr = errors.New("no quotes")
	}
	return routeQuote{}, fmt.Errorf("quote routes: %w", firstErr)
}

// hopInputs returns the input amount of every hop. Intermediate amounts come from single-pool quotes,
// walking forward for exact input and backward for exact output.
func hopInputs(ctx context.Context, quoter PathQuoter, route Route, t TradeType, amountIn, amountOut *big.Int) ([]*big.Int, error) {
	hops := len(route.Pools)
	ins := make([]*big.Int, hops)
	ins[0] = amountIn
	fees := route.Fees()

	if t == ExactInput {
		for i := 0; i < hops-1; i++ {
			path, err := dex.EncodePath(route.Tokens[i:i+2], fees[i:i+1])
			if err != nil {
				return nil, err
			}
			res, err := quoter.QuoteExactInput(ctx, path, ins[i])
			if err != nil {
				return nil, fmt.Errorf("quote hop %d: %w", i, err)
			}
			ins[i+1] = res.Amount
		}
		return ins, nil
	}

	next := amountOut
	for i := hops - 1; i >= 1; i-- {
		path, err := dex.EncodeReversePath(route.Tokens[i:i+2], fees[i:i+1])
		if err != nil {
			return nil, err
		}
		res, err := quoter.QuoteExactOutput(ctx, path, next)
		if err != nil {
			return nil, fmt.Errorf("quote hop %d: %w", i, err)
		}
		ins[i] = res.Amount
		next = res.Amount
	}
	return ins, nil
}

func (b *OnChainBackend) encodeSwap(router common.Address, route Route, req Resolved, q *Quote) (model.Transaction, error) {
	call := dex.SwapCall{
		Tokens:     route.Tokens,
		Fees:       route.Fees(),
		ExactInput: req.Type == ExactInput,
		Amount:     req.Amount,
		Recipient:  *req.Recipient,
		Deadline:   req.DeadlineAt,
		NativeIn:   req.TokenIn.Native,
		NativeOut:  req.TokenOut.Native,
	}
	if call.ExactInput {
		call.Limit = MinimumOutput(q.AmountOut, req.Slippage)
	} else {
		call.Limit = MaximumInput(q.AmountIn, req.Slippage)
	}
	tx, err := call.Encode(router)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("encode swap: %w", err)
	}
	return tx, nil
}
