package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"poolscope/internal/dex"
	"poolscope/internal/metrics"
	"poolscope/internal/model"
	"poolscope/internal/price"
)

// DefaultDeadline applies when a request carries no deadline.
const DefaultDeadline = 30 * 60

// MaxDeadline is the longest accepted deadline, one year in seconds.
const MaxDeadline = 365 * 24 * 60 * 60

const (
	nativeDecimals = 18
	sourceWrap     = "wrap"
)

// Chain is the per-chain configuration the router needs before any backend runs.
type Chain struct {
	ChainID       uint64
	NativeSymbol  string
	WrappedNative model.Token
	Tokens        TokenResolver
}

// Router validates requests and asks each backend in turn until one returns a quote.
type Router struct {
	chains   map[uint64]Chain
	backends []Backend
	logger   *zap.Logger
	now      func() time.Time
}

func NewRouter(chains []Chain, backends []Backend, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[uint64]Chain, len(chains))
	for _, chain := range chains {
		if chain.NativeSymbol == "" {
			chain.NativeSymbol = model.NativeSymbol
		}
		byID[chain.ChainID] = chain
	}
	return &Router{chains: byID, backends: backends, logger: logger, now: time.Now}
}

// tokenRef is a parsed token field, before metadata is known.
type tokenRef struct {
	native  bool
	address common.Address
}

type validated struct {
	chain     Chain
	in        tokenRef
	out       tokenRef
	recipient *common.Address
}

// Quote resolves req into a Result. Validation runs before any I/O. Every failure is an *Error.
func (r *Router) Quote(ctx context.Context, req Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	timer := NewTimer(r.now)
	start := r.now()

	typeLabel := string(req.Type)
	if !req.Type.Valid() {
		typeLabel = "invalid"
	}

	result, err := r.quote(ctx, req, timer)
	metrics.QuoteDuration.WithLabelValues(typeLabel).Observe(r.now().Sub(start).Seconds())
	if err != nil {
		qerr := AsError(err)
		metrics.QuoteRequests.WithLabelValues(typeLabel, "", string(qerr.Code)).Inc()
		r.logFailure(req, qerr)
		return nil, qerr
	}
	metrics.QuoteRequests.WithLabelValues(typeLabel, result.Source, "ok").Inc()
	return result, nil
}

func (r *Router) quote(ctx context.Context, req Request, timer *Timer) (*Result, error) {
	v, err := r.validate(req)
	if err != nil {
		return nil, err
	}
	timer.Mark("validate")

	resolved, err := r.resolve(ctx, req, v)
	if err != nil {
		return nil, err
	}
	timer.Mark("resolveTokens")

	if isWrapPair(resolved) {
		q, err := wrapQuote(resolved)
		if err != nil {
			return nil, err
		}
		timer.Mark(sourceWrap)
		return r.buildResult(resolved, sourceWrap, q, timer), nil
	}

	var failures []error
	for _, backend := range r.backends {
		if !backend.Supports(req.Type) {
			continue
		}
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err())
			break
		}
		begin := r.now()
		q, err := backend.Quote(ctx, resolved)
		status := "ok"
		if err != nil {
			status = string(AsError(err).Code)
		}
		metrics.BackendDuration.WithLabelValues(backend.Name(), status).Observe(r.now().Sub(begin).Seconds())
		timer.Mark(backend.Name())
		if err != nil {
			r.logger.Debug("quote backend failed",
				zap.String("request_id", req.ID),
				zap.String("backend", backend.Name()),
				zap.Error(err),
			)
			failures = append(failures, err)
			continue
		}
		return r.buildResult(resolved, backend.Name(), q, timer), nil
	}
	return nil, finalError(failures)
}

// finalError prefers a liquidity failure, then a missing route. Anything else is internal.
func finalError(failures []error) *Error {
	var noRoute *Error
	var internal error
	for _, err := range failures {
		var qerr *Error
		if errors.As(err, &qerr) {
			switch qerr.Code {
			case CodeNotEnoughLiquidity:
				return qerr
			case CodeNoRoute:
				if noRoute == nil {
					noRoute = qerr
				}
				continue
			}
		}
		if internal == nil {
			internal = err
		}
	}
	if noRoute != nil {
		return noRoute
	}
	if internal != nil {
		return newError(CodeInternalServerError, internalMessage, internal)
	}
	return newError(CodeNoRoute, "no route found", nil)
}

func (r *Router) validate(req Request) (validated, error) {
	if req.TokenInChainID != req.TokenOutChainID {
		return validated{}, newError(CodeInvalidChainID, "tokenIn and tokenOut must be on the same chain", nil)
	}
	chain, ok := r.chains[req.TokenInChainID]
	if !ok {
		return validated{}, newError(CodeInvalidChainID, fmt.Sprintf("unsupported chain %d", req.TokenInChainID), nil)
	}
	if !req.Type.Valid() {
		return validated{}, newError(CodeInvalidTradeType, fmt.Sprintf("unknown trade type %q", req.Type), nil)
	}

	in, ok := parseTokenRef(req.TokenIn, chain.NativeSymbol)
	if !ok {
		return validated{}, newError(CodeInvalidTokenPair, fmt.Sprintf("invalid tokenIn %q", req.TokenIn), nil)
	}
	out, ok := parseTokenRef(req.TokenOut, chain.NativeSymbol)
	if !ok {
		return validated{}, newError(CodeInvalidTokenPair, fmt.Sprintf("invalid tokenOut %q", req.TokenOut), nil)
	}
	if in == out {
		return validated{}, newError(CodeInvalidTokenPair, "tokenIn and tokenOut must differ", nil)
	}

	if req.Amount == nil || req.Amount.Sign() == 0 {
		return validated{}, newError(CodeAmountIsZero, "amount must be greater than zero", nil)
	}
	if req.Amount.Sign() < 0 {
		return validated{}, newError(CodeInvalidAmount, "amount must be positive", nil)
	}
	if !validSlippage(req.Slippage) {
		return validated{}, newError(CodeInvalidSlippage, "slippage must be in [0, 100)", nil)
	}
	if req.Deadline > MaxDeadline {
		return validated{}, newError(CodeInvalidDeadline, fmt.Sprintf("deadline must be at most %d seconds", MaxDeadline), nil)
	}

	v := validated{chain: chain, in: in, out: out}
	if req.Swapper != "" {
		if !common.IsHexAddress(req.Swapper) {
			return validated{}, newError(CodeInvalidSwapper, fmt.Sprintf("invalid swapper %q", req.Swapper), nil)
		}
		recipient := common.HexToAddress(req.Swapper)
		if recipient == (common.Address{}) {
			return validated{}, newError(CodeInvalidSwapper, "swapper must not be the zero address", nil)
		}
		v.recipient = &recipient
	}
	return v, nil
}

func parseTokenRef(raw, nativeSymbol string) (tokenRef, bool) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, nativeSymbol) {
		return tokenRef{native: true}, true
	}
	if !common.IsHexAddress(raw) {
		return tokenRef{}, false
	}
	address := common.HexToAddress(raw)
	if address == (common.Address{}) {
		return tokenRef{}, false
	}
	return tokenRef{address: address}, true
}

func (r *Router) resolve(ctx context.Context, req Request, v validated) (Resolved, error) {
	in, err := r.resolveToken(ctx, v.chain, v.in)
	if err != nil {
		return Resolved{}, err
	}
	out, err := r.resolveToken(ctx, v.chain, v.out)
	if err != nil {
		return Resolved{}, err
	}

	deadline := req.Deadline
	if deadline == 0 {
		deadline = DefaultDeadline
	}
	deadlineAt := new(big.Int).SetUint64(uint64(r.now().Unix()) + deadline)

	return Resolved{
		Request:    req,
		ChainID:    v.chain.ChainID,
		TokenIn:    in,
		TokenOut:   out,
		WrappedIn:  in.Wrapped(v.chain.WrappedNative),
		WrappedOut: out.Wrapped(v.chain.WrappedNative),
		DeadlineAt: deadlineAt,
		Recipient:  v.recipient,
	}, nil
}

func (r *Router) resolveToken(ctx context.Context, chain Chain, ref tokenRef) (model.Token, error) {
	if ref.native {
		return model.Token{
			ChainID:  chain.ChainID,
			Decimals: nativeDecimals,
			Symbol:   chain.NativeSymbol,
			Native:   true,
		}, nil
	}
	if chain.Tokens == nil {
		return model.Token{}, fmt.Errorf("no token resolver for chain %d", chain.ChainID)
	}
	token, err := chain.Tokens.Resolve(ctx, ref.address)
	if err != nil {
		if ctx.Err() != nil {
			return model.Token{}, ctx.Err()
		}
		return model.Token{}, newError(CodeInvalidTokenPair, fmt.Sprintf("token %s is not an ERC20 token", ref.address.Hex()), err)
	}
	return token, nil
}

func isWrapPair(req Resolved) bool {
	return req.TokenIn.Native != req.TokenOut.Native && req.WrappedIn.Address == req.WrappedOut.Address
}

// wrapQuote converts native to wrapped (or back) one to one without touching any pool.
func wrapQuote(req Resolved) (*Quote, error) {
	q := &Quote{
		AmountIn:  new(big.Int).Set(req.Amount),
		AmountOut: new(big.Int).Set(req.Amount),
		Route:     [][]Leg{},
	}
	var (
		tx  model.Transaction
		err error
	)
	if req.TokenIn.Native {
		tx, err = dex.WrapCall(req.WrappedOut.Address, req.Amount)
	} else {
		tx, err = dex.UnwrapCall(req.WrappedIn.Address, req.Amount)
	}
	if err != nil {
		return nil, fmt.Errorf("encode wrap: %w", err)
	}
	q.Tx = &tx
	return q, nil
}

func (r *Router) buildResult(req Resolved, source string, q *Quote, timer *Timer) *Result {
	result := &Result{
		RequestID:        req.ID,
		Source:           source,
		Type:             req.Type,
		ChainID:          req.ChainID,
		TokenIn:          req.TokenIn,
		TokenOut:         req.TokenOut,
		AmountIn:         q.AmountIn,
		AmountOut:        q.AmountOut,
		Route:            q.Route,
		MethodParameters: q.Tx,
		GasEstimate:      q.GasEstimate,
		RouteCount:       q.RouteCount,
		Deadline:         req.DeadlineAt,
	}
	// The fixed side is always the requested amount, whatever the backend echoed.
	if req.Type == ExactInput {
		result.AmountIn = new(big.Int).Set(req.Amount)
		result.MinimumAmountOut = MinimumOutput(result.AmountOut, req.Slippage)
		result.MaximumAmountIn = new(big.Int).Set(result.AmountIn)
	} else {
		result.AmountOut = new(big.Int).Set(req.Amount)
		result.MaximumAmountIn = MaximumInput(result.AmountIn, req.Slippage)
		result.MinimumAmountOut = new(big.Int).Set(result.AmountOut)
	}
	if result.Route == nil {
		result.Route = [][]Leg{}
	}
	if result.RouteCount == 0 && len(result.Route) > 0 {
		result.RouteCount = len(result.Route)
	}
	result.QuotePrice = price.FromAmounts(req.TokenIn, req.TokenOut, result.AmountIn, result.AmountOut)
	if req.WithPoolFee {
		result.PoolFeeAmounts = poolFeeAmounts(result.Route)
	}
	timer.Mark("buildResult")
	result.Stats = timer.Stats()
	return result
}

func poolFeeAmounts(route [][]Leg) []PoolFeeAmount {
	fees := []PoolFeeAmount{}
	for _, split := range route {
		for _, leg := range split {
			if leg.AmountIn == nil {
				continue
			}
			fees = append(fees, PoolFeeAmount{
				Pool:   leg.Address,
				Token:  leg.TokenIn,
				Amount: PoolFee(leg.AmountIn, uint32(leg.Fee)),
			})
		}
	}
	return fees
}

func (r *Router) logFailure(req Request, qerr *Error) {
	amount := ""
	if req.Amount != nil {
		amount = req.Amount.String()
	}
	fields := []zap.Field{
		zap.String("request_id", req.ID),
		zap.String("error_code", string(qerr.Code)),
		zap.Uint64("chain_id", req.TokenInChainID),
		zap.String("token_in", req.TokenIn),
		zap.String("token_out", req.TokenOut),
		zap.String("type", string(req.Type)),
		zap.String("amount", amount),
		zap.String("slippage", req.Slippage.String()),
		zap.Uint64("deadline", req.Deadline),
		zap.String("swapper", req.Swapper),
		zap.Bool("with_pool_fee", req.WithPoolFee),
	}
	if qerr.Code == CodeInternalServerError {
		r.logger.Error("quote failed", append(fields, zap.Error(qerr.Err))...)
		return
	}
	r.logger.Debug("quote rejected", append(fields, zap.String("message", qerr.Message))...)
}
