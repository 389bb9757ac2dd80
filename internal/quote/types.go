// Package quote resolves swap quote requests against an on-chain quoter and an external aggregator.
package quote

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolscope/internal/model"
	"poolscope/internal/price"
)

// TradeType selects which side of the swap is fixed.
type TradeType string

const (
	ExactInput  TradeType = "EXACT_INPUT"
	ExactOutput TradeType = "EXACT_OUTPUT"
)

func (t TradeType) Valid() bool {
	return t == ExactInput || t == ExactOutput
}

// LegTypeV3Pool marks a leg through a concentrated-liquidity pool.
const LegTypeV3Pool = "v3-pool"

// Request is an unvalidated quote request. TokenIn and TokenOut are hex addresses or the chain's native symbol.
type Request struct {
	ID              string
	TokenInChainID  uint64
	TokenOutChainID uint64
	TokenIn         string
	TokenOut        string
	Type            TradeType
	Amount          *big.Int
	// Slippage is a percentage in [0, 100).
	Slippage decimal.Decimal
	// Deadline is in seconds from now. Zero selects DefaultDeadline.
	Deadline    uint64
	Swapper     string
	WithPoolFee bool
}

// Resolved is a validated request with token metadata. WrappedIn and WrappedOut equal TokenIn and
// TokenOut unless a side is native, in which case they hold the wrapped native token.
type Resolved struct {
	Request
	ChainID    uint64
	TokenIn    model.Token
	TokenOut   model.Token
	WrappedIn  model.Token
	WrappedOut model.Token
	// DeadlineAt is the absolute unix deadline embedded in calldata.
	DeadlineAt *big.Int
	Recipient  *common.Address
}

// Leg is one hop of a route.
type Leg struct {
	Type      string          `json:"type"`
	Address   common.Address  `json:"address"`
	TokenIn   common.Address  `json:"tokenIn"`
	TokenOut  common.Address  `json:"tokenOut"`
	Fee       model.FeeAmount `json:"fee"`
	AmountIn  *big.Int        `json:"amountIn,omitempty"`
	AmountOut *big.Int        `json:"amountOut,omitempty"`
}

// Quote is what a backend returns. The router turns it into a Result.
type Quote struct {
	AmountIn    *big.Int
	AmountOut   *big.Int
	Route       [][]Leg
	Tx          *model.Transaction
	GasEstimate *big.Int
	RouteCount  int
}

// PoolFeeAmount is the fee one pool charges on its input.
type PoolFeeAmount struct {
	Pool   common.Address
	Token  common.Address
	Amount *big.Int
}

// Result is the normalized quote, identical in shape for every backend.
type Result struct {
	RequestID        string
	Source           string
	Type             TradeType
	ChainID          uint64
	TokenIn          model.Token
	TokenOut         model.Token
	AmountIn         *big.Int
	AmountOut        *big.Int
	MinimumAmountOut *big.Int
	MaximumAmountIn  *big.Int
	Route            [][]Leg
	MethodParameters *model.Transaction
	PoolFeeAmounts   []PoolFeeAmount
	QuotePrice       price.Price
	GasEstimate      *big.Int
	RouteCount       int
	Deadline         *big.Int
	Stats            Stats
}

// Backend is one quoting source.
type Backend interface {
	Name() string
	Supports(TradeType) bool
	Quote(ctx context.Context, req Resolved) (*Quote, error)
}

// TokenResolver loads ERC20 metadata.
type TokenResolver interface {
	Resolve(ctx context.Context, address common.Address) (model.Token, error)
}

// PoolLookup lists known pools for an unordered token pair.
type PoolLookup interface {
	PairPools(ctx context.Context, a, b common.Address) []model.Pool
}
