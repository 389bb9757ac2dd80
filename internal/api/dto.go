package api

import (
	"math/big"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"poolscope/internal/model"
	"poolscope/internal/quote"
)

type errorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

type quoteRequest struct {
	TokenInChainID    uint64          `json:"tokenInChainId"`
	TokenIn           string          `json:"tokenIn"`
	TokenOutChainID   uint64          `json:"tokenOutChainId"`
	TokenOut          string          `json:"tokenOut"`
	Type              string          `json:"type"`
	Amount            string          `json:"amount"`
	SlippageTolerance decimal.Decimal `json:"slippageTolerance"`
	Deadline          uint64          `json:"deadline"`
	Swapper           string          `json:"swapper"`
	WithPoolFee       bool            `json:"withPoolFee"`
}

type tokenAmount struct {
	Token    string `json:"token"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals uint8  `json:"decimals"`
	Native   bool   `json:"native,omitempty"`
	Amount   string `json:"amount"`
}

type legResponse struct {
	Type      string `json:"type"`
	Address   string `json:"address"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Fee       uint32 `json:"fee"`
	AmountIn  string `json:"amountIn,omitempty"`
	AmountOut string `json:"amountOut,omitempty"`
}

type methodParameters struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type poolFeeAmount struct {
	Pool   string `json:"pool"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type quoteBody struct {
	Source           string            `json:"source"`
	Type             string            `json:"type"`
	ChainID          uint64            `json:"chainId"`
	Input            tokenAmount       `json:"input"`
	Output           tokenAmount       `json:"output"`
	MinimumOutput    string            `json:"minimumOutput"`
	MaximumInput     string            `json:"maximumInput"`
	Route            [][]legResponse   `json:"route"`
	MethodParameters *methodParameters `json:"methodParameters,omitempty"`
	PoolFeeAmounts   []poolFeeAmount   `json:"poolFeeAmounts,omitempty"`
	QuotePrice       string            `json:"quotePrice"`
	GasEstimate      string            `json:"gasEstimate,omitempty"`
	Deadline         string            `json:"deadline"`
}

type quoteResponse struct {
	RequestID  string      `json:"requestId"`
	Quote      quoteBody   `json:"quote"`
	RouteCount int         `json:"routeCount"`
	Stats      quote.Stats `json:"stats"`
}

type poolResponse struct {
	Address      string `json:"address"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Fee          uint32 `json:"fee"`
	TickSpacing  int32  `json:"tickSpacing"`
	Derived      bool   `json:"derived,omitempty"`
	SqrtRatioX96 string `json:"sqrtRatioX96,omitempty"`
	Liquidity    string `json:"liquidity,omitempty"`
	Tick         *int32 `json:"tick,omitempty"`
	Token0Price  string `json:"token0Price,omitempty"`
	Token1Price  string `json:"token1Price,omitempty"`
	Balance0     string `json:"balance0,omitempty"`
	Balance1     string `json:"balance1,omitempty"`
	BalancesAt   string `json:"balancesAt,omitempty"`
}

type poolsResponse struct {
	ChainID   uint64         `json:"chainId"`
	LastBlock string         `json:"lastBlock"`
	Count     int            `json:"count"`
	Pools     []poolResponse `json:"pools"`
}

func (r quoteRequest) toRequest(id string, amount *big.Int) quote.Request {
	return quote.Request{
		ID:              id,
		TokenInChainID:  r.TokenInChainID,
		TokenOutChainID: r.TokenOutChainID,
		TokenIn:         r.TokenIn,
		TokenOut:        r.TokenOut,
		Type:            quote.TradeType(r.Type),
		Amount:          amount,
		Slippage:        r.SlippageTolerance,
		Deadline:        r.Deadline,
		Swapper:         r.Swapper,
		WithPoolFee:     r.WithPoolFee,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func toTokenAmount(token model.Token, amount *big.Int) tokenAmount {
	return tokenAmount{
		Token:    token.Address.Hex(),
		Symbol:   token.Symbol,
		Decimals: token.Decimals,
		Native:   token.Native,
		Amount:   bigString(amount),
	}
}

func toQuoteResponse(result *quote.Result) quoteResponse {
	route := make([][]legResponse, 0, len(result.Route))
	for _, split := range result.Route {
		legs := make([]legResponse, 0, len(split))
		for _, leg := range split {
			legs = append(legs, legResponse{
				Type:      leg.Type,
				Address:   leg.Address.Hex(),
				TokenIn:   leg.TokenIn.Hex(),
				TokenOut:  leg.TokenOut.Hex(),
				Fee:       uint32(leg.Fee),
				AmountIn:  bigString(leg.AmountIn),
				AmountOut: bigString(leg.AmountOut),
			})
		}
		route = append(route, legs)
	}

	body := quoteBody{
		Source:        result.Source,
		Type:          string(result.Type),
		ChainID:       result.ChainID,
		Input:         toTokenAmount(result.TokenIn, result.AmountIn),
		Output:        toTokenAmount(result.TokenOut, result.AmountOut),
		MinimumOutput: bigString(result.MinimumAmountOut),
		MaximumInput:  bigString(result.MaximumAmountIn),
		Route:         route,
		QuotePrice:    result.QuotePrice.String(),
		GasEstimate:   bigString(result.GasEstimate),
		Deadline:      bigString(result.Deadline),
	}
	if tx := result.MethodParameters; tx != nil {
		body.MethodParameters = &methodParameters{
			To:    tx.To.Hex(),
			Data:  tx.Data.String(),
			Value: tx.ValueInt().String(),
		}
	}
	for _, fee := range result.PoolFeeAmounts {
		body.PoolFeeAmounts = append(body.PoolFeeAmounts, poolFeeAmount{
			Pool:   fee.Pool.Hex(),
			Token:  fee.Token.Hex(),
			Amount: bigString(fee.Amount),
		})
	}

	return quoteResponse{
		RequestID:  result.RequestID,
		Quote:      body,
		RouteCount: result.RouteCount,
		Stats:      result.Stats,
	}
}

// MarshalQuote renders a quote result in the same shape POST /v1/quote returns.
func MarshalQuote(result *quote.Result) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(toQuoteResponse(result), "", "  ")
}

func toPoolResponse(pool model.Pool) poolResponse {
	out := poolResponse{
		Token0:      pool.Token0.Hex(),
		Token1:      pool.Token1.Hex(),
		Fee:         uint32(pool.Fee),
		TickSpacing: pool.TickSpacing(),
	}
	if pool.Address != nil {
		out.Address = pool.Address.Hex()
	}
	if pool.SqrtRatioX96 != nil {
		out.SqrtRatioX96 = pool.SqrtRatioX96.Dec()
		tick := pool.TickCurrent
		out.Tick = &tick
	}
	if pool.Liquidity != nil {
		out.Liquidity = pool.Liquidity.Dec()
	}
	return out
}

func formatBlock(block uint64) string {
	return strconv.FormatUint(block, 10)
}
