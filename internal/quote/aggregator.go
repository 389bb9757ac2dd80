package quote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"poolscope/internal/model"
)

const defaultAggregatorTimeout = 5 * time.Second

type aggregatorRequest struct {
	ChainID             uint64 `json:"chainId"`
	FromTokenAddress    string `json:"fromTokenAddress"`
	ToTokenAddress      string `json:"toTokenAddress"`
	Amount              string `json:"amount"`
	Mode                string `json:"mode"`
	FromAddress         string `json:"fromAddress,omitempty"`
	IsSourceNative      bool   `json:"isSourceNative"`
	IsDestinationNative bool   `json:"isDestinationNative"`
	Slippage            string `json:"slippage"`
}

type aggregatorHop struct {
	LPAddress        string `json:"lpAddress"`
	FromTokenAddress string `json:"fromTokenAddress"`
	ToTokenAddress   string `json:"toTokenAddress"`
	Fee              uint32 `json:"fee"`
}

type aggregatorTx struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type aggregatorResponse struct {
	FromTokenAmount string            `json:"fromTokenAmount"`
	ToTokenAmount   string            `json:"toTokenAmount"`
	Protocols       [][]aggregatorHop `json:"protocols"`
	Tx              *aggregatorTx     `json:"tx"`
	ErrorCode       string            `json:"errorCode"`
	Message         string            `json:"message"`
}

// AggregatorBackend quotes through an external HTTP aggregator. The aggregator only prices a fixed
// input amount, so it never serves exact-output requests.
type AggregatorBackend struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAggregatorBackend(baseURL string, timeout time.Duration, httpClient *http.Client, logger *zap.Logger) *AggregatorBackend {
	if timeout <= 0 {
		timeout = defaultAggregatorTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregatorBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (a *AggregatorBackend) Name() string {
	return "aggregator"
}

func (a *AggregatorBackend) Supports(t TradeType) bool {
	return t == ExactInput
}

func (a *AggregatorBackend) Quote(ctx context.Context, req Resolved) (*Quote, error) {
	if req.Type != ExactInput {
		return nil, newError(CodeNoRoute, "aggregator only quotes exact input", nil)
	}

	payload := aggregatorRequest{
		ChainID:             req.ChainID,
		FromTokenAddress:    req.WrappedIn.Address.Hex(),
		ToTokenAddress:      req.WrappedOut.Address.Hex(),
		Amount:              req.Amount.String(),
		Mode:                "max_return",
		IsSourceNative:      req.TokenIn.Native,
		IsDestinationNative: req.TokenOut.Native,
		Slippage:            req.Slippage.String(),
	}
	if req.Recipient != nil {
		payload.FromAddress = req.Recipient.Hex()
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal aggregator request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/quote", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build aggregator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post aggregator quote: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read aggregator response: %w", err)
	}

	var parsed aggregatorResponse
	if len(data) > 0 {
		if err := sonic.Unmarshal(data, &parsed); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("parse aggregator response: %w", err)
		}
	}
	if resp.StatusCode != http.StatusOK {
		a.logger.Debug("aggregator rejected quote",
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", parsed.ErrorCode),
			zap.String("message", parsed.Message),
		)
		return nil, classifyAggregatorFailure(resp.StatusCode, parsed)
	}
	return a.toQuote(req, parsed)
}

func classifyAggregatorFailure(status int, parsed aggregatorResponse) error {
	code := strings.ToUpper(parsed.ErrorCode)
	cause := fmt.Errorf("aggregator status %d: %s %s", status, parsed.ErrorCode, parsed.Message)
	switch {
	case strings.Contains(code, "LIQUIDITY"):
		return newError(CodeNotEnoughLiquidity, "not enough liquidity", cause)
	case status == http.StatusNotFound || strings.Contains(code, "NO_ROUTE"):
		return newError(CodeNoRoute, "no route found", cause)
	default:
		return cause
	}
}

func (a *AggregatorBackend) toQuote(req Resolved, parsed aggregatorResponse) (*Quote, error) {
	amountOut, ok := new(big.Int).SetString(parsed.ToTokenAmount, 10)
	if !ok {
		return nil, fmt.Errorf("aggregator toTokenAmount %q", parsed.ToTokenAmount)
	}
	if amountOut.Sign() <= 0 {
		return nil, newError(CodeNotEnoughLiquidity, "not enough liquidity", nil)
	}

	route := make([][]Leg, 0, len(parsed.Protocols))
	for _, split := range parsed.Protocols {
		legs := make([]Leg, 0, len(split))
		for _, hop := range split {
			leg := Leg{
				Type:     "pool",
				Address:  common.HexToAddress(hop.LPAddress),
				TokenIn:  common.HexToAddress(hop.FromTokenAddress),
				TokenOut: common.HexToAddress(hop.ToTokenAddress),
				Fee:      model.FeeAmount(hop.Fee),
			}
			if leg.Fee.Valid() {
				leg.Type = LegTypeV3Pool
			}
			legs = append(legs, leg)
		}
		route = append(route, legs)
	}
	// Only a single unsplit path tells us how much enters its first pool.
	if len(route) == 1 && len(route[0]) > 0 {
		route[0][0].AmountIn = new(big.Int).Set(req.Amount)
	}

	out := &Quote{
		AmountIn:   new(big.Int).Set(req.Amount),
		AmountOut:  amountOut,
		Route:      route,
		RouteCount: len(route),
	}
	if parsed.Tx != nil && req.Recipient != nil {
		tx, err := parseAggregatorTx(*parsed.Tx)
		if err != nil {
			return nil, err
		}
		out.Tx = &tx
	}
	return out, nil
}

func parseAggregatorTx(raw aggregatorTx) (model.Transaction, error) {
	if !common.IsHexAddress(raw.To) {
		return model.Transaction{}, fmt.Errorf("aggregator tx to %q", raw.To)
	}
	data, err := hexutil.Decode(raw.Data)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("aggregator tx data: %w", err)
	}
	value := new(big.Int)
	if raw.Value != "" {
		if _, ok := value.SetString(raw.Value, 0); !ok {
			return model.Transaction{}, fmt.Errorf("aggregator tx value %q", raw.Value)
		}
	}
	return model.NewTransaction(common.HexToAddress(raw.To), data, value), nil
}
