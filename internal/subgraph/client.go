// Package subgraph reads the full pool list from a Uniswap V3 style GraphQL subgraph.
package subgraph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolscope/internal/model"
)

// DefaultPageSize is the largest page most hosted subgraphs allow.
const DefaultPageSize = 1000

const poolsQuery = `query pools($first: Int!, $lastId: String!) {
  pools(first: $first, where: { id_gt: $lastId }, orderBy: id, orderDirection: asc) {
    id
    feeTier
    token0 { id }
    token1 { id }
  }
}`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type poolToken struct {
	ID string `json:"id"`
}

type poolRecord struct {
	ID      string    `json:"id"`
	FeeTier string    `json:"feeTier"`
	Token0  poolToken `json:"token0"`
	Token1  poolToken `json:"token1"`
}

type poolsResponse struct {
	Data struct {
		Pools []poolRecord `json:"pools"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Client pages through the pools entity with an id cursor.
type Client struct {
	endpoint   string
	chainID    uint64
	pageSize   int
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(endpoint string, chainID uint64, pageSize int, httpClient *http.Client, logger *zap.Logger) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   endpoint,
		chainID:    chainID,
		pageSize:   pageSize,
		httpClient: httpClient,
		logger:     logger,
	}
}

// FetchPools returns every pool the subgraph knows. Records with an unknown fee tier,
// a malformed address or unsorted tokens are skipped.
func (c *Client) FetchPools(ctx context.Context) ([]model.Pool, error) {
	var (
		pools   []model.Pool
		lastID  string
		skipped int
	)
	for page := 0; ; page++ {
		records, err := c.fetchPage(ctx, lastID)
		if err != nil {
			return nil, fmt.Errorf("fetch pools page %d: %w", page, err)
		}
		for _, record := range records {
			pool, err := c.toPool(record)
			if err != nil {
				skipped++
				c.logger.Debug("skip subgraph pool", zap.String("pool", record.ID), zap.Error(err))
				continue
			}
			pools = append(pools, pool)
		}
		if len(records) < c.pageSize {
			break
		}
		next := records[len(records)-1].ID
		if next <= lastID {
			return nil, fmt.Errorf("subgraph cursor did not advance past %q", lastID)
		}
		lastID = next
	}
	if skipped > 0 {
		c.logger.Warn("subgraph pools skipped", zap.Int("skipped", skipped), zap.Int("kept", len(pools)))
	}
	return pools, nil
}

func (c *Client) fetchPage(ctx context.Context, lastID string) ([]poolRecord, error) {
	body, err := sonic.Marshal(graphQLRequest{
		Query: poolsQuery,
		Variables: map[string]interface{}{
			"first":  c.pageSize,
			"lastId": lastID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post query: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph status %d: %s", resp.StatusCode, truncate(string(data), 256))
	}

	var parsed poolsResponse
	if err := sonic.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		messages := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			messages = append(messages, e.Message)
		}
		return nil, fmt.Errorf("subgraph errors: %s", strings.Join(messages, "; "))
	}
	return parsed.Data.Pools, nil
}

func (c *Client) toPool(record poolRecord) (model.Pool, error) {
	if !common.IsHexAddress(record.ID) || !common.IsHexAddress(record.Token0.ID) || !common.IsHexAddress(record.Token1.ID) {
		return model.Pool{}, fmt.Errorf("malformed address in pool record")
	}
	fee, err := model.ParseFeeAmount(record.FeeTier)
	if err != nil {
		return model.Pool{}, err
	}
	address := common.HexToAddress(record.ID)
	return model.NewPool(c.chainID, &address, common.HexToAddress(record.Token0.ID), common.HexToAddress(record.Token1.ID), fee)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
