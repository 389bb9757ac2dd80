package subgraph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"poolscope/internal/model"
)

func poolJSON(id, fee string) string {
	return fmt.Sprintf(`{"id":%q,"feeTier":%q,"token0":{"id":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},"token1":{"id":"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}}`, id, fee)
}

func TestFetchPoolsPaginates(t *testing.T) {
	pages := map[string][]string{
		"": {
			poolJSON("0x0000000000000000000000000000000000000001", "500"),
			poolJSON("0x0000000000000000000000000000000000000002", "3000"),
		},
		"0x0000000000000000000000000000000000000002": {
			poolJSON("0x0000000000000000000000000000000000000003", "2500"),
			poolJSON("0x0000000000000000000000000000000000000004", "10000"),
		},
		"0x0000000000000000000000000000000000000004": {
			poolJSON("0x0000000000000000000000000000000000000005", "100"),
		},
	}
	var cursors []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Query     string `json:"query"`
			Variables struct {
				First  int    `json:"first"`
				LastID string `json:"lastId"`
			} `json:"variables"`
		}
		if err := sonic.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Variables.First != 2 || !strings.Contains(req.Query, "id_gt") {
			t.Errorf("unexpected request: %+v", req)
		}
		cursors = append(cursors, req.Variables.LastID)
		fmt.Fprintf(w, `{"data":{"pools":[%s]}}`, strings.Join(pages[req.Variables.LastID], ","))
	}))
	defer server.Close()

	client := NewClient(server.URL, 88, 2, server.Client(), nil)
	pools, err := client.FetchPools(context.Background())
	if err != nil {
		t.Fatalf("fetch pools: %v", err)
	}
	if len(cursors) != 3 {
		t.Fatalf("expected 3 pages, got %d (%v)", len(cursors), cursors)
	}
	if len(pools) != 4 {
		t.Fatalf("expected 4 pools (one unknown fee skipped), got %d", len(pools))
	}
	if pools[0].ChainID != 88 || pools[0].Fee != model.FeeLow {
		t.Fatalf("unexpected first pool: %+v", pools[0])
	}
	if pools[3].Key() != "0x0000000000000000000000000000000000000005" {
		t.Fatalf("unexpected last pool: %s", pools[3].Key())
	}
}

func TestFetchPoolsGraphQLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"indexing_error"}]}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 88, 10, server.Client(), nil).FetchPools(context.Background())
	if err == nil || !strings.Contains(err.Error(), "indexing_error") {
		t.Fatalf("expected graphql error, got %v", err)
	}
}

func TestFetchPoolsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := NewClient(server.URL, 88, 10, server.Client(), nil).FetchPools(context.Background()); err == nil {
		t.Fatalf("expected status error")
	}
}
