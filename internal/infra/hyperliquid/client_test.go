package hyperliquid

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"feed_go/internal/domain"
	"feed_go/internal/infra"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newInfoServer serves POST /info keyed by the request's type field.
func newInfoServer(t *testing.T, responses map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/info" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp, ok := responses[req["type"]]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestClient(serverURL string) *Client {
	cfg := &infra.Config{}
	cfg.API.Hyperliquid.RestURL = serverURL
	cfg.Feed.OrderBook.DepthLevels = 2
	cfg.Feed.FallbackTimeoutMS = 2000
	return NewClient(cfg, testLogger())
}

func TestClient_AllMidsAndTicker(t *testing.T) {
	server := newInfoServer(t, map[string]any{
		"allMids": map[string]string{"BTC": "97000.5", "ETH": "3500", "BAD": "not-a-number"},
	})
	defer server.Close()

	client := newTestClient(server.URL)

	mids, err := client.AllMids(context.Background())
	if err != nil {
		t.Fatalf("AllMids failed: %v", err)
	}
	if len(mids) != 2 {
		t.Errorf("Expected 2 parseable mids, got %d", len(mids))
	}
	if !mids["BTC"].Equal(dec("97000.5")) {
		t.Errorf("Expected BTC mid 97000.5, got %s", mids["BTC"])
	}

	ticker, err := client.Ticker(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("Ticker failed: %v", err)
	}
	if !ticker.Price.Equal(dec("3500")) {
		t.Errorf("Expected ETH price 3500, got %s", ticker.Price)
	}

	if _, err := client.Ticker(context.Background(), "DOGE"); !errors.Is(err, domain.ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey for untracked coin, got %v", err)
	}
}

func TestClient_L2Book(t *testing.T) {
	server := newInfoServer(t, map[string]any{
		"l2Book": l2BookData{
			Coin: "BTC",
			Levels: [][]wireLevel{
				{{Px: "96999", Sz: "1.5", N: 3}, {Px: "96998", Sz: "2", N: 1}, {Px: "96997", Sz: "4", N: 2}},
				{{Px: "97001", Sz: "0.5", N: 1}},
			},
		},
	})
	defer server.Close()

	client := newTestClient(server.URL)

	book, err := client.L2Book(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("L2Book failed: %v", err)
	}

	if len(book.Bids) != 2 {
		t.Errorf("Expected bids truncated to depth 2, got %d", len(book.Bids))
	}
	if len(book.Asks) != 1 {
		t.Errorf("Expected 1 ask, got %d", len(book.Asks))
	}
	if bid := book.BestBid(); bid == nil || !bid.Equal(dec("96999")) {
		t.Errorf("Unexpected best bid: %v", bid)
	}
}

func TestClient_UserState(t *testing.T) {
	server := newInfoServer(t, map[string]any{
		"clearinghouseState": clearinghouseState{
			AssetPositions: []wireAssetPosition{
				{Position: wirePosition{
					Coin: "BTC", Szi: "0.5", EntryPx: "95000",
					UnrealizedPnl: "1000", ReturnOnEquity: "0.02", MarginUsed: "4750",
				}},
				{Position: wirePosition{Coin: "ETH", Szi: "0"}},
			},
			MarginSummary: wireMarginSummary{
				AccountValue:    "50000",
				TotalMarginUsed: "4750",
				TotalNtlPos:     "47500",
			},
			Withdrawable: "45000",
		},
	})
	defer server.Close()

	client := newTestClient(server.URL)

	state, err := client.UserState(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("UserState failed: %v", err)
	}

	if len(state.Positions) != 1 {
		t.Errorf("Expected zero-size position skipped, got %d positions", len(state.Positions))
	}
	pos, ok := state.Position("BTC")
	if !ok {
		t.Fatal("Expected BTC position")
	}
	if !pos.EntryPrice.Equal(dec("95000")) {
		t.Errorf("Expected entry 95000, got %s", pos.EntryPrice)
	}
	if !state.Balance.Withdrawable.Equal(dec("45000")) {
		t.Errorf("Expected top-level withdrawable used, got %s", state.Balance.Withdrawable)
	}
}

func TestClient_UserFills(t *testing.T) {
	server := newInfoServer(t, map[string]any{
		"userFills": []wireFill{
			{Coin: "BTC", Px: "96000", Sz: "0.1", Side: "B", Time: 1000, Oid: 1},
			{Coin: "BTC", Px: "96500", Sz: "0.1", Side: "A", Time: 2000, Oid: 2},
		},
	})
	defer server.Close()

	client := newTestClient(server.URL)

	fills, err := client.UserFills(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("UserFills failed: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("Expected 2 fills, got %d", len(fills))
	}
	if fills[0].OrderID != "2" {
		t.Errorf("Expected newest fill first, got order %s", fills[0].OrderID)
	}
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.AllMids(context.Background())
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
	if !domain.IsRetriable(err) {
		t.Errorf("Expected retriable network error, got %v", err)
	}
}
