package hyperliquid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"feed_go/internal/domain"
	"feed_go/internal/infra"
)

// Client is the request/response fallback path against the exchange info
// endpoint. Every query is a POST to /info with a type-tagged body.
type Client struct {
	baseURL    string
	depth      int
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg *infra.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.API.Hyperliquid.RestURL,
		depth:   cfg.Feed.OrderBook.DepthLevels,
		httpClient: &http.Client{
			Timeout: cfg.FallbackTimeout(),
		},
		logger: logger,
	}
}

func (c *Client) post(ctx context.Context, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal info request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("info request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.NewNetworkError("info request", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("read info response", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode info response: %w", err)
	}
	return nil
}

// AllMids returns the current mid price for every listed coin.
func (c *Client) AllMids(ctx context.Context) (map[string]decimal.Decimal, error) {
	var raw map[string]string
	if err := c.post(ctx, map[string]string{"type": "allMids"}, &raw); err != nil {
		return nil, err
	}

	mids := make(map[string]decimal.Decimal, len(raw))
	for coin, s := range raw {
		d, err := parseDecimal("mid", s)
		if err != nil {
			c.logger.Warn("Skipping unparseable mid", "coin", coin, "error", err)
			continue
		}
		mids[coin] = d
	}
	return mids, nil
}

// Ticker returns the mid price for one symbol as a quote-less ticker.
func (c *Client) Ticker(ctx context.Context, symbol string) (domain.Ticker, error) {
	mids, err := c.AllMids(ctx)
	if err != nil {
		return domain.Ticker{}, err
	}

	mid, ok := mids[symbol]
	if !ok {
		return domain.Ticker{}, fmt.Errorf("%w: %s", domain.ErrUnknownKey, symbol)
	}
	return domain.Ticker{Symbol: symbol, Price: mid}, nil
}

// L2Book returns a depth-limited order book snapshot for one symbol.
func (c *Client) L2Book(ctx context.Context, symbol string) (*domain.OrderBook, error) {
	var raw l2BookData
	req := map[string]string{"type": "l2Book", "coin": symbol}
	if err := c.post(ctx, req, &raw); err != nil {
		return nil, err
	}
	if raw.Coin == "" {
		raw.Coin = symbol
	}

	book, err := raw.toBook(c.depth)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownKey, symbol)
	}
	return book, nil
}

// UserState returns account balance and open positions for one account.
// Recent fills are not part of the clearinghouse snapshot; see UserFills.
func (c *Client) UserState(ctx context.Context, account string) (*domain.UserState, error) {
	var raw clearinghouseState
	req := map[string]string{"type": "clearinghouseState", "user": account}
	if err := c.post(ctx, req, &raw); err != nil {
		return nil, err
	}

	if raw.MarginSummary.Withdrawable == "" {
		raw.MarginSummary.Withdrawable = raw.Withdrawable
	}
	balance, err := raw.MarginSummary.toAccountState()
	if err != nil {
		return nil, fmt.Errorf("decode margin summary: %w", err)
	}

	state := &domain.UserState{
		Account:   account,
		Balance:   balance,
		Positions: make(map[string]domain.Position),
	}
	for _, ap := range raw.AssetPositions {
		pos, err := ap.Position.toPosition()
		if err != nil {
			c.logger.Warn("Skipping unparseable position", "account", account, "error", err)
			continue
		}
		if pos.Size.IsZero() {
			continue
		}
		state.Positions[pos.Symbol] = pos
	}
	return state, nil
}

// UserFills returns the most recent fills for one account, newest first.
func (c *Client) UserFills(ctx context.Context, account string) ([]domain.Fill, error) {
	var raw []wireFill
	req := map[string]string{"type": "userFills", "user": account}
	if err := c.post(ctx, req, &raw); err != nil {
		return nil, err
	}

	fills := make([]domain.Fill, 0, len(raw))
	for i := range raw {
		fill, err := raw[i].toFill()
		if err != nil {
			c.logger.Warn("Skipping unparseable fill", "account", account, "error", err)
			continue
		}
		fills = append(fills, fill)
	}

	// The endpoint reports oldest first; callers want newest first.
	for i, j := 0, len(fills)-1; i < j; i, j = i+1, j-1 {
		fills[i], fills[j] = fills[j], fills[i]
	}
	if len(fills) > domain.MaxRecentFills {
		fills = fills[:domain.MaxRecentFills]
	}
	return fills, nil
}

// Timeout exposes the configured per-request deadline for callers that
// derive their own contexts.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}
