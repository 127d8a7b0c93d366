package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed_go/internal/domain"
	"feed_go/internal/infra"
)

// FallbackClient is the request/response path used when the stream
// cannot serve a read.
type FallbackClient interface {
	Ticker(ctx context.Context, symbol string) (domain.Ticker, error)
	L2Book(ctx context.Context, symbol string) (*domain.OrderBook, error)
	UserState(ctx context.Context, account string) (*domain.UserState, error)
	UserFills(ctx context.Context, account string) ([]domain.Fill, error)
}

// ConnStater reports the live connection state.
type ConnStater interface {
	State() domain.ConnState
}

// DataService is the single read surface over the topic caches. Callers
// never know whether a value came from the stream or the fallback; they
// only see current data or ErrDataUnavailable.
type DataService struct {
	prices  *PriceCache
	books   *OrderBookCache
	users   *UserStateCache
	client  FallbackClient
	conn    ConnStater
	timeout time.Duration
	logger  *slog.Logger
	metrics *infra.Metrics
}

func NewDataService(
	prices *PriceCache,
	books *OrderBookCache,
	users *UserStateCache,
	client FallbackClient,
	conn ConnStater,
	timeout time.Duration,
	logger *slog.Logger,
	metrics *infra.Metrics,
) *DataService {
	return &DataService{
		prices:  prices,
		books:   books,
		users:   users,
		client:  client,
		conn:    conn,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// streamUsable reports whether a cached value can be served as-is.
func (s *DataService) streamUsable(source domain.ValueSource, stale bool) bool {
	if stale {
		return false
	}
	if source == domain.SourceFallback {
		// A fresh seeded value is still current data.
		return true
	}
	return s.conn.State() == domain.StateConnected
}

func (s *DataService) fallbackCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// GetPrice returns the current ticker for a symbol, falling back to a
// direct exchange query when the cached value is missing or stale.
func (s *DataService) GetPrice(ctx context.Context, symbol string) (domain.Ticker, error) {
	t, source, stale, ok := s.prices.Read(symbol)
	if ok && s.streamUsable(source, stale) {
		return t, nil
	}

	fbCtx, cancel := s.fallbackCtx(ctx)
	defer cancel()

	s.metrics.RecordFallbackFetch()
	fetched, err := s.client.Ticker(fbCtx, symbol)
	if err != nil {
		s.logger.Warn("Price fallback failed", "symbol", symbol, "error", err)
		return domain.Ticker{}, fmt.Errorf("%w: price %s: %v", domain.ErrDataUnavailable, symbol, err)
	}

	s.prices.Seed(symbol, fetched)
	return fetched, nil
}

// GetOrderBook returns the current depth snapshot for a symbol.
func (s *DataService) GetOrderBook(ctx context.Context, symbol string) (*domain.OrderBook, error) {
	book, source, stale, ok := s.books.Read(symbol)
	if ok && s.streamUsable(source, stale) {
		return book, nil
	}

	fbCtx, cancel := s.fallbackCtx(ctx)
	defer cancel()

	s.metrics.RecordFallbackFetch()
	fetched, err := s.client.L2Book(fbCtx, symbol)
	if err != nil {
		s.logger.Warn("Order book fallback failed", "symbol", symbol, "error", err)
		return nil, fmt.Errorf("%w: order book %s: %v", domain.ErrDataUnavailable, symbol, err)
	}

	s.books.Seed(fetched)

	// Return a copy so the caller cannot mutate the seeded entry.
	return fetched.Clone(), nil
}

// userState serves the compound account view. Fallback results are
// returned directly and never seeded; only the stream writes user state
// after the initial snapshot.
func (s *DataService) userState(ctx context.Context, account string) (*domain.UserState, error) {
	state, source, stale, ok := s.users.Read(account)
	if ok && s.streamUsable(source, stale) {
		return state, nil
	}

	fbCtx, cancel := s.fallbackCtx(ctx)
	defer cancel()

	s.metrics.RecordFallbackFetch()
	fetched, err := s.client.UserState(fbCtx, account)
	if err != nil {
		s.logger.Warn("User state fallback failed", "account", account, "error", err)
		return nil, fmt.Errorf("%w: user state %s: %v", domain.ErrDataUnavailable, account, err)
	}
	return fetched, nil
}

// GetPositions returns the open positions for an account.
func (s *DataService) GetPositions(ctx context.Context, account string) ([]domain.Position, error) {
	state, err := s.userState(ctx, account)
	if err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(state.Positions))
	for _, pos := range state.Positions {
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetAccount returns the account balance summary.
func (s *DataService) GetAccount(ctx context.Context, account string) (domain.AccountState, error) {
	state, err := s.userState(ctx, account)
	if err != nil {
		return domain.AccountState{}, err
	}
	return state.Balance, nil
}

// GetRecentFills returns up to limit recent fills, newest first. A
// non-positive limit returns the full bounded history.
func (s *DataService) GetRecentFills(ctx context.Context, account string, limit int) ([]domain.Fill, error) {
	state, source, stale, ok := s.users.Read(account)
	if ok && s.streamUsable(source, stale) {
		return clampFills(state.RecentFills, limit), nil
	}

	fbCtx, cancel := s.fallbackCtx(ctx)
	defer cancel()

	s.metrics.RecordFallbackFetch()
	fills, err := s.client.UserFills(fbCtx, account)
	if err != nil {
		s.logger.Warn("Fills fallback failed", "account", account, "error", err)
		return nil, fmt.Errorf("%w: fills %s: %v", domain.ErrDataUnavailable, account, err)
	}
	return clampFills(fills, limit), nil
}

func clampFills(fills []domain.Fill, limit int) []domain.Fill {
	if limit > 0 && len(fills) > limit {
		return fills[:limit]
	}
	return fills
}
