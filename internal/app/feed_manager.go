package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"feed_go/internal/domain"
	"feed_go/internal/infra"
	"feed_go/internal/infra/hyperliquid"
	"feed_go/internal/service"
)

// FeedManager owns the feed lifecycle: it wires the stream, the topic
// caches, the broadcaster, and the fallback client together exactly
// once, and starts or stops them as a unit.
type FeedManager struct {
	cfg     *infra.Config
	logger  *slog.Logger
	metrics *infra.Metrics

	stream      *hyperliquid.Stream
	client      *hyperliquid.Client
	prices      *service.PriceCache
	books       *service.OrderBookCache
	users       *service.UserStateCache
	broadcaster *service.Broadcaster
	data        *service.DataService

	mu      sync.Mutex
	started bool
}

// FeedStatus aggregates connection and pipeline health for diagnostics.
type FeedStatus struct {
	Streaming  bool
	Connection hyperliquid.Status
	Consumers  int
	CacheAges  CacheAges
	Metrics    infra.MetricsSnapshot
}

// CacheAges reports how long ago each tracked key was last written, one
// map per topic kind. Keys never written are absent.
type CacheAges struct {
	Price     map[string]time.Duration
	OrderBook map[string]time.Duration
	UserState map[string]time.Duration
}

func NewFeedManager(cfg *infra.Config, logger *slog.Logger) *FeedManager {
	m := &FeedManager{
		cfg:     cfg,
		logger:  logger,
		metrics: &infra.Metrics{},
	}

	m.broadcaster = service.NewBroadcaster(
		cfg.Feed.QueueCapacity,
		cfg.KeepAliveInterval(),
		logger,
		m.metrics,
	)
	publish := m.broadcaster.Publish

	m.prices = service.NewPriceCache(cfg.API.Hyperliquid.Symbols, cfg.PriceStale(), publish)
	m.books = service.NewOrderBookCache(cfg.OrderBookStale(), cfg.OrderBookEmitInterval(), publish)
	m.users = service.NewUserStateCache(cfg.UserStateStale(), publish)

	dispatcher := service.NewCacheDispatcher(m.prices, m.books, m.users)
	m.stream = hyperliquid.NewStream(cfg, dispatcher, logger, m.metrics)
	m.client = hyperliquid.NewClient(cfg, logger)

	m.data = service.NewDataService(
		m.prices, m.books, m.users,
		m.client, m.stream,
		cfg.FallbackTimeout(),
		logger, m.metrics,
	)
	return m
}

// StartFeeds starts the broadcaster and, when streaming is enabled, the
// exchange connection with the configured subscriptions. Calling it on
// a running manager is a no-op.
func (m *FeedManager) StartFeeds(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		m.logger.Debug("Feeds already started")
		return
	}
	m.started = true

	m.broadcaster.Start(ctx)

	account := m.cfg.API.Hyperliquid.Account
	if account != "" {
		go m.primeUserState(ctx, account)
	}

	if !m.cfg.Feed.StreamingEnabled {
		m.logger.Info("Streaming disabled, serving reads via fallback only")
		return
	}

	m.stream.Want(domain.Subscription{Topic: domain.TopicPrice})
	for _, symbol := range m.cfg.API.Hyperliquid.Symbols {
		m.stream.Want(domain.Subscription{Topic: domain.TopicOrderBook, Key: symbol})
	}
	if account != "" {
		m.stream.Want(domain.Subscription{Topic: domain.TopicUserState, Key: account})
	}

	m.stream.Start(ctx)
	m.logger.Info("Feeds started",
		"symbols", m.cfg.API.Hyperliquid.Symbols,
		"user_state", account != "")
}

// primeUserState loads an initial account snapshot so reads work before
// the first stream update lands. The seed is discarded if stream data
// arrives first.
func (m *FeedManager) primeUserState(ctx context.Context, account string) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FallbackTimeout())
	defer cancel()

	state, err := m.client.UserState(fetchCtx, account)
	if err != nil {
		m.logger.Warn("Initial user state load failed", "account", account, "error", err)
		return
	}

	if fills, err := m.client.UserFills(fetchCtx, account); err == nil {
		state.RecentFills = fills
	} else {
		m.logger.Warn("Initial fills load failed", "account", account, "error", err)
	}

	m.users.SeedSnapshot(account, state)
	m.logger.Info("User state primed",
		"account", account,
		"positions", len(state.Positions),
		"fills", len(state.RecentFills))
}

// StopFeeds stops the connection and the broadcaster. Idempotent.
func (m *FeedManager) StopFeeds() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	m.started = false

	if m.cfg.Feed.StreamingEnabled {
		m.stream.Stop()
	}
	m.broadcaster.Stop()
	m.logger.Info("Feeds stopped")
}

// IsConnected reports whether the live stream is currently established.
func (m *FeedManager) IsConnected() bool {
	return m.stream.State() == domain.StateConnected
}

// Status returns a point-in-time health view.
func (m *FeedManager) Status() FeedStatus {
	ages := CacheAges{
		Price:     make(map[string]time.Duration),
		OrderBook: make(map[string]time.Duration),
		UserState: make(map[string]time.Duration),
	}
	for _, symbol := range m.cfg.API.Hyperliquid.Symbols {
		if age, ok := m.prices.Age(symbol); ok {
			ages.Price[symbol] = age
		}
		if age, ok := m.books.Age(symbol); ok {
			ages.OrderBook[symbol] = age
		}
	}
	if account := m.cfg.API.Hyperliquid.Account; account != "" {
		if age, ok := m.users.Age(account); ok {
			ages.UserState[account] = age
		}
	}

	return FeedStatus{
		Streaming:  m.cfg.Feed.StreamingEnabled,
		Connection: m.stream.Status(),
		Consumers:  m.broadcaster.ConsumerCount(),
		CacheAges:  ages,
		Metrics:    m.metrics.Snapshot(),
	}
}

// Data returns the read facade.
func (m *FeedManager) Data() *service.DataService {
	return m.data
}

// Register adds a consumer queue to the fan-out set.
func (m *FeedManager) Register() *service.ConsumerQueue {
	return m.broadcaster.Register()
}

// Unregister removes and closes a consumer queue.
func (m *FeedManager) Unregister(q *service.ConsumerQueue) {
	m.broadcaster.Unregister(q)
}
