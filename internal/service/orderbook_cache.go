package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"feed_go/internal/domain"
)

// OrderBookCache holds the latest depth snapshot per symbol. Every
// streamed snapshot is stored, but change events are coalesced per
// symbol so a fast-ticking book cannot flood the consumer queues.
type OrderBookCache struct {
	mu        sync.RWMutex
	entries   map[string]*bookEntry
	stale     time.Duration
	emitEvery time.Duration
	publish   func(domain.Update)
	now       func() time.Time
}

type bookEntry struct {
	book      *domain.OrderBook
	updatedAt time.Time
	source    domain.ValueSource
	sequence  uint64
	limiter   *rate.Limiter
}

func NewOrderBookCache(staleAfter, emitEvery time.Duration, publish func(domain.Update)) *OrderBookCache {
	return &OrderBookCache{
		entries:   make(map[string]*bookEntry),
		stale:     staleAfter,
		emitEvery: emitEvery,
		publish:   publish,
		now:       time.Now,
	}
}

// Apply stores a streamed snapshot. The cache always keeps the newest
// book; only the emit is rate limited.
func (c *OrderBookCache) Apply(book *domain.OrderBook) {
	c.mu.Lock()
	entry, ok := c.entries[book.Symbol]
	if !ok {
		entry = &bookEntry{
			limiter: rate.NewLimiter(rate.Every(c.emitEvery), 1),
		}
		c.entries[book.Symbol] = entry
	}
	entry.sequence++
	book.Sequence = entry.sequence
	entry.book = book
	entry.updatedAt = c.now()
	entry.source = domain.SourceStream
	emit := entry.limiter.Allow()
	snapshot := book.Clone()
	ts := entry.updatedAt
	c.mu.Unlock()

	if emit {
		c.notify(snapshot, ts)
	}
}

// Seed records a fallback-sourced snapshot unless a fresh streamed one
// already exists.
func (c *OrderBookCache) Seed(book *domain.OrderBook) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[book.Symbol]
	if ok && c.now().Sub(entry.updatedAt) < c.stale {
		return
	}
	if !ok {
		entry = &bookEntry{
			limiter: rate.NewLimiter(rate.Every(c.emitEvery), 1),
		}
		c.entries[book.Symbol] = entry
	}
	entry.sequence++
	book.Sequence = entry.sequence
	entry.book = book
	entry.updatedAt = c.now()
	entry.source = domain.SourceFallback
}

// Read returns a deep copy of the cached book so callers can never
// mutate the cache's copy.
func (c *OrderBookCache) Read(symbol string) (book *domain.OrderBook, source domain.ValueSource, stale, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[symbol]
	if !ok || entry.book == nil {
		return nil, domain.SourceStream, false, false
	}
	return entry.book.Clone(), entry.source, c.now().Sub(entry.updatedAt) >= c.stale, true
}

// Age returns how long ago the symbol's book was last written.
func (c *OrderBookCache) Age(symbol string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[symbol]
	if !ok {
		return 0, false
	}
	return c.now().Sub(entry.updatedAt), true
}

func (c *OrderBookCache) notify(book *domain.OrderBook, ts time.Time) {
	if c.publish == nil {
		return
	}
	c.publish(domain.Update{
		Kind:  domain.UpdateData,
		Topic: domain.TopicOrderBook,
		Key:   book.Symbol,
		Book:  book,
		Ts:    ts,
	})
}
