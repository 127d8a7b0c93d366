package service

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"feed_go/internal/domain"
)

// PriceCache holds the latest ticker per tracked symbol. Stream dispatch
// is the single writer for live data; fallback reads may seed an entry
// only when nothing fresher exists.
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]*priceEntry
	tracked map[string]struct{}
	stale   time.Duration
	publish func(domain.Update)
	now     func() time.Time
}

type priceEntry struct {
	ticker    domain.Ticker
	firstSeen decimal.Decimal
	updatedAt time.Time
	source    domain.ValueSource
}

// NewPriceCache tracks the given symbols; an empty list tracks everything
// the stream sends.
func NewPriceCache(symbols []string, staleAfter time.Duration, publish func(domain.Update)) *PriceCache {
	c := &PriceCache{
		entries: make(map[string]*priceEntry),
		stale:   staleAfter,
		publish: publish,
		now:     time.Now,
	}
	if len(symbols) > 0 {
		c.tracked = make(map[string]struct{}, len(symbols))
		for _, sym := range symbols {
			c.tracked[sym] = struct{}{}
		}
	}
	return c
}

func (c *PriceCache) tracks(symbol string) bool {
	if c.tracked == nil {
		return true
	}
	_, ok := c.tracked[symbol]
	return ok
}

// ApplyMid stores a streamed mid price and recomputes the session change
// rate against the first price seen for the symbol.
func (c *PriceCache) ApplyMid(symbol string, mid decimal.Decimal) {
	if !c.tracks(symbol) {
		return
	}

	c.mu.Lock()
	entry, ok := c.entries[symbol]
	if !ok {
		entry = &priceEntry{}
		c.entries[symbol] = entry
	}
	if entry.firstSeen.IsZero() {
		entry.firstSeen = mid
	}
	entry.ticker.Symbol = symbol
	entry.ticker.Price = mid
	if !entry.firstSeen.IsZero() {
		entry.ticker.ChangeRate = mid.Sub(entry.firstSeen).
			Div(entry.firstSeen).
			Mul(decimal.NewFromInt(100))
	}
	entry.updatedAt = c.now()
	entry.source = domain.SourceStream
	snapshot := entry.ticker
	ts := entry.updatedAt
	c.mu.Unlock()

	c.notify(snapshot, ts)
}

// ApplyQuote stores the best bid/ask derived from the order book stream.
func (c *PriceCache) ApplyQuote(symbol string, bid, ask decimal.Decimal) {
	if !c.tracks(symbol) {
		return
	}

	c.mu.Lock()
	entry, ok := c.entries[symbol]
	if !ok {
		entry = &priceEntry{}
		c.entries[symbol] = entry
	}
	entry.ticker.Symbol = symbol
	entry.ticker.Bid = bid
	entry.ticker.Ask = ask
	if entry.ticker.Price.IsZero() {
		entry.ticker.Price = bid.Add(ask).Div(decimal.NewFromInt(2))
	}
	entry.updatedAt = c.now()
	entry.source = domain.SourceStream
	snapshot := entry.ticker
	ts := entry.updatedAt
	c.mu.Unlock()

	c.notify(snapshot, ts)
}

// Seed records a fallback-sourced ticker. The write is skipped when a
// fresh entry already exists, so a racing stream update always wins.
func (c *PriceCache) Seed(symbol string, t domain.Ticker) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[symbol]
	if ok && c.now().Sub(entry.updatedAt) < c.stale {
		return
	}
	if !ok {
		entry = &priceEntry{firstSeen: t.Price}
		c.entries[symbol] = entry
	}
	entry.ticker = t
	entry.updatedAt = c.now()
	entry.source = domain.SourceFallback
}

// Read returns the cached ticker, its source, and whether it has gone
// stale. ok is false when the symbol has never been written.
func (c *PriceCache) Read(symbol string) (t domain.Ticker, source domain.ValueSource, stale, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[symbol]
	if !ok {
		return domain.Ticker{}, domain.SourceStream, false, false
	}
	return entry.ticker, entry.source, c.now().Sub(entry.updatedAt) >= c.stale, true
}

// Age returns how long ago the symbol was last written.
func (c *PriceCache) Age(symbol string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[symbol]
	if !ok {
		return 0, false
	}
	return c.now().Sub(entry.updatedAt), true
}

func (c *PriceCache) notify(t domain.Ticker, ts time.Time) {
	if c.publish == nil {
		return
	}
	c.publish(domain.Update{
		Kind:   domain.UpdateData,
		Topic:  domain.TopicPrice,
		Key:    t.Symbol,
		Ticker: &t,
		Ts:     ts,
	})
}
