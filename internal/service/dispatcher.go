package service

import (
	"github.com/shopspring/decimal"

	"feed_go/internal/domain"
)

// CacheDispatcher routes decoded stream payloads into the topic caches.
// It runs on the connection's read goroutine, which keeps each cache
// single-writer for live data.
type CacheDispatcher struct {
	prices *PriceCache
	books  *OrderBookCache
	users  *UserStateCache
}

func NewCacheDispatcher(prices *PriceCache, books *OrderBookCache, users *UserStateCache) *CacheDispatcher {
	return &CacheDispatcher{prices: prices, books: books, users: users}
}

func (d *CacheDispatcher) ApplyMids(mids map[string]decimal.Decimal) {
	for symbol, mid := range mids {
		d.prices.ApplyMid(symbol, mid)
	}
}

// ApplyBook feeds the order book cache and refreshes the ticker quote
// from the top of book.
func (d *CacheDispatcher) ApplyBook(book *domain.OrderBook) {
	d.books.Apply(book)

	bid := book.BestBid()
	ask := book.BestAsk()
	if bid != nil && ask != nil {
		d.prices.ApplyQuote(book.Symbol, *bid, *ask)
	}
}

func (d *CacheDispatcher) ApplyFills(account string, fills []domain.Fill, snapshot bool) {
	d.users.ApplyFills(account, fills, snapshot)
}

func (d *CacheDispatcher) ApplyUserEvent(account string, positions []domain.Position, balance *domain.AccountState) {
	if len(positions) > 0 {
		d.users.ApplyPositions(account, positions)
	}
	if balance != nil {
		d.users.ApplyBalance(account, *balance)
	}
}
