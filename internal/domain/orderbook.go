package domain

import "github.com/shopspring/decimal"

// BookLevel is a single price level in the order book.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Count int             `json:"count"` // Number of orders at this level
}

// OrderBook is a full L2 snapshot for one symbol. Consumers must treat
// every delivered book as a complete replacement, never as a delta.
type OrderBook struct {
	Symbol   string      `json:"symbol"`
	Bids     []BookLevel `json:"bids"` // Sorted highest to lowest
	Asks     []BookLevel `json:"asks"` // Sorted lowest to highest
	Sequence uint64      `json:"sequence"`
}

// BestBid returns the top bid price, or nil for an empty side.
func (b *OrderBook) BestBid() *decimal.Decimal {
	if len(b.Bids) == 0 {
		return nil
	}
	return &b.Bids[0].Price
}

// BestAsk returns the top ask price, or nil for an empty side.
func (b *OrderBook) BestAsk() *decimal.Decimal {
	if len(b.Asks) == 0 {
		return nil
	}
	return &b.Asks[0].Price
}

// Mid returns (bestBid+bestAsk)/2, or nil when either side is empty.
func (b *OrderBook) Mid() *decimal.Decimal {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return nil
	}
	mid := bid.Add(*ask).Div(decimal.NewFromInt(2))
	return &mid
}

// Spread returns bestAsk-bestBid, or nil when either side is empty.
func (b *OrderBook) Spread() *decimal.Decimal {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return nil
	}
	spread := ask.Sub(*bid)
	return &spread
}

// SpreadPct returns the spread as a percentage of the mid price.
func (b *OrderBook) SpreadPct() *decimal.Decimal {
	spread, mid := b.Spread(), b.Mid()
	if spread == nil || mid == nil || mid.IsZero() {
		return nil
	}
	pct := spread.Div(*mid).Mul(decimal.NewFromInt(100))
	return &pct
}

// BidDepth returns the total size on the bid side.
func (b *OrderBook) BidDepth() decimal.Decimal {
	total := decimal.Zero
	for i := range b.Bids {
		total = total.Add(b.Bids[i].Size)
	}
	return total
}

// AskDepth returns the total size on the ask side.
func (b *OrderBook) AskDepth() decimal.Decimal {
	total := decimal.Zero
	for i := range b.Asks {
		total = total.Add(b.Asks[i].Size)
	}
	return total
}

// Imbalance returns (bidDepth-askDepth)/(bidDepth+askDepth) in [-1, 1].
// Positive means more resting bids, negative more resting asks.
func (b *OrderBook) Imbalance() decimal.Decimal {
	bid, ask := b.BidDepth(), b.AskDepth()
	total := bid.Add(ask)
	if total.IsZero() {
		return decimal.Zero
	}
	return bid.Sub(ask).Div(total)
}

// Clone returns a deep copy safe to hand to consumers.
func (b *OrderBook) Clone() *OrderBook {
	cp := &OrderBook{
		Symbol:   b.Symbol,
		Bids:     make([]BookLevel, len(b.Bids)),
		Asks:     make([]BookLevel, len(b.Asks)),
		Sequence: b.Sequence,
	}
	copy(cp.Bids, b.Bids)
	copy(cp.Asks, b.Asks)
	return cp
}
