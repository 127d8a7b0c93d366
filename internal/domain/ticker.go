package domain

import "github.com/shopspring/decimal"

// Ticker represents the latest price state for a single symbol.
type Ticker struct {
	Symbol     string          `json:"symbol"`      // Unified symbol (e.g., "BTC")
	Price      decimal.Decimal `json:"price"`       // Mid price
	Bid        decimal.Decimal `json:"bid"`         // Best bid (zero until book data arrives)
	Ask        decimal.Decimal `json:"ask"`         // Best ask (zero until book data arrives)
	ChangeRate decimal.Decimal `json:"change_rate"` // 24h change (%)
}

// HasQuote reports whether both sides of the book have been observed.
func (t *Ticker) HasQuote() bool {
	return t.Bid.IsPositive() && t.Ask.IsPositive()
}

// Mid returns (bid+ask)/2 when both sides exist, otherwise the last price.
func (t *Ticker) Mid() decimal.Decimal {
	if !t.HasQuote() {
		return t.Price
	}
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns ask-bid, or zero when a side is missing.
func (t *Ticker) Spread() decimal.Decimal {
	if !t.HasQuote() {
		return decimal.Zero
	}
	return t.Ask.Sub(t.Bid)
}
