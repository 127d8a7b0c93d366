package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxRecentFills bounds the per-account recent fills list.
const MaxRecentFills = 100

// Position is one open perpetual position.
type Position struct {
	Symbol           string           `json:"symbol"`
	Size             decimal.Decimal  `json:"size"` // Positive = long, negative = short
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	UnrealizedPnl    decimal.Decimal  `json:"unrealized_pnl"`
	ReturnOnEquity   decimal.Decimal  `json:"return_on_equity"` // Fraction, not percent
	Leverage         decimal.Decimal  `json:"leverage"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty"`
	MarginUsed       decimal.Decimal  `json:"margin_used"`
}

// IsLong reports whether the position size is positive.
func (p *Position) IsLong() bool {
	return p.Size.IsPositive()
}

// Side returns "LONG" or "SHORT".
func (p *Position) Side() string {
	if p.IsLong() {
		return "LONG"
	}
	return "SHORT"
}

// PnlPercent returns return-on-equity expressed as a percentage.
func (p *Position) PnlPercent() decimal.Decimal {
	return p.ReturnOnEquity.Mul(decimal.NewFromInt(100))
}

// Fill is a single trade execution.
type Fill struct {
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"` // "B" = buy, "A" = sell
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	ClosedPnl decimal.Decimal `json:"closed_pnl"`
	OrderID   string          `json:"order_id"`
	Time      time.Time       `json:"time"`
}

// IsBuy reports whether this fill bought the base asset.
func (f *Fill) IsBuy() bool {
	return f.Side == "B"
}

// AccountState is the margin summary for one account.
type AccountState struct {
	AccountValue       decimal.Decimal `json:"account_value"`
	Withdrawable       decimal.Decimal `json:"withdrawable"`
	TotalMarginUsed    decimal.Decimal `json:"total_margin_used"`
	TotalUnrealizedPnl decimal.Decimal `json:"total_unrealized_pnl"`
}

// UserState is the compound per-account value held by the user-state
// cache: balances, positions by symbol and the recent fills, newest
// first.
type UserState struct {
	Account     string              `json:"account"`
	Balance     AccountState        `json:"balance"`
	Positions   map[string]Position `json:"positions"`
	RecentFills []Fill              `json:"recent_fills"`
}

// Position returns the open position for a symbol, if any.
func (u *UserState) Position(symbol string) (Position, bool) {
	p, ok := u.Positions[symbol]
	return p, ok
}

// Clone returns a deep copy safe to hand to consumers.
func (u *UserState) Clone() *UserState {
	cp := &UserState{
		Account:     u.Account,
		Balance:     u.Balance,
		Positions:   make(map[string]Position, len(u.Positions)),
		RecentFills: make([]Fill, len(u.RecentFills)),
	}
	for k, v := range u.Positions {
		cp.Positions[k] = v
	}
	copy(cp.RecentFills, u.RecentFills)
	return cp
}
