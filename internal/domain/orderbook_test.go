package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func level(price, size int64) BookLevel {
	return BookLevel{Price: decimal.NewFromInt(price), Size: decimal.NewFromInt(size), Count: 1}
}

func TestOrderBook_TopOfBook(t *testing.T) {
	t.Run("Normal Book", func(t *testing.T) {
		book := OrderBook{
			Symbol: "BTC",
			Bids:   []BookLevel{level(99, 2), level(98, 5)},
			Asks:   []BookLevel{level(101, 3), level(102, 1)},
		}

		if bid := book.BestBid(); bid == nil || !bid.Equal(decimal.NewFromInt(99)) {
			t.Errorf("BestBid = %v, want 99", bid)
		}
		if ask := book.BestAsk(); ask == nil || !ask.Equal(decimal.NewFromInt(101)) {
			t.Errorf("BestAsk = %v, want 101", ask)
		}
		if mid := book.Mid(); mid == nil || !mid.Equal(decimal.NewFromInt(100)) {
			t.Errorf("Mid = %v, want 100", mid)
		}
		if spread := book.Spread(); spread == nil || !spread.Equal(decimal.NewFromInt(2)) {
			t.Errorf("Spread = %v, want 2", spread)
		}
		if pct := book.SpreadPct(); pct == nil || !pct.Equal(decimal.NewFromInt(2)) {
			t.Errorf("SpreadPct = %v, want 2", pct)
		}
	})

	t.Run("Safety: Empty Side", func(t *testing.T) {
		book := OrderBook{Symbol: "BTC", Asks: []BookLevel{level(101, 3)}}

		if book.BestBid() != nil {
			t.Error("BestBid should be nil for empty bid side")
		}
		if book.Mid() != nil {
			t.Error("Mid should be nil with one empty side")
		}
		if book.Spread() != nil {
			t.Error("Spread should be nil with one empty side")
		}
	})
}

func TestOrderBook_DepthAndImbalance(t *testing.T) {
	book := OrderBook{
		Symbol: "ETH",
		Bids:   []BookLevel{level(99, 6), level(98, 3)},
		Asks:   []BookLevel{level(101, 1)},
	}

	if depth := book.BidDepth(); !depth.Equal(decimal.NewFromInt(9)) {
		t.Errorf("BidDepth = %s, want 9", depth)
	}
	if depth := book.AskDepth(); !depth.Equal(decimal.NewFromInt(1)) {
		t.Errorf("AskDepth = %s, want 1", depth)
	}

	// (9 - 1) / 10 = 0.8
	if imb := book.Imbalance(); !imb.Equal(decimal.NewFromFloat(0.8)) {
		t.Errorf("Imbalance = %s, want 0.8", imb)
	}

	t.Run("Empty Book", func(t *testing.T) {
		empty := OrderBook{Symbol: "ETH"}
		if !empty.Imbalance().IsZero() {
			t.Error("Imbalance of empty book should be zero, not panic")
		}
	})
}

func TestOrderBook_Clone(t *testing.T) {
	book := OrderBook{
		Symbol:   "BTC",
		Bids:     []BookLevel{level(99, 2)},
		Asks:     []BookLevel{level(101, 3)},
		Sequence: 7,
	}

	cp := book.Clone()
	cp.Bids[0].Size = decimal.NewFromInt(999)

	if book.Bids[0].Size.Equal(decimal.NewFromInt(999)) {
		t.Error("Clone must not share level storage with the original")
	}
	if cp.Sequence != 7 {
		t.Errorf("Clone sequence = %d, want 7", cp.Sequence)
	}
}
