package hyperliquid

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"feed_go/internal/domain"
)

// Outbound control messages.

type wsRequest struct {
	Method       string          `json:"method"`
	Subscription *wsSubscription `json:"subscription,omitempty"`
}

type wsSubscription struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
	User string `json:"user,omitempty"`
}

func subscriptionFor(sub domain.Subscription) []wsSubscription {
	switch sub.Topic {
	case domain.TopicPrice:
		// Mids for every coin arrive on a single channel.
		return []wsSubscription{{Type: "allMids"}}
	case domain.TopicOrderBook:
		return []wsSubscription{{Type: "l2Book", Coin: sub.Key}}
	case domain.TopicUserState:
		return []wsSubscription{
			{Type: "userFills", User: sub.Key},
			{Type: "userEvents", User: sub.Key},
		}
	default:
		return nil
	}
}

// Inbound frames. Every server frame is a channel-tagged envelope.

type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type allMidsData struct {
	Mids map[string]string `json:"mids"`
}

type wireLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type l2BookData struct {
	Coin   string        `json:"coin"`
	Time   int64         `json:"time"`
	Levels [][]wireLevel `json:"levels"` // [bids, asks]
}

type wireFill struct {
	Coin      string `json:"coin"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	Side      string `json:"side"` // "B" buy, "A" sell
	Time      int64  `json:"time"` // Unix millis
	Fee       string `json:"fee"`
	ClosedPnl string `json:"closedPnl"`
	Oid       int64  `json:"oid"`
}

type userFillsData struct {
	User       string     `json:"user"`
	IsSnapshot bool       `json:"isSnapshot"`
	Fills      []wireFill `json:"fills"`
}

type wireLeverage struct {
	Value decimal.Decimal `json:"value"`
}

type wirePosition struct {
	Coin           string       `json:"coin"`
	Szi            string       `json:"szi"`
	EntryPx        string       `json:"entryPx"`
	UnrealizedPnl  string       `json:"unrealizedPnl"`
	ReturnOnEquity string       `json:"returnOnEquity"`
	Leverage       wireLeverage `json:"leverage"`
	LiquidationPx  string       `json:"liquidationPx"`
	MarginUsed     string       `json:"marginUsed"`
}

type wireAssetPosition struct {
	Position wirePosition `json:"position"`
}

type wireMarginSummary struct {
	AccountValue    string `json:"accountValue"`
	Withdrawable    string `json:"withdrawable"`
	TotalMarginUsed string `json:"totalMarginUsed"`
	TotalNtlPos     string `json:"totalNtlPos"`
}

type userEventsData struct {
	User           string              `json:"user"`
	AssetPositions []wireAssetPosition `json:"assetPositions"`
	MarginSummary  *wireMarginSummary  `json:"marginSummary"`
}

// clearinghouseState is the request/response shape for user-state
// fallback reads.
type clearinghouseState struct {
	AssetPositions []wireAssetPosition `json:"assetPositions"`
	MarginSummary  wireMarginSummary   `json:"marginSummary"`
	Withdrawable   string              `json:"withdrawable"`
}

// Boundary conversion: exchange strings in, decimals out. A value that
// fails to parse rejects the whole message so a half-parsed update never
// reaches a cache.

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}

func (d *l2BookData) toBook(depth int) (*domain.OrderBook, error) {
	if d.Coin == "" || len(d.Levels) < 2 {
		return nil, fmt.Errorf("l2Book missing coin or levels")
	}

	parseSide := func(raw []wireLevel) ([]domain.BookLevel, error) {
		if depth > 0 && len(raw) > depth {
			raw = raw[:depth]
		}
		out := make([]domain.BookLevel, 0, len(raw))
		for _, lvl := range raw {
			px, err := parseDecimal("px", lvl.Px)
			if err != nil {
				return nil, err
			}
			sz, err := parseDecimal("sz", lvl.Sz)
			if err != nil {
				return nil, err
			}
			n := lvl.N
			if n <= 0 {
				n = 1
			}
			out = append(out, domain.BookLevel{Price: px, Size: sz, Count: n})
		}
		return out, nil
	}

	bids, err := parseSide(d.Levels[0])
	if err != nil {
		return nil, err
	}
	asks, err := parseSide(d.Levels[1])
	if err != nil {
		return nil, err
	}

	return &domain.OrderBook{Symbol: d.Coin, Bids: bids, Asks: asks}, nil
}

func (f *wireFill) toFill() (domain.Fill, error) {
	px, err := parseDecimal("px", f.Px)
	if err != nil {
		return domain.Fill{}, err
	}
	sz, err := parseDecimal("sz", f.Sz)
	if err != nil {
		return domain.Fill{}, err
	}
	fee, err := parseDecimal("fee", f.Fee)
	if err != nil {
		return domain.Fill{}, err
	}
	pnl, err := parseDecimal("closedPnl", f.ClosedPnl)
	if err != nil {
		return domain.Fill{}, err
	}

	return domain.Fill{
		Symbol:    f.Coin,
		Side:      f.Side,
		Size:      sz,
		Price:     px,
		Fee:       fee,
		ClosedPnl: pnl,
		OrderID:   fmt.Sprintf("%d", f.Oid),
		Time:      time.UnixMilli(f.Time),
	}, nil
}

func (p *wirePosition) toPosition() (domain.Position, error) {
	size, err := parseDecimal("szi", p.Szi)
	if err != nil {
		return domain.Position{}, err
	}
	entry, err := parseDecimal("entryPx", p.EntryPx)
	if err != nil {
		return domain.Position{}, err
	}
	pnl, err := parseDecimal("unrealizedPnl", p.UnrealizedPnl)
	if err != nil {
		return domain.Position{}, err
	}
	roe, err := parseDecimal("returnOnEquity", p.ReturnOnEquity)
	if err != nil {
		return domain.Position{}, err
	}
	margin, err := parseDecimal("marginUsed", p.MarginUsed)
	if err != nil {
		return domain.Position{}, err
	}

	pos := domain.Position{
		Symbol:         p.Coin,
		Size:           size,
		EntryPrice:     entry,
		UnrealizedPnl:  pnl,
		ReturnOnEquity: roe,
		Leverage:       p.Leverage.Value,
		MarginUsed:     margin,
	}
	if p.LiquidationPx != "" {
		liq, err := parseDecimal("liquidationPx", p.LiquidationPx)
		if err != nil {
			return domain.Position{}, err
		}
		pos.LiquidationPrice = &liq
	}
	return pos, nil
}

func (m *wireMarginSummary) toAccountState() (domain.AccountState, error) {
	value, err := parseDecimal("accountValue", m.AccountValue)
	if err != nil {
		return domain.AccountState{}, err
	}
	withdrawable, err := parseDecimal("withdrawable", m.Withdrawable)
	if err != nil {
		return domain.AccountState{}, err
	}
	marginUsed, err := parseDecimal("totalMarginUsed", m.TotalMarginUsed)
	if err != nil {
		return domain.AccountState{}, err
	}
	ntl, err := parseDecimal("totalNtlPos", m.TotalNtlPos)
	if err != nil {
		return domain.AccountState{}, err
	}

	return domain.AccountState{
		AccountValue:       value,
		Withdrawable:       withdrawable,
		TotalMarginUsed:    marginUsed,
		TotalUnrealizedPnl: ntl,
	}, nil
}
