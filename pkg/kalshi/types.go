package kalshi

import (
	"github.com/shopspring/decimal"
)

// Market is one tradeable yes/no contract. Prices are integer cents.
type Market struct {
	Ticker         string `json:"ticker"`
	EventTicker    string `json:"event_ticker"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	YesBid         int    `json:"yes_bid"`
	YesAsk         int    `json:"yes_ask"`
	NoBid          int    `json:"no_bid"`
	NoAsk          int    `json:"no_ask"`
	LastPrice      int    `json:"last_price"`
	Volume         int64  `json:"volume"`
	Volume24H      int64  `json:"volume_24h"`
	OpenInterest   int64  `json:"open_interest"`
	Liquidity      int64  `json:"liquidity"`
	CloseTime      string `json:"close_time"`
	ExpirationTime string `json:"expiration_time"`
}

// SpreadCents is yes_ask - yes_bid, or -1 when either side is unquoted.
func (m *Market) SpreadCents() int {
	if m.YesBid <= 0 || m.YesAsk <= 0 {
		return -1
	}
	return m.YesAsk - m.YesBid
}

// MarketsResponse is the GET /markets page.
type MarketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// Event groups related markets under one series.
type Event struct {
	EventTicker  string   `json:"event_ticker"`
	SeriesTicker string   `json:"series_ticker"`
	Title        string   `json:"title"`
	Category     string   `json:"category"`
	Markets      []Market `json:"markets"`
}

// OpenMarkets returns only the markets currently open for trading.
func (e *Event) OpenMarkets() []Market {
	var open []Market
	for _, m := range e.Markets {
		if m.Status == "open" || m.Status == "active" {
			open = append(open, m)
		}
	}
	return open
}

// EventsResponse is the GET /events page. An empty Cursor means the
// listing is exhausted.
type EventsResponse struct {
	Events []Event `json:"events"`
	Cursor string  `json:"cursor"`
}

// MarketResponse wraps a single market lookup.
type MarketResponse struct {
	Market Market `json:"market"`
}

// Orderbook holds resting liquidity as [price_cents, count] levels.
type Orderbook struct {
	Yes [][]int `json:"yes"`
	No  [][]int `json:"no"`
}

// BestYesBid returns the highest resting yes bid, or 0 when empty.
func (ob *Orderbook) BestYesBid() int {
	best := 0
	for _, level := range ob.Yes {
		if len(level) >= 2 && level[0] > best {
			best = level[0]
		}
	}
	return best
}

// BestNoBid returns the highest resting no bid, or 0 when empty.
func (ob *Orderbook) BestNoBid() int {
	best := 0
	for _, level := range ob.No {
		if len(level) >= 2 && level[0] > best {
			best = level[0]
		}
	}
	return best
}

// OrderbookResponse wraps GET /markets/{ticker}/orderbook.
type OrderbookResponse struct {
	Orderbook Orderbook `json:"orderbook"`
}

// BalanceResponse is the portfolio balance in cents.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// Dollars converts the cent balance to a decimal dollar amount.
func (b *BalanceResponse) Dollars() decimal.Decimal {
	return decimal.New(b.Balance, -2)
}

// Order is the exchange's view of a submitted order.
type Order struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	Count          int    `json:"count"`
	RemainingCount int    `json:"remaining_count"`
	OrderGroupID   string `json:"order_group_id"`
}

// CreateOrderResponse wraps POST /portfolio/orders.
type CreateOrderResponse struct {
	Order Order `json:"order"`
}

// CancelOrderResponse wraps DELETE /portfolio/orders/{id}. ReducedBy
// is how many resting contracts the cancel removed.
type CancelOrderResponse struct {
	Order     Order `json:"order"`
	ReducedBy int   `json:"reduced_by"`
}

// CreateOrderGroupResponse wraps POST /portfolio/order_groups/create.
type CreateOrderGroupResponse struct {
	OrderGroupID string `json:"order_group_id"`
}
