// Package broker defines the brokerage boundary: account positions,
// historical fills, trading unlock and market-order submission. Two
// implementations exist, the Alpaca adapter and an in-memory simulator.
package broker

import (
	"context"
	"time"
)

// Side of a market order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is an open holding in the brokerage account.
type Position struct {
	StockCode    string  `json:"stock_code"`
	Quantity     float64 `json:"quantity"`
	SellableQty  float64 `json:"sellable_qty"`
	CostPrice    float64 `json:"cost_price"`
	Price        float64 `json:"price"`
	MarketValue  float64 `json:"market_value"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}

// HistoricalOrder is a past order as reported by the brokerage. DealtQty
// and DealtAvgPrice describe what actually filled; unfilled orders carry
// zeroes there.
type HistoricalOrder struct {
	OrderID       string    `json:"order_id"`
	StockCode     string    `json:"stock_code"`
	Side          Side      `json:"side"`
	Status        string    `json:"status"`
	Quantity      float64   `json:"quantity"`
	DealtQty      float64   `json:"dealt_qty"`
	DealtAvgPrice float64   `json:"dealt_avg_price"`
	Remark        string    `json:"remark"`
	CreatedAt     time.Time `json:"created_at"`
}

// MarketOrder is a request to buy or sell at market. Ref travels to the
// brokerage as the client reference so fills can be traced back to the
// trailing order that produced them.
type MarketOrder struct {
	StockCode string
	Quantity  int
	Side      Side
	Ref       string
}

// Broker is the brokerage client surface the rest of the service depends
// on. Implementations must be safe for concurrent use.
type Broker interface {
	Name() string
	Positions(ctx context.Context) ([]Position, error)
	HistoricalOrders(ctx context.Context) ([]HistoricalOrder, error)
	UnlockTrading(ctx context.Context, password string) error
	PlaceMarketOrder(ctx context.Context, order MarketOrder) (string, error)
}
