package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tradewatch/internal/util"
)

// Alpaca adapts the Alpaca trading API to the Broker interface. Reads are
// retried with backoff; order placement is submitted exactly once.
type Alpaca struct {
	client *alpaca.Client
}

// NewAlpaca builds a client against the given endpoint. An empty baseURL
// defers to the SDK, which honors APCA_API_BASE_URL before falling back
// to the live endpoint.
func NewAlpaca(apiKey, apiSecret, baseURL string) *Alpaca {
	return &Alpaca{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
	}
}

func (a *Alpaca) Name() string { return "alpaca" }

// Positions returns the account's open positions.
func (a *Alpaca) Positions(ctx context.Context) ([]Position, error) {
	var raw []alpaca.Position
	err := util.Retry(ctx, 3, time.Second, func() error {
		var err error
		raw, err = a.client.GetPositions()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, Position{
			StockCode:    p.Symbol,
			Quantity:     p.Qty.InexactFloat64(),
			SellableQty:  p.QtyAvailable.InexactFloat64(),
			CostPrice:    p.AvgEntryPrice.InexactFloat64(),
			Price:        decimalValue(p.CurrentPrice),
			MarketValue:  decimalValue(p.MarketValue),
			UnrealizedPL: decimalValue(p.UnrealizedPL),
		})
	}
	return positions, nil
}

// HistoricalOrders returns the most recent closed orders, newest first.
// 500 is the API's page limit and plenty for a personal account.
func (a *Alpaca) HistoricalOrders(ctx context.Context) ([]HistoricalOrder, error) {
	var raw []alpaca.Order
	err := util.Retry(ctx, 3, time.Second, func() error {
		var err error
		raw, err = a.client.GetOrders(alpaca.GetOrdersRequest{
			Status:    "closed",
			Until:     time.Now(),
			Limit:     500,
			Direction: "desc",
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching historical orders: %w", err)
	}

	orders := make([]HistoricalOrder, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, HistoricalOrder{
			OrderID:       o.ID,
			StockCode:     o.Symbol,
			Side:          Side(o.Side),
			Status:        string(o.Status),
			Quantity:      decimalValue(o.Qty),
			DealtQty:      o.FilledQty.InexactFloat64(),
			DealtAvgPrice: decimalValue(o.FilledAvgPrice),
			Remark:        o.ClientOrderID,
			CreatedAt:     o.CreatedAt,
		})
	}
	return orders, nil
}

// UnlockTrading is a no-op: Alpaca has no trade-unlock concept.
func (a *Alpaca) UnlockTrading(ctx context.Context, password string) error {
	log.Debug().Str("broker", a.Name()).Msg("unlock trading is a no-op for alpaca")
	return nil
}

// PlaceMarketOrder submits a market DAY order. Never retried: a timeout
// here may still have filled, and a second submission would double it.
func (a *Alpaca) PlaceMarketOrder(ctx context.Context, order MarketOrder) (string, error) {
	qty := decimal.NewFromInt(int64(order.Quantity))
	side := alpaca.Sell
	if order.Side == SideBuy {
		side = alpaca.Buy
	}

	placed, err := a.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        order.StockCode,
		Qty:           &qty,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: order.Ref,
	})
	if err != nil {
		return "", fmt.Errorf("placing %s order for %s: %w", order.Side, order.StockCode, err)
	}

	log.Info().
		Str("broker", a.Name()).
		Str("broker_order_id", placed.ID).
		Str("stock_code", order.StockCode).
		Str("side", string(order.Side)).
		Int("quantity", order.Quantity).
		Msg("market order placed")
	return placed.ID, nil
}

func decimalValue(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
