package orders

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"tradewatch/internal/broker"
)

// QuoteSource provides a latest price for a stock code when the account
// holds no position to read it from.
type QuoteSource interface {
	Price(ctx context.Context, stockCode string) (float64, error)
}

// Policy encapsulates the per-kind brokerage logic so the manager stays
// type-agnostic: validation at open, pricing during evaluation and the
// market-order side effect on trigger.
type Policy interface {
	// ValidateOpen checks the preconditions for accepting a new order,
	// fetching account state from the broker only if the kind needs it.
	ValidateOpen(ctx context.Context, o Order) error
	CanCancel(o Order) bool
	IsWaiting(o Order) bool
	CurrentPrice(ctx context.Context, o Order, positions []broker.Position) (float64, error)
	// Execute submits the market order for a triggered order and returns
	// the brokerage reference. It performs no status transitions; the
	// manager owns those under its lock.
	Execute(ctx context.Context, o Order) (string, error)
}

// DefaultPolicies wires the dispatch table the manager consults per kind.
func DefaultPolicies(b broker.Broker, quotes QuoteSource, tradingPassword string) map[Kind]Policy {
	return map[Kind]Policy{
		KindSell: NewSellPolicy(b, tradingPassword),
		KindBuy:  NewBuyPolicy(b, quotes, tradingPassword),
	}
}

// basePolicy carries the status checks and execution path shared by both
// kinds.
type basePolicy struct {
	broker   broker.Broker
	password string
}

func (basePolicy) CanCancel(o Order) bool { return o.GetStatus() == StatusWaiting }
func (basePolicy) IsWaiting(o Order) bool { return o.GetStatus() == StatusWaiting }

// execute unlocks the trading session and places a market DAY order. An
// unlock failure is logged and the order is attempted anyway; a placement
// failure becomes an ExecutionError and is never retried here.
func (p basePolicy) execute(ctx context.Context, o Order, side broker.Side) (string, error) {
	logger := log.With().
		Str("service", "orders").
		Str("order_id", o.GetID()).
		Str("stock_code", o.GetStockCode()).
		Str("side", string(side)).
		Logger()

	if err := p.broker.UnlockTrading(ctx, p.password); err != nil {
		logger.Warn().Err(err).Msg("failed to unlock trading session, attempting order anyway")
	}

	ref, err := p.broker.PlaceMarketOrder(ctx, broker.MarketOrder{
		StockCode: o.GetStockCode(),
		Quantity:  o.GetQuantity(),
		Side:      side,
		Ref:       o.GetID(),
	})
	if err != nil {
		return "", &ExecutionError{OrderID: o.GetID(), Err: err}
	}

	logger.Info().Str("broker_ref", ref).Int("quantity", o.GetQuantity()).Msg("market order placed")
	return ref, nil
}

// SellPolicy handles trailing-stop sells: the account must already hold
// enough sellable shares, and the held position is the only price source.
type SellPolicy struct {
	basePolicy
}

func NewSellPolicy(b broker.Broker, tradingPassword string) *SellPolicy {
	return &SellPolicy{basePolicy{broker: b, password: tradingPassword}}
}

func (p *SellPolicy) ValidateOpen(ctx context.Context, o Order) error {
	positions, err := p.broker.Positions(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPositionsUnavailable, err)
	}
	pos, ok := findPosition(positions, o.GetStockCode())
	if !ok {
		return &InsufficientPositionError{StockCode: o.GetStockCode(), Required: o.GetQuantity()}
	}
	if pos.SellableQty < float64(o.GetQuantity()) {
		return &InsufficientPositionError{
			StockCode: o.GetStockCode(),
			Sellable:  pos.SellableQty,
			Required:  o.GetQuantity(),
		}
	}
	return nil
}

func (p *SellPolicy) CurrentPrice(ctx context.Context, o Order, positions []broker.Position) (float64, error) {
	pos, ok := findPosition(positions, o.GetStockCode())
	if !ok {
		return 0, fmt.Errorf("no open position for %s: %w", o.GetStockCode(), ErrPriceUnavailable)
	}
	if pos.Price <= 0 {
		return 0, fmt.Errorf("position for %s has no price: %w", o.GetStockCode(), ErrPriceUnavailable)
	}
	return pos.Price, nil
}

func (p *SellPolicy) Execute(ctx context.Context, o Order) (string, error) {
	return p.execute(ctx, o, broker.SideSell)
}

// BuyPolicy handles trailing-stop buys: no position precondition, and
// pricing falls back to a market-data quote when nothing is held.
type BuyPolicy struct {
	basePolicy
	quotes QuoteSource
}

func NewBuyPolicy(b broker.Broker, quotes QuoteSource, tradingPassword string) *BuyPolicy {
	return &BuyPolicy{
		basePolicy: basePolicy{broker: b, password: tradingPassword},
		quotes:     quotes,
	}
}

// ValidateOpen is a no-op: buying requires no existing position.
func (p *BuyPolicy) ValidateOpen(ctx context.Context, o Order) error {
	return nil
}

func (p *BuyPolicy) CurrentPrice(ctx context.Context, o Order, positions []broker.Position) (float64, error) {
	if pos, ok := findPosition(positions, o.GetStockCode()); ok && pos.Price > 0 {
		return pos.Price, nil
	}
	price, err := p.quotes.Price(ctx, o.GetStockCode())
	if err != nil {
		return 0, fmt.Errorf("market data lookup for %s failed: %v: %w", o.GetStockCode(), err, ErrPriceUnavailable)
	}
	if price <= 0 {
		return 0, fmt.Errorf("no price for %s: %w", o.GetStockCode(), ErrPriceUnavailable)
	}
	return price, nil
}

func (p *BuyPolicy) Execute(ctx context.Context, o Order) (string, error) {
	return p.execute(ctx, o, broker.SideBuy)
}

func findPosition(positions []broker.Position, stockCode string) (broker.Position, bool) {
	for _, pos := range positions {
		if pos.StockCode == stockCode {
			return pos, true
		}
	}
	return broker.Position{}, false
}
